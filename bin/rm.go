package main

import (
	"fmt"

	"www.velocidex.com/golang/fleetstore/collections"
	"www.velocidex.com/golang/fleetstore/logging"
	"www.velocidex.com/golang/fleetstore/paths"
)

var (
	rm_command = app.Command(
		"rm", "Delete a collection and its index.")

	rm_command_collection_id = rm_command.Arg(
		"collection_id", "The collection to delete.").Required().String()
)

func doRm() error {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	if err != nil {
		return fmt.Errorf("Unable to load config file: %w", err)
	}

	collection_id := *rm_command_collection_id
	err = paths.ValidateCollectionId(collection_id)
	if err != nil {
		return err
	}

	collection := collections.NewGeneralCollection(
		config_obj, collection_id)
	err = collection.Delete()
	if err != nil {
		return err
	}

	logger := logging.GetLogger(config_obj, &logging.ToolComponent)
	logger.Info("Deleted %v", collection_id)

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case rm_command.FullCommand():
			FatalIfError(rm_command, doRm)

		default:
			return false
		}
		return true
	})
}
