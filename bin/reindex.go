package main

import (
	"context"
	"fmt"
	"time"

	"www.velocidex.com/golang/fleetstore/collections"
	"www.velocidex.com/golang/fleetstore/paths"
)

var (
	reindex_command = app.Command(
		"reindex", "Run index maintenance on a collection now.")

	reindex_command_collection_id = reindex_command.Arg(
		"collection_id", "The collection to reindex.").Required().String()

	reindex_command_kind = reindex_command.Flag(
		"kind", "The collection kind.").
		Default(collections.KindGeneral).
		Enum(collections.KindIndexed, collections.KindGeneral)
)

func doReindex() error {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	if err != nil {
		return fmt.Errorf("Unable to load config file: %w", err)
	}

	collection_id := *reindex_command_collection_id
	err = paths.ValidateCollectionId(collection_id)
	if err != nil {
		return err
	}

	collection, err := collections.OpenCollectionForIndexing(
		config_obj, *reindex_command_kind, collection_id)
	if err != nil {
		return err
	}

	now := time.Now()
	err = collection.UpdateIndex(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Done in %v\n", time.Now().Sub(now))
	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case reindex_command.FullCommand():
			FatalIfError(reindex_command, doReindex)

		default:
			return false
		}
		return true
	})
}
