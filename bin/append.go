package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/Velocidex/ordereddict"
	"www.velocidex.com/golang/fleetstore/collections"
	"www.velocidex.com/golang/fleetstore/json"
	"www.velocidex.com/golang/fleetstore/logging"
	"www.velocidex.com/golang/fleetstore/paths"
)

var (
	append_command = app.Command(
		"append", "Append JSONL rows from stdin to a collection.")

	append_command_collection_id = append_command.Arg(
		"collection_id", "The collection to append to.").Required().String()
)

func doAppend() error {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	if err != nil {
		return fmt.Errorf("Unable to load config file: %w", err)
	}

	collection_id := *append_command_collection_id
	err = paths.ValidateCollectionId(collection_id)
	if err != nil {
		return err
	}

	sm, err := startEssentialServices(config_obj)
	if err != nil {
		return fmt.Errorf("Starting services: %w", err)
	}
	defer sm.Close()

	collection := collections.NewGeneralCollection(
		config_obj, collection_id)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	count := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		row := ordereddict.NewDict()
		err := json.Unmarshal(line, row)
		if err != nil {
			return fmt.Errorf("Line %v: %w", count+1, err)
		}

		_, err = collection.Add(row)
		if err != nil {
			return err
		}
		count++
	}
	err = scanner.Err()
	if err != nil {
		return err
	}

	logger := logging.GetLogger(config_obj, &logging.ToolComponent)
	logger.Info("<green>Appended</> %v rows to %v", count, collection_id)

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case append_command.FullCommand():
			FatalIfError(append_command, doAppend)

		default:
			return false
		}
		return true
	})
}
