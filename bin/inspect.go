package main

import (
	"context"
	"fmt"
	"os"

	"www.velocidex.com/golang/fleetstore/inspect"
)

var (
	inspect_command = app.Command(
		"inspect", "Summarize a collection and its index.")

	inspect_command_collection_id = inspect_command.Arg(
		"collection_id", "The collection to inspect.").Required().String()
)

func doInspect() error {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	if err != nil {
		return fmt.Errorf("Unable to load config file: %w", err)
	}

	return inspect.Inspect(context.Background(), config_obj,
		os.Stdout, *inspect_command_collection_id)
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case inspect_command.FullCommand():
			FatalIfError(inspect_command, doInspect)

		default:
			return false
		}
		return true
	})
}
