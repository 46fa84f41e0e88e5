package main

import (
	"fmt"

	"github.com/Velocidex/yaml/v2"
	"www.velocidex.com/golang/fleetstore/json"
)

var (
	config_command = app.Command(
		"config", "Manipulate the configuration.")

	config_show_command = config_command.Command(
		"show", "Show the fully resolved config.")

	config_show_command_json = config_show_command.Flag(
		"json", "Show the config as JSON.").Bool()
)

func doShowConfig() error {
	config_obj, err := makeDefaultConfigLoader().LoadAndValidate()
	if err != nil {
		return fmt.Errorf("Unable to load config file: %w", err)
	}

	// The verbose flag is runtime state, not configuration.
	config_obj.Verbose = false

	if *config_show_command_json {
		fmt.Println(json.StringIndent(config_obj))
		return nil
	}

	res, err := yaml.Marshal(config_obj)
	if err != nil {
		return err
	}
	fmt.Printf("%v", string(res))

	return nil
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case config_show_command.FullCommand():
			FatalIfError(config_show_command, doShowConfig)

		default:
			return false
		}
		return true
	})
}
