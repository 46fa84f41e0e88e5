/*
   Fleetstore - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package main

import (
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/fleetstore/config"
	"www.velocidex.com/golang/fleetstore/logging"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("fleetstore",
		"Indexed sequential collection storage for fleet data.")

	config_path = app.Flag("config", "The configuration file.").Short('c').
			Envar("FLEETSTORE_CONFIG").String()

	verbose_flag = app.Flag(
		"verbose", "Enable verbose logging.").Short('v').
		Default("false").Bool()

	logging_flag = app.Flag(
		"logfile", "Also log to this file.").String()

	command_handlers []CommandHandler
)

// All commands load their config through this loader so the
// precedence of config sources is the same everywhere: an explicit
// file, a literal config in the environment, then the built in
// default pointed at a local datastore.
func makeDefaultConfigLoader() *config.Loader {
	return new(config.Loader).
		WithVerbose(*verbose_flag).
		WithFileLoader(*config_path).
		WithEnvLiteralLoader("FLEETSTORE_LITERAL_CONFIG").
		WithEnvLoader("FLEETSTORE_CONFIG").
		WithLogFile(*logging_flag).
		WithDefaultLoader().
		WithRequiredDatastore()
}

func FatalIfError(command *kingpin.CmdClause, cb func() error) {
	err := cb()
	kingpin.FatalIfError(err, command.FullCommand())
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate).DefaultEnvars()
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if !*verbose_flag {
		logging.SuppressLogging = true
		logging.Reset()
	}

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
