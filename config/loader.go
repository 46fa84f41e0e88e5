package config

// Binaries assemble a Loader naming every place their config may
// come from. Sources are tried in order until one produces a config,
// which is then passed through the mutators and validators. Builder
// methods return a copy so a partially built loader can be shared.

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/Velocidex/yaml/v2"
	errors "github.com/go-errors/errors"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
	"www.velocidex.com/golang/fleetstore/logging"
)

// A hard error stops the source search immediately instead of
// falling through to the next source.
type HardError struct {
	Err error
}

func (self HardError) Error() string {
	return self.Err.Error()
}

// One place a config can come from.
type configSource struct {
	name string
	load func(self *Loader) (*config_proto.Config, error)
}

// One step applied to the loaded config. Mutators run before logging
// is initialized, validators after.
type configStep struct {
	name string
	run  func(config_obj *config_proto.Config) error
}

type Loader struct {
	verbose bool

	sources    []configSource
	mutators   []configStep
	validators []configStep

	logger *logging.LogContext
}

func (self *Loader) WithVerbose(verbose bool) *Loader {
	self = self.Copy()
	self.verbose = verbose
	return self
}

// WithLogFile duplicates all logging into the named file.
func (self *Loader) WithLogFile(filename string) *Loader {
	if filename == "" {
		return self
	}

	self = self.Copy()
	self.validators = append(self.validators, configStep{
		name: "logfile",
		run: func(config_obj *config_proto.Config) error {
			err := logging.AddLogFile(filename)
			if err != nil {
				return HardError{err}
			}
			return nil
		}})
	return self
}

func (self *Loader) WithRequiredDatastore() *Loader {
	self = self.Copy()
	self.validators = append(self.validators, configStep{
		name: "required datastore",
		run:  ValidateDatastoreConfig,
	})
	return self
}

func (self *Loader) WithConfigMutator(
	name string,
	mutator func(config_obj *config_proto.Config) error) *Loader {
	self = self.Copy()
	self.mutators = append(self.mutators, configStep{name, mutator})
	return self
}

// The built in default config suits command line tools working on a
// local Sqlite datastore.
func (self *Loader) WithDefaultLoader() *Loader {
	self = self.Copy()
	self.sources = append(self.sources, configSource{
		name: "default",
		load: func(self *Loader) (*config_proto.Config, error) {
			self.Log("Using the built in default config")
			return GetDefaultConfig(), nil
		}})
	return self
}

// An explicitly named file that is missing or malformed is a hard
// error - the user asked for this exact file.
func (self *Loader) WithFileLoader(filename string) *Loader {
	if filename == "" {
		return self
	}

	self = self.Copy()
	self.sources = append(self.sources, configSource{
		name: "file",
		load: func(self *Loader) (*config_proto.Config, error) {
			self.Log("Loading config from file %v", filename)
			result, err := read_config_from_file(filename)
			if err != nil {
				return nil, HardError{err}
			}
			return result, nil
		}})
	return self
}

func (self *Loader) WithLiteralLoader(serialized []byte) *Loader {
	if len(serialized) == 0 {
		return self
	}

	self = self.Copy()
	self.sources = append(self.sources, configSource{
		name: "literal",
		load: func(self *Loader) (*config_proto.Config, error) {
			self.Log("Loading constant config")
			return parse_config(serialized)
		}})
	return self
}

// WithEnvLoader loads the file named by the environment variable. An
// unset variable just skips to the next source.
func (self *Loader) WithEnvLoader(env_var string) *Loader {
	self = self.Copy()
	self.sources = append(self.sources, configSource{
		name: "env",
		load: func(self *Loader) (*config_proto.Config, error) {
			filename := os.Getenv(env_var)
			if filename == "" {
				return nil, fmt.Errorf("Env var %v is not set", env_var)
			}
			self.Log("Loading config from env %v (%v)", env_var, filename)
			return read_config_from_file(filename)
		}})
	return self
}

// WithEnvLiteralLoader parses the config straight out of the
// environment variable. Containers pass their whole config this way.
func (self *Loader) WithEnvLiteralLoader(env_var string) *Loader {
	self = self.Copy()
	self.sources = append(self.sources, configSource{
		name: "env literal",
		load: func(self *Loader) (*config_proto.Config, error) {
			serialized := os.Getenv(env_var)
			if serialized == "" {
				return nil, fmt.Errorf("Env var %v is not set", env_var)
			}
			self.Log("Loading literal config from env %v", env_var)
			return parse_config([]byte(serialized))
		}})
	return self
}

func (self *Loader) Copy() *Loader {
	return &Loader{
		verbose:    self.verbose,
		logger:     self.logger,
		sources:    append([]configSource{}, self.sources...),
		mutators:   append([]configStep{}, self.mutators...),
		validators: append([]configStep{}, self.validators...),
	}
}

func (self *Loader) Log(format string, v ...interface{}) {
	if self.logger == nil {
		logging.Prelog(format, v...)
	} else {
		self.logger.Info(format, v...)
	}
}

func (self *Loader) Validate(config_obj *config_proto.Config) error {
	logging.Reset()
	logging.SuppressLogging = !self.verbose

	// The verbose flag is runtime state carried on the config.
	config_obj.Verbose = self.verbose

	for _, mutator := range self.mutators {
		err := mutator.run(config_obj)
		if err != nil {
			self.Log("Mutator %v: %v", mutator.name, err)
			return err
		}
	}

	// Initialize the logging and dump early messages into the
	// correct log destination. Tools can run without a logging
	// config so a failure here is not fatal.
	_ = logging.InitLogging(config_obj)
	self.logger = logging.GetLogger(config_obj, &logging.ToolComponent)

	for _, validator := range self.validators {
		err := validator.run(config_obj)
		if err != nil {
			self.Log("Validator %v: %v", validator.name, err)
			return err
		}
	}

	err := ValidateCollectionsConfig(config_obj)
	if err != nil {
		return err
	}

	if config_obj.Datastore != nil {
		return ValidateDatastoreConfig(config_obj)
	}

	return nil
}

func (self *Loader) LoadAndValidate() (*config_proto.Config, error) {
	for _, source := range self.sources {
		config_obj, err := source.load(self)
		if err == nil {
			return config_obj, self.Validate(config_obj)
		}

		// Stop on hard errors.
		if _, ok := err.(HardError); ok {
			return nil, err
		}
		self.Log("%v loader: %v", source.name, err)
	}
	return nil, errors.New("Unable to load config from any source.")
}

// Unknown fields are rejected so a typo can not silently deactivate
// part of the config.
func parse_config(serialized []byte) (*config_proto.Config, error) {
	result := &config_proto.Config{}

	err := yaml.UnmarshalStrict(serialized, result)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return result, nil
}

func read_config_from_file(filename string) (*config_proto.Config, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return parse_config(data)
}
