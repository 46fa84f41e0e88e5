package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/Velocidex/yaml/v2"
	errors "github.com/go-errors/errors"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

// Embed build time constants into here for reporting the version.
// https://husobee.github.io/golang/compile/time/variables/2015/12/03/compile-time-const.html
var (
	build_time  string
	commit_hash string
)

func GetVersion() *config_proto.Version {
	return &config_proto.Version{
		Name:      "fleetstore",
		Version:   "0.1.0",
		BuildTime: build_time,
		Commit:    commit_hash,
	}
}

func GetDefaultConfig() *config_proto.Config {
	return &config_proto.Config{
		Version: GetVersion(),
		Datastore: &config_proto.DatastoreConfig{
			Implementation: "Sqlite",
			Location:       "/var/tmp/fleetstore",
		},
		Logging:     &config_proto.LoggingConfig{},
		Collections: &config_proto.CollectionsConfig{},
		Services: &config_proto.ServicesConfig{
			IndexUpdater: true,
		},
	}
}

func LoadConfig(filename string) (*config_proto.Config, error) {
	result := &config_proto.Config{}

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	err = yaml.UnmarshalStrict(data, result)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return result, nil
}

func WriteConfigToFile(filename string, config_obj *config_proto.Config) error {
	serialized, err := yaml.Marshal(config_obj)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(filename, serialized, os.ModePerm)
}

func ValidateDatastoreConfig(config_obj *config_proto.Config) error {
	if config_obj.Datastore == nil {
		return errors.New("No datastore configured")
	}

	switch config_obj.Datastore.Implementation {
	case "Memory":
		return nil

	case "Sqlite":
		if config_obj.Datastore.Location == "" {
			return errors.New(
				"Datastore.location must be set for the Sqlite datastore")
		}

		// The location must be a writable directory.
		err := os.MkdirAll(config_obj.Datastore.Location, 0700)
		if err != nil {
			return fmt.Errorf(
				"Unable to create datastore directory %v: %w",
				config_obj.Datastore.Location, err)
		}
		return nil

	case "MySQL":
		if config_obj.Datastore.MysqlConnectionString != "" {
			return nil
		}
		if config_obj.Datastore.MysqlServer == "" ||
			config_obj.Datastore.MysqlDatabase == "" {
			return errors.New(
				"MySQL datastore requires mysql_server and mysql_database " +
					"(or mysql_connection_string)")
		}
		return nil

	case "":
		return errors.New("Datastore.implementation must be set")

	default:
		return fmt.Errorf("Unknown datastore implementation %v",
			config_obj.Datastore.Implementation)
	}
}

func ValidateCollectionsConfig(config_obj *config_proto.Config) error {
	collections_config := config_obj.Collections
	if collections_config == nil {
		return nil
	}

	if collections_config.IndexSpacing < 0 ||
		collections_config.IndexWriteDelaySec < 0 ||
		collections_config.IndexDelaySec < 0 ||
		collections_config.MaxQueueSize < 0 ||
		collections_config.ScanBatchSize < 0 {
		return errors.New("Collections config values may not be negative")
	}

	return nil
}
