package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

func TestDefaultLoader(t *testing.T) {
	config_obj, err := new(Loader).
		WithDefaultLoader().
		WithConfigMutator("test datastore location",
			func(config_obj *config_proto.Config) error {
				config_obj.Datastore.Location = t.TempDir()
				return nil
			}).
		LoadAndValidate()
	require.NoError(t, err)

	assert.Equal(t, "fleetstore", config_obj.Version.Name)
	assert.Equal(t, "Sqlite", config_obj.Datastore.Implementation)
	assert.True(t, config_obj.Services.IndexUpdater)
}

func TestFileLoaderRoundTrip(t *testing.T) {
	config_obj := GetDefaultConfig()
	config_obj.Datastore.Implementation = "Memory"
	config_obj.Collections.IndexSpacing = 512

	filename := filepath.Join(t.TempDir(), "server.config.yaml")
	require.NoError(t, WriteConfigToFile(filename, config_obj))

	loaded, err := new(Loader).
		WithFileLoader(filename).
		LoadAndValidate()
	require.NoError(t, err)

	assert.Equal(t, "Memory", loaded.Datastore.Implementation)
	assert.Equal(t, int64(512), loaded.Collections.IndexSpacing)
}

// An explicitly given file that can not be read is a hard error -
// the loader must not fall through to another config source.
func TestMissingFileIsHardError(t *testing.T) {
	_, err := new(Loader).
		WithFileLoader("/nonexistent/server.config.yaml").
		WithDefaultLoader().
		LoadAndValidate()
	assert.Error(t, err)

	_, ok := err.(HardError)
	assert.True(t, ok)
}

func TestLiteralLoader(t *testing.T) {
	config_obj, err := new(Loader).
		WithLiteralLoader([]byte("datastore:\n  implementation: Memory\n")).
		LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, "Memory", config_obj.Datastore.Implementation)

	// Unknown fields are rejected so typos do not silently
	// deactivate parts of the config.
	_, err = new(Loader).
		WithLiteralLoader([]byte("datastore_typo:\n  implementation: Memory\n")).
		LoadAndValidate()
	assert.Error(t, err)
}

func TestEnvLiteralLoader(t *testing.T) {
	require.NoError(t, os.Setenv("FLEETSTORE_TEST_CONFIG",
		"datastore:\n  implementation: Memory\n"))
	defer func() { _ = os.Unsetenv("FLEETSTORE_TEST_CONFIG") }()

	config_obj, err := new(Loader).
		WithEnvLiteralLoader("FLEETSTORE_TEST_CONFIG").
		LoadAndValidate()
	require.NoError(t, err)
	assert.Equal(t, "Memory", config_obj.Datastore.Implementation)

	// An unset variable is skipped. With no other sources the
	// loader reports that nothing worked.
	_, err = new(Loader).
		WithEnvLiteralLoader("FLEETSTORE_TEST_CONFIG_UNSET").
		LoadAndValidate()
	assert.Error(t, err)
}

func TestValidationFailures(t *testing.T) {
	for _, invalid := range []string{
		// Negative tuning values.
		"datastore:\n  implementation: Memory\ncollections:\n  index_spacing: -1\n",
		// Sqlite needs a location.
		"datastore:\n  implementation: Sqlite\n",
		// Unknown implementation.
		"datastore:\n  implementation: Postgres\n",
		// Implementation must be set when a datastore is given.
		"datastore:\n  location: /tmp\n",
	} {
		_, err := new(Loader).
			WithLiteralLoader([]byte(invalid)).
			LoadAndValidate()
		assert.Error(t, err, "expected %q to fail validation", invalid)
	}
}

func TestRequiredDatastore(t *testing.T) {
	// Without the requirement a config with no datastore section
	// loads fine.
	config_obj, err := new(Loader).
		WithLiteralLoader([]byte("verbose: true\n")).
		LoadAndValidate()
	require.NoError(t, err)
	assert.Nil(t, config_obj.Datastore)

	_, err = new(Loader).
		WithLiteralLoader([]byte("verbose: true\n")).
		WithRequiredDatastore().
		LoadAndValidate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "No datastore configured")
}
