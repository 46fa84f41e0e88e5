package vtesting

import (
	"testing"

	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/fleetstore/config"
	"www.velocidex.com/golang/fleetstore/datastore"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

// A config backed by the shared in memory datastore, wiped clean.
// Most tests want exactly this.
func GetTestConfig(t *testing.T) *config_proto.Config {
	config_obj := config.GetDefaultConfig()
	config_obj.Datastore.Implementation = "Memory"

	db, err := datastore.GetDB(config_obj)
	require.NoError(t, err)

	db.(*datastore.MemoryDataStore).Clear()

	return config_obj
}
