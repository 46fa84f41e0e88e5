package datastore

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"www.velocidex.com/golang/fleetstore/config"
)

type MemoryTestSuite struct {
	BaseTestSuite
}

func TestMemoryDatastore(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	config_obj.Datastore.Implementation = "Memory"

	suite.Run(t, &MemoryTestSuite{BaseTestSuite{
		datastore:  NewMemoryDataStore(),
		config_obj: config_obj,
	}})
}
