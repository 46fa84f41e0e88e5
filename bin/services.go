package main

import (
	"context"

	"www.velocidex.com/golang/fleetstore/services"
	"www.velocidex.com/golang/fleetstore/services/updater"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

// Commands that write collections start the background services so
// index maintenance happens the same way it does in a server.
func startEssentialServices(config_obj *config_proto.Config) (
	*services.Service, error) {

	sm := services.NewServiceManager(context.Background(), config_obj)

	err := sm.Start(updater.StartIndexUpdaterService)
	if err != nil {
		return nil, err
	}

	return sm, nil
}
