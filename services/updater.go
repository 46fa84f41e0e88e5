package services

// Appending to an indexed collection is designed to be cheap: the
// writer never maintains the sparse index inline. Instead writers
// occasionally nominate their collection here and a process wide
// background worker catches the index up after the writes have had
// time to settle.

// The registry lives in this package so the collections layer can
// reach the updater without importing its implementation. Processes
// that run no background services (tests, one shot tools) simply
// never register one and nominations become no-ops.

import (
	"sync"

	"www.velocidex.com/golang/fleetstore/utils"
)

var (
	updater_mu sync.Mutex

	// Service is only available in processes that run the
	// background services.
	GUpdater IndexUpdater
)

func GetIndexUpdater() IndexUpdater {
	updater_mu.Lock()
	defer updater_mu.Unlock()

	// Normalize a typed nil registration so callers can compare
	// against nil directly.
	if utils.IsNil(GUpdater) {
		return nil
	}
	return GUpdater
}

func RegisterIndexUpdater(updater IndexUpdater) {
	updater_mu.Lock()
	defer updater_mu.Unlock()

	GUpdater = updater
}

type IndexUpdater interface {
	// Nominate a collection for index maintenance some time after
	// now. Never blocks: when the queue is full the nomination is
	// dropped, losing nothing but lookup speed.
	AddIndexToUpdate(kind, collection_id string)

	// Request orderly shutdown of the worker without draining the
	// queue. An update already in flight is not interrupted.
	ExitNow()
}
