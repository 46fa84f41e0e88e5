package datastore

import (
	"context"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

// A helper to read every record of a collection into memory. Only
// suitable for tests and small collections.
func ScanAll(
	ctx context.Context,
	config_obj *config_proto.Config,
	db DataStore,
	collection_id string) ([]*Record, error) {

	result := []*Record{}
	err := db.ScanCollection(ctx, config_obj, collection_id,
		Key{}, 0, func(record *Record) error {
			result = append(result, record)
			return nil
		})
	return result, err
}

// Read the persisted sparse index into memory in ascending ordinal
// order.
func ReadIndexEntries(
	config_obj *config_proto.Config,
	db DataStore,
	collection_id string) ([]*IndexEntry, error) {

	result := []*IndexEntry{}
	err := db.ReadIndex(config_obj, collection_id,
		func(entry *IndexEntry) error {
			result = append(result, entry)
			return nil
		})
	return result, err
}
