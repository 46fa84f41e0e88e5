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
// An interface into persistent collection storage.
//
// A collection is an append only log of raw records ordered by
// (timestamp, suffix) keys. The datastore only understands bytes -
// typed access, ordinal addressing and the sparse index logic live in
// the collections package which is layered on top of this interface.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

const (
	// Store assigned suffixes are uniformly random in [1,
	// MaxSuffix]. Zero is reserved to mean "assign one for me".
	MaxSuffix = int64(1<<24 - 1)
)

var (
	mu sync.Mutex

	// Returned from a ScanFunc or IndexFunc to end the iteration
	// early without error.
	StopIteration = errors.New("StopIteration")
)

// A Key totally orders records within a collection. Timestamp is
// microseconds since the epoch; the suffix disambiguates records
// written in the same microsecond.
type Key struct {
	Timestamp int64 `json:"timestamp"`
	Suffix    int64 `json:"suffix"`
}

func (self Key) IsZero() bool {
	return self.Timestamp == 0 && self.Suffix == 0
}

func (self Key) Less(other Key) bool {
	if self.Timestamp != other.Timestamp {
		return self.Timestamp < other.Timestamp
	}
	return self.Suffix < other.Suffix
}

// Prev returns the immediate predecessor of this key. Scanning
// strictly after Prev() makes the scan start at this key itself.
func (self Key) Prev() Key {
	if self.Suffix > 0 {
		return Key{Timestamp: self.Timestamp, Suffix: self.Suffix - 1}
	}
	if self.Timestamp > 0 {
		return Key{Timestamp: self.Timestamp - 1, Suffix: MaxSuffix}
	}
	return Key{}
}

func (self Key) String() string {
	return fmt.Sprintf("%d-%d", self.Timestamp, self.Suffix)
}

type Record struct {
	Key  Key    `json:"key"`
	Data []byte `json:"data"`
}

// A sparse index entry maps the ordinal (record number) of a record
// to its key.
type IndexEntry struct {
	Ordinal int64
	Key     Key
}

// A fully qualified reference to a single record.
type RecordRef struct {
	CollectionId string
	Key          Key
}

// Returning StopIteration from the callback ends the scan early
// without error. Any other error aborts the scan and is returned.
type ScanFunc func(record *Record) error

type IndexFunc func(entry *IndexEntry) error

type DataStore interface {
	// Append one record to the collection. A zero timestamp means
	// now, a zero suffix means the store picks a random one that
	// avoids collisions. Returns the key assigned to the record.
	AppendToCollection(
		config_obj *config_proto.Config,
		collection_id string,
		data []byte,
		timestamp, suffix int64) (Key, error)

	// Scan records in ascending key order starting strictly after
	// the given key. A zero after key scans from the start. A
	// limit <= 0 means unlimited.
	ScanCollection(
		ctx context.Context,
		config_obj *config_proto.Config,
		collection_id string,
		after Key,
		limit int64,
		cb ScanFunc) error

	// Batch point lookup. Results match the order of refs. A
	// missing record is an os.ErrNotExist error - records are
	// immutable so a miss means the whole collection was deleted.
	MultiGet(
		config_obj *config_proto.Config,
		refs []RecordRef) ([][]byte, error)

	// Read the persisted sparse index entries for the collection
	// in ascending ordinal order.
	ReadIndex(
		config_obj *config_proto.Config,
		collection_id string,
		cb IndexFunc) error

	WriteIndexEntry(
		config_obj *config_proto.Config,
		collection_id string,
		ordinal int64,
		key Key) error

	// Remove the collection's records and index entries. There is
	// no record level delete.
	DeleteCollection(
		config_obj *config_proto.Config,
		collection_id string) error

	Debug(config_obj *config_proto.Config)

	// Called to close all db handles etc. Not thread safe.
	Close()
}

func GetDB(config_obj *config_proto.Config) (DataStore, error) {
	if config_obj.Datastore == nil {
		return nil, errors.New("no datastore configured")
	}

	switch config_obj.Datastore.Implementation {
	case "Memory":
		mu.Lock()
		defer mu.Unlock()

		return gMemoryDatastore, nil

	case "Sqlite":
		if config_obj.Datastore.Location == "" {
			return nil, errors.New(
				"No Datastore.location is set in the config.")
		}

		return NewSqliteDataStore(config_obj)

	case "MySQL":
		return NewMySQLDataStore(config_obj)

	default:
		return nil, errors.New("no datastore implementation " +
			config_obj.Datastore.Implementation)
	}
}

// Row batch size for backing store scans. Scans fetch records in
// batches so callbacks can write back into the store between batches.
func scanBatchSize(config_obj *config_proto.Config) int64 {
	if config_obj.Collections != nil &&
		config_obj.Collections.ScanBatchSize > 0 {
		return config_obj.Collections.ScanBatchSize
	}
	return 1000
}
