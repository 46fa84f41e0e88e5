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
package collections

import (
	"context"

	"www.velocidex.com/golang/fleetstore/datastore"
	"www.velocidex.com/golang/fleetstore/logging"
	"www.velocidex.com/golang/fleetstore/utils"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

// One record of a collection as seen by iterators.
type Item struct {
	Key   datastore.Key
	Value interface{}
}

// A SequentialCollection is an append only log of typed records
// ordered by (timestamp, suffix) keys. Records are never modified
// once written - the only destructive operation is deleting the
// whole collection.
//
// Instances are cheap stateless handles: opening a collection does
// not touch the datastore.
type SequentialCollection struct {
	config_obj    *config_proto.Config
	collection_id string
	codec         Codec

	// Injectable for tests.
	Clock utils.Clock
}

func NewSequentialCollection(
	config_obj *config_proto.Config,
	collection_id string,
	codec Codec) *SequentialCollection {
	return &SequentialCollection{
		config_obj:    config_obj,
		collection_id: collection_id,
		codec:         codec,
		Clock:         utils.RealClock{},
	}
}

func (self *SequentialCollection) CollectionId() string {
	return self.collection_id
}

// Add appends a value with the current wall clock time and a store
// assigned suffix.
func (self *SequentialCollection) Add(value interface{}) (
	datastore.Key, error) {
	return self.AddAt(value, 0, 0)
}

// AddAt appends a value with an explicit key. A zero timestamp means
// now, a zero suffix lets the store pick a random one.
func (self *SequentialCollection) AddAt(value interface{},
	timestamp, suffix int64) (datastore.Key, error) {

	serialized, err := self.codec.Marshal(value)
	if err != nil {
		return datastore.Key{}, err
	}

	if timestamp == 0 {
		timestamp = self.Clock.Now().UTC().UnixNano() / 1000
	}

	db, err := datastore.GetDB(self.config_obj)
	if err != nil {
		return datastore.Key{}, err
	}

	return db.AppendToCollection(self.config_obj,
		self.collection_id, serialized, timestamp, suffix)
}

// Scan yields records in ascending key order starting strictly after
// the given key. A zero after key scans from the start, max_records
// <= 0 means unlimited. Returning StopIteration from the callback
// ends the scan without error.
//
// Scans are restartable: pass the last key received to continue
// where a previous scan stopped.
func (self *SequentialCollection) Scan(
	ctx context.Context,
	after datastore.Key,
	max_records int64,
	cb func(key datastore.Key, value interface{}) error) error {

	db, err := datastore.GetDB(self.config_obj)
	if err != nil {
		return err
	}

	return db.ScanCollection(ctx, self.config_obj, self.collection_id,
		after, max_records, func(record *datastore.Record) error {
			value, err := self.codec.Unmarshal(record.Data)
			if err != nil {
				return err
			}
			return cb(record.Key, value)
		})
}

// MultiResolve is a batch point lookup. Values are returned in the
// order of the keys. A missing key fails the whole batch with an
// os.ErrNotExist error: records are immutable so a miss means the
// caller's key never existed or the collection was deleted.
func (self *SequentialCollection) MultiResolve(keys []datastore.Key) (
	[]interface{}, error) {

	db, err := datastore.GetDB(self.config_obj)
	if err != nil {
		return nil, err
	}

	refs := make([]datastore.RecordRef, 0, len(keys))
	for _, key := range keys {
		refs = append(refs, datastore.RecordRef{
			CollectionId: self.collection_id,
			Key:          key,
		})
	}

	serialized, err := db.MultiGet(self.config_obj, refs)
	if err != nil {
		return nil, err
	}

	result := make([]interface{}, 0, len(serialized))
	for _, data := range serialized {
		value, err := self.codec.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}

	return result, nil
}

// Delete removes the whole collection, records and index both.
// Individual records can not be deleted.
func (self *SequentialCollection) Delete() error {
	db, err := datastore.GetDB(self.config_obj)
	if err != nil {
		return err
	}

	return db.DeleteCollection(self.config_obj, self.collection_id)
}

// Items lazily yields every record of the collection. The channel is
// closed when the collection is exhausted, the context is cancelled
// or an error occurs. Errors are logged - callers that need to
// distinguish errors from exhaustion should use Scan directly.
func (self *SequentialCollection) Items(ctx context.Context) <-chan *Item {
	output := make(chan *Item)

	go func() {
		defer close(output)

		err := self.Scan(ctx, datastore.Key{}, 0,
			func(key datastore.Key, value interface{}) error {
				select {
				case <-ctx.Done():
					return datastore.StopIteration

				case output <- &Item{Key: key, Value: value}:
				}
				return nil
			})
		if err != nil {
			logger := logging.GetLogger(
				self.config_obj, &logging.GenericComponent)
			logger.Error("SequentialCollection %v: %v",
				self.collection_id, err)
		}
	}()

	return output
}
