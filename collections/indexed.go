package collections

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	errors "github.com/pkg/errors"
	"www.velocidex.com/golang/fleetstore/datastore"
	"www.velocidex.com/golang/fleetstore/logging"
	"www.velocidex.com/golang/fleetstore/services"
	"www.velocidex.com/golang/fleetstore/utils"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

const (
	// Write one sparse index entry every IndexSpacing records.
	DefaultIndexSpacing = int64(1024)

	// Never index records younger than this. A slow writer may
	// still be holding an older timestamp than a record we can
	// already see - indexing too early would freeze a wrong ordinal
	// into the index. Once a record is this old we assume all
	// earlier keys have landed.
	DefaultIndexWriteDelay = 3 * time.Minute

	KindIndexed = "indexed"
	KindGeneral = "general"
)

var (
	// GetByOrdinal() was asked for a record past the end of the
	// collection.
	IndexOutOfRangeError = errors.New("Collection index out of range")
)

// A TriggerPolicy decides whether an Add() should nominate the
// collection for background index maintenance. Tests inject
// deterministic policies.
type TriggerPolicy interface {
	Fire() bool
}

// Fires on average once every N calls so a busy collection is
// nominated about once per index interval no matter how many writers
// it has.
type RandomTrigger struct {
	N int64
}

func (self RandomTrigger) Fire() bool {
	if self.N <= 1 {
		return true
	}
	return rand.Int63n(self.N) == 0
}

type NeverTrigger struct{}

func (self NeverTrigger) Fire() bool { return false }

// Anything the background updater can run index maintenance on.
type Indexable interface {
	UpdateIndex(ctx context.Context) error
}

// An IndexedCollection adds ordinal (record number) addressing to a
// SequentialCollection through a sparse, lazily built index. The
// index maps every IndexSpacing'th ordinal to its record key so a
// lookup by ordinal scans at most IndexSpacing records instead of
// the whole collection.
//
// The in memory index cache belongs to this instance and is not safe
// for concurrent use - goroutines should open one instance each.
// Instances of the same collection share the persisted index through
// the datastore.
type IndexedCollection struct {
	*SequentialCollection

	// Decides when Add() schedules background index maintenance.
	Trigger TriggerPolicy

	// What OpenCollectionForIndexing needs to rebuild a handle
	// with a compatible codec.
	kind string

	index_loaded        bool
	index               map[int64]datastore.Key
	max_indexed_ordinal int64
}

func NewIndexedCollection(
	config_obj *config_proto.Config,
	collection_id string,
	codec Codec) *IndexedCollection {
	return &IndexedCollection{
		SequentialCollection: NewSequentialCollection(
			config_obj, collection_id, codec),
		Trigger: RandomTrigger{N: indexSpacing(config_obj)},
		kind:    KindIndexed,
	}
}

func (self *IndexedCollection) Kind() string {
	return self.kind
}

// Add appends the value and occasionally nominates the collection
// for background index maintenance. Writers never block on indexing.
func (self *IndexedCollection) Add(value interface{}) (
	datastore.Key, error) {
	return self.AddAt(value, 0, 0)
}

func (self *IndexedCollection) AddAt(value interface{},
	timestamp, suffix int64) (datastore.Key, error) {

	key, err := self.SequentialCollection.AddAt(value, timestamp, suffix)
	if err != nil {
		return key, err
	}

	if self.Trigger != nil && self.Trigger.Fire() {
		updater := services.GetIndexUpdater()
		if updater != nil {
			updater.AddIndexToUpdate(self.kind, self.collection_id)
		}
	}

	return key, nil
}

// GetByOrdinal returns the value of the i'th record in ascending key
// order. Cost is bounded by the distance from the nearest index
// entry, at most IndexSpacing records once the index is warm.
func (self *IndexedCollection) GetByOrdinal(
	ctx context.Context, i int64) (interface{}, error) {

	if i < 0 {
		return nil, errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("GetByOrdinal %v", i))
	}

	var result interface{}
	found := false

	err := self.indexedScan(ctx, i, 1,
		func(ordinal int64, record *datastore.Record) error {
			value, err := self.codec.Unmarshal(record.Data)
			if err != nil {
				return err
			}
			result = value
			found = true
			return datastore.StopIteration
		})
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, errors.WithMessage(IndexOutOfRangeError,
			fmt.Sprintf("GetByOrdinal %v: past the end of %v",
				i, self.collection_id))
	}

	return result, nil
}

// Length returns the total record count. Cost is bounded by the
// distance from the highest index entry to the end of the
// collection, not by the collection size.
func (self *IndexedCollection) Length(ctx context.Context) (int64, error) {
	db, err := datastore.GetDB(self.config_obj)
	if err != nil {
		return 0, err
	}

	err = self.loadIndex(db)
	if err != nil {
		return 0, err
	}

	length := self.max_indexed_ordinal
	err = self.indexedScan(ctx, self.max_indexed_ordinal, 0,
		func(ordinal int64, record *datastore.Record) error {
			length = ordinal + 1
			return nil
		})
	return length, err
}

// UpdateIndex catches the sparse index up to the current end of the
// collection. It is idempotent and safe to run at any time or
// concurrently - entries below the already indexed range are left
// alone. The background updater calls this on a schedule.
func (self *IndexedCollection) UpdateIndex(ctx context.Context) error {
	db, err := datastore.GetDB(self.config_obj)
	if err != nil {
		return err
	}

	err = self.loadIndex(db)
	if err != nil {
		return err
	}

	return self.indexedScan(ctx, self.max_indexed_ordinal, 0,
		func(ordinal int64, record *datastore.Record) error {
			return nil
		})
}

// GenerateItems lazily yields values starting at the given ordinal.
// Each call produces a fresh stream so a consumer that stopped can
// restart from where it left off.
func (self *IndexedCollection) GenerateItems(
	ctx context.Context, offset int64) <-chan *Item {
	output := make(chan *Item)

	go func() {
		defer close(output)

		err := self.indexedScan(ctx, offset, 0,
			func(ordinal int64, record *datastore.Record) error {
				value, err := self.codec.Unmarshal(record.Data)
				if err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					return datastore.StopIteration

				case output <- &Item{Key: record.Key, Value: value}:
				}
				return nil
			})
		if err != nil {
			logger := logging.GetLogger(
				self.config_obj, &logging.GenericComponent)
			logger.Error("GenerateItems %v: %v", self.collection_id, err)
		}
	}()

	return output
}

// Delete removes the records, the persisted index and this
// instance's cache.
func (self *IndexedCollection) Delete() error {
	err := self.SequentialCollection.Delete()
	if err != nil {
		return err
	}

	self.index = nil
	self.index_loaded = false
	self.max_indexed_ordinal = 0
	return nil
}

// Load the persisted sparse index once per instance. The cache is
// monotonic: refreshing can only add ordinals above the current
// maximum, existing entries are never replaced.
func (self *IndexedCollection) loadIndex(db datastore.DataStore) error {
	if self.index_loaded {
		return nil
	}

	// Ordinal 0 is always the start of the collection.
	self.index = map[int64]datastore.Key{0: {}}
	self.max_indexed_ordinal = 0

	err := db.ReadIndex(self.config_obj, self.collection_id,
		func(entry *datastore.IndexEntry) error {
			self.index[entry.Ordinal] = entry.Key
			if entry.Ordinal > self.max_indexed_ordinal {
				self.max_indexed_ordinal = entry.Ordinal
			}
			return nil
		})
	if err != nil {
		return err
	}

	self.index_loaded = true
	return nil
}

// indexedScan is the core of ordinal addressing: scan records
// starting at ordinal i by jumping to the nearest index entry at or
// below it and counting ordinals forward from there. Records the
// scan passes over extend the index opportunistically, so any scan
// makes future scans cheaper.
func (self *IndexedCollection) indexedScan(
	ctx context.Context, i int64, max_records int64,
	cb func(ordinal int64, record *datastore.Record) error) error {

	db, err := datastore.GetDB(self.config_obj)
	if err != nil {
		return err
	}

	err = self.loadIndex(db)
	if err != nil {
		return err
	}

	// idx is the ordinal of the next record the scan will see,
	// after is the key we start scanning strictly after.
	idx := int64(0)
	after := datastore.Key{}

	if i >= self.max_indexed_ordinal {
		start, pres := self.index[self.max_indexed_ordinal]
		if pres && !start.IsZero() {
			after = start.Prev()
			idx = self.max_indexed_ordinal
		}
	} else {
		// The nearest entry at or below the spacing boundary of
		// i. Failed index writes can leave gaps so step down until
		// an entry is found.
		spacing := indexSpacing(self.config_obj)
		for target := i - i%spacing; target > 0; target -= spacing {
			start, pres := self.index[target]
			if pres && !start.IsZero() {
				after = start.Prev()
				idx = target
				break
			}
		}
	}

	// The store limit has to cover the records skipped before
	// reaching i.
	limit := int64(0)
	if max_records > 0 {
		limit = max_records + (i - idx)
	}

	return db.ScanCollection(ctx, self.config_obj, self.collection_id,
		after, limit, func(record *datastore.Record) error {
			self.maybeWriteIndex(db, idx, record.Key)

			var err error
			if idx >= i {
				err = cb(idx, record)
			}
			idx++
			return err
		})
}

// Opportunistically persist an index entry for the record at this
// ordinal. Only spacing boundaries are recorded and only once the
// record has aged past the write delay. Failures cost lookup speed,
// never correctness, so they are logged and skipped.
func (self *IndexedCollection) maybeWriteIndex(
	db datastore.DataStore, ordinal int64, key datastore.Key) {

	spacing := indexSpacing(self.config_obj)
	if ordinal%spacing != 0 {
		return
	}

	if ordinal <= self.max_indexed_ordinal {
		// A different key at an already indexed ordinal means a
		// very late writer slipped under the safety delay. The
		// existing entries are kept - scans stay correct, ordinal
		// addressing may drift until the collection is removed.
		existing, pres := self.index[ordinal]
		if pres && !existing.IsZero() && existing != key {
			logger := logging.GetLogger(
				self.config_obj, &logging.GenericComponent)
			logger.Warn(
				"IndexedCollection %v: record %v arrived below indexed ordinal %v (indexed key %v)",
				self.collection_id, key, ordinal, existing)
		}
		return
	}

	cutoff := self.Clock.Now().
		Add(-indexWriteDelay(self.config_obj)).UTC().UnixNano() / 1000
	if key.Timestamp >= cutoff {
		return
	}

	err := db.WriteIndexEntry(
		self.config_obj, self.collection_id, ordinal, key)
	if err != nil {
		logger := logging.GetLogger(
			self.config_obj, &logging.GenericComponent)
		logger.Warn("IndexedCollection %v: writing index entry %v: %v",
			self.collection_id, ordinal, err)
		return
	}

	self.index[ordinal] = key
	self.max_indexed_ordinal = ordinal
}

func indexSpacing(config_obj *config_proto.Config) int64 {
	if config_obj.Collections != nil &&
		config_obj.Collections.IndexSpacing > 0 {
		return config_obj.Collections.IndexSpacing
	}
	return DefaultIndexSpacing
}

func indexWriteDelay(config_obj *config_proto.Config) time.Duration {
	if config_obj.Collections != nil &&
		config_obj.Collections.IndexWriteDelaySec > 0 {
		return time.Duration(
			config_obj.Collections.IndexWriteDelaySec) * time.Second
	}
	return DefaultIndexWriteDelay
}
