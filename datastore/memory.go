package datastore

// An in memory data store backed by btrees. This is the datastore
// used by tests and by ephemeral tool runs - it holds every
// collection of the process in a pair of ordered trees.

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/btree"
	errors "github.com/pkg/errors"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
	"www.velocidex.com/golang/fleetstore/utils"
)

var (
	gMemoryDatastore = NewMemoryDataStore()
)

type recordItem struct {
	collection_id string
	key           Key
	data          []byte
}

func recordLess(a, b *recordItem) bool {
	if a.collection_id != b.collection_id {
		return a.collection_id < b.collection_id
	}
	return a.key.Less(b.key)
}

type indexItem struct {
	collection_id string
	ordinal       int64
	key           Key
}

func indexLess(a, b *indexItem) bool {
	if a.collection_id != b.collection_id {
		return a.collection_id < b.collection_id
	}
	return a.ordinal < b.ordinal
}

// Operation counters so tests can assert how much work an operation
// actually did against the store.
type MemoryStats struct {
	Appends        int64
	RecordsScanned int64
	IndexWrites    int64
}

type MemoryDataStore struct {
	mu sync.Mutex

	records *btree.BTreeG[*recordItem]
	index   *btree.BTreeG[*indexItem]

	stats MemoryStats

	clock utils.Clock
}

func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{
		records: btree.NewG[*recordItem](10, recordLess),
		index:   btree.NewG[*indexItem](10, indexLess),
		clock:   utils.RealClock{},
	}
}

func (self *MemoryDataStore) AppendToCollection(
	config_obj *config_proto.Config,
	collection_id string,
	data []byte,
	timestamp, suffix int64) (Key, error) {

	defer Instrument("append", "MemoryDataStore")()

	self.mu.Lock()
	defer self.mu.Unlock()

	if timestamp < 0 || suffix < 0 || suffix > MaxSuffix {
		return Key{}, errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("AppendToCollection %v: timestamp %v suffix %v",
				collection_id, timestamp, suffix))
	}

	if timestamp == 0 {
		timestamp = self.clock.Now().UTC().UnixNano() / 1000
	}

	self.stats.Appends++

	// Explicit suffixes must not collide - records are immutable.
	if suffix != 0 {
		key := Key{Timestamp: timestamp, Suffix: suffix}
		_, pres := self.records.Get(&recordItem{
			collection_id: collection_id, key: key})
		if pres {
			return Key{}, fmt.Errorf(
				"AppendToCollection %v: duplicate key %v",
				collection_id, key)
		}

		self.records.ReplaceOrInsert(&recordItem{
			collection_id: collection_id,
			key:           key,
			data:          data,
		})
		return key, nil
	}

	// Store assigned suffixes are random. Collisions are extremely
	// unlikely so a short retry loop is enough.
	for i := 0; i < 10; i++ {
		key := Key{Timestamp: timestamp,
			Suffix: utils.RandomSuffix(MaxSuffix)}
		_, pres := self.records.Get(&recordItem{
			collection_id: collection_id, key: key})
		if pres {
			continue
		}

		self.records.ReplaceOrInsert(&recordItem{
			collection_id: collection_id,
			key:           key,
			data:          data,
		})
		return key, nil
	}

	return Key{}, fmt.Errorf(
		"AppendToCollection %v: unable to assign a unique suffix",
		collection_id)
}

func (self *MemoryDataStore) ScanCollection(
	ctx context.Context,
	config_obj *config_proto.Config,
	collection_id string,
	after Key,
	limit int64,
	cb ScanFunc) error {

	defer Instrument("scan", "MemoryDataStore")()

	batch_size := scanBatchSize(config_obj)
	count := int64(0)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetch := batch_size
		if limit > 0 && limit-count < fetch {
			fetch = limit - count
		}

		// Copy a batch of records under the lock. The callback may
		// write back into the store so it has to run unlocked.
		batch := make([]*Record, 0, fetch)

		self.mu.Lock()
		pivot := &recordItem{collection_id: collection_id, key: after}
		self.records.AscendGreaterOrEqual(pivot,
			func(item *recordItem) bool {
				if item.collection_id != collection_id {
					return false
				}

				// The after key itself is excluded.
				if !after.Less(item.key) {
					return true
				}

				batch = append(batch, &Record{
					Key:  item.key,
					Data: item.data,
				})
				return int64(len(batch)) < fetch
			})
		self.stats.RecordsScanned += int64(len(batch))
		self.mu.Unlock()

		for _, record := range batch {
			err := cb(record)
			if err == StopIteration {
				return nil
			}
			if err != nil {
				return err
			}

			count++
			if limit > 0 && count >= limit {
				return nil
			}
		}

		if int64(len(batch)) < fetch {
			return nil
		}

		after = batch[len(batch)-1].Key
	}
}

func (self *MemoryDataStore) MultiGet(
	config_obj *config_proto.Config,
	refs []RecordRef) ([][]byte, error) {

	defer Instrument("multi_get", "MemoryDataStore")()

	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([][]byte, 0, len(refs))
	for _, ref := range refs {
		item, pres := self.records.Get(&recordItem{
			collection_id: ref.CollectionId, key: ref.Key})
		if !pres {
			return nil, errors.WithMessage(os.ErrNotExist,
				fmt.Sprintf("While reading %v %v: not found",
					ref.CollectionId, ref.Key))
		}
		result = append(result, item.data)
	}

	return result, nil
}

func (self *MemoryDataStore) ReadIndex(
	config_obj *config_proto.Config,
	collection_id string,
	cb IndexFunc) error {

	defer Instrument("read_index", "MemoryDataStore")()

	// Snapshot under the lock, deliver unlocked.
	self.mu.Lock()
	entries := []*IndexEntry{}
	self.index.AscendGreaterOrEqual(
		&indexItem{collection_id: collection_id},
		func(item *indexItem) bool {
			if item.collection_id != collection_id {
				return false
			}
			entries = append(entries, &IndexEntry{
				Ordinal: item.ordinal,
				Key:     item.key,
			})
			return true
		})
	self.mu.Unlock()

	for _, entry := range entries {
		err := cb(entry)
		if err == StopIteration {
			return nil
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (self *MemoryDataStore) WriteIndexEntry(
	config_obj *config_proto.Config,
	collection_id string,
	ordinal int64,
	key Key) error {

	defer Instrument("write_index", "MemoryDataStore")()

	self.mu.Lock()
	defer self.mu.Unlock()

	if ordinal < 0 {
		return errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("WriteIndexEntry %v: ordinal %v",
				collection_id, ordinal))
	}

	self.stats.IndexWrites++
	self.index.ReplaceOrInsert(&indexItem{
		collection_id: collection_id,
		ordinal:       ordinal,
		key:           key,
	})

	return nil
}

func (self *MemoryDataStore) DeleteCollection(
	config_obj *config_proto.Config,
	collection_id string) error {

	defer Instrument("delete", "MemoryDataStore")()

	self.mu.Lock()
	defer self.mu.Unlock()

	// Deleting while ascending is not allowed - collect first.
	doomed := []*recordItem{}
	self.records.AscendGreaterOrEqual(
		&recordItem{collection_id: collection_id},
		func(item *recordItem) bool {
			if item.collection_id != collection_id {
				return false
			}
			doomed = append(doomed, item)
			return true
		})
	for _, item := range doomed {
		self.records.Delete(item)
	}

	doomed_entries := []*indexItem{}
	self.index.AscendGreaterOrEqual(
		&indexItem{collection_id: collection_id},
		func(item *indexItem) bool {
			if item.collection_id != collection_id {
				return false
			}
			doomed_entries = append(doomed_entries, item)
			return true
		})
	for _, item := range doomed_entries {
		self.index.Delete(item)
	}

	return nil
}

func (self *MemoryDataStore) Debug(config_obj *config_proto.Config) {
	self.mu.Lock()
	defer self.mu.Unlock()

	collections := []string{}
	record_counts := make(map[string]int)
	self.records.Ascend(func(item *recordItem) bool {
		_, pres := record_counts[item.collection_id]
		if !pres {
			collections = append(collections, item.collection_id)
		}
		record_counts[item.collection_id]++
		return true
	})

	index_counts := make(map[string]int)
	self.index.Ascend(func(item *indexItem) bool {
		index_counts[item.collection_id]++
		return true
	})

	for _, collection_id := range collections {
		fmt.Printf("%v: %v records, %v index entries\n", collection_id,
			record_counts[collection_id], index_counts[collection_id])
	}
}

// Stats returns a copy of the operation counters.
func (self *MemoryDataStore) Stats() MemoryStats {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.stats
}

func (self *MemoryDataStore) ResetStats() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.stats = MemoryStats{}
}

// Clear drops all collections. Tests call this to start fresh.
func (self *MemoryDataStore) Clear() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.records = btree.NewG[*recordItem](10, recordLess)
	self.index = btree.NewG[*indexItem](10, indexLess)
	self.stats = MemoryStats{}
}

// Called to close all db handles etc. Not thread safe.
func (self *MemoryDataStore) Close() {
	mu.Lock()
	defer mu.Unlock()

	gMemoryDatastore = NewMemoryDataStore()
}
