package datastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
	"www.velocidex.com/golang/fleetstore/utils"
)

// The contract every datastore implementation must honor. Each
// implementation embeds this suite and provides its own store.
type BaseTestSuite struct {
	suite.Suite

	config_obj *config_proto.Config
	datastore  DataStore
}

func (self BaseTestSuite) TestAppendAndScanOrdering() {
	collection_id := "/clients/C.1/collections/F.ordering/results"

	// Insert records out of order - scans must come back in key
	// order regardless.
	for _, timestamp := range []int64{5000, 1000, 3000, 2000, 4000} {
		_, err := self.datastore.AppendToCollection(
			self.config_obj, collection_id,
			[]byte(fmt.Sprintf("%d", timestamp)), timestamp, 1)
		assert.NoError(self.T(), err)
	}

	timestamps := []int64{}
	err := self.datastore.ScanCollection(
		context.Background(), self.config_obj, collection_id,
		Key{}, 0, func(record *Record) error {
			timestamps = append(timestamps, record.Key.Timestamp)
			assert.Equal(self.T(),
				fmt.Sprintf("%d", record.Key.Timestamp),
				string(record.Data))
			return nil
		})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(),
		[]int64{1000, 2000, 3000, 4000, 5000}, timestamps)
}

func (self BaseTestSuite) TestScanAfterKeyIsExclusive() {
	collection_id := "/clients/C.1/collections/F.after/results"

	for i := int64(1); i <= 5; i++ {
		_, err := self.datastore.AppendToCollection(
			self.config_obj, collection_id, []byte{byte(i)}, i*1000, 1)
		assert.NoError(self.T(), err)
	}

	// The after key itself is never included.
	timestamps := []int64{}
	err := self.datastore.ScanCollection(
		context.Background(), self.config_obj, collection_id,
		Key{Timestamp: 2000, Suffix: 1}, 0,
		func(record *Record) error {
			timestamps = append(timestamps, record.Key.Timestamp)
			return nil
		})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []int64{3000, 4000, 5000}, timestamps)

	// Scanning after the key's predecessor includes the key itself.
	timestamps = nil
	err = self.datastore.ScanCollection(
		context.Background(), self.config_obj, collection_id,
		Key{Timestamp: 2000, Suffix: 1}.Prev(), 0,
		func(record *Record) error {
			timestamps = append(timestamps, record.Key.Timestamp)
			return nil
		})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), []int64{2000, 3000, 4000, 5000}, timestamps)
}

func (self BaseTestSuite) TestScanLimitAndResume() {
	collection_id := "/clients/C.1/collections/F.limit/results"

	for i := int64(1); i <= 10; i++ {
		_, err := self.datastore.AppendToCollection(
			self.config_obj, collection_id, nil, i*1000, 1)
		assert.NoError(self.T(), err)
	}

	first := []Key{}
	err := self.datastore.ScanCollection(
		context.Background(), self.config_obj, collection_id,
		Key{}, 3, func(record *Record) error {
			first = append(first, record.Key)
			return nil
		})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 3, len(first))

	// Scans are restartable from the last key seen.
	rest := []Key{}
	err = self.datastore.ScanCollection(
		context.Background(), self.config_obj, collection_id,
		first[len(first)-1], 0, func(record *Record) error {
			rest = append(rest, record.Key)
			return nil
		})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 7, len(rest))
	assert.Equal(self.T(), int64(4000), rest[0].Timestamp)
	assert.Equal(self.T(), int64(10000), rest[len(rest)-1].Timestamp)
}

func (self BaseTestSuite) TestScanStopIteration() {
	collection_id := "/clients/C.1/collections/F.stop/results"

	for i := int64(1); i <= 5; i++ {
		_, err := self.datastore.AppendToCollection(
			self.config_obj, collection_id, nil, i*1000, 1)
		assert.NoError(self.T(), err)
	}

	count := 0
	err := self.datastore.ScanCollection(
		context.Background(), self.config_obj, collection_id,
		Key{}, 0, func(record *Record) error {
			count++
			return StopIteration
		})

	// StopIteration is not an error.
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 1, count)
}

func (self BaseTestSuite) TestSuffixAssignment() {
	collection_id := "/clients/C.1/collections/F.suffix/results"

	// Two records in the same microsecond must receive distinct
	// random suffixes.
	key1, err := self.datastore.AppendToCollection(
		self.config_obj, collection_id, []byte("a"), 1000, 0)
	assert.NoError(self.T(), err)

	key2, err := self.datastore.AppendToCollection(
		self.config_obj, collection_id, []byte("b"), 1000, 0)
	assert.NoError(self.T(), err)

	assert.True(self.T(), key1.Suffix >= 1)
	assert.True(self.T(), key1.Suffix <= MaxSuffix)
	assert.True(self.T(), key2.Suffix >= 1)
	assert.True(self.T(), key2.Suffix <= MaxSuffix)
	assert.NotEqual(self.T(), key1.Suffix, key2.Suffix)

	// Both are visible in suffix order.
	keys := []Key{}
	err = self.datastore.ScanCollection(
		context.Background(), self.config_obj, collection_id,
		Key{}, 0, func(record *Record) error {
			keys = append(keys, record.Key)
			return nil
		})
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(keys))
	assert.True(self.T(), keys[0].Less(keys[1]))
}

func (self BaseTestSuite) TestExplicitDuplicateKeyFails() {
	collection_id := "/clients/C.1/collections/F.dup/results"

	_, err := self.datastore.AppendToCollection(
		self.config_obj, collection_id, []byte("a"), 1000, 7)
	assert.NoError(self.T(), err)

	_, err = self.datastore.AppendToCollection(
		self.config_obj, collection_id, []byte("b"), 1000, 7)
	assert.Error(self.T(), err)
}

func (self BaseTestSuite) TestInvalidKeysRejected() {
	collection_id := "/clients/C.1/collections/F.invalid/results"

	_, err := self.datastore.AppendToCollection(
		self.config_obj, collection_id, nil, -1, 0)
	assert.Error(self.T(), err)
	assert.True(self.T(), errors.Is(err, utils.InvalidArgumentError))

	_, err = self.datastore.AppendToCollection(
		self.config_obj, collection_id, nil, 1000, MaxSuffix+1)
	assert.Error(self.T(), err)
	assert.True(self.T(), errors.Is(err, utils.InvalidArgumentError))
}

func (self BaseTestSuite) TestMultiGet() {
	collection_id := "/clients/C.1/collections/F.multiget/results"

	keys := []Key{}
	for i := int64(1); i <= 3; i++ {
		key, err := self.datastore.AppendToCollection(
			self.config_obj, collection_id,
			[]byte(fmt.Sprintf("value_%d", i)), i*1000, 0)
		assert.NoError(self.T(), err)
		keys = append(keys, key)
	}

	// Results come back in request order, not key order.
	refs := []RecordRef{
		{CollectionId: collection_id, Key: keys[2]},
		{CollectionId: collection_id, Key: keys[0]},
		{CollectionId: collection_id, Key: keys[1]},
	}
	values, err := self.datastore.MultiGet(self.config_obj, refs)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), [][]byte{
		[]byte("value_3"), []byte("value_1"), []byte("value_2")}, values)

	// A missing record is an os.ErrNotExist error.
	refs = append(refs, RecordRef{
		CollectionId: collection_id,
		Key:          Key{Timestamp: 999999, Suffix: 1},
	})
	_, err = self.datastore.MultiGet(self.config_obj, refs)
	assert.Error(self.T(), err)
	assert.True(self.T(), errors.Is(err, os.ErrNotExist))
}

func (self BaseTestSuite) TestIndexRoundTrip() {
	collection_id := "/clients/C.1/collections/F.index/results"

	err := self.datastore.WriteIndexEntry(self.config_obj,
		collection_id, 2048, Key{Timestamp: 2000, Suffix: 5})
	assert.NoError(self.T(), err)

	err = self.datastore.WriteIndexEntry(self.config_obj,
		collection_id, 1024, Key{Timestamp: 1000, Suffix: 3})
	assert.NoError(self.T(), err)

	// Entries come back in ascending ordinal order.
	entries, err := ReadIndexEntries(
		self.config_obj, self.datastore, collection_id)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(entries))
	assert.Equal(self.T(), int64(1024), entries[0].Ordinal)
	assert.Equal(self.T(), Key{Timestamp: 1000, Suffix: 3}, entries[0].Key)
	assert.Equal(self.T(), int64(2048), entries[1].Ordinal)

	// Rewriting an ordinal replaces the entry.
	err = self.datastore.WriteIndexEntry(self.config_obj,
		collection_id, 1024, Key{Timestamp: 1000, Suffix: 3})
	assert.NoError(self.T(), err)

	entries, err = ReadIndexEntries(
		self.config_obj, self.datastore, collection_id)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 2, len(entries))
}

func (self BaseTestSuite) TestDeleteCollection() {
	collection_id := "/clients/C.1/collections/F.delete/results"
	other_id := "/clients/C.1/collections/F.delete/logs"

	for i := int64(1); i <= 5; i++ {
		_, err := self.datastore.AppendToCollection(
			self.config_obj, collection_id, nil, i*1000, 1)
		assert.NoError(self.T(), err)

		_, err = self.datastore.AppendToCollection(
			self.config_obj, other_id, nil, i*1000, 1)
		assert.NoError(self.T(), err)
	}

	err := self.datastore.WriteIndexEntry(self.config_obj,
		collection_id, 1024, Key{Timestamp: 1000, Suffix: 1})
	assert.NoError(self.T(), err)

	err = self.datastore.DeleteCollection(self.config_obj, collection_id)
	assert.NoError(self.T(), err)

	// Records and index entries are both gone.
	records, err := ScanAll(context.Background(),
		self.config_obj, self.datastore, collection_id)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(records))

	entries, err := ReadIndexEntries(
		self.config_obj, self.datastore, collection_id)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 0, len(entries))

	// Other collections are untouched.
	records, err = ScanAll(context.Background(),
		self.config_obj, self.datastore, other_id)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 5, len(records))
}

func (self BaseTestSuite) TestCollectionIsolation() {
	collection_a := "/clients/C.1/collections/F.iso/results"
	collection_b := "/clients/C.2/collections/F.iso/results"

	_, err := self.datastore.AppendToCollection(
		self.config_obj, collection_a, []byte("a"), 1000, 1)
	assert.NoError(self.T(), err)

	_, err = self.datastore.AppendToCollection(
		self.config_obj, collection_b, []byte("b"), 1000, 1)
	assert.NoError(self.T(), err)

	records, err := ScanAll(context.Background(),
		self.config_obj, self.datastore, collection_a)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), 1, len(records))
	assert.Equal(self.T(), []byte("a"), records[0].Data)
}

func TestKeyPrev(t *testing.T) {
	assert.Equal(t, Key{Timestamp: 1000, Suffix: 4},
		Key{Timestamp: 1000, Suffix: 5}.Prev())

	// Crossing a timestamp boundary wraps the suffix.
	assert.Equal(t, Key{Timestamp: 999, Suffix: MaxSuffix},
		Key{Timestamp: 1000, Suffix: 0}.Prev())

	// The zero key has no predecessor.
	assert.Equal(t, Key{}, Key{}.Prev())

	// Prev is the exact predecessor: scanning after Prev() starts
	// at the key itself.
	key := Key{Timestamp: 1000, Suffix: 1}
	assert.True(t, key.Prev().Less(key))
	assert.False(t, key.Prev().Less(Key{Timestamp: 1000, Suffix: 0}))
}
