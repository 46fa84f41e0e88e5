// An SQLite datastore. All collections live in a single database
// file under the configured location - suitable for a single node
// deployment or for local tooling.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	errors "github.com/pkg/errors"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
	"www.velocidex.com/golang/fleetstore/utils"
)

var (
	sqlite_mu sync.Mutex

	// Database handles are expensive - share one per location.
	sqlite_handles = make(map[string]*sql.DB)
)

type SqliteDataStore struct {
	db    *sql.DB
	clock utils.Clock
}

func NewSqliteDataStore(config_obj *config_proto.Config) (DataStore, error) {
	sqlite_mu.Lock()
	defer sqlite_mu.Unlock()

	db_path := filepath.Join(
		config_obj.Datastore.Location, "fleetstore.sqlite")

	handle, pres := sqlite_handles[db_path]
	if !pres {
		var err error
		handle, err = initializeSqlite(db_path)
		if err != nil {
			return nil, err
		}
		sqlite_handles[db_path] = handle
	}

	return &SqliteDataStore{
		db:    handle,
		clock: utils.RealClock{},
	}, nil
}

func initializeSqlite(db_path string) (*sql.DB, error) {
	err := os.MkdirAll(filepath.Dir(db_path), 0700)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	db, err := sql.Open("sqlite3", db_path+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Sqlite allows a single writer - serialize all access through
	// one connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`create table if not exists
            collections(collection_id varchar(512) not null,
                        timestamp bigint not null,
                        suffix bigint not null,
                        data blob,
                        unique (collection_id, timestamp, suffix))`)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	_, err = db.Exec(`create table if not exists
            collection_index(collection_id varchar(512) not null,
                        ordinal bigint not null,
                        timestamp bigint not null,
                        suffix bigint not null,
                        unique (collection_id, ordinal))`)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return db, nil
}

func (self *SqliteDataStore) AppendToCollection(
	config_obj *config_proto.Config,
	collection_id string,
	data []byte,
	timestamp, suffix int64) (Key, error) {

	defer Instrument("append", "SqliteDataStore")()

	if timestamp < 0 || suffix < 0 || suffix > MaxSuffix {
		return Key{}, errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("AppendToCollection %v: timestamp %v suffix %v",
				collection_id, timestamp, suffix))
	}

	if timestamp == 0 {
		timestamp = self.clock.Now().UTC().UnixNano() / 1000
	}

	insert := `insert into collections
            (collection_id, timestamp, suffix, data) values (?, ?, ?, ?)`

	// The unique constraint rejects duplicate keys.
	if suffix != 0 {
		_, err := self.db.Exec(insert,
			collection_id, timestamp, suffix, data)
		if err != nil {
			return Key{}, errors.WithMessage(err,
				fmt.Sprintf("AppendToCollection %v", collection_id))
		}
		return Key{Timestamp: timestamp, Suffix: suffix}, nil
	}

	// Store assigned suffixes are random - retry the odd collision.
	var err error
	for i := 0; i < 10; i++ {
		key := Key{Timestamp: timestamp,
			Suffix: utils.RandomSuffix(MaxSuffix)}
		_, err = self.db.Exec(insert,
			collection_id, key.Timestamp, key.Suffix, data)
		if err == nil {
			return key, nil
		}
	}

	return Key{}, errors.WithMessage(err,
		fmt.Sprintf("AppendToCollection %v", collection_id))
}

func (self *SqliteDataStore) ScanCollection(
	ctx context.Context,
	config_obj *config_proto.Config,
	collection_id string,
	after Key,
	limit int64,
	cb ScanFunc) error {

	defer Instrument("scan", "SqliteDataStore")()

	batch_size := scanBatchSize(config_obj)
	count := int64(0)

	for {
		fetch := batch_size
		if limit > 0 && limit-count < fetch {
			fetch = limit - count
		}

		// Batches are materialized before the callbacks run so the
		// callback can write back into the store.
		batch, err := self.scanBatch(ctx, collection_id, after, fetch)
		if err != nil {
			return err
		}

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

func (self *SqliteDataStore) scanBatch(
	ctx context.Context,
	collection_id string,
	after Key,
	limit int64) ([]*Record, error) {

	rows, err := self.db.QueryContext(ctx, `
           select timestamp, suffix, data from collections
            where collection_id = ?
              and (timestamp > ? or (timestamp = ? and suffix > ?))
            order by timestamp, suffix limit ?`,
		collection_id, after.Timestamp, after.Timestamp,
		after.Suffix, limit)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	result := make([]*Record, 0, limit)
	for rows.Next() {
		record := &Record{}
		err = rows.Scan(&record.Key.Timestamp, &record.Key.Suffix,
			&record.Data)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result = append(result, record)
	}

	return result, rows.Err()
}

func (self *SqliteDataStore) MultiGet(
	config_obj *config_proto.Config,
	refs []RecordRef) ([][]byte, error) {

	defer Instrument("multi_get", "SqliteDataStore")()

	result := make([][]byte, 0, len(refs))
	for _, ref := range refs {
		row := self.db.QueryRow(`
               select data from collections
                where collection_id = ? and timestamp = ? and suffix = ?`,
			ref.CollectionId, ref.Key.Timestamp, ref.Key.Suffix)

		var data []byte
		err := row.Scan(&data)
		if err == sql.ErrNoRows {
			return nil, errors.WithMessage(os.ErrNotExist,
				fmt.Sprintf("While reading %v %v: not found",
					ref.CollectionId, ref.Key))
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result = append(result, data)
	}

	return result, nil
}

func (self *SqliteDataStore) ReadIndex(
	config_obj *config_proto.Config,
	collection_id string,
	cb IndexFunc) error {

	defer Instrument("read_index", "SqliteDataStore")()

	rows, err := self.db.Query(`
           select ordinal, timestamp, suffix from collection_index
            where collection_id = ? order by ordinal`, collection_id)
	if err != nil {
		return errors.WithStack(err)
	}

	entries := []*IndexEntry{}
	for rows.Next() {
		entry := &IndexEntry{}
		err = rows.Scan(&entry.Ordinal, &entry.Key.Timestamp,
			&entry.Key.Suffix)
		if err != nil {
			rows.Close()
			return errors.WithStack(err)
		}
		entries = append(entries, entry)
	}
	rows.Close()

	err = rows.Err()
	if err != nil {
		return errors.WithStack(err)
	}

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

func (self *SqliteDataStore) WriteIndexEntry(
	config_obj *config_proto.Config,
	collection_id string,
	ordinal int64,
	key Key) error {

	defer Instrument("write_index", "SqliteDataStore")()

	if ordinal < 0 {
		return errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("WriteIndexEntry %v: ordinal %v",
				collection_id, ordinal))
	}

	// Concurrent indexers compute the same entry for the same
	// ordinal so a blind replace is safe.
	_, err := self.db.Exec(`insert or replace into collection_index
            (collection_id, ordinal, timestamp, suffix) values (?, ?, ?, ?)`,
		collection_id, ordinal, key.Timestamp, key.Suffix)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (self *SqliteDataStore) DeleteCollection(
	config_obj *config_proto.Config,
	collection_id string) error {

	defer Instrument("delete", "SqliteDataStore")()

	_, err := self.db.Exec(
		`delete from collections where collection_id = ?`, collection_id)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = self.db.Exec(
		`delete from collection_index where collection_id = ?`,
		collection_id)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (self *SqliteDataStore) Debug(config_obj *config_proto.Config) {
	rows, err := self.db.Query(`
           select collection_id, count(*) from collections
            group by collection_id`)
	if err != nil {
		fmt.Printf("SqliteDataStore: %v\n", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var collection_id string
		var count int64

		err = rows.Scan(&collection_id, &count)
		if err != nil {
			return
		}
		fmt.Printf("%v: %v records\n", collection_id, count)
	}
}

// Not thread safe - expects no other threads are using the
// connections right now.
func (self *SqliteDataStore) Close() {
	sqlite_mu.Lock()
	defer sqlite_mu.Unlock()

	for db_path, handle := range sqlite_handles {
		handle.Close()
		delete(sqlite_handles, db_path)
	}
}
