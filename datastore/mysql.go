package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	errors "github.com/pkg/errors"
	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
	"www.velocidex.com/golang/fleetstore/utils"
)

var (
	// Global db handle shared by all MySQLDataStore instances.
	mysql_db *sql.DB
)

type MySQLDataStore struct {
	clock utils.Clock
}

func NewMySQLDataStore(config_obj *config_proto.Config) (DataStore, error) {
	mu.Lock()
	defer mu.Unlock()

	if mysql_db == nil {
		var err error
		mysql_db, err = initializeDatabase(config_obj)
		if err != nil {
			return nil, err
		}
	}

	return &MySQLDataStore{clock: utils.RealClock{}}, nil
}

func initializeDatabase(
	config_obj *config_proto.Config) (*sql.DB, error) {

	conn_string := config_obj.Datastore.MysqlConnectionString
	if conn_string == "" {
		conn_string = fmt.Sprintf("%s:%s@tcp(%s)/%s",
			config_obj.Datastore.MysqlUsername,
			config_obj.Datastore.MysqlPassword,
			config_obj.Datastore.MysqlServer,
			config_obj.Datastore.MysqlDatabase)
	}

	// If specifying the connection string we assume the database
	// already exists.
	if config_obj.Datastore.MysqlDatabase != "" {
		// If the database does not exist we need to connect
		// to a blank database to issue the create database.
		blank_conn_string := fmt.Sprintf("%s:%s@tcp(%s)/",
			config_obj.Datastore.MysqlUsername,
			config_obj.Datastore.MysqlPassword,
			config_obj.Datastore.MysqlServer)
		db, err := sql.Open("mysql", blank_conn_string)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer db.Close()

		_, err = db.Exec(fmt.Sprintf("create database if not exists `%v`",
			config_obj.Datastore.MysqlDatabase))
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	db, err := sql.Open("mysql", conn_string)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// Deliberately do not close db as it is a global.

	_, err = db.Exec(`create table if not exists
    collections(collection_id varchar(512) not null,
                timestamp bigint not null,
                suffix bigint not null,
                data mediumblob,
                unique index(collection_id(128), timestamp, suffix))`)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	_, err = db.Exec(`create table if not exists
    collection_index(collection_id varchar(512) not null,
                ordinal bigint not null,
                timestamp bigint not null,
                suffix bigint not null,
                unique index(collection_id(128), ordinal))`)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return db, nil
}

func (self *MySQLDataStore) AppendToCollection(
	config_obj *config_proto.Config,
	collection_id string,
	data []byte,
	timestamp, suffix int64) (Key, error) {

	defer Instrument("append", "MySQLDataStore")()

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

	// The unique index rejects duplicate keys.
	if suffix != 0 {
		_, err := mysql_db.Exec(insert,
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
		_, err = mysql_db.Exec(insert,
			collection_id, key.Timestamp, key.Suffix, data)
		if err == nil {
			return key, nil
		}
	}

	return Key{}, errors.WithMessage(err,
		fmt.Sprintf("AppendToCollection %v", collection_id))
}

func (self *MySQLDataStore) ScanCollection(
	ctx context.Context,
	config_obj *config_proto.Config,
	collection_id string,
	after Key,
	limit int64,
	cb ScanFunc) error {

	defer Instrument("scan", "MySQLDataStore")()

	batch_size := scanBatchSize(config_obj)
	count := int64(0)

	for {
		fetch := batch_size
		if limit > 0 && limit-count < fetch {
			fetch = limit - count
		}

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

func (self *MySQLDataStore) scanBatch(
	ctx context.Context,
	collection_id string,
	after Key,
	limit int64) ([]*Record, error) {

	rows, err := mysql_db.QueryContext(ctx, `
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

func (self *MySQLDataStore) MultiGet(
	config_obj *config_proto.Config,
	refs []RecordRef) ([][]byte, error) {

	defer Instrument("multi_get", "MySQLDataStore")()

	result := make([][]byte, 0, len(refs))
	for _, ref := range refs {
		row := mysql_db.QueryRow(`
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

func (self *MySQLDataStore) ReadIndex(
	config_obj *config_proto.Config,
	collection_id string,
	cb IndexFunc) error {

	defer Instrument("read_index", "MySQLDataStore")()

	rows, err := mysql_db.Query(`
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

func (self *MySQLDataStore) WriteIndexEntry(
	config_obj *config_proto.Config,
	collection_id string,
	ordinal int64,
	key Key) error {

	defer Instrument("write_index", "MySQLDataStore")()

	if ordinal < 0 {
		return errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("WriteIndexEntry %v: ordinal %v",
				collection_id, ordinal))
	}

	// Concurrent indexers compute the same entry for the same
	// ordinal so a blind replace is safe.
	_, err := mysql_db.Exec(`replace into collection_index
            (collection_id, ordinal, timestamp, suffix) values (?, ?, ?, ?)`,
		collection_id, ordinal, key.Timestamp, key.Suffix)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (self *MySQLDataStore) DeleteCollection(
	config_obj *config_proto.Config,
	collection_id string) error {

	defer Instrument("delete", "MySQLDataStore")()

	_, err := mysql_db.Exec(
		`delete from collections where collection_id = ?`, collection_id)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = mysql_db.Exec(
		`delete from collection_index where collection_id = ?`,
		collection_id)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (self *MySQLDataStore) Debug(config_obj *config_proto.Config) {
	rows, err := mysql_db.Query(`
           select collection_id, count(*) from collections
            group by collection_id`)
	if err != nil {
		fmt.Printf("MySQLDataStore: %v\n", err)
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

// Called to close all db handles etc. Not thread safe.
func (self *MySQLDataStore) Close() {
	mu.Lock()
	defer mu.Unlock()

	if mysql_db != nil {
		mysql_db.Close()
		mysql_db = nil
	}
}
