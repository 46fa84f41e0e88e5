// Declarations of the fleetstore configuration schema.
//
// This package only holds the config types. It is kept free of other
// fleetstore imports so every package can depend on it.
package config_proto

type Config struct {
	Version *Version `json:"version,omitempty" yaml:"version,omitempty"`

	Datastore *DatastoreConfig `json:"datastore,omitempty" yaml:"datastore,omitempty"`

	Logging *LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`

	Collections *CollectionsConfig `json:"collections,omitempty" yaml:"collections,omitempty"`

	Services *ServicesConfig `json:"services,omitempty" yaml:"services,omitempty"`

	// Set by the config loader when --verbose is active.
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

type Version struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Commit    string `json:"commit,omitempty" yaml:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty" yaml:"build_time,omitempty"`
}

type DatastoreConfig struct {
	// Supported implementations: Memory, Sqlite, MySQL.
	Implementation string `json:"implementation,omitempty" yaml:"implementation,omitempty"`

	// For Sqlite - the directory holding the database file.
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	MysqlUsername         string `json:"mysql_username,omitempty" yaml:"mysql_username,omitempty"`
	MysqlPassword         string `json:"mysql_password,omitempty" yaml:"mysql_password,omitempty"`
	MysqlServer           string `json:"mysql_server,omitempty" yaml:"mysql_server,omitempty"`
	MysqlDatabase         string `json:"mysql_database,omitempty" yaml:"mysql_database,omitempty"`
	MysqlConnectionString string `json:"mysql_connection_string,omitempty" yaml:"mysql_connection_string,omitempty"`
}

type LoggingConfig struct {
	// When unset logs only go to stderr.
	OutputDirectory string `json:"output_directory,omitempty" yaml:"output_directory,omitempty"`

	SeparateLogsPerComponent bool `json:"separate_logs_per_component,omitempty" yaml:"separate_logs_per_component,omitempty"`

	// Log rotation in seconds. Defaults: rotate weekly, keep a year.
	RotationTime int64 `json:"rotation_time,omitempty" yaml:"rotation_time,omitempty"`
	MaxAge       int64 `json:"max_age,omitempty" yaml:"max_age,omitempty"`

	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

type CollectionsConfig struct {
	// Write one index entry every this many records (default 1024).
	IndexSpacing int64 `json:"index_spacing,omitempty" yaml:"index_spacing,omitempty"`

	// Never write index entries for records younger than this
	// (default 180 sec). Guards against racing writers that hold
	// a timestamp but have not committed yet.
	IndexWriteDelaySec int64 `json:"index_write_delay_sec,omitempty" yaml:"index_write_delay_sec,omitempty"`

	// How long the background updater sits on a job before running
	// it (default 240 sec).
	IndexDelaySec int64 `json:"index_delay_sec,omitempty" yaml:"index_delay_sec,omitempty"`

	// Bound on the updater's job queue. Jobs over this are dropped -
	// indexing is opportunistic (default 1000).
	MaxQueueSize int64 `json:"max_queue_size,omitempty" yaml:"max_queue_size,omitempty"`

	// Row batch size for SQL backed scans (default 1000).
	ScanBatchSize int64 `json:"scan_batch_size,omitempty" yaml:"scan_batch_size,omitempty"`
}

type ServicesConfig struct {
	IndexUpdater bool `json:"index_updater,omitempty" yaml:"index_updater,omitempty"`
}
