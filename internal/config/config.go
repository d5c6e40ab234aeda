package config

import "time"

// Config holds the complete store configuration.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Revisioning RevisioningConfig `yaml:"revisioning"`
	Hashing     HashingConfig     `yaml:"hashing"`
	Session     SessionConfig     `yaml:"session"`
	Logging     LogConfig         `yaml:"logging"`
}

// StorageConfig holds page store configuration.
type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=file badger"`
	Compression string `yaml:"compression" validate:"oneof=none zstd"`
	CachePages  int    `yaml:"cachePages" validate:"gte=1"`
	SyncWrites  bool   `yaml:"syncWrites"`
}

// RevisioningConfig selects how node pages are versioned.
type RevisioningConfig struct {
	Policy    string `yaml:"policy" validate:"oneof=incremental differential none"`
	Milestone int    `yaml:"milestone" validate:"gte=1"`
}

// HashingConfig selects how node hashes are maintained.
type HashingConfig struct {
	Policy string `yaml:"policy" validate:"oneof=rolling postorder none"`
}

// SessionConfig holds transaction limits.
type SessionConfig struct {
	Resource           string        `yaml:"resource"`
	MaxReaders         int           `yaml:"maxReaders" validate:"gte=1"`
	MaxWriters         int           `yaml:"maxWriters" validate:"eq=1"`
	AutoCommitNodes    int           `yaml:"autoCommitNodes" validate:"gte=0"`
	AutoCommitInterval time.Duration `yaml:"autoCommitInterval" validate:"gte=0s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
	Output string `yaml:"output"`
}
