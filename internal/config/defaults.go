package config

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:     "file",
			Compression: "none",
			CachePages:  1024,
			SyncWrites:  true,
		},
		Revisioning: RevisioningConfig{
			Policy:    "incremental",
			Milestone: 4,
		},
		Hashing: HashingConfig{
			Policy: "rolling",
		},
		Session: SessionConfig{
			Resource:           "shredded",
			MaxReaders:         128,
			MaxWriters:         1,
			AutoCommitNodes:    0,
			AutoCommitInterval: 0,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
