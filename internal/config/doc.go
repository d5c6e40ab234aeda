// Package config provides configuration parsing and validation for arbor
// stores.
//
// # Overview
//
// A store's configuration is fixed when the store is created and saved as
// arbor.yaml next to its pages. It covers:
//
//   - the page store backend, compression and cache size
//   - the revisioning policy and its milestone
//   - the hashing policy
//   - session limits and auto-commit thresholds
//   - logging
//
// # Loading Configuration
//
//	cfg, err := config.LoadConfig("/var/lib/arbor/books/arbor.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
//	    log.Fatal(config.Join(errs))
//	}
//
// Missing keys keep the values of DefaultConfig. Unknown keys are an
// error.
//
// # Environment Variables
//
// ${VAR} and ${VAR:-default} are replaced before parsing:
//
//	logging:
//	  level: "${ARBOR_LOG_LEVEL:-info}"
//
// # Example Configuration
//
//	storage:
//	  backend: file
//	  compression: zstd
//	  cachePages: 4096
//	  syncWrites: true
//
//	revisioning:
//	  policy: differential
//	  milestone: 8
//
//	hashing:
//	  policy: rolling
//
//	session:
//	  maxReaders: 128
//	  maxWriters: 1
//	  autoCommitNodes: 10000
//	  autoCommitInterval: 30s
//
//	logging:
//	  level: info
//	  format: json
//	  output: stderr
package config
