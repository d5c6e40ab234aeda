package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	t.Run("storage defaults", func(t *testing.T) {
		assert.Equal(t, "file", config.Storage.Backend)
		assert.Equal(t, "none", config.Storage.Compression)
		assert.Equal(t, 1024, config.Storage.CachePages)
		assert.True(t, config.Storage.SyncWrites)
	})

	t.Run("session defaults", func(t *testing.T) {
		assert.Equal(t, 128, config.Session.MaxReaders)
		assert.Equal(t, 1, config.Session.MaxWriters)
		assert.Zero(t, config.Session.AutoCommitNodes)
	})

	t.Run("policies", func(t *testing.T) {
		assert.Equal(t, "incremental", config.Revisioning.Policy)
		assert.Equal(t, 4, config.Revisioning.Milestone)
		assert.Equal(t, "rolling", config.Hashing.Policy)
	})

	assert.Empty(t, ValidateConfig(config))
}

func TestParseConfig(t *testing.T) {
	t.Run("empty config uses defaults", func(t *testing.T) {
		config, err := ParseConfig([]byte(""))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), config)
	})

	t.Run("partial config merges with defaults", func(t *testing.T) {
		config, err := ParseConfig([]byte(`
storage:
  backend: badger
  compression: zstd
revisioning:
  policy: differential
session:
  autoCommitInterval: 30s
`))
		require.NoError(t, err)
		assert.Equal(t, "badger", config.Storage.Backend)
		assert.Equal(t, "zstd", config.Storage.Compression)
		assert.Equal(t, 1024, config.Storage.CachePages)
		assert.Equal(t, "differential", config.Revisioning.Policy)
		assert.Equal(t, 4, config.Revisioning.Milestone)
		assert.Equal(t, 30*time.Second, config.Session.AutoCommitInterval)
	})

	t.Run("environment substitution", func(t *testing.T) {
		t.Setenv("ARBOR_TEST_LEVEL", "debug")
		config, err := ParseConfig([]byte(`
logging:
  level: "${ARBOR_TEST_LEVEL}"
  format: "${ARBOR_TEST_UNSET:-json}"
`))
		require.NoError(t, err)
		assert.Equal(t, "debug", config.Logging.Level)
		assert.Equal(t, "json", config.Logging.Format)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := ParseConfig([]byte("storage:\n  pageSize: 4096\n"))
		assert.ErrorIs(t, err, ErrInvalidYAML)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseConfig([]byte("storage: [unclosed"))
		assert.ErrorIs(t, err, ErrInvalidYAML)
	})
}

func TestValidateConfig(t *testing.T) {
	config := DefaultConfig()
	config.Storage.Backend = "sqlite"
	config.Revisioning.Milestone = 0
	config.Session.MaxWriters = 2
	config.Session.AutoCommitNodes = -1
	config.Session.AutoCommitInterval = -time.Second

	errs := ValidateConfig(config)
	require.Len(t, errs, 5)

	fields := make([]string, 0, len(errs))
	for _, err := range errs {
		var ve ValidationError
		require.ErrorAs(t, err, &ve)
		fields = append(fields, ve.Field)
	}
	assert.ElementsMatch(t, []string{
		"storage.backend",
		"revisioning.milestone",
		"session.maxWriters",
		"session.autoCommitNodes",
		"session.autoCommitInterval",
	}, fields)
	assert.Error(t, Join(errs))
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.yaml")
	config := DefaultConfig()
	config.Hashing.Policy = "postorder"
	config.Session.AutoCommitInterval = 2 * time.Minute

	require.NoError(t, config.Save(path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}
