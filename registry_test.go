package arbor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/arbor/internal/logging"
	"github.com/KilimcininKorOglu/arbor/internal/storage"
)

func TestRegistry(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, ResetRegistry()) })
	nop := WithLogger(logging.NewNop())

	t.Run("create and open share a handle", func(t *testing.T) {
		loc := filepath.Join(t.TempDir(), "a")
		created, err := Create(loc, nil, nop)
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(loc, ConfigFileName))

		opened, err := Open(loc)
		require.NoError(t, err)
		assert.Same(t, created, opened)
		sess, err := opened.Session()
		require.NoError(t, err)
		assert.Equal(t, "shredded", sess.Resource())

		_, err = Create(loc, nil, nop)
		assert.ErrorIs(t, err, ErrStorageExists)
		assert.ErrorIs(t, err, ErrUsage)
		require.NoError(t, Close(loc))
	})

	t.Run("existing directory", func(t *testing.T) {
		loc := t.TempDir()
		_, err := Create(loc, nil, nop)
		assert.ErrorIs(t, err, ErrStorageExists)
	})

	t.Run("missing store", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "missing"), nop)
		assert.ErrorIs(t, err, ErrStorageNotFound)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Revisioning.Policy = "sometimes"
		cfg.Session.MaxReaders = 0
		loc := filepath.Join(t.TempDir(), "bad")
		_, err := Create(loc, cfg, nop)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.NoDirExists(t, loc)
	})

	t.Run("failed bootstrap removes the location", func(t *testing.T) {
		errOpen := errors.New("no space left")
		openPageStore = func(storage.Options) (*storage.PageStore, error) { return nil, errOpen }
		t.Cleanup(func() { openPageStore = storage.Open })

		loc := filepath.Join(t.TempDir(), "f")
		_, err := Create(loc, nil, nop)
		assert.ErrorIs(t, err, ErrIO)
		assert.ErrorIs(t, err, errOpen)
		assert.NoDirExists(t, loc)

		openPageStore = storage.Open
		st, err := Create(loc, nil, nop)
		require.NoError(t, err)
		sess, err := st.Session()
		require.NoError(t, err)
		assert.Equal(t, int64(0), sess.LastCommittedRevision())
		require.NoError(t, Close(loc))
	})

	t.Run("close unknown location", func(t *testing.T) {
		assert.NoError(t, Close(filepath.Join(t.TempDir(), "nothing")))
	})

	t.Run("closed handle", func(t *testing.T) {
		loc := filepath.Join(t.TempDir(), "c")
		st, err := Create(loc, nil, nop)
		require.NoError(t, err)
		require.NoError(t, Close(loc))
		_, err = st.Session()
		assert.ErrorIs(t, err, ErrStorageClosed)
	})

	t.Run("reopen keeps identity and data", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.SyncWrites = false
		cfg.Session.Resource = "catalog"
		loc := filepath.Join(t.TempDir(), "d")
		st, err := Create(loc, cfg, nop)
		require.NoError(t, err)
		id, err := st.ID()
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		sess, err := st.Session()
		require.NoError(t, err)
		wtx := beginWrite(t, sess)
		require.NoError(t, wtx.InsertElementAsFirstChild("kept"))
		require.NoError(t, wtx.Commit())
		require.NoError(t, wtx.Close())
		require.NoError(t, Close(loc))

		reopened, err := Open(loc, nop)
		require.NoError(t, err)
		assert.NotSame(t, st, reopened)
		assert.False(t, reopened.Config().Storage.SyncWrites)
		reopenedID, err := reopened.ID()
		require.NoError(t, err)
		assert.Equal(t, id, reopenedID)

		sess, err = reopened.Session()
		require.NoError(t, err)
		assert.Equal(t, int64(1), sess.LastCommittedRevision())
		assert.Equal(t, "catalog", sess.Resource())
		assert.Equal(t, []string{"kept"}, childNames(t, readAt(t, sess, 1)))
	})

	t.Run("missing page store", func(t *testing.T) {
		loc := filepath.Join(t.TempDir(), "e")
		_, err := Create(loc, nil, nop)
		require.NoError(t, err)
		require.NoError(t, Close(loc))
		entries, err := os.ReadDir(loc)
		require.NoError(t, err)
		for _, e := range entries {
			if e.Name() != ConfigFileName {
				require.NoError(t, os.RemoveAll(filepath.Join(loc, e.Name())))
			}
		}

		st, err := Open(loc, nop)
		require.NoError(t, err)
		_, err = st.Session()
		assert.ErrorIs(t, err, ErrStorageNotFound)
	})
}

func TestResetRegistry(t *testing.T) {
	nop := WithLogger(logging.NewNop())
	var stores []*Storage
	for _, name := range []string{"x", "y"} {
		st, err := Create(filepath.Join(t.TempDir(), name), nil, nop)
		require.NoError(t, err)
		_, err = st.Session()
		require.NoError(t, err)
		stores = append(stores, st)
	}

	require.NoError(t, ResetRegistry())
	for _, st := range stores {
		_, err := st.Session()
		assert.ErrorIs(t, err, ErrStorageClosed)
	}
}

func TestTxnRegistryPeers(t *testing.T) {
	r := newTxnRegistry()
	rtx := &ReadTxn{}
	w1, w2 := &WriteTxn{}, &WriteTxn{}

	_, err := r.add(rtx)
	require.NoError(t, err)
	id1, err := r.add(w1)
	require.NoError(t, err)
	id2, err := r.add(w2)
	require.NoError(t, err)
	assert.Equal(t, 3, r.count())

	assert.Equal(t, []*WriteTxn{w2}, r.peers(id1))
	assert.Equal(t, []*WriteTxn{w1}, r.peers(id2))

	r.remove(id2)
	assert.Empty(t, r.peers(id1))
	assert.Len(t, r.snapshot(), 2)
}
