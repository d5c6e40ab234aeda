package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/arbor/internal/logging"
)

// BadgerDirName is the name of the badger directory inside a store.
const BadgerDirName = "badger"

// Badger key layout.
var (
	keyRecordPrefix = []byte("p/")
	keyHead         = []byte("m/head")
	keySeq          = []byte("m/seq")
	keyID           = []byte("m/id")
)

// BadgerBackend stores records in a badger database under sequential keys.
// Records appended since the last commit are buffered and written in one
// batch ahead of the head.
type BadgerBackend struct {
	mu      sync.RWMutex
	db      *badger.DB
	id      uuid.UUID
	head    Head
	nextSeq int64
	pending map[int64][]byte
	closed  bool
}

// badgerLogger adapts Logger to badger's logger interface.
type badgerLogger struct {
	logger logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerBackend opens the badger store under dir. With inMemory the
// directory is ignored and nothing touches disk.
func OpenBadgerBackend(dir string, create, inMemory, syncWrites bool, logger logging.Logger) (*BadgerBackend, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := filepath.Join(dir, BadgerDirName)
		_, statErr := os.Stat(path)
		switch {
		case create && statErr == nil:
			return nil, fmt.Errorf("%w: %s", ErrStoreExists, path)
		case !create && errors.Is(statErr, os.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, path)
		}
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithSyncWrites(syncWrites).WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	b := &BadgerBackend{
		db:      db,
		head:    Head{UberKey: -1, Revision: -1},
		pending: make(map[int64][]byte),
	}
	if create {
		err = b.initialize()
	} else {
		err = b.load()
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *BadgerBackend) initialize() error {
	b.id = uuid.New()
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyID, b.id[:]); err != nil {
			return err
		}
		if err := txn.Set(keySeq, encodeInt64(0)); err != nil {
			return err
		}
		return txn.Set(keyHead, encodeHead(b.head))
	})
}

func (b *BadgerBackend) load() error {
	return b.db.View(func(txn *badger.Txn) error {
		id, err := getValue(txn, keyID)
		if err != nil {
			return err
		}
		if len(id) != len(b.id) {
			return fmt.Errorf("%w: store id", ErrCorrupt)
		}
		copy(b.id[:], id)

		seq, err := getValue(txn, keySeq)
		if err != nil {
			return err
		}
		b.nextSeq = decodeInt64(seq)

		head, err := getValue(txn, keyHead)
		if err != nil {
			return err
		}
		if len(head) != 16 {
			return fmt.Errorf("%w: head", ErrCorrupt)
		}
		b.head = Head{UberKey: decodeInt64(head[:8]), Revision: decodeInt64(head[8:])}
		return nil
	})
}

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, key)
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// ID implements Backend.
func (b *BadgerBackend) ID() uuid.UUID {
	return b.id
}

// Append implements Backend.
func (b *BadgerBackend) Append(record []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	key := b.nextSeq
	b.nextSeq++
	b.pending[key] = append([]byte(nil), record...)
	return key, nil
}

// Read implements Backend.
func (b *BadgerBackend) Read(key int64) ([]byte, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	if rec, ok := b.pending[key]; ok {
		b.mu.RUnlock()
		return rec, nil
	}
	b.mu.RUnlock()

	var record []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err != nil {
			return err
		}
		record, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: key %d", ErrNotFound, key)
	}
	return record, err
}

// Head implements Backend.
func (b *BadgerBackend) Head() (Head, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Head{}, ErrClosed
	}
	return b.head, nil
}

// CommitHead implements Backend.
func (b *BadgerBackend) CommitHead(head Head) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for key, rec := range b.pending {
		if err := wb.Set(recordKey(key), rec); err != nil {
			return fmt.Errorf("write records: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush records: %w", err)
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keySeq, encodeInt64(b.nextSeq)); err != nil {
			return err
		}
		return txn.Set(keyHead, encodeHead(head))
	})
	if err != nil {
		return fmt.Errorf("write head: %w", err)
	}
	b.head = head
	clear(b.pending)
	return nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func recordKey(key int64) []byte {
	buf := make([]byte, len(keyRecordPrefix)+8)
	copy(buf, keyRecordPrefix)
	binary.BigEndian.PutUint64(buf[len(keyRecordPrefix):], uint64(key))
	return buf
}

func encodeInt64(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v))
}

func decodeInt64(buf []byte) int64 {
	if len(buf) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(buf))
}

func encodeHead(h Head) []byte {
	buf := encodeInt64(h.UberKey)
	return binary.BigEndian.AppendUint64(buf, uint64(h.Revision))
}
