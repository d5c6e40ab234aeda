package storage

import (
	"errors"

	"github.com/google/uuid"
)

// Backend errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrCorrupt      = errors.New("record is corrupt")
	ErrClosed       = errors.New("page store is closed")
	ErrStoreExists  = errors.New("store already exists")
	ErrStoreMissing = errors.New("store does not exist")
	ErrUnknownKind  = errors.New("unknown backend kind")
)

// Head is the committed entry point of a store.
type Head struct {
	// UberKey is the storage key of the newest uber page, or -1.
	UberKey int64
	// Revision is the revision of that uber page.
	Revision int64
}

// Backend stores opaque records under keys it assigns.
//
// Appended records become durable and visible to a reopened store only
// after a later CommitHead. Until then they are readable through the same
// Backend value.
type Backend interface {
	// ID returns the store identity fixed at creation.
	ID() uuid.UUID
	// Append stores a record and returns its key.
	Append(record []byte) (int64, error)
	// Read returns the record stored under key.
	Read(key int64) ([]byte, error)
	// Head returns the last committed head.
	Head() (Head, error)
	// CommitHead makes every appended record durable and publishes head.
	CommitHead(head Head) error
	// Close releases the backend.
	Close() error
}
