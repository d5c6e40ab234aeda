package arbor

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package matches exactly
// one of them with errors.Is, except ErrWriterActive which is both a usage
// and a concurrency error.
var (
	// ErrUsage means the caller violated a precondition. The tree is
	// unchanged.
	ErrUsage = errors.New("arbor: usage error")
	// ErrIO means the page store failed to read or write.
	ErrIO = errors.New("arbor: i/o error")
	// ErrConcurrency means a permit or transaction id could not be
	// obtained.
	ErrConcurrency = errors.New("arbor: concurrency error")
	// ErrSync means a committed page could not be propagated to another
	// open write transaction.
	ErrSync = errors.New("arbor: sync error")
)

// Storage handle errors.
var (
	ErrStorageExists   = usageError("storage already exists")
	ErrStorageNotFound = usageError("storage not found")
	ErrStorageClosed   = usageError("storage is closed")
	ErrInvalidConfig   = usageError("invalid configuration")
)

// Session errors.
var (
	ErrSessionClosed     = usageError("session is closed")
	ErrInvalidRevision   = usageError("revision out of range")
	ErrNegativeThreshold = usageError("auto-commit threshold must not be negative")
	ErrWriterActive      = fmt.Errorf("%w: %w: a write transaction is already open", ErrUsage, ErrConcurrency)
	ErrInterrupted       = concurrencyError("interrupted while waiting for a reader permit")
	ErrDuplicateTxnID    = concurrencyError("duplicate transaction id")
	ErrHashingDisabled   = usageError("hashing policy is none")
)

// Transaction errors.
var (
	ErrTxnClosed          = usageError("transaction is closed")
	ErrKindMismatch       = usageError("operation not allowed on this node kind")
	ErrRootRemoval        = usageError("the document root cannot be removed")
	ErrDuplicateAttribute = usageError("duplicate attribute name")
	ErrDuplicateNamespace = usageError("duplicate namespace prefix")
	ErrInvalidMove        = usageError("invalid subtree move")
	ErrInvalidName        = usageError("name must not be empty")
	ErrUncommitted        = usageError("transaction has uncommitted modifications")
)

func usageError(msg string) error {
	return fmt.Errorf("%w: %s", ErrUsage, msg)
}

func concurrencyError(msg string) error {
	return fmt.Errorf("%w: %s", ErrConcurrency, msg)
}

// ioError wraps a page store failure.
func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
