package storage

import (
	"github.com/KilimcininKorOglu/arbor/internal/logging"
)

// Backend kinds.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Compression modes.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Options configures a PageStore.
type Options struct {
	// Dir is the directory holding the store files.
	Dir string

	// Backend selects the record backend: "file" or "badger".
	// Default: "file".
	Backend string

	// Compression selects page record compression: "none" or "zstd".
	// Default: "none".
	Compression string

	// CachePages is the number of decoded pages kept in memory.
	// Default: 1024.
	CachePages int

	// SyncWrites fsyncs on every commit.
	// Default: true.
	SyncWrites bool

	// InMemory keeps a badger backend entirely in memory. Ignored by the
	// file backend.
	InMemory bool

	// Create initializes a new store instead of opening an existing one.
	Create bool

	// Logger receives backend diagnostics.
	Logger logging.Logger
}

// DefaultOptions returns the default page store options.
func DefaultOptions() Options {
	return Options{
		Backend:     BackendFile,
		Compression: CompressionNone,
		CachePages:  1024,
		SyncWrites:  true,
	}
}

// normalize fills zero values with defaults.
func (o *Options) normalize() {
	if o.Backend == "" {
		o.Backend = BackendFile
	}
	if o.Compression == "" {
		o.Compression = CompressionNone
	}
	if o.CachePages <= 0 {
		o.CachePages = 1024
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
}

// WithDir sets the store directory.
func (o Options) WithDir(dir string) Options {
	o.Dir = dir
	return o
}

// WithBackend sets the backend kind.
func (o Options) WithBackend(kind string) Options {
	o.Backend = kind
	return o
}

// WithCompression sets the compression mode.
func (o Options) WithCompression(mode string) Options {
	o.Compression = mode
	return o
}

// WithCachePages sets the page cache capacity.
func (o Options) WithCachePages(n int) Options {
	o.CachePages = n
	return o
}

// WithSyncWrites sets whether commits fsync.
func (o Options) WithSyncWrites(sync bool) Options {
	o.SyncWrites = sync
	return o
}

// WithCreate makes Open initialize a new store.
func (o Options) WithCreate(create bool) Options {
	o.Create = create
	return o
}

// WithInMemory keeps a badger backend in memory.
func (o Options) WithInMemory(inMemory bool) Options {
	o.InMemory = inMemory
	return o
}

// WithLogger sets the logger.
func (o Options) WithLogger(l logging.Logger) Options {
	o.Logger = l
	return o
}
