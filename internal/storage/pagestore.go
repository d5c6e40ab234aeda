package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/KilimcininKorOglu/arbor/internal/logging"
	"github.com/KilimcininKorOglu/arbor/internal/page"
)

// Record framing: flags u8 | crc32 u32 LE (of payload) | payload.
const (
	recordHeaderSize = 5
	flagZstd         = 1 << 0
)

// PageStore encodes pages into backend records and caches decoded pages.
// It implements page.Loader and is safe for concurrent use.
type PageStore struct {
	backend Backend
	logger  logging.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	cacheMu sync.Mutex
	cache   *LRUCache
	loads   singleflight.Group

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates a page store as described by opts.
func Open(opts Options) (*PageStore, error) {
	opts.normalize()

	var (
		backend Backend
		err     error
	)
	switch opts.Backend {
	case BackendFile:
		backend, err = OpenFileBackend(opts.Dir, opts.Create, opts.SyncWrites)
	case BackendBadger:
		backend, err = OpenBadgerBackend(opts.Dir, opts.Create, opts.InMemory, opts.SyncWrites, opts.Logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewPageStore(backend, opts)
}

// NewPageStore wraps an open backend.
func NewPageStore(backend Backend, opts Options) (*PageStore, error) {
	opts.normalize()
	s := &PageStore{
		backend: backend,
		logger:  opts.Logger,
		cache:   NewLRUCache(opts.CachePages),
	}

	var err error
	s.decoder, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	switch opts.Compression {
	case CompressionZstd:
		s.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			s.decoder.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
	case CompressionNone:
	default:
		s.decoder.Close()
		return nil, fmt.Errorf("unknown compression %q", opts.Compression)
	}
	return s, nil
}

// ID returns the store identity.
func (s *PageStore) ID() uuid.UUID {
	return s.backend.ID()
}

// LoadPage implements page.Loader. Concurrent loads of the same key share
// one backend read.
func (s *PageStore) LoadPage(key int64) (page.Page, error) {
	s.cacheMu.Lock()
	p, ok := s.cache.Get(key)
	s.cacheMu.Unlock()
	if ok {
		cacheHits.Inc()
		return p, nil
	}
	cacheMisses.Inc()

	v, err, _ := s.loads.Do(strconv.FormatInt(key, 10), func() (interface{}, error) {
		p, err := s.readPage(key)
		if err != nil {
			return nil, err
		}
		s.cacheMu.Lock()
		s.cache.Put(key, p)
		s.cacheMu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(page.Page), nil
}

func (s *PageStore) readPage(key int64) (page.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	record, err := s.backend.Read(key)
	if err != nil {
		return nil, err
	}
	if len(record) < recordHeaderSize {
		return nil, fmt.Errorf("%w: short record at %d", ErrCorrupt, key)
	}
	flags := record[0]
	sum := binary.LittleEndian.Uint32(record[1:5])
	payload := record[recordHeaderSize:]
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch at %d", ErrCorrupt, key)
	}
	if flags&flagZstd != 0 {
		payload, err = s.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress record at %d: %v", ErrCorrupt, key, err)
		}
	}
	p, err := page.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: record at %d: %v", ErrCorrupt, key, err)
	}
	return p, nil
}

// WritePage encodes p and appends it, returning its storage key.
func (s *PageStore) WritePage(p page.Page) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	payload, err := page.Encode(p)
	if err != nil {
		return 0, err
	}
	var flags byte
	if s.encoder != nil {
		payload = s.encoder.EncodeAll(payload, nil)
		flags |= flagZstd
	}
	record := make([]byte, recordHeaderSize+len(payload))
	record[0] = flags
	binary.LittleEndian.PutUint32(record[1:5], crc32.ChecksumIEEE(payload))
	copy(record[recordHeaderSize:], payload)

	key, err := s.backend.Append(record)
	if err != nil {
		return 0, err
	}
	pagesWritten.WithLabelValues(p.Kind().String()).Inc()
	bytesWritten.Add(float64(len(record)))
	return key, nil
}

// Persist writes every dirty page reachable from ref, children first, and
// marks each reference persisted. It returns the number of pages written.
// Persisted references are skipped, so shared subtrees are never rewritten.
func (s *PageStore) Persist(ref *page.Reference) (int, error) {
	if !ref.IsDirty() {
		return 0, nil
	}
	written := 0
	for _, child := range ref.Page.References() {
		n, err := s.Persist(child)
		written += n
		if err != nil {
			return written, err
		}
	}
	key, err := s.WritePage(ref.Page)
	if err != nil {
		return written, err
	}
	ref.MarkPersisted(key)
	return written + 1, nil
}

// Head returns the last committed head.
func (s *PageStore) Head() (Head, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Head{}, ErrClosed
	}
	return s.backend.Head()
}

// CommitHead publishes head after making every written page durable.
func (s *PageStore) CommitHead(head Head) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.backend.CommitHead(head)
}

// CacheLen returns the number of cached pages.
func (s *PageStore) CacheLen() int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cache.Len()
}

// Close closes the backend. Calling Close twice is a no-op.
func (s *PageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.cacheMu.Lock()
	s.cache.Clear()
	s.cacheMu.Unlock()

	if s.encoder != nil {
		if err := s.encoder.Close(); err != nil {
			s.logger.Warn("close zstd encoder", "error", err)
		}
	}
	s.decoder.Close()
	return s.backend.Close()
}

// IsNotFound reports whether err means a missing record or store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrStoreMissing)
}
