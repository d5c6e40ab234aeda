package arbor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KilimcininKorOglu/arbor/internal/config"
	"github.com/KilimcininKorOglu/arbor/internal/hashing"
	"github.com/KilimcininKorOglu/arbor/internal/logging"
	"github.com/KilimcininKorOglu/arbor/internal/node"
	"github.com/KilimcininKorOglu/arbor/internal/page"
	"github.com/KilimcininKorOglu/arbor/internal/storage"
)

// ConfigFileName is the name of the persisted configuration inside a
// storage location.
const ConfigFileName = "arbor.yaml"

// registry maps absolute locations to open handles.
var registry = struct {
	mu      sync.Mutex
	handles map[string]*Storage
}{handles: make(map[string]*Storage)}

// Storage is the handle of one storage location. Create and Open return
// the same handle for a location until Close deregisters it.
type Storage struct {
	location string
	cfg      *Config
	logger   logging.Logger

	mu      sync.Mutex
	session *Session
	closed  bool
}

// Option configures a Storage when it is created or first opened.
type Option func(*Storage)

// WithLogger sets the logger. By default the logger is built from the
// logging section of the configuration.
func WithLogger(l Logger) Option {
	return func(s *Storage) {
		s.logger = l
	}
}

// Create establishes a new store at location and registers its handle. It
// fails with ErrStorageExists if location already exists. A nil cfg uses
// DefaultConfig.
//
// The new store holds revision 0, which contains only the document root.
func Create(location string, cfg *Config, opts ...Option) (*Storage, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, config.Join(errs))
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, ok := registry.handles[abs]; ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageExists, abs)
	}
	if _, err := os.Stat(abs); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageExists, abs)
	} else if !os.IsNotExist(err) {
		return nil, ioError("stat location", err)
	}

	s := newStorage(abs, cfg.Clone(), opts)
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, ioError("create location", err)
	}
	err = s.cfg.Save(filepath.Join(abs, ConfigFileName))
	if err != nil {
		err = ioError("save configuration", err)
	} else {
		err = s.bootstrap()
	}
	if err != nil {
		if rerr := os.RemoveAll(abs); rerr != nil {
			s.logger.Warn("remove partially created storage", "error", rerr)
		}
		return nil, err
	}

	registry.handles[abs] = s
	s.logger.Info("storage created", "location", abs, "backend", s.cfg.Storage.Backend)
	return s, nil
}

// Open returns the handle of an existing store. If the location is already
// registered, the registered handle is returned and opts are ignored.
func Open(location string, opts ...Option) (*Storage, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if s, ok := registry.handles[abs]; ok {
		return s, nil
	}

	cfg, err := config.LoadConfig(filepath.Join(abs, ConfigFileName))
	if err != nil {
		if errors.Is(err, config.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStorageNotFound, abs)
		}
		return nil, ioError("load configuration", err)
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, config.Join(errs))
	}

	s := newStorage(abs, cfg, opts)
	registry.handles[abs] = s
	return s, nil
}

// Close deregisters the handle for location and closes its session.
// Closing an unknown location is a no-op.
func Close(location string) error {
	abs, err := filepath.Abs(location)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	registry.mu.Lock()
	s, ok := registry.handles[abs]
	delete(registry.handles, abs)
	registry.mu.Unlock()

	if !ok {
		return nil
	}
	return s.close()
}

// ResetRegistry closes every registered handle and empties the registry.
func ResetRegistry() error {
	registry.mu.Lock()
	handles := registry.handles
	registry.handles = make(map[string]*Storage)
	registry.mu.Unlock()

	var errs []error
	for _, s := range handles {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newStorage(location string, cfg *Config, opts []Option) *Storage {
	s := &Storage{location: location, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
	}
	s.logger = s.logger.WithFields("location", location)
	return s
}

// Location returns the absolute path of the store.
func (s *Storage) Location() string {
	return s.location
}

// Config returns a copy of the store configuration.
func (s *Storage) Config() *Config {
	return s.cfg.Clone()
}

// ID returns the identity assigned to the store at creation.
func (s *Storage) ID() (uuid.UUID, error) {
	sess, err := s.Session()
	if err != nil {
		return uuid.Nil, err
	}
	return sess.store.ID(), nil
}

// Session returns the session of the store, opening it on first use or
// after the previous session was closed.
func (s *Storage) Session() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStorageClosed
	}
	if s.session != nil && !s.session.closed.Load() {
		return s.session, nil
	}
	sess, err := openSession(s)
	if err != nil {
		return nil, err
	}
	s.session = sess
	return sess, nil
}

func (s *Storage) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}

func (s *Storage) storeOptions(create bool) storage.Options {
	return storage.DefaultOptions().
		WithDir(s.location).
		WithBackend(s.cfg.Storage.Backend).
		WithCompression(s.cfg.Storage.Compression).
		WithCachePages(s.cfg.Storage.CachePages).
		WithSyncWrites(s.cfg.Storage.SyncWrites).
		WithCreate(create).
		WithLogger(s.logger)
}

// bootstrap creates the page store and commits revision 0.
func (s *Storage) bootstrap() error {
	hasher, err := hashing.New(s.cfg.Hashing.Policy)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	store, err := openPageStore(s.storeOptions(true))
	if err != nil {
		return ioError("create page store", err)
	}

	uber := page.NewUberPage()
	uber.Revision = 0
	revLeaf, err := page.PrepareLeaf(store, &uber.RevisionRef, 0, 0)
	if err != nil {
		store.Close()
		return ioError("bootstrap", err)
	}
	root := page.NewRevisionRootPage(0)
	root.MaxNodeKey = node.DocumentRootKey
	root.Timestamp = time.Now().UnixNano()
	revLeaf.SetPage(root)

	doc := node.NewDocumentRoot()
	hasher.Init(doc)
	nodes := page.NewNodePage(0, 0, true)
	nodes.SetNode(doc)
	nodeLeaf, err := page.PrepareLeaf(store, &root.NodeRef, 0, 0)
	if err != nil {
		store.Close()
		return ioError("bootstrap", err)
	}
	nodeLeaf.SetPage(nodes)

	ref := page.NewReference()
	ref.SetPage(uber)
	if _, err := store.Persist(&ref); err != nil {
		store.Close()
		return ioError("bootstrap", err)
	}
	if err := store.CommitHead(storage.Head{UberKey: ref.Key, Revision: 0}); err != nil {
		store.Close()
		return ioError("bootstrap", err)
	}
	return ioError("close page store", store.Close())
}
