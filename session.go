package arbor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/KilimcininKorOglu/arbor/internal/hashing"
	"github.com/KilimcininKorOglu/arbor/internal/logging"
	"github.com/KilimcininKorOglu/arbor/internal/node"
	"github.com/KilimcininKorOglu/arbor/internal/page"
	"github.com/KilimcininKorOglu/arbor/internal/revisioning"
	"github.com/KilimcininKorOglu/arbor/internal/storage"
)

// Session mediates access to one store. It owns the reader and writer
// permits, the last committed uber page and the open transactions.
//
// A Session is safe for concurrent use.
type Session struct {
	cfg    *Config
	logger logging.Logger

	store    *storage.PageStore
	strategy revisioning.Strategy
	hasher   hashing.Policy

	readers       *semaphore.Weighted
	writers       *semaphore.Weighted
	activeReaders atomic.Int64

	// commitMu serializes publishing a revision with shutdown.
	commitMu sync.Mutex
	last     atomic.Pointer[page.UberPage]

	txns    *txnRegistry
	closeMu sync.Mutex
	closed  atomic.Bool
}

// RevisionInfo describes a committed revision.
type RevisionInfo struct {
	Revision   int64
	MaxNodeKey int64
	Committed  time.Time
}

func openSession(st *Storage) (*Session, error) {
	cfg := st.cfg
	strategy, err := revisioning.New(cfg.Revisioning.Policy, cfg.Revisioning.Milestone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	hasher, err := hashing.New(cfg.Hashing.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	store, err := openPageStore(st.storeOptions(false))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrStorageNotFound, st.location)
		}
		return nil, ioError("open page store", err)
	}
	head, err := store.Head()
	if err == nil && head.UberKey == page.NullKey {
		err = fmt.Errorf("%w: no committed revision", storage.ErrCorrupt)
	}
	var uber *page.UberPage
	if err == nil {
		uber, err = loadUber(store, head.UberKey)
	}
	if err != nil {
		store.Close()
		return nil, ioError("load uber page", err)
	}

	s := &Session{
		cfg:      cfg,
		logger:   st.logger,
		store:    store,
		strategy: strategy,
		hasher:   hasher,
		readers:  semaphore.NewWeighted(int64(cfg.Session.MaxReaders)),
		writers:  semaphore.NewWeighted(int64(cfg.Session.MaxWriters)),
		txns:     newTxnRegistry(),
	}
	s.last.Store(uber)
	s.logger.Info("session opened",
		"resource", cfg.Session.Resource,
		"revision", uber.Revision,
		"revisioning", strategy.Name(),
		"hashing", hasher.Name(),
	)
	return s, nil
}

// openPageStore opens the page store of a location.
var openPageStore = storage.Open

func loadUber(l page.Loader, key int64) (*page.UberPage, error) {
	p, err := l.LoadPage(key)
	if err != nil {
		return nil, err
	}
	uber, ok := p.(*page.UberPage)
	if !ok {
		return nil, fmt.Errorf("%w: want %s, got %s", page.ErrUnexpectedPage, page.KindUber, p.Kind())
	}
	return uber, nil
}

// Resource returns the name of the resource the session is bound to.
func (s *Session) Resource() string {
	return s.cfg.Session.Resource
}

// LastCommittedRevision returns the newest committed revision.
func (s *Session) LastCommittedRevision() int64 {
	return s.last.Load().Revision
}

// ActiveReaders returns the number of open read transactions.
func (s *Session) ActiveReaders() int64 {
	return s.activeReaders.Load()
}

// RevisionInfo returns the metadata of a committed revision.
func (s *Session) RevisionInfo(rev int64) (RevisionInfo, error) {
	if s.closed.Load() {
		return RevisionInfo{}, ErrSessionClosed
	}
	root, err := s.committedRoot(rev)
	if err != nil {
		return RevisionInfo{}, err
	}
	return RevisionInfo{
		Revision:   root.Revision,
		MaxNodeKey: root.MaxNodeKey,
		Committed:  time.Unix(0, root.Timestamp),
	}, nil
}

// VerifyHashes recomputes every hash of revision rev from content and
// returns the root hash. A stored hash that differs from its recomputation
// is reported as an ErrIO error wrapping hashing.ErrHashMismatch.
func (s *Session) VerifyHashes(rev int64) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	if s.hasher.Name() == hashing.PolicyNone {
		return 0, ErrHashingDisabled
	}
	root, err := s.committedRoot(rev)
	if err != nil {
		return 0, err
	}
	h, err := hashing.Verify(newRevisionView(s.store, root), node.DocumentRootKey)
	if err != nil {
		return 0, ioError(fmt.Sprintf("verify revision %d", rev), err)
	}
	return h, nil
}

// committedRoot validates rev against the last commit and loads its root.
func (s *Session) committedRoot(rev int64) (*page.RevisionRootPage, error) {
	uber := s.last.Load()
	if rev < 0 || rev > uber.Revision {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidRevision, rev, uber.Revision)
	}
	root, err := loadRevisionRoot(s.store, uber, rev)
	if err != nil {
		return nil, ioError("load revision root", err)
	}
	return root, nil
}

// BeginReadTxn opens a read transaction on the newest revision. It blocks
// while every reader permit is taken; cancelling ctx makes it fail with
// ErrInterrupted.
func (s *Session) BeginReadTxn(ctx context.Context) (*ReadTxn, error) {
	return s.beginRead(ctx, node.NullKey, true)
}

// BeginReadTxnAt opens a read transaction on revision rev, which must be
// in [0, LastCommittedRevision()].
func (s *Session) BeginReadTxnAt(ctx context.Context, rev int64) (*ReadTxn, error) {
	return s.beginRead(ctx, rev, false)
}

func (s *Session) beginRead(ctx context.Context, rev int64, latest bool) (_ *ReadTxn, err error) {
	ctx, span := tracer.Start(ctx, "arbor.BeginReadTxn")
	defer func() { endSpan(span, err) }()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if err := s.readers.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if s.closed.Load() {
		s.readers.Release(1)
		return nil, ErrSessionClosed
	}

	if latest {
		rev = s.LastCommittedRevision()
	}
	span.SetAttributes(attribute.Int64("arbor.revision", rev))
	root, err := s.committedRoot(rev)
	if err != nil {
		s.readers.Release(1)
		return nil, err
	}

	t := &ReadTxn{session: s}
	t.src = newRevisionView(s.store, root)
	t.key = node.DocumentRootKey
	id, err := s.txns.add(t)
	if err != nil {
		s.readers.Release(1)
		return nil, err
	}
	t.id = id
	s.activeReaders.Add(1)
	openReadTxns.Inc()
	return t, nil
}

func (s *Session) releaseReader(id uint64) {
	s.txns.remove(id)
	s.activeReaders.Add(-1)
	openReadTxns.Dec()
	s.readers.Release(1)
}

// BeginWriteTxn opens the write transaction of the session. It never
// blocks: if another write transaction is open it fails with
// ErrWriterActive.
//
// A positive nodeThreshold commits as soon as that many modifications are
// pending. A positive timeThreshold commits pending modifications at that
// interval. Zero disables either trigger.
func (s *Session) BeginWriteTxn(nodeThreshold int, timeThreshold time.Duration) (_ *WriteTxn, err error) {
	_, span := tracer.Start(context.Background(), "arbor.BeginWriteTxn",
		trace.WithAttributes(
			attribute.Int("arbor.auto_commit.nodes", nodeThreshold),
			attribute.String("arbor.auto_commit.interval", timeThreshold.String()),
		),
	)
	defer func() { endSpan(span, err) }()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if nodeThreshold < 0 || timeThreshold < 0 {
		return nil, ErrNegativeThreshold
	}
	if !s.writers.TryAcquire(1) {
		return nil, ErrWriterActive
	}

	uber := s.last.Load()
	st, err := s.stateOn(uber, uber.Revision)
	if err != nil {
		s.writers.Release(1)
		return nil, err
	}

	t := &WriteTxn{
		session:       s,
		state:         st,
		nodeThreshold: nodeThreshold,
	}
	t.src = st
	t.key = node.DocumentRootKey
	id, err := s.txns.add(t)
	if err != nil {
		s.writers.Release(1)
		return nil, err
	}
	t.id = id
	t.logger = s.logger.WithTxnID(id)
	if timeThreshold > 0 {
		t.startTimer(timeThreshold)
	}
	openWriteTxns.Inc()
	t.logger.Debug("write transaction opened", "revision", st.revision())
	return t, nil
}

// BeginWriteTxnWithDefaults opens the write transaction with the
// auto-commit thresholds of the store configuration.
func (s *Session) BeginWriteTxnWithDefaults() (*WriteTxn, error) {
	return s.BeginWriteTxn(s.cfg.Session.AutoCommitNodes, s.cfg.Session.AutoCommitInterval)
}

func (s *Session) releaseWriter(id uint64) {
	s.txns.remove(id)
	openWriteTxns.Dec()
	s.writers.Release(1)
}

// stateOn starts a write state for the revision after uber, based on the
// committed revision base.
func (s *Session) stateOn(uber *page.UberPage, base int64) (*writeState, error) {
	root, err := loadRevisionRoot(s.store, uber, base)
	if err != nil {
		return nil, ioError("load revision root", err)
	}
	st, err := nextState(s.store, s.strategy, uber, root)
	if err != nil {
		return nil, ioError("prepare revision", err)
	}
	return st, nil
}

// publish persists st and makes it the last committed revision. It returns
// the number of pages written. On failure the last committed revision is
// unchanged.
func (s *Session) publish(id uint64, st *writeState) (int, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	if last := s.last.Load(); st.uber.Revision <= last.Revision {
		return 0, fmt.Errorf("%w: revision %d is already committed", ErrSync, st.uber.Revision)
	}
	if err := s.syncPeers(id, st); err != nil {
		return 0, err
	}

	st.root.Timestamp = time.Now().UnixNano()
	ref := page.NewReference()
	ref.SetPage(st.uber)
	written, err := s.store.Persist(&ref)
	if err != nil {
		return written, ioError("persist pages", err)
	}
	head := storage.Head{UberKey: ref.Key, Revision: st.uber.Revision}
	if err := s.store.CommitHead(head); err != nil {
		return written, ioError("commit head", err)
	}
	s.last.Store(st.uber)
	return written, nil
}

// syncPeers checks the pages of st against every other open write
// transaction. Two writers may not commit versions of the same node page.
func (s *Session) syncPeers(id uint64, st *writeState) error {
	for _, peer := range s.txns.peers(id) {
		if err := peer.syncWith(st); err != nil {
			return fmt.Errorf("%w: txn %d: %w", ErrSync, peer.id, err)
		}
	}
	return nil
}

// Close ends the session. Open write transactions are aborted and closed,
// open read transactions are closed, and the page store is closed. Errors
// are logged and joined; a failing transaction does not stop the others
// from closing. Calling Close again is a no-op.
func (s *Session) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	s.commitMu.Lock()
	if s.closed.Load() {
		s.commitMu.Unlock()
		return nil
	}
	s.closed.Store(true)
	s.commitMu.Unlock()

	var errs []error
	for _, t := range s.txns.snapshot() {
		if err := t.forceClose(); err != nil {
			s.logger.Warn("close transaction", "error", err)
			errs = append(errs, err)
		}
	}
	s.logger.Debug("closing page store", "cached_pages", s.store.CacheLen())
	if err := s.store.Close(); err != nil {
		s.logger.Error("close page store", "error", err)
		errs = append(errs, ioError("close page store", err))
	}
	s.logger.Info("session closed", "revision", s.LastCommittedRevision())
	return errors.Join(errs...)
}
