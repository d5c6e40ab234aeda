package arbor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// liveTxn is an open transaction as seen by its session.
type liveTxn interface {
	// forceClose ends the transaction during session shutdown, discarding
	// uncommitted work.
	forceClose() error
}

// txnRegistry assigns transaction ids and tracks open transactions.
type txnRegistry struct {
	// nextID is the next id to hand out (atomic).
	nextID atomic.Uint64

	mu     sync.RWMutex
	active map[uint64]liveTxn
	// writers maps each open write transaction to the other write
	// transactions open at the same time.
	writers map[uint64]map[uint64]*WriteTxn
}

func newTxnRegistry() *txnRegistry {
	r := &txnRegistry{
		active:  make(map[uint64]liveTxn),
		writers: make(map[uint64]map[uint64]*WriteTxn),
	}
	r.nextID.Store(1)
	return r
}

// add registers t under a fresh id.
func (r *txnRegistry) add(t liveTxn) (uint64, error) {
	id := r.nextID.Add(1) - 1

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.active[id]; dup {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateTxnID, id)
	}
	r.active[id] = t

	if w, ok := t.(*WriteTxn); ok {
		peers := make(map[uint64]*WriteTxn)
		for otherID, others := range r.writers {
			others[id] = w
			peers[otherID] = r.active[otherID].(*WriteTxn)
		}
		r.writers[id] = peers
	}
	return id, nil
}

// remove forgets the transaction with id.
func (r *txnRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
	if _, ok := r.writers[id]; ok {
		delete(r.writers, id)
		for _, others := range r.writers {
			delete(others, id)
		}
	}
}

// peers returns the write transactions open alongside the writer id.
func (r *txnRegistry) peers(id uint64) []*WriteTxn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*WriteTxn, 0, len(r.writers[id]))
	for _, w := range r.writers[id] {
		out = append(out, w)
	}
	return out
}

// snapshot returns every open transaction.
func (r *txnRegistry) snapshot() []liveTxn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]liveTxn, 0, len(r.active))
	for _, t := range r.active {
		out = append(out, t)
	}
	return out
}

// count returns the number of open transactions.
func (r *txnRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
