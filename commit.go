package arbor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// Commit publishes the pending modifications as a new revision. The
// transaction stays open and continues at the following revision.
//
// If Commit fails, the last committed revision is unchanged and the
// pending modifications are discarded. If the revision is published but
// the following one cannot be prepared, Commit returns ErrIO and the
// transaction restarts on the revision it just committed.
func (t *WriteTxn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTxnClosed
	}
	return t.commitLocked("")
}

// commitLocked commits with t.mu held. trigger names the auto-commit
// trigger, or is empty for an explicit commit.
func (t *WriteTxn) commitLocked(trigger string) (err error) {
	st := t.state
	rev := st.revision()
	_, span := tracer.Start(context.Background(), "arbor.Commit",
		trace.WithAttributes(
			attribute.Int64("arbor.revision", rev),
			attribute.Int("arbor.modifications", t.modCount),
			attribute.String("arbor.trigger", trigger),
		),
	)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	written, err := t.session.publish(t.id, st)
	if err != nil {
		commitFailures.Inc()
		t.logger.Error("commit failed", "revision", rev, "error", err)
		if rerr := t.relayer(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	elapsed := time.Since(start)
	commitsTotal.Inc()
	commitDuration.Observe(elapsed.Seconds())
	if trigger != "" {
		autoCommits.WithLabelValues(trigger).Inc()
	}
	t.logger.Info("revision committed",
		"revision", rev,
		"pages", written,
		"modifications", t.modCount,
		"trigger", trigger,
		"duration_ms", elapsed.Milliseconds(),
	)

	next, err := nextState(t.session.store, t.session.strategy, st.uber, st.root)
	if err != nil {
		err = ioError("prepare revision", err)
		t.logger.Error("prepare next revision failed", "revision", rev+1, "error", err)
		if rerr := t.relayer(); rerr != nil {
			// st is published; Commit refuses it until relayer succeeds.
			t.modCount, t.reverted = 0, false
			return errors.Join(err, rerr)
		}
		return err
	}
	t.setState(next, t.key)
	return nil
}

// Abort discards the pending modifications and moves the cursor to the
// document root. The transaction continues on the last committed revision.
func (t *WriteTxn) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTxnClosed
	}
	abortsTotal.Inc()
	t.logger.Debug("aborting", "revision", t.state.revision(), "modifications", t.modCount)
	return t.relayer()
}

// relayer replaces the state with a fresh one on the last committed
// revision.
func (t *WriteTxn) relayer() error {
	last := t.session.last.Load()
	st, err := t.session.stateOn(last, last.Revision)
	if err != nil {
		return err
	}
	t.setState(st, node.DocumentRootKey)
	return nil
}

// RevertTo discards the pending modifications and bases the next revision
// on the committed revision rev. History is not rewritten: the next commit
// appends a new revision whose content starts as a copy of rev. Node keys
// allocated after rev are not reused.
func (t *WriteTxn) RevertTo(rev int64) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, span := tracer.Start(context.Background(), "arbor.RevertTo",
		trace.WithAttributes(attribute.Int64("arbor.revision", rev)),
	)
	defer func() { endSpan(span, err) }()

	if t.closed {
		return ErrTxnClosed
	}
	last := t.session.last.Load()
	if rev < 0 || rev > last.Revision {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidRevision, rev, last.Revision)
	}
	lastRoot, err := loadRevisionRoot(t.session.store, last, last.Revision)
	if err != nil {
		return ioError("load revision root", err)
	}
	st, err := t.session.stateOn(last, rev)
	if err != nil {
		return err
	}
	st.root.MaxNodeKey = max(st.root.MaxNodeKey, lastRoot.MaxNodeKey)

	t.setState(st, node.DocumentRootKey)
	t.reverted = true
	t.logger.Info("reverted", "to", rev, "next", st.revision())
	return nil
}

// setState installs st and resets the modification count. The cursor
// stays on key if it is live in st, otherwise it moves to the document
// root.
func (t *WriteTxn) setState(st *writeState, key int64) {
	t.state = st
	t.src = st
	t.modCount = 0
	t.reverted = false
	t.key = node.DocumentRootKey
	if n, err := st.node(key); err == nil && n != nil {
		t.key = key
	}
}

// Close releases the writer permit. It fails with ErrUncommitted while
// modifications are pending. Closing twice is a no-op.
func (t *WriteTxn) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if t.pending() {
		t.mu.Unlock()
		return ErrUncommitted
	}
	t.closed = true
	t.mu.Unlock()

	t.release()
	return nil
}

// forceClose discards pending work and closes.
func (t *WriteTxn) forceClose() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if t.pending() {
		abortsTotal.Inc()
		t.logger.Warn("discarding uncommitted modifications",
			"revision", t.state.revision(),
			"modifications", t.modCount,
		)
	}
	t.closed = true
	t.mu.Unlock()

	t.release()
	return nil
}

func (t *WriteTxn) release() {
	t.stopTimer()
	t.session.releaseWriter(t.id)
	t.logger.Debug("write transaction closed")
}

// startTimer commits pending work every d until the transaction closes.
func (t *WriteTxn) startTimer(d time.Duration) {
	t.stop = make(chan struct{})
	t.timerDone.Add(1)
	go func() {
		defer t.timerDone.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.tick()
			}
		}
	}()
}

func (t *WriteTxn) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || !t.pending() {
		return
	}
	if err := t.commitLocked(triggerInterval); err != nil {
		t.logger.Error("interval commit failed", "error", err)
	}
}

func (t *WriteTxn) stopTimer() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.timerDone.Wait()
}

// syncWith checks this transaction against pages another writer is about
// to commit. A page modified by both is a conflict.
func (t *WriteTxn) syncWith(committed *writeState) error {
	if !t.mu.TryLock() {
		return errors.New("transaction busy")
	}
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	for pageKey := range committed.log {
		if t.state.touches(pageKey) {
			return fmt.Errorf("node page %d modified concurrently", pageKey)
		}
	}
	return nil
}
