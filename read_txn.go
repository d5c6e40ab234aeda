package arbor

// ReadTxn is a cursor over one committed revision. Its view never changes,
// whatever is committed after it was opened.
//
// A ReadTxn is safe for concurrent use, but its cursor position is shared.
type ReadTxn struct {
	cursor
	id      uint64
	session *Session
}

// ID returns the transaction id.
func (t *ReadTxn) ID() uint64 {
	return t.id
}

// Close releases the reader permit. Closing twice is a no-op.
func (t *ReadTxn) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *ReadTxn) closeLocked() {
	if t.closed {
		return
	}
	t.closed = true
	t.session.releaseReader(t.id)
}

func (t *ReadTxn) forceClose() error {
	return t.Close()
}
