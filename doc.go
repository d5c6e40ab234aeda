// Package arbor is an embedded, versioned tree store.
//
// Every commit produces a new immutable revision of a hierarchical
// document, and every earlier revision stays readable.
//
// # Storage and sessions
//
// A Storage is the process-wide handle for one location on disk. At most
// one handle exists per location:
//
//	st, err := arbor.Create("/var/lib/arbor/books", arbor.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer arbor.Close(st.Location())
//
//	sess, err := st.Session()
//
// A Session hands out transactions. Any number of read transactions (up to
// session.maxReaders) may be open at once, but only one write transaction.
//
// # Writing
//
//	wtx, err := sess.BeginWriteTxn(0, 0)
//	if err != nil {
//	    return err
//	}
//	defer wtx.Close()
//
//	wtx.InsertElementAsFirstChild("doc")
//	wtx.InsertElementAsFirstChild("a")
//	wtx.InsertTextAsFirstChild("x")
//	if err := wtx.Commit(); err != nil {
//	    return err
//	}
//
// The write transaction stays usable after Commit and continues at the
// next revision. A positive node threshold commits transparently once that
// many modifications are pending; a positive time threshold commits
// pending work periodically.
//
// # Reading
//
// A read transaction is a cursor pinned to one committed revision. It never
// observes later commits:
//
//	rtx, err := sess.BeginReadTxnAt(ctx, 1)
//	if err != nil {
//	    return err
//	}
//	defer rtx.Close()
//
//	rtx.MoveToFirstChild()
//	name, _ := rtx.Name()
//
// # Errors
//
// Every error matches one of ErrUsage, ErrIO, ErrConcurrency or ErrSync
// with errors.Is.
package arbor
