package arbor

import (
	"fmt"

	"github.com/KilimcininKorOglu/arbor/internal/node"
	"github.com/KilimcininKorOglu/arbor/internal/page"
	"github.com/KilimcininKorOglu/arbor/internal/revisioning"
)

// writeState is the working set of a write transaction: the revision being
// built on top of a committed one.
//
// Every page reachable from uber through a dirty reference is owned by the
// state. Everything else belongs to committed revisions and is never
// modified.
type writeState struct {
	loader   page.Loader
	strategy revisioning.Strategy

	uber *page.UberPage
	root *page.RevisionRootPage

	names      *page.NamePage
	namesOwned bool

	// log holds a container for every node page touched so far.
	log map[int64]*revisioning.Container
	// clean caches pages read but not modified.
	clean map[int64]*page.NodePage
}

// nextState prepares the write state on top of a committed revision.
var nextState = newWriteState

// newWriteState prepares revision committed.Revision+1 starting from a
// copy of base.
func newWriteState(l page.Loader, s revisioning.Strategy, committed *page.UberPage, base *page.RevisionRootPage) (*writeState, error) {
	rev := committed.Revision + 1
	uber := committed.Clone()
	uber.Revision = rev
	leaf, err := page.PrepareLeaf(l, &uber.RevisionRef, rev, rev)
	if err != nil {
		return nil, err
	}
	root := base.Clone(rev)
	leaf.SetPage(root)

	return &writeState{
		loader:   l,
		strategy: s,
		uber:     uber,
		root:     root,
		log:      make(map[int64]*revisioning.Container),
		clean:    make(map[int64]*page.NodePage),
	}, nil
}

func (w *writeState) revision() int64   { return w.root.Revision }
func (w *writeState) maxNodeKey() int64 { return w.root.MaxNodeKey }

// lookup returns the current record under key, tombstones included.
func (w *writeState) lookup(key int64) (*node.Node, error) {
	if key < 0 || key > w.root.MaxNodeKey {
		return nil, nil
	}
	pageKey := page.NodePageKey(key)
	offset := page.NodeOffset(key)
	if c, ok := w.log[pageKey]; ok {
		return c.Node(offset), nil
	}
	np, ok := w.clean[pageKey]
	if !ok {
		var err error
		np, err = loadNodePage(w.loader, w.root.NodeRef, pageKey)
		if err != nil {
			return nil, err
		}
		if np == nil {
			return nil, nil
		}
		w.clean[pageKey] = np
	}
	return np.Node(offset), nil
}

func (w *writeState) node(key int64) (*node.Node, error) {
	n, err := w.lookup(key)
	if err != nil {
		return nil, err
	}
	return liveNode(n), nil
}

// Node implements hashing.Reader.
func (w *writeState) Node(key int64) (*node.Node, error) {
	return mustNode(w, key)
}

// Writable implements hashing.Tree.
func (w *writeState) Writable(key int64) (*node.Node, error) {
	c, err := w.container(page.NodePageKey(key))
	if err != nil {
		return nil, err
	}
	n := liveNode(c.Writable(page.NodeOffset(key)))
	if n == nil {
		return nil, fmt.Errorf("%w: dangling node key %d", ErrIO, key)
	}
	return n, nil
}

// container returns the container of pageKey, preparing the leaf path on
// first use.
func (w *writeState) container(pageKey int64) (*revisioning.Container, error) {
	if c, ok := w.log[pageKey]; ok {
		return c, nil
	}
	leaf, err := page.PrepareLeaf(w.loader, &w.root.NodeRef, pageKey, w.root.Revision)
	if err != nil {
		return nil, ioError("prepare node page", err)
	}
	c, err := revisioning.NewContainer(w.loader, w.strategy, *leaf, pageKey, w.root.Revision)
	if err != nil {
		return nil, ioError("load node page", err)
	}
	leaf.SetPage(c.Modified)
	w.log[pageKey] = c
	delete(w.clean, pageKey)
	return c, nil
}

// create allocates the next node key and stores a fresh node under it.
func (w *writeState) create(parentKey int64, kind node.Kind) (*node.Node, error) {
	key := w.root.MaxNodeKey + 1
	c, err := w.container(page.NodePageKey(key))
	if err != nil {
		return nil, err
	}
	w.root.MaxNodeKey = key
	n := node.New(key, parentKey, kind)
	c.Put(n)
	return n, nil
}

// tombstone replaces the record under key.
func (w *writeState) tombstone(key, parentKey int64) error {
	c, err := w.container(page.NodePageKey(key))
	if err != nil {
		return err
	}
	c.Put(node.NewTombstone(key, parentKey))
	return nil
}

func (w *writeState) loadNames() error {
	if w.names != nil {
		return nil
	}
	names, err := loadNamePage(w.loader, &w.root.NameRef)
	if err != nil {
		return ioError("load names", err)
	}
	w.names = names
	return nil
}

func (w *writeState) name(key int32) (string, error) {
	if key == node.NullName {
		return "", nil
	}
	if err := w.loadNames(); err != nil {
		return "", err
	}
	return w.names.Name(key), nil
}

// lookupName returns the key of name without interning it.
func (w *writeState) lookupName(name string) (int32, bool, error) {
	if err := w.loadNames(); err != nil {
		return node.NullName, false, err
	}
	key, ok := w.names.Lookup(name)
	return key, ok, nil
}

// intern returns the key of name, copying the dictionary on the first new
// name.
func (w *writeState) intern(name string) (int32, error) {
	if name == "" {
		return node.NullName, nil
	}
	key, ok, err := w.lookupName(name)
	if err != nil || ok {
		return key, err
	}
	if !w.namesOwned {
		w.names = w.names.Clone()
		w.root.NameRef.SetPage(w.names)
		w.namesOwned = true
	}
	return w.names.Intern(name), nil
}

// touches reports whether the state has a container for pageKey.
func (w *writeState) touches(pageKey int64) bool {
	_, ok := w.log[pageKey]
	return ok
}
