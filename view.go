package arbor

import (
	"fmt"
	"sync"

	"github.com/KilimcininKorOglu/arbor/internal/node"
	"github.com/KilimcininKorOglu/arbor/internal/page"
	"github.com/KilimcininKorOglu/arbor/internal/revisioning"
	"github.com/KilimcininKorOglu/arbor/internal/storage"
)

// viewCachePages is the number of reconstructed node pages a view keeps.
const viewCachePages = 16

// nodeSource resolves node keys for a cursor.
type nodeSource interface {
	// node returns the live node under key, or nil if the key is unused or
	// tombstoned.
	node(key int64) (*node.Node, error)
	// name resolves an interned key.
	name(key int32) (string, error)
	revision() int64
	maxNodeKey() int64
}

// revisionView is a read-only view of one committed revision.
type revisionView struct {
	loader page.Loader
	root   *page.RevisionRootPage

	mu    sync.Mutex
	pages *storage.LRUCache
	names *page.NamePage
}

// loadRevisionRoot returns the committed root page of rev.
func loadRevisionRoot(l page.Loader, uber *page.UberPage, rev int64) (*page.RevisionRootPage, error) {
	leaf, err := page.LookupLeaf(l, uber.RevisionRef, rev)
	if err != nil {
		return nil, err
	}
	p, err := page.Deref(l, &leaf)
	if err != nil {
		return nil, err
	}
	root, ok := p.(*page.RevisionRootPage)
	if !ok {
		return nil, fmt.Errorf("%w: no revision root for revision %d", page.ErrCorruptPage, rev)
	}
	return root, nil
}

func newRevisionView(l page.Loader, root *page.RevisionRootPage) *revisionView {
	return &revisionView{
		loader: l,
		root:   root,
		pages:  storage.NewLRUCache(viewCachePages),
	}
}

func (v *revisionView) revision() int64   { return v.root.Revision }
func (v *revisionView) maxNodeKey() int64 { return v.root.MaxNodeKey }

func (v *revisionView) node(key int64) (*node.Node, error) {
	if key < 0 || key > v.root.MaxNodeKey {
		return nil, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	pageKey := page.NodePageKey(key)
	var np *page.NodePage
	if cached, ok := v.pages.Get(pageKey); ok {
		np = cached.(*page.NodePage)
	} else {
		var err error
		np, err = loadNodePage(v.loader, v.root.NodeRef, pageKey)
		if err != nil {
			return nil, err
		}
		if np == nil {
			return nil, nil
		}
		v.pages.Put(pageKey, np)
	}
	return liveNode(np.Node(page.NodeOffset(key))), nil
}

// Node implements hashing.Reader.
func (v *revisionView) Node(key int64) (*node.Node, error) {
	return mustNode(v, key)
}

func (v *revisionView) name(key int32) (string, error) {
	if key == node.NullName {
		return "", nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.names == nil {
		names, err := loadNamePage(v.loader, &v.root.NameRef)
		if err != nil {
			return "", ioError("load names", err)
		}
		v.names = names
	}
	return v.names.Name(key), nil
}

// loadNodePage reconstructs the node page pageKey below the indirect tree
// rooted at ref. It returns nil if the page was never written.
func loadNodePage(l page.Loader, ref page.Reference, pageKey int64) (*page.NodePage, error) {
	leaf, err := page.LookupLeaf(l, ref, pageKey)
	if err != nil {
		return nil, err
	}
	if leaf.IsDirty() {
		np, ok := leaf.Page.(*page.NodePage)
		if !ok {
			return nil, fmt.Errorf("%w: want %s, got %s", page.ErrUnexpectedPage, page.KindNode, leaf.Page.Kind())
		}
		return np, nil
	}
	if !leaf.IsPersisted() {
		return nil, nil
	}
	return revisioning.Load(l, leaf.Key)
}

// loadNamePage returns the name dictionary behind ref, or an empty one.
func loadNamePage(l page.Loader, ref *page.Reference) (*page.NamePage, error) {
	p, err := page.Deref(l, ref)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return page.NewNamePage(), nil
	}
	names, ok := p.(*page.NamePage)
	if !ok {
		return nil, fmt.Errorf("%w: want %s, got %s", page.ErrUnexpectedPage, page.KindName, p.Kind())
	}
	return names, nil
}

func liveNode(n *node.Node) *node.Node {
	if n == nil || n.Kind == node.KindTombstone {
		return nil
	}
	return n
}

// mustNode resolves a key that a live node links to.
func mustNode(src nodeSource, key int64) (*node.Node, error) {
	n, err := src.node(key)
	if err != nil {
		return nil, ioError("load node", err)
	}
	if n == nil {
		return nil, fmt.Errorf("%w: dangling node key %d", ErrIO, key)
	}
	return n, nil
}
