package arbor

import (
	"fmt"
	"sync"

	"github.com/KilimcininKorOglu/arbor/internal/logging"
	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// WriteTxn extends the read cursor with mutations. A session has at most
// one open WriteTxn.
//
// Every mutation either applies completely or fails before the tree is
// touched. Only an ErrIO failure can leave partial changes behind, which
// Abort discards.
type WriteTxn struct {
	cursor
	id      uint64
	session *Session
	logger  logging.Logger

	state         *writeState
	nodeThreshold int
	modCount      int
	// reverted is set by RevertTo until the next commit.
	reverted bool

	stop      chan struct{}
	timerDone sync.WaitGroup
}

// splice records where a node was detached.
type splice struct {
	parent, left, right int64
}

// ID returns the transaction id.
func (t *WriteTxn) ID() uint64 {
	return t.id
}

// ModificationCount returns the number of mutations since the last commit,
// abort or revert.
func (t *WriteTxn) ModificationCount() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTxnClosed
	}
	return t.modCount, nil
}

// pending reports whether the state holds work that a commit would
// publish. A mutation that failed with ErrIO may have touched pages without
// being counted.
func (t *WriteTxn) pending() bool {
	return t.modCount > 0 || t.reverted || len(t.state.log) > 0
}

// mutate applies fn to the current node, counts the modification and
// commits if the node threshold is reached.
func (t *WriteTxn) mutate(fn func(cur *node.Node) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTxnClosed
	}
	cur, err := t.current()
	if err != nil {
		return err
	}
	if err := fn(cur); err != nil {
		return err
	}
	t.modCount++
	if t.nodeThreshold > 0 && t.modCount >= t.nodeThreshold {
		return t.commitLocked(triggerNodes)
	}
	return nil
}

func kindError(op string, k node.Kind) error {
	return fmt.Errorf("%w: %s on %s", ErrKindMismatch, op, k)
}

// InsertElementAsFirstChild inserts an element as the first child of the
// current element or document root and moves to it.
func (t *WriteTxn) InsertElementAsFirstChild(name string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindElement && cur.Kind != node.KindDocumentRoot {
			return kindError("insert element as first child", cur.Kind)
		}
		return t.insertElement(name, cur.Key, node.NullKey)
	})
}

// InsertElementAsRightSibling inserts an element after the current element
// or text and moves to it.
func (t *WriteTxn) InsertElementAsRightSibling(name string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindElement && cur.Kind != node.KindText {
			return kindError("insert element as right sibling", cur.Kind)
		}
		return t.insertElement(name, cur.ParentKey, cur.Key)
	})
}

// InsertTextAsFirstChild inserts a text as the first child of the current
// element or document root and moves to it. If the first child already is
// a text, value is prepended to it instead.
func (t *WriteTxn) InsertTextAsFirstChild(value string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindElement && cur.Kind != node.KindDocumentRoot {
			return kindError("insert text as first child", cur.Kind)
		}
		return t.insertText(value, cur.Key, node.NullKey, cur.FirstChildKey)
	})
}

// InsertTextAsRightSibling inserts a text after the current element and
// moves to it. If the right sibling already is a text, value is prepended
// to it instead.
func (t *WriteTxn) InsertTextAsRightSibling(value string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindElement {
			return kindError("insert text as right sibling", cur.Kind)
		}
		return t.insertText(value, cur.ParentKey, cur.Key, cur.RightSiblingKey)
	})
}

// InsertAttribute adds an attribute to the current element and moves to
// it.
func (t *WriteTxn) InsertAttribute(name, value string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindElement {
			return kindError("insert attribute", cur.Kind)
		}
		if name == "" {
			return ErrInvalidName
		}
		if err := t.checkAttributeName(cur, name, node.NullKey); err != nil {
			return err
		}
		nameKey, err := t.state.intern(name)
		if err != nil {
			return err
		}
		typeKey, err := t.state.intern(atomicType)
		if err != nil {
			return err
		}

		elementKey := cur.Key
		n, err := t.state.create(elementKey, node.KindAttribute)
		if err != nil {
			return err
		}
		n.NameKey = nameKey
		n.TypeKey = typeKey
		n.Value = []byte(value)
		t.session.hasher.Init(n)

		el, err := t.state.Writable(elementKey)
		if err != nil {
			return err
		}
		el.AttributeKeys = append(el.AttributeKeys, n.Key)
		if err := t.session.hasher.Added(t.state, elementKey, n.Hash); err != nil {
			return err
		}
		t.key = n.Key
		return nil
	})
}

// InsertNamespace binds prefix to uri on the current element and moves to
// the namespace node. The empty prefix declares the default namespace.
func (t *WriteTxn) InsertNamespace(uri, prefix string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindElement {
			return kindError("insert namespace", cur.Kind)
		}
		prefixKey, known, err := t.state.lookupName(prefix)
		if err != nil {
			return err
		}
		if prefix == "" {
			prefixKey, known = node.NullName, true
		}
		if known {
			for _, k := range cur.NamespaceKeys {
				ns, err := t.state.Node(k)
				if err != nil {
					return err
				}
				if ns.NameKey == prefixKey {
					return fmt.Errorf("%w: %q", ErrDuplicateNamespace, prefix)
				}
			}
		}
		if prefixKey, err = t.state.intern(prefix); err != nil {
			return err
		}
		uriKey, err := t.state.intern(uri)
		if err != nil {
			return err
		}

		elementKey := cur.Key
		n, err := t.state.create(elementKey, node.KindNamespace)
		if err != nil {
			return err
		}
		n.NameKey = prefixKey
		n.URIKey = uriKey
		t.session.hasher.Init(n)

		el, err := t.state.Writable(elementKey)
		if err != nil {
			return err
		}
		el.NamespaceKeys = append(el.NamespaceKeys, n.Key)
		if err := t.session.hasher.Added(t.state, elementKey, n.Hash); err != nil {
			return err
		}
		t.key = n.Key
		return nil
	})
}

// SetName renames the current element or attribute.
func (t *WriteTxn) SetName(name string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindElement && cur.Kind != node.KindAttribute {
			return kindError("set name", cur.Kind)
		}
		if name == "" {
			return ErrInvalidName
		}
		if cur.Kind == node.KindAttribute {
			el, err := t.state.Node(cur.ParentKey)
			if err != nil {
				return err
			}
			if err := t.checkAttributeName(el, name, cur.Key); err != nil {
				return err
			}
		}
		nameKey, err := t.state.intern(name)
		if err != nil {
			return err
		}
		return t.update(cur.Key, func(w *node.Node) { w.NameKey = nameKey })
	})
}

// SetValue replaces the value of the current text or attribute.
func (t *WriteTxn) SetValue(value string) error {
	return t.mutate(func(cur *node.Node) error {
		if cur.Kind != node.KindText && cur.Kind != node.KindAttribute {
			return kindError("set value", cur.Kind)
		}
		return t.update(cur.Key, func(w *node.Node) { w.Value = []byte(value) })
	})
}

// Remove deletes the current node. An element or text is removed with its
// whole subtree and the cursor moves to the right sibling, else the left
// sibling, else the parent. Texts that become adjacent are merged. An
// attribute or namespace is detached from its element and the cursor
// moves to the element.
func (t *WriteTxn) Remove() error {
	return t.mutate(func(cur *node.Node) error {
		switch cur.Kind {
		case node.KindDocumentRoot:
			return ErrRootRemoval
		case node.KindAttribute, node.KindNamespace:
			return t.removeDependent(cur)
		case node.KindElement, node.KindText:
			return t.removeStructural(cur)
		default:
			return kindError("remove", cur.Kind)
		}
	})
}

// MoveSubtreeToFirstChild moves the subtree rooted at key to be the first
// child of the current node. The cursor ends on the moved node, or on the
// text it was merged into.
func (t *WriteTxn) MoveSubtreeToFirstChild(key int64) error {
	return t.mutate(func(cur *node.Node) error {
		return t.moveSubtree(cur, key, true)
	})
}

// MoveSubtreeToRightSibling moves the subtree rooted at key to be the
// right sibling of the current node.
func (t *WriteTxn) MoveSubtreeToRightSibling(key int64) error {
	return t.mutate(func(cur *node.Node) error {
		return t.moveSubtree(cur, key, false)
	})
}

func (t *WriteTxn) insertElement(name string, parentKey, leftKey int64) error {
	if name == "" {
		return ErrInvalidName
	}
	nameKey, err := t.state.intern(name)
	if err != nil {
		return err
	}
	typeKey, err := t.state.intern(elementType)
	if err != nil {
		return err
	}
	n, err := t.state.create(parentKey, node.KindElement)
	if err != nil {
		return err
	}
	n.NameKey = nameKey
	n.TypeKey = typeKey
	t.session.hasher.Init(n)
	if err := t.link(n, parentKey, leftKey); err != nil {
		return err
	}
	t.key = n.Key
	return nil
}

// insertText links a new text at (parentKey, leftKey), or prepends value to
// the text nextKey already found there.
func (t *WriteTxn) insertText(value string, parentKey, leftKey, nextKey int64) error {
	next, err := t.state.node(nextKey)
	if err != nil {
		return ioError("load node", err)
	}
	if next != nil && next.Kind == node.KindText {
		if err := t.update(nextKey, func(w *node.Node) {
			w.Value = append([]byte(value), w.Value...)
		}); err != nil {
			return err
		}
		t.key = nextKey
		return nil
	}

	typeKey, err := t.state.intern(atomicType)
	if err != nil {
		return err
	}
	n, err := t.state.create(parentKey, node.KindText)
	if err != nil {
		return err
	}
	n.TypeKey = typeKey
	n.Value = []byte(value)
	t.session.hasher.Init(n)
	if err := t.link(n, parentKey, leftKey); err != nil {
		return err
	}
	t.key = n.Key
	return nil
}

// checkAttributeName fails if el has an attribute called name other than
// self.
func (t *WriteTxn) checkAttributeName(el *node.Node, name string, self int64) error {
	nameKey, known, err := t.state.lookupName(name)
	if err != nil || !known {
		return err
	}
	for _, k := range el.AttributeKeys {
		if k == self {
			continue
		}
		a, err := t.state.Node(k)
		if err != nil {
			return err
		}
		if a.NameKey == nameKey {
			return fmt.Errorf("%w: %q", ErrDuplicateAttribute, name)
		}
	}
	return nil
}

// update changes the own content of key and maintains the hashes.
func (t *WriteTxn) update(key int64, change func(w *node.Node)) error {
	w, err := t.state.Writable(key)
	if err != nil {
		return err
	}
	oldOwn := w.OwnHash()
	change(w)
	return t.session.hasher.Updated(t.state, w, oldOwn)
}

// link attaches the detached structural node n under parentKey after
// leftKey, or as first child if leftKey is NullKey.
func (t *WriteTxn) link(n *node.Node, parentKey, leftKey int64) error {
	st := t.state
	p, err := st.Writable(parentKey)
	if err != nil {
		return err
	}
	rightKey := p.FirstChildKey
	if leftKey == node.NullKey {
		p.FirstChildKey = n.Key
	} else {
		left, err := st.Writable(leftKey)
		if err != nil {
			return err
		}
		rightKey = left.RightSiblingKey
		left.RightSiblingKey = n.Key
	}
	if rightKey != node.NullKey {
		right, err := st.Writable(rightKey)
		if err != nil {
			return err
		}
		right.LeftSiblingKey = n.Key
	}
	p.ChildCount++

	n.ParentKey = parentKey
	n.LeftSiblingKey = leftKey
	n.RightSiblingKey = rightKey
	return t.session.hasher.Added(st, parentKey, n.Hash)
}

// unlink detaches the structural node key from its parent and siblings.
// The node keeps its subtree.
func (t *WriteTxn) unlink(key int64) (splice, error) {
	st := t.state
	n, err := st.Writable(key)
	if err != nil {
		return splice{}, err
	}
	sp := splice{parent: n.ParentKey, left: n.LeftSiblingKey, right: n.RightSiblingKey}
	hash := n.Hash
	n.LeftSiblingKey = node.NullKey
	n.RightSiblingKey = node.NullKey

	p, err := st.Writable(sp.parent)
	if err != nil {
		return sp, err
	}
	if sp.left != node.NullKey {
		left, err := st.Writable(sp.left)
		if err != nil {
			return sp, err
		}
		left.RightSiblingKey = sp.right
	} else {
		p.FirstChildKey = sp.right
	}
	if sp.right != node.NullKey {
		right, err := st.Writable(sp.right)
		if err != nil {
			return sp, err
		}
		right.LeftSiblingKey = sp.left
	}
	p.ChildCount--
	return sp, t.session.hasher.Removed(st, sp.parent, hash)
}

// mergeTexts appends the adjacent texts leftKey and rightKey if both are
// texts and returns whether it did. The right text is removed.
func (t *WriteTxn) mergeTexts(leftKey, rightKey int64) (bool, error) {
	if leftKey == node.NullKey || rightKey == node.NullKey {
		return false, nil
	}
	left, err := t.state.node(leftKey)
	if err != nil {
		return false, ioError("load node", err)
	}
	right, err := t.state.node(rightKey)
	if err != nil {
		return false, ioError("load node", err)
	}
	if left == nil || right == nil ||
		left.Kind != node.KindText || right.Kind != node.KindText ||
		left.RightSiblingKey != rightKey {
		return false, nil
	}

	value := right.Value
	sp, err := t.unlink(rightKey)
	if err != nil {
		return false, err
	}
	if err := t.state.tombstone(rightKey, sp.parent); err != nil {
		return false, err
	}
	return true, t.update(leftKey, func(w *node.Node) {
		w.Value = append(w.Value, value...)
	})
}

func (t *WriteTxn) removeDependent(cur *node.Node) error {
	parentKey, key, hash := cur.ParentKey, cur.Key, cur.Hash
	el, err := t.state.Writable(parentKey)
	if err != nil {
		return err
	}
	if cur.Kind == node.KindAttribute {
		el.RemoveAttribute(key)
	} else {
		el.RemoveNamespace(key)
	}
	if err := t.state.tombstone(key, parentKey); err != nil {
		return err
	}
	if err := t.session.hasher.Removed(t.state, parentKey, hash); err != nil {
		return err
	}
	t.key = parentKey
	return nil
}

func (t *WriteTxn) removeStructural(cur *node.Node) error {
	key := cur.Key
	if err := t.tombstoneDescendants(cur); err != nil {
		return err
	}
	sp, err := t.unlink(key)
	if err != nil {
		return err
	}
	if err := t.state.tombstone(key, sp.parent); err != nil {
		return err
	}
	merged, err := t.mergeTexts(sp.left, sp.right)
	if err != nil {
		return err
	}

	switch {
	case sp.right != node.NullKey && !merged:
		t.key = sp.right
	case sp.left != node.NullKey:
		t.key = sp.left
	default:
		t.key = sp.parent
	}
	return nil
}

// tombstoneDescendants removes everything below n, deepest first.
func (t *WriteTxn) tombstoneDescendants(n *node.Node) error {
	for _, keys := range [][]int64{n.AttributeKeys, n.NamespaceKeys} {
		for _, k := range keys {
			if err := t.state.tombstone(k, n.Key); err != nil {
				return err
			}
		}
	}
	for k := n.FirstChildKey; k != node.NullKey; {
		child, err := t.state.Node(k)
		if err != nil {
			return err
		}
		next := child.RightSiblingKey
		if err := t.tombstoneDescendants(child); err != nil {
			return err
		}
		if err := t.state.tombstone(k, n.Key); err != nil {
			return err
		}
		k = next
	}
	return nil
}

func (t *WriteTxn) moveSubtree(cur *node.Node, key int64, asFirstChild bool) error {
	st := t.state
	moved, err := st.node(key)
	if err != nil {
		return ioError("load node", err)
	}
	if moved == nil {
		return fmt.Errorf("%w: node %d does not exist", ErrInvalidMove, key)
	}
	if moved.Kind != node.KindElement && moved.Kind != node.KindText {
		return fmt.Errorf("%w: cannot move %s", ErrInvalidMove, moved.Kind)
	}

	switch {
	case asFirstChild:
		if cur.Kind != node.KindElement && cur.Kind != node.KindDocumentRoot {
			return kindError("move subtree to first child", cur.Kind)
		}
	case moved.Kind == node.KindElement:
		if cur.Kind != node.KindElement && cur.Kind != node.KindText {
			return kindError("move element to right sibling", cur.Kind)
		}
	default:
		if cur.Kind != node.KindElement {
			return kindError("move text to right sibling", cur.Kind)
		}
	}

	for k := cur.Key; k != node.NullKey; {
		if k == key {
			return fmt.Errorf("%w: target is inside the moved subtree", ErrInvalidMove)
		}
		a, err := st.Node(k)
		if err != nil {
			return err
		}
		k = a.ParentKey
	}

	parentKey, leftKey := cur.Key, node.NullKey
	if !asFirstChild {
		parentKey, leftKey = cur.ParentKey, cur.Key
	}
	isText := moved.Kind == node.KindText

	old, err := t.unlink(key)
	if err != nil {
		return err
	}
	n, err := st.Writable(key)
	if err != nil {
		return err
	}
	if err := t.link(n, parentKey, leftKey); err != nil {
		return err
	}
	if _, err := t.mergeTexts(old.left, old.right); err != nil {
		return err
	}

	final := key
	if isText {
		n, err := st.Node(key)
		if err != nil {
			return err
		}
		if _, err := t.mergeTexts(key, n.RightSiblingKey); err != nil {
			return err
		}
		if n, err = st.Node(key); err != nil {
			return err
		}
		left := n.LeftSiblingKey
		merged, err := t.mergeTexts(left, key)
		if err != nil {
			return err
		}
		if merged {
			final = left
		}
	}
	t.key = final
	return nil
}
