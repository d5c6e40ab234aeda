package arbor

import (
	"sync"

	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// cursor is the navigation state shared by read and write transactions.
// Every exported method takes mu.
type cursor struct {
	mu     sync.Mutex
	closed bool
	src    nodeSource
	key    int64
}

// current returns the node under the cursor.
func (c *cursor) current() (*node.Node, error) {
	return mustNode(c.src, c.key)
}

// inspect runs fn on the current node.
func inspect[T any](c *cursor, fn func(n *node.Node) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.closed {
		return zero, ErrTxnClosed
	}
	n, err := c.current()
	if err != nil {
		return zero, err
	}
	return fn(n)
}

// move repositions the cursor to the key chosen by next. A NullKey target,
// or one that is not a live node, leaves the cursor in place.
func (c *cursor) move(next func(n *node.Node) int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrTxnClosed
	}
	n, err := c.current()
	if err != nil {
		return false, err
	}
	return c.moveTo(next(n))
}

func (c *cursor) moveTo(key int64) (bool, error) {
	if key == node.NullKey {
		return false, nil
	}
	n, err := c.src.node(key)
	if err != nil {
		return false, ioError("load node", err)
	}
	if n == nil {
		return false, nil
	}
	c.key = key
	return true, nil
}

// MoveTo moves to the node with key. It returns false and stays in place
// if key is not a live node of this revision.
func (c *cursor) MoveTo(key int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrTxnClosed
	}
	return c.moveTo(key)
}

// MoveToDocumentRoot moves to the document root.
func (c *cursor) MoveToDocumentRoot() (bool, error) {
	return c.MoveTo(node.DocumentRootKey)
}

// MoveToParent moves to the parent of the current node.
func (c *cursor) MoveToParent() (bool, error) {
	return c.move(func(n *node.Node) int64 { return n.ParentKey })
}

// MoveToFirstChild moves to the first child of the current node.
func (c *cursor) MoveToFirstChild() (bool, error) {
	return c.move(func(n *node.Node) int64 {
		if !n.IsStructural() {
			return node.NullKey
		}
		return n.FirstChildKey
	})
}

// MoveToLeftSibling moves to the left sibling of the current node.
func (c *cursor) MoveToLeftSibling() (bool, error) {
	return c.move(func(n *node.Node) int64 {
		if !n.IsStructural() {
			return node.NullKey
		}
		return n.LeftSiblingKey
	})
}

// MoveToRightSibling moves to the right sibling of the current node.
func (c *cursor) MoveToRightSibling() (bool, error) {
	return c.move(func(n *node.Node) int64 {
		if !n.IsStructural() {
			return node.NullKey
		}
		return n.RightSiblingKey
	})
}

// MoveToAttribute moves from an element to its attribute at index.
func (c *cursor) MoveToAttribute(index int) (bool, error) {
	return c.move(func(n *node.Node) int64 {
		if n.Kind != node.KindElement || index < 0 || index >= len(n.AttributeKeys) {
			return node.NullKey
		}
		return n.AttributeKeys[index]
	})
}

// MoveToNamespace moves from an element to its namespace at index.
func (c *cursor) MoveToNamespace(index int) (bool, error) {
	return c.move(func(n *node.Node) int64 {
		if n.Kind != node.KindElement || index < 0 || index >= len(n.NamespaceKeys) {
			return node.NullKey
		}
		return n.NamespaceKeys[index]
	})
}

// NodeKey returns the key of the current node.
func (c *cursor) NodeKey() (int64, error) {
	return inspect(c, func(n *node.Node) (int64, error) { return n.Key, nil })
}

// Kind returns the kind of the current node.
func (c *cursor) Kind() (Kind, error) {
	return inspect(c, func(n *node.Node) (Kind, error) { return n.Kind, nil })
}

// ParentKey returns the parent key of the current node.
func (c *cursor) ParentKey() (int64, error) {
	return inspect(c, func(n *node.Node) (int64, error) { return n.ParentKey, nil })
}

// FirstChildKey returns the first child key, or NullKey.
func (c *cursor) FirstChildKey() (int64, error) {
	return inspect(c, func(n *node.Node) (int64, error) { return n.FirstChildKey, nil })
}

// LeftSiblingKey returns the left sibling key, or NullKey.
func (c *cursor) LeftSiblingKey() (int64, error) {
	return inspect(c, func(n *node.Node) (int64, error) { return n.LeftSiblingKey, nil })
}

// RightSiblingKey returns the right sibling key, or NullKey.
func (c *cursor) RightSiblingKey() (int64, error) {
	return inspect(c, func(n *node.Node) (int64, error) { return n.RightSiblingKey, nil })
}

// ChildCount returns the number of children.
func (c *cursor) ChildCount() (int64, error) {
	return inspect(c, func(n *node.Node) (int64, error) { return n.ChildCount, nil })
}

// AttributeCount returns the number of attributes.
func (c *cursor) AttributeCount() (int, error) {
	return inspect(c, func(n *node.Node) (int, error) { return n.AttributeCount(), nil })
}

// NamespaceCount returns the number of namespaces.
func (c *cursor) NamespaceCount() (int, error) {
	return inspect(c, func(n *node.Node) (int, error) { return n.NamespaceCount(), nil })
}

// Hash returns the stored hash of the current node.
func (c *cursor) Hash() (uint64, error) {
	return inspect(c, func(n *node.Node) (uint64, error) { return n.Hash, nil })
}

// Name returns the name of an element or attribute, or the prefix of a
// namespace. Other kinds have no name and return "".
func (c *cursor) Name() (string, error) {
	return inspect(c, func(n *node.Node) (string, error) {
		switch n.Kind {
		case node.KindElement, node.KindAttribute, node.KindNamespace:
			return c.src.name(n.NameKey)
		default:
			return "", nil
		}
	})
}

// URI returns the namespace URI of an element, attribute or namespace.
func (c *cursor) URI() (string, error) {
	return inspect(c, func(n *node.Node) (string, error) {
		switch n.Kind {
		case node.KindElement, node.KindAttribute, node.KindNamespace:
			return c.src.name(n.URIKey)
		default:
			return "", nil
		}
	})
}

// Type returns the type name of an element, text or attribute.
func (c *cursor) Type() (string, error) {
	return inspect(c, func(n *node.Node) (string, error) {
		switch n.Kind {
		case node.KindElement, node.KindText, node.KindAttribute:
			return c.src.name(n.TypeKey)
		default:
			return "", nil
		}
	})
}

// Value returns the value of a text or attribute node.
func (c *cursor) Value() (string, error) {
	return inspect(c, func(n *node.Node) (string, error) {
		switch n.Kind {
		case node.KindText, node.KindAttribute:
			return string(n.Value), nil
		default:
			return "", nil
		}
	})
}

// Revision returns the revision the cursor reads.
func (c *cursor) Revision() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrTxnClosed
	}
	return c.src.revision(), nil
}

// MaxNodeKey returns the largest node key allocated in the revision.
func (c *cursor) MaxNodeKey() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrTxnClosed
	}
	return c.src.maxNodeKey(), nil
}

// NodeInfo is a snapshot of one node, passed to Descendants callbacks.
type NodeInfo struct {
	Key       int64
	ParentKey int64
	Kind      Kind
	Depth     int
	Name      string
	Value     string
	Hash      uint64
}

// Descendants walks the subtree of the current node in document order,
// the node itself first. An element's namespaces and attributes are
// visited before its children. The cursor does not move. A non-nil error
// from fn stops the walk and is returned.
func (c *cursor) Descendants(fn func(NodeInfo) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrTxnClosed
	}
	n, err := c.current()
	if err != nil {
		return err
	}
	return c.walk(n, 0, fn)
}

func (c *cursor) walk(n *node.Node, depth int, fn func(NodeInfo) error) error {
	info, err := c.info(n, depth)
	if err != nil {
		return err
	}
	if err := fn(info); err != nil {
		return err
	}
	if n.Kind == node.KindElement {
		for _, keys := range [][]int64{n.NamespaceKeys, n.AttributeKeys} {
			for _, k := range keys {
				dep, err := mustNode(c.src, k)
				if err != nil {
					return err
				}
				if err := c.walk(dep, depth+1, fn); err != nil {
					return err
				}
			}
		}
	}
	if !n.IsStructural() {
		return nil
	}
	for k := n.FirstChildKey; k != node.NullKey; {
		child, err := mustNode(c.src, k)
		if err != nil {
			return err
		}
		if err := c.walk(child, depth+1, fn); err != nil {
			return err
		}
		k = child.RightSiblingKey
	}
	return nil
}

func (c *cursor) info(n *node.Node, depth int) (NodeInfo, error) {
	info := NodeInfo{
		Key:       n.Key,
		ParentKey: n.ParentKey,
		Kind:      n.Kind,
		Depth:     depth,
		Hash:      n.Hash,
	}
	switch n.Kind {
	case node.KindElement, node.KindAttribute, node.KindNamespace:
		name, err := c.src.name(n.NameKey)
		if err != nil {
			return info, err
		}
		info.Name = name
	}
	switch n.Kind {
	case node.KindText, node.KindAttribute:
		info.Value = string(n.Value)
	case node.KindNamespace:
		uri, err := c.src.name(n.URIKey)
		if err != nil {
			return info, err
		}
		info.Value = uri
	}
	return info, nil
}
