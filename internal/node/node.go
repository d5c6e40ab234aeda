// Package node defines the node record stored in arbor node pages.
package node

import (
	"slices"
)

// NullKey marks an absent node key (no parent, no sibling, no child).
const NullKey int64 = -1

// DocumentRootKey is the key of the document root in every revision.
const DocumentRootKey int64 = 0

// NullName marks an absent interned name.
const NullName int32 = -1

// Kind identifies the variant of a node.
type Kind uint8

const (
	// KindUnknown is the zero value and never stored.
	KindUnknown Kind = iota
	// KindDocumentRoot is the single root of every revision.
	KindDocumentRoot
	// KindElement is a named structural node.
	KindElement
	// KindText holds character data.
	KindText
	// KindAttribute is a name/value pair owned by an element.
	KindAttribute
	// KindNamespace is a prefix/URI binding owned by an element.
	KindNamespace
	// KindTombstone marks a removed key.
	KindTombstone
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindDocumentRoot:
		return "document-root"
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindAttribute:
		return "attribute"
	case KindNamespace:
		return "namespace"
	case KindTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// IsStructural reports whether nodes of this kind take part in the
// child/sibling structure.
func (k Kind) IsStructural() bool {
	return k == KindDocumentRoot || k == KindElement || k == KindText
}

// Node is a single tree node. Which fields are meaningful depends on Kind:
//
//	DocumentRoot: structural links, Hash
//	Element:      structural links, names, AttributeKeys, NamespaceKeys
//	Text:         sibling links, Value, TypeKey
//	Attribute:    NameKey, URIKey, TypeKey, Value
//	Namespace:    NameKey (prefix), URIKey
//	Tombstone:    Key, ParentKey
//
// Nodes reachable from a committed page are immutable. Writers work on a
// Clone.
type Node struct {
	Key       int64
	ParentKey int64
	Kind      Kind
	Hash      uint64

	FirstChildKey   int64
	LeftSiblingKey  int64
	RightSiblingKey int64
	ChildCount      int64

	NameKey int32
	URIKey  int32
	TypeKey int32

	AttributeKeys []int64
	NamespaceKeys []int64

	Value []byte
}

// New returns a node of the given kind with every link set to NullKey.
func New(key, parentKey int64, kind Kind) *Node {
	return &Node{
		Key:             key,
		ParentKey:       parentKey,
		Kind:            kind,
		FirstChildKey:   NullKey,
		LeftSiblingKey:  NullKey,
		RightSiblingKey: NullKey,
		NameKey:         NullName,
		URIKey:          NullName,
		TypeKey:         NullName,
	}
}

// NewDocumentRoot returns the document root node.
func NewDocumentRoot() *Node {
	return New(DocumentRootKey, NullKey, KindDocumentRoot)
}

// NewTombstone returns a tombstone for the given key.
func NewTombstone(key, parentKey int64) *Node {
	return New(key, parentKey, KindTombstone)
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.AttributeKeys = slices.Clone(n.AttributeKeys)
	c.NamespaceKeys = slices.Clone(n.NamespaceKeys)
	c.Value = slices.Clone(n.Value)
	return &c
}

// IsStructural reports whether the node participates in child/sibling links.
func (n *Node) IsStructural() bool {
	return n.Kind.IsStructural()
}

// HasFirstChild reports whether the node has at least one child.
func (n *Node) HasFirstChild() bool {
	return n.FirstChildKey != NullKey
}

// HasLeftSibling reports whether the node has a left sibling.
func (n *Node) HasLeftSibling() bool {
	return n.LeftSiblingKey != NullKey
}

// HasRightSibling reports whether the node has a right sibling.
func (n *Node) HasRightSibling() bool {
	return n.RightSiblingKey != NullKey
}

// AttributeCount returns the number of attributes of an element.
func (n *Node) AttributeCount() int {
	return len(n.AttributeKeys)
}

// NamespaceCount returns the number of namespaces of an element.
func (n *Node) NamespaceCount() int {
	return len(n.NamespaceKeys)
}

// RemoveAttribute drops key from the attribute list. It returns false if
// the key was not present.
func (n *Node) RemoveAttribute(key int64) bool {
	i := slices.Index(n.AttributeKeys, key)
	if i < 0 {
		return false
	}
	n.AttributeKeys = slices.Delete(slices.Clone(n.AttributeKeys), i, i+1)
	return true
}

// RemoveNamespace drops key from the namespace list. It returns false if
// the key was not present.
func (n *Node) RemoveNamespace(key int64) bool {
	i := slices.Index(n.NamespaceKeys, key)
	if i < 0 {
		return false
	}
	n.NamespaceKeys = slices.Delete(slices.Clone(n.NamespaceKeys), i, i+1)
	return true
}
