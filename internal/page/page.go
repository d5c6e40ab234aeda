// Package page provides the copy-on-write page tree of an arbor store.
package page

import (
	"errors"
)

// NullKey marks a reference that has not been persisted.
const NullKey int64 = -1

// Kind represents the type of a page.
type Kind uint8

const (
	// KindUnknown is never persisted.
	KindUnknown Kind = iota
	// KindUber is the root of all revisions.
	KindUber
	// KindIndirect is an interior page of a 128-way tree.
	KindIndirect
	// KindRevisionRoot is the root of one revision.
	KindRevisionRoot
	// KindNode holds up to NodesPerPage nodes.
	KindNode
	// KindName holds the name dictionary of a revision.
	KindName
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindUber:
		return "Uber"
	case KindIndirect:
		return "Indirect"
	case KindRevisionRoot:
		return "RevisionRoot"
	case KindNode:
		return "Node"
	case KindName:
		return "Name"
	default:
		return "Unknown"
	}
}

// Errors for page operations.
var (
	ErrInvalidPageKind      = errors.New("invalid page kind")
	ErrUnpersistedReference = errors.New("reference has not been persisted")
	ErrKeyOutOfRange        = errors.New("key exceeds indirect tree capacity")
	ErrCorruptPage          = errors.New("corrupt page encoding")
	ErrUnexpectedPage       = errors.New("unexpected page kind")
)

// Page is any page of the tree.
type Page interface {
	// Kind returns the page kind.
	Kind() Kind
	// References returns pointers to the child references held by the page.
	References() []*Reference
}

// Reference points from a page to a child page.
//
// Page is set only while the child is owned by a write transaction and has
// not been written yet, in which case Key is NullKey. Once written, Page is
// dropped and Key holds the storage key. References inside committed pages
// are never modified.
type Reference struct {
	Key  int64
	Page Page
}

// NewReference returns an empty reference.
func NewReference() Reference {
	return Reference{Key: NullKey}
}

// IsNull reports whether the reference points nowhere.
func (r *Reference) IsNull() bool {
	return r.Key == NullKey && r.Page == nil
}

// IsPersisted reports whether the referenced page has a storage key.
func (r *Reference) IsPersisted() bool {
	return r.Key != NullKey
}

// IsDirty reports whether the reference owns an unwritten page.
func (r *Reference) IsDirty() bool {
	return r.Key == NullKey && r.Page != nil
}

// SetPage points the reference at an unwritten page.
func (r *Reference) SetPage(p Page) {
	r.Page = p
	r.Key = NullKey
}

// MarkPersisted records the storage key of the written page and releases
// the in-memory copy.
func (r *Reference) MarkPersisted(key int64) {
	r.Key = key
	r.Page = nil
}

// Loader loads committed pages by storage key.
type Loader interface {
	LoadPage(key int64) (Page, error)
}

// Deref returns the page behind ref, loading it when needed. A null
// reference yields a nil page.
func Deref(l Loader, ref *Reference) (Page, error) {
	if ref.Page != nil {
		return ref.Page, nil
	}
	if ref.Key == NullKey {
		return nil, nil
	}
	return l.LoadPage(ref.Key)
}
