// Package hashing maintains the structural hash of every node.
//
// The hash of a node n is
//
//	H(n) = own(n) + Prime * sum(H(c))
//
// where c ranges over the children, attributes and namespaces of n,
// own(n) is the content hash of n alone and all arithmetic wraps modulo
// 2^64. The sum is commutative, so a change below n can be folded into
// every ancestor without revisiting siblings.
package hashing

import (
	"errors"
	"fmt"

	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// Prime is the multiplier applied to child hashes.
const Prime uint64 = 77081

// Policy names accepted by New.
const (
	PolicyRolling   = "rolling"
	PolicyPostorder = "postorder"
	PolicyNone      = "none"
)

// Errors.
var (
	ErrUnknownPolicy = errors.New("unknown hashing policy")
	ErrHashMismatch  = errors.New("stored hash does not match content")
)

// Reader gives read access to the nodes of a revision.
type Reader interface {
	Node(key int64) (*node.Node, error)
}

// Tree gives the write access a policy needs to update ancestors.
type Tree interface {
	Reader
	// Writable returns a private copy of key that the caller may mutate.
	Writable(key int64) (*node.Node, error)
}

// Policy keeps stored hashes consistent with the tree.
type Policy interface {
	// Name returns the policy name.
	Name() string
	// Init sets the hash of a freshly created leaf.
	Init(n *node.Node)
	// Added folds a subtree with hash h, just attached under parentKey,
	// into the ancestors.
	Added(t Tree, parentKey int64, h uint64) error
	// Removed takes a subtree with hash h, just detached from parentKey,
	// out of the ancestors.
	Removed(t Tree, parentKey int64, h uint64) error
	// Updated accounts for a change of the own hash of n from oldOwn.
	// n must be writable.
	Updated(t Tree, n *node.Node, oldOwn uint64) error
}

// New returns the policy registered under name.
func New(name string) (Policy, error) {
	switch name {
	case PolicyRolling:
		return Rolling{}, nil
	case PolicyPostorder:
		return Postorder{}, nil
	case PolicyNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Compute recomputes the hash of the subtree under key from content alone.
func Compute(r Reader, key int64) (uint64, error) {
	n, err := r.Node(key)
	if err != nil {
		return 0, err
	}
	sum, err := sumDependents(r, n, func(k int64) (uint64, error) {
		return Compute(r, k)
	})
	if err != nil {
		return 0, err
	}
	return n.OwnHash() + Prime*sum, nil
}

// Verify checks every stored hash under key against a recomputation and
// returns the first mismatch.
func Verify(r Reader, key int64) (uint64, error) {
	n, err := r.Node(key)
	if err != nil {
		return 0, err
	}
	sum, err := sumDependents(r, n, func(k int64) (uint64, error) {
		return Verify(r, k)
	})
	if err != nil {
		return 0, err
	}
	h := n.OwnHash() + Prime*sum
	if h != n.Hash {
		return 0, fmt.Errorf("%w: node %d stored %x computed %x", ErrHashMismatch, key, n.Hash, h)
	}
	return h, nil
}

// sumDependents adds hashOf over the attributes, namespaces and children
// of n.
func sumDependents(r Reader, n *node.Node, hashOf func(int64) (uint64, error)) (uint64, error) {
	var sum uint64
	for _, k := range n.AttributeKeys {
		h, err := hashOf(k)
		if err != nil {
			return 0, err
		}
		sum += h
	}
	for _, k := range n.NamespaceKeys {
		h, err := hashOf(k)
		if err != nil {
			return 0, err
		}
		sum += h
	}
	for k := n.FirstChildKey; k != node.NullKey; {
		h, err := hashOf(k)
		if err != nil {
			return 0, err
		}
		sum += h
		c, err := r.Node(k)
		if err != nil {
			return 0, err
		}
		k = c.RightSiblingKey
	}
	return sum, nil
}

// Rolling folds each change into the ancestors arithmetically.
type Rolling struct{}

// Name implements Policy.
func (Rolling) Name() string { return PolicyRolling }

// Init implements Policy.
func (Rolling) Init(n *node.Node) { n.Hash = n.OwnHash() }

// Added implements Policy.
func (Rolling) Added(t Tree, parentKey int64, h uint64) error {
	return propagate(t, parentKey, Prime*h)
}

// Removed implements Policy.
func (Rolling) Removed(t Tree, parentKey int64, h uint64) error {
	return propagate(t, parentKey, -(Prime * h))
}

// Updated implements Policy.
func (Rolling) Updated(t Tree, n *node.Node, oldOwn uint64) error {
	delta := n.OwnHash() - oldOwn
	n.Hash += delta
	return propagate(t, n.ParentKey, Prime*delta)
}

// propagate adds delta to the node at key and the matching scaled delta to
// every ancestor above it.
func propagate(t Tree, key int64, delta uint64) error {
	for key != node.NullKey {
		n, err := t.Writable(key)
		if err != nil {
			return err
		}
		n.Hash += delta
		delta *= Prime
		key = n.ParentKey
	}
	return nil
}

// Postorder recomputes every ancestor from the stored hashes of its direct
// dependents.
type Postorder struct{}

// Name implements Policy.
func (Postorder) Name() string { return PolicyPostorder }

// Init implements Policy.
func (Postorder) Init(n *node.Node) { n.Hash = n.OwnHash() }

// Added implements Policy.
func (Postorder) Added(t Tree, parentKey int64, _ uint64) error {
	return recomputePath(t, parentKey)
}

// Removed implements Policy.
func (Postorder) Removed(t Tree, parentKey int64, _ uint64) error {
	return recomputePath(t, parentKey)
}

// Updated implements Policy.
func (Postorder) Updated(t Tree, n *node.Node, _ uint64) error {
	return recomputePath(t, n.Key)
}

func recomputePath(t Tree, key int64) error {
	for key != node.NullKey {
		n, err := t.Writable(key)
		if err != nil {
			return err
		}
		sum, err := sumDependents(t, n, func(k int64) (uint64, error) {
			c, err := t.Node(k)
			if err != nil {
				return 0, err
			}
			return c.Hash, nil
		})
		if err != nil {
			return err
		}
		n.Hash = n.OwnHash() + Prime*sum
		key = n.ParentKey
	}
	return nil
}

// None stores no hashes.
type None struct{}

// Name implements Policy.
func (None) Name() string { return PolicyNone }

// Init implements Policy.
func (None) Init(n *node.Node) { n.Hash = 0 }

// Added implements Policy.
func (None) Added(Tree, int64, uint64) error { return nil }

// Removed implements Policy.
func (None) Removed(Tree, int64, uint64) error { return nil }

// Updated implements Policy.
func (None) Updated(Tree, *node.Node, uint64) error { return nil }
