package page

import (
	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// Node page geometry.
const (
	// NodesPerPageExponent is log2 of NodesPerPage.
	NodesPerPageExponent = 7
	// NodesPerPage is the number of node slots in a node page.
	NodesPerPage = 1 << NodesPerPageExponent
	nodeOffsetMask = NodesPerPage - 1
)

// NodePageKey returns the key of the node page holding nodeKey.
func NodePageKey(nodeKey int64) int64 {
	return nodeKey >> NodesPerPageExponent
}

// NodeOffset returns the slot of nodeKey inside its node page.
func NodeOffset(nodeKey int64) int {
	return int(nodeKey & nodeOffsetMask)
}

// NodePage holds a version of up to NodesPerPage nodes.
//
// A full page contains every live slot of the page. A delta page contains
// only the slots changed since PreviousKey, which is the storage key of an
// older version of the same page.
type NodePage struct {
	// PageKey is the logical key (node key >> NodesPerPageExponent).
	PageKey int64
	// Revision is the revision that wrote this version.
	Revision int64
	// Full reports whether the page is self-contained.
	Full bool
	// PreviousKey is the storage key of the version this delta builds on.
	PreviousKey int64
	// Nodes is indexed by NodeOffset.
	Nodes [NodesPerPage]*node.Node
}

// NewNodePage returns an empty node page.
func NewNodePage(pageKey, revision int64, full bool) *NodePage {
	return &NodePage{
		PageKey:     pageKey,
		Revision:    revision,
		Full:        full,
		PreviousKey: NullKey,
	}
}

// Kind implements Page.
func (p *NodePage) Kind() Kind { return KindNode }

// References implements Page. Node pages reference older versions by
// storage key only, so there is nothing to write below them.
func (p *NodePage) References() []*Reference { return nil }

// Node returns the node at offset or nil.
func (p *NodePage) Node(offset int) *node.Node {
	return p.Nodes[offset]
}

// SetNode stores n in its slot.
func (p *NodePage) SetNode(n *node.Node) {
	p.Nodes[NodeOffset(n.Key)] = n
}

// Len returns the number of occupied slots.
func (p *NodePage) Len() int {
	count := 0
	for _, n := range p.Nodes {
		if n != nil {
			count++
		}
	}
	return count
}

// CopyFrom fills every empty slot of p with the matching slot of other.
// Node pointers are shared; nodes are immutable once committed.
func (p *NodePage) CopyFrom(other *NodePage) {
	for i, n := range other.Nodes {
		if p.Nodes[i] == nil && n != nil {
			p.Nodes[i] = n
		}
	}
}
