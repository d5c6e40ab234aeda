package revisioning

import (
	"github.com/KilimcininKorOglu/arbor/internal/node"
	"github.com/KilimcininKorOglu/arbor/internal/page"
)

// Container pairs the complete pre-image of a node page with the version a
// write transaction is building.
type Container struct {
	// Complete is the reconstructed page as of the previous revision.
	Complete *page.NodePage
	// Modified is the version that will be written on commit.
	Modified *page.NodePage
	// owned marks slots of Modified holding copies private to the writer.
	owned [page.NodesPerPage]bool
}

// NewContainer prepares a container for pageKey at revision. leaf is the
// reference to the stored versions; a null leaf starts a fresh full page.
func NewContainer(l page.Loader, s Strategy, leaf page.Reference, pageKey, revision int64) (*Container, error) {
	if !leaf.IsPersisted() {
		return &Container{
			Complete: page.NewNodePage(pageKey, revision, true),
			Modified: page.NewNodePage(pageKey, revision, true),
		}, nil
	}
	chain, err := LoadChain(l, leaf.Key)
	if err != nil {
		return nil, err
	}
	complete := Reconstruct(chain)
	return &Container{
		Complete: complete,
		Modified: s.Next(chain, complete, revision),
	}, nil
}

// Node returns the current node at offset.
func (c *Container) Node(offset int) *node.Node {
	if n := c.Modified.Node(offset); n != nil {
		return n
	}
	return c.Complete.Node(offset)
}

// Writable returns a node at offset that may be mutated, copying it into
// Modified on first use. It returns nil when the slot is empty.
func (c *Container) Writable(offset int) *node.Node {
	if c.owned[offset] {
		return c.Modified.Nodes[offset]
	}
	cur := c.Node(offset)
	if cur == nil {
		return nil
	}
	cp := cur.Clone()
	c.Modified.Nodes[offset] = cp
	c.owned[offset] = true
	return cp
}

// Put stores a new node owned by the writer.
func (c *Container) Put(n *node.Node) {
	offset := page.NodeOffset(n.Key)
	c.Modified.Nodes[offset] = n
	c.owned[offset] = true
}

// Owned reports whether the slot at offset was written in this container.
func (c *Container) Owned(offset int) bool {
	return c.owned[offset]
}
