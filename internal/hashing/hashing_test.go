package hashing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/arbor/internal/node"
)

// mapTree is a minimal Tree over a map. It does not copy on write.
type mapTree map[int64]*node.Node

func (m mapTree) Node(key int64) (*node.Node, error) {
	n, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("no node %d", key)
	}
	return n, nil
}

func (m mapTree) Writable(key int64) (*node.Node, error) {
	return m.Node(key)
}

// appendChild links a new node as the last child of parent and folds it
// into the hashes with p.
func appendChild(t *testing.T, tree mapTree, p Policy, parent int64, n *node.Node) {
	t.Helper()
	par := tree[parent]
	n.ParentKey = parent
	if par.FirstChildKey == node.NullKey {
		par.FirstChildKey = n.Key
	} else {
		last := tree[par.FirstChildKey]
		for last.RightSiblingKey != node.NullKey {
			last = tree[last.RightSiblingKey]
		}
		last.RightSiblingKey = n.Key
		n.LeftSiblingKey = last.Key
	}
	par.ChildCount++
	tree[n.Key] = n
	p.Init(n)
	require.NoError(t, p.Added(tree, parent, n.Hash))
}

func addAttribute(t *testing.T, tree mapTree, p Policy, parent int64, n *node.Node) {
	t.Helper()
	n.ParentKey = parent
	tree[parent].AttributeKeys = append(tree[parent].AttributeKeys, n.Key)
	tree[n.Key] = n
	p.Init(n)
	require.NoError(t, p.Added(tree, parent, n.Hash))
}

func buildSample(t *testing.T, p Policy) mapTree {
	t.Helper()
	tree := mapTree{node.DocumentRootKey: node.NewDocumentRoot()}
	p.Init(tree[node.DocumentRootKey])

	el := func(key int64, name int32) *node.Node {
		n := node.New(key, node.NullKey, node.KindElement)
		n.NameKey = name
		return n
	}
	text := func(key int64, v string) *node.Node {
		n := node.New(key, node.NullKey, node.KindText)
		n.Value = []byte(v)
		return n
	}

	appendChild(t, tree, p, 0, el(1, 10))
	appendChild(t, tree, p, 1, el(2, 11))
	appendChild(t, tree, p, 2, text(3, "hello"))
	appendChild(t, tree, p, 1, el(4, 12))
	attr := node.New(5, node.NullKey, node.KindAttribute)
	attr.NameKey = 13
	attr.Value = []byte("v")
	addAttribute(t, tree, p, 4, attr)
	appendChild(t, tree, p, 4, text(6, "world"))
	return tree
}

func TestNew(t *testing.T) {
	for _, name := range []string{PolicyRolling, PolicyPostorder, PolicyNone} {
		p, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
	_, err := New("md5")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestRollingMatchesRecomputation(t *testing.T) {
	tree := buildSample(t, Rolling{})

	want, err := Compute(tree, 0)
	require.NoError(t, err)
	assert.Equal(t, want, tree[0].Hash)

	_, err = Verify(tree, 0)
	require.NoError(t, err)
}

func TestPostorderMatchesRolling(t *testing.T) {
	rolling := buildSample(t, Rolling{})
	postorder := buildSample(t, Postorder{})

	for key, n := range rolling {
		assert.Equal(t, n.Hash, postorder[key].Hash, "node %d", key)
	}
}

func TestRollingRemove(t *testing.T) {
	tree := buildSample(t, Rolling{})

	// Detach element 2 (and its text) from element 1.
	sub := tree[2]
	par := tree[1]
	par.FirstChildKey = sub.RightSiblingKey
	tree[4].LeftSiblingKey = node.NullKey
	par.ChildCount--
	delete(tree, 2)
	delete(tree, 3)
	require.NoError(t, Rolling{}.Removed(tree, 1, sub.Hash))

	_, err := Verify(tree, 0)
	require.NoError(t, err)
}

func TestUpdated(t *testing.T) {
	for _, p := range []Policy{Rolling{}, Postorder{}} {
		t.Run(p.Name(), func(t *testing.T) {
			tree := buildSample(t, p)

			n := tree[6]
			old := n.OwnHash()
			n.Value = []byte("there")
			require.NoError(t, p.Updated(tree, n, old))

			_, err := Verify(tree, 0)
			require.NoError(t, err)
		})
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	tree := buildSample(t, Rolling{})
	tree[3].Value = []byte("tampered")

	_, err := Verify(tree, 0)
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestNoneKeepsZero(t *testing.T) {
	tree := buildSample(t, None{})
	for _, n := range tree {
		assert.Zero(t, n.Hash)
	}
}

func TestHashIsOrderIndependent(t *testing.T) {
	a := mapTree{0: node.NewDocumentRoot()}
	b := mapTree{0: node.NewDocumentRoot()}
	p := Rolling{}
	p.Init(a[0])
	p.Init(b[0])

	x := func(key int64, v string) *node.Node {
		n := node.New(key, node.NullKey, node.KindText)
		n.Value = []byte(v)
		return n
	}
	appendChild(t, a, p, 0, x(1, "x"))
	appendChild(t, a, p, 0, x(2, "y"))
	appendChild(t, b, p, 0, x(1, "y"))
	appendChild(t, b, p, 0, x(2, "x"))

	assert.Equal(t, a[0].Hash, b[0].Hash)
}
