package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentRoot(t *testing.T) {
	root := NewDocumentRoot()

	assert.Equal(t, DocumentRootKey, root.Key)
	assert.Equal(t, NullKey, root.ParentKey)
	assert.Equal(t, KindDocumentRoot, root.Kind)
	assert.False(t, root.HasFirstChild())
	assert.True(t, root.IsStructural())
}

func TestCloneIsDeep(t *testing.T) {
	n := New(3, 1, KindElement)
	n.AttributeKeys = []int64{4, 5}
	n.Value = []byte("abc")

	c := n.Clone()
	c.AttributeKeys[0] = 99
	c.Value[0] = 'z'

	assert.Equal(t, int64(4), n.AttributeKeys[0])
	assert.Equal(t, "abc", string(n.Value))
}

func TestRemoveAttributeDoesNotAlias(t *testing.T) {
	n := New(3, 1, KindElement)
	shared := []int64{4, 5, 6}
	n.AttributeKeys = shared

	require.True(t, n.RemoveAttribute(5))
	assert.Equal(t, []int64{4, 6}, n.AttributeKeys)
	assert.Equal(t, []int64{4, 5, 6}, shared)
	assert.False(t, n.RemoveAttribute(42))
}

func TestCodec(t *testing.T) {
	t.Run("element", func(t *testing.T) {
		n := New(130, 2, KindElement)
		n.Hash = 0xdeadbeef
		n.FirstChildKey = 131
		n.LeftSiblingKey = 7
		n.ChildCount = 3
		n.NameKey = 12
		n.AttributeKeys = []int64{132, 133}
		n.NamespaceKeys = []int64{134}

		buf := n.AppendBinary(nil)
		got, size, err := Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), size)
		assert.Equal(t, n, got)
	})

	t.Run("tombstone keeps parent only", func(t *testing.T) {
		n := NewTombstone(9, 1)
		n.Value = []byte("dropped")

		got, _, err := Decode(n.AppendBinary(nil))
		require.NoError(t, err)
		assert.Equal(t, KindTombstone, got.Kind)
		assert.Equal(t, int64(1), got.ParentKey)
		assert.Nil(t, got.Value)
	})

	t.Run("truncated", func(t *testing.T) {
		n := New(1, 0, KindText)
		n.Value = []byte("hello")
		buf := n.AppendBinary(nil)

		_, _, err := Decode(buf[:len(buf)-2])
		assert.ErrorIs(t, err, ErrShortBuffer)
	})

	t.Run("bad kind", func(t *testing.T) {
		_, _, err := Decode([]byte{0xff, 0, 0})
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestOwnHashIgnoresPosition(t *testing.T) {
	a := New(5, 1, KindText)
	a.Value = []byte("x")
	b := New(77, 3, KindText)
	b.Value = []byte("x")
	b.LeftSiblingKey = 4

	assert.Equal(t, a.OwnHash(), b.OwnHash())

	b.Value = []byte("y")
	assert.NotEqual(t, a.OwnHash(), b.OwnHash())
	assert.Zero(t, NewTombstone(1, 0).OwnHash())
}
