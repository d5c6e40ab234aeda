package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/arbor/internal/node"
	"github.com/KilimcininKorOglu/arbor/internal/page"
)

func samplePage() *page.NodePage {
	np := page.NewNodePage(0, 1, true)
	text := node.New(1, 0, node.KindText)
	text.Value = []byte("some text that compresses, some text that compresses")
	np.SetNode(node.NewDocumentRoot())
	np.SetNode(text)
	return np
}

func TestFileHeader(t *testing.T) {
	h := NewFileHeader([16]byte{1, 2, 3})
	h.Generation = 5
	h.UberKey = 8192

	region := make([]byte, HeaderRegionSize)
	copy(region[h.Slot()*HeaderSlotSize:], h.Serialize())

	got, err := ReadHeader(region)
	require.NoError(t, err)
	assert.Equal(t, h.StoreID, got.StoreID)
	assert.Equal(t, int64(8192), got.UberKey)

	t.Run("newest valid slot wins", func(t *testing.T) {
		newer := *h
		newer.Generation = 6
		newer.UberKey = 9000
		copy(region[newer.Slot()*HeaderSlotSize:], newer.Serialize())

		got, err := ReadHeader(region)
		require.NoError(t, err)
		assert.Equal(t, int64(9000), got.UberKey)

		// A torn write of the newer slot falls back to the older one.
		region[newer.Slot()*HeaderSlotSize+33] ^= 0xff
		got, err = ReadHeader(region)
		require.NoError(t, err)
		assert.Equal(t, int64(8192), got.UberKey)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ReadHeader(make([]byte, HeaderRegionSize))
		assert.Error(t, err)
		_, err = ReadHeader(make([]byte, 10))
		assert.ErrorIs(t, err, ErrInvalidHeaderSize)
	})
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenFileBackend(dir, true, true)
	require.NoError(t, err)
	head, err := b.Head()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), head.UberKey)

	k1, err := b.Append([]byte("first"))
	require.NoError(t, err)
	k2, err := b.Append([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderRegionSize), k1)
	assert.Greater(t, k2, k1)

	require.NoError(t, b.CommitHead(Head{UberKey: k2, Revision: 0}))
	id := b.ID()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = OpenFileBackend(dir, true, true)
	assert.ErrorIs(t, err, ErrStoreExists)

	b, err = OpenFileBackend(dir, false, true)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, id, b.ID())
	head, err = b.Head()
	require.NoError(t, err)
	assert.Equal(t, k2, head.UberKey)

	rec, err := b.Read(k1)
	require.NoError(t, err)
	assert.Equal(t, "first", string(rec))

	_, err = b.Read(12)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackendMissing(t *testing.T) {
	_, err := OpenFileBackend(t.TempDir(), false, true)
	assert.ErrorIs(t, err, ErrStoreMissing)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(ErrCorrupt))
}

func TestBadgerBackend(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenBadgerBackend(dir, true, false, false, nil)
	require.NoError(t, err)

	k, err := b.Append([]byte("record"))
	require.NoError(t, err)
	rec, err := b.Read(k)
	require.NoError(t, err, "pending records are readable")
	assert.Equal(t, "record", string(rec))

	require.NoError(t, b.CommitHead(Head{UberKey: k, Revision: 3}))
	id := b.ID()
	require.NoError(t, b.Close())

	b, err = OpenBadgerBackend(dir, false, false, false, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, id, b.ID())

	head, err := b.Head()
	require.NoError(t, err)
	assert.Equal(t, Head{UberKey: k, Revision: 3}, head)

	next, err := b.Append([]byte("next"))
	require.NoError(t, err)
	assert.Greater(t, next, k)

	_, err = b.Read(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPageStore(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Options
	}{
		{"file", DefaultOptions()},
		{"file zstd", DefaultOptions().WithCompression(CompressionZstd)},
		{"badger in memory", DefaultOptions().WithBackend(BackendBadger).WithInMemory(true)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(tc.opts.WithDir(t.TempDir()).WithCreate(true))
			require.NoError(t, err)
			defer s.Close()

			rp := page.NewRevisionRootPage(0)
			leaf, err := page.PrepareLeaf(s, &rp.NodeRef, 0, 0)
			require.NoError(t, err)
			leaf.SetPage(samplePage())

			root := page.Reference{Key: page.NullKey, Page: rp}
			written, err := s.Persist(&root)
			require.NoError(t, err)
			assert.Equal(t, 1+page.IndirectLevels+1, written)
			require.NoError(t, s.CommitHead(Head{UberKey: root.Key}))

			got, err := s.LoadPage(root.Key)
			require.NoError(t, err)
			loaded := got.(*page.RevisionRootPage)

			leafRef, err := page.LookupLeaf(s, loaded.NodeRef, 0)
			require.NoError(t, err)
			p, err := s.LoadPage(leafRef.Key)
			require.NoError(t, err)
			assert.Equal(t, samplePage(), p)

			again, err := s.LoadPage(leafRef.Key)
			require.NoError(t, err)
			assert.Same(t, p, again, "second load is served from cache")
			assert.Equal(t, 1+page.IndirectLevels+1, s.CacheLen())
		})
	}
}

func TestPageStoreDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(DefaultOptions().WithDir(dir).WithCreate(true))
	require.NoError(t, err)
	key, err := s.WritePage(samplePage())
	require.NoError(t, err)
	require.NoError(t, s.CommitHead(Head{UberKey: key}))
	require.NoError(t, s.Close())

	f, err := os.OpenFile(filepath.Join(dir, PageFileName), os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xff}, key+recordLenSize+recordHeaderSize+2)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = Open(DefaultOptions().WithDir(dir))
	require.NoError(t, err)
	defer s.Close()
	_, err = s.LoadPage(key)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestPageStoreClosed(t *testing.T) {
	s, err := Open(DefaultOptions().WithDir(t.TempDir()).WithCreate(true))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.WritePage(samplePage())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.LoadPage(4096)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLRUCache(t *testing.T) {
	c := NewLRUCache(2)
	a := page.NewIndirectPage(1)
	b := page.NewIndirectPage(2)

	c.Put(1, a)
	c.Put(2, b)
	_, ok := c.Get(1)
	require.True(t, ok)

	c.Put(3, page.NewIndirectPage(3))
	assert.Equal(t, 2, c.Len())
	_, ok = c.Get(2)
	assert.False(t, ok, "least recently used entry is evicted")
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Same(t, a, got)

	c.Put(1, b)
	got, _ = c.Get(1)
	assert.Same(t, b, got, "put refreshes an existing entry")
	assert.Equal(t, 2, c.Len())
	c.Clear()
	assert.Zero(t, c.Len())
}
