package storage

import (
	"container/list"

	"github.com/KilimcininKorOglu/arbor/internal/page"
)

// LRUCache keeps the most recently used decoded pages, keyed by storage
// key. It is not safe for concurrent use; PageStore guards it.
type LRUCache struct {
	capacity int
	list     *list.List              // front is most recently used
	entries  map[int64]*list.Element // O(1) lookup
}

// lruEntry represents an entry in the LRU cache.
type lruEntry struct {
	key  int64
	page page.Page
}

// NewLRUCache creates a cache holding at most capacity pages.
func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		list:     list.New(),
		entries:  make(map[int64]*list.Element),
	}
}

// Get returns the cached page for key and marks it recently used.
func (c *LRUCache) Get(key int64) (page.Page, bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.list.MoveToFront(elem)
	return elem.Value.(*lruEntry).page, true
}

// Put adds or refreshes a page, evicting the least recently used entry
// when the cache is full.
func (c *LRUCache) Put(key int64, p page.Page) {
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*lruEntry).page = p
		c.list.MoveToFront(elem)
		return
	}
	c.entries[key] = c.list.PushFront(&lruEntry{key: key, page: p})
	for c.list.Len() > c.capacity {
		c.evict()
	}
}

// Len returns the number of cached pages.
func (c *LRUCache) Len() int {
	return c.list.Len()
}

// Clear removes all entries.
func (c *LRUCache) Clear() {
	c.list.Init()
	c.entries = make(map[int64]*list.Element)
}

func (c *LRUCache) evict() {
	elem := c.list.Back()
	if elem == nil {
		return
	}
	c.list.Remove(elem)
	delete(c.entries, elem.Value.(*lruEntry).key)
}
