package telemetry

import (
	"container/list"
	"sync"
)

type lruEntry struct {
	key   uint64
	value int64
}

// lruCache is a fixed-size test-and-set cache: TestAndSet both installs a new
// value and reports whatever value previously occupied that key, evicting
// the least-recently-used entry once the cache is full.
type lruCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[uint64]*list.Element
	order   *list.List
}

func newLRUCache(maxSize int) *lruCache {
	return &lruCache{
		maxSize: maxSize,
		items:   make(map[uint64]*list.Element),
		order:   list.New(),
	}
}

// TestAndSet stores value under key and returns the value it replaces, or
// (0, false) if key was not present.
func (c *lruCache) TestAndSet(key uint64, value int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		prev := el.Value.(*lruEntry).value
		el.Value.(*lruEntry).value = value
		c.order.MoveToFront(el)
		return prev, true
	}

	el := c.order.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
	return 0, false
}
