package retriever

import (
	"container/list"
	"sync"
	"time"
)

// lruCache is a process-wide, capacity-bounded cache with a per-entry TTL,
// guarded by a single writer lock (spec.md §4.9). Keys are opaque strings
// built by the caller; values are `any` since result shapes vary by
// retrieval family.
type lruCache struct {
	mu       sync.Mutex
	maxSize  int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
	hits     int64
	misses   int64
}

type lruEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

func newLRUCache(maxSize int, ttl time.Duration) *lruCache {
	return &lruCache{
		maxSize: maxSize,
		ttl:     ttl,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*lruEntry)
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return entry.value, true
}

func (c *lruCache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		el.Value.(*lruEntry).expiresAt = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	entry := &lruEntry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	if c.maxSize > 0 && c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

func (c *lruCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.hits = 0
	c.misses = 0
}

// Stats is the snapshot shape required by spec.md §4.9.
type Stats struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	Hits    int64         `json:"hits"`
	Misses  int64         `json:"misses"`
	Total   int64         `json:"total"`
	HitRate float64       `json:"hit_rate"`
	TTL     time.Duration `json:"ttl"`
}

func (c *lruCache) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    c.ll.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		Total:   total,
		HitRate: hitRate,
		TTL:     c.ttl,
	}
}
