package retriever

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUCacheHitsAndMisses(t *testing.T) {
	c := newLRUCache(2, time.Minute)

	_, ok := c.get("a")
	assert.False(t, ok)

	c.set("a", "value-a")
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "value-a", v)

	stats := c.stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestLRUCacheEvictsOldestOnCapacity(t *testing.T) {
	c := newLRUCache(2, time.Minute)
	c.set("a", 1)
	c.set("b", 2)
	c.set("c", 3)

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRUCacheExpiresByTTL(t *testing.T) {
	c := newLRUCache(10, time.Millisecond)
	c.set("a", 1)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestLRUCacheClearResetsStats(t *testing.T) {
	c := newLRUCache(10, time.Minute)
	c.set("a", 1)
	c.get("a")
	c.get("missing")

	c.clear()
	stats := c.stats()
	assert.Zero(t, stats.Size)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}
