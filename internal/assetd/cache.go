package assetd

import (
	"container/list"
	"context"
	"sync"
)

// ByteCache is the local byte cache shared by the asset handlers. Writes
// for one key are independent of every other key, and overwriting a key with
// an equivalent entry is harmless.
type ByteCache interface {
	Get(ctx context.Context, key string) (CacheEntry, bool)
	Put(ctx context.Context, key string, ent CacheEntry)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (CacheEntry, bool) { return CacheEntry{}, false }
func (nopCache) Put(context.Context, string, CacheEntry)        {}

// tieredCache checks RAM then disk, promoting disk hits to RAM. Found
// assets are written through to disk; absence markers stay in RAM.
type tieredCache struct {
	ram         *ramCache
	disk        *diskCache
	overflowLog *rateLimitedLogger
}

func newTieredCache(ram *ramCache, disk *diskCache, overflowLog *rateLimitedLogger) *tieredCache {
	return &tieredCache{ram: ram, disk: disk, overflowLog: overflowLog}
}

func (c *tieredCache) Get(_ context.Context, key string) (CacheEntry, bool) {
	if ent, ok := c.ram.Get(key); ok {
		return ent, true
	}
	if c.disk == nil {
		return CacheEntry{}, false
	}
	ent, ok := c.disk.Get(key)
	if ok {
		c.ram.Put(key, ent)
	}
	return ent, ok
}

func (c *tieredCache) Put(_ context.Context, key string, ent CacheEntry) {
	if !c.ram.Put(key, ent) {
		c.overflowLog.Warn("asset larger than RAM cache, keeping it on disk only", "key", key, "bytes", len(ent.Body))
	}
	if c.disk != nil {
		c.disk.PutAsync(key, ent)
	}
}

func (c *tieredCache) cachedKeysCount() int {
	ramKeys := c.ram.Keys()
	if c.disk == nil {
		return len(ramKeys)
	}
	n := c.disk.KeyCount()
	for _, k := range ramKeys {
		if !c.disk.HasKey(k) {
			n++
		}
	}
	return n
}

type ramItem struct {
	key  string
	ent  CacheEntry
	size int64
}

// ramCache is an LRU bounded by the bytes of the bodies it holds.
type ramCache struct {
	maxBytes int64

	mu    sync.Mutex
	order *list.List // front is most recent
	items map[string]*list.Element
	total int64
}

func newRAMCache(maxBytes int64) *ramCache {
	return &ramCache{maxBytes: maxBytes, order: list.New(), items: map[string]*list.Element{}}
}

// entrySize charges a body at its length and an absence marker at the
// length of its key.
func entrySize(key string, ent CacheEntry) int64 {
	if ent.Absent {
		return int64(len(key))
	}
	return int64(len(ent.Body))
}

func (c *ramCache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *ramCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.items))
	for k := range c.items {
		out = append(out, k)
	}
	return out
}

func (c *ramCache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return CacheEntry{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*ramItem).ent, true
}

// Put stores ent, dropping least recently used entries to make room. It
// reports false when ent alone exceeds the budget and was not stored.
func (c *ramCache) Put(key string, ent CacheEntry) bool {
	sz := entrySize(key, ent)
	if c.maxBytes > 0 && sz > c.maxBytes {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		it := el.Value.(*ramItem)
		c.total += sz - it.size
		it.ent, it.size = ent, sz
		c.order.MoveToFront(el)
	} else {
		c.items[key] = c.order.PushFront(&ramItem{key: key, ent: ent, size: sz})
		c.total += sz
	}

	// The entry just stored is at the front and fits on its own.
	for c.maxBytes > 0 && c.total > c.maxBytes {
		it := c.order.Remove(c.order.Back()).(*ramItem)
		delete(c.items, it.key)
		c.total -= it.size
	}
	return true
}
