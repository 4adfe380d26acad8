package assetd

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetd/internal/logger"
)

func createTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func TestRAMCacheLRUEviction(t *testing.T) {
	c := newRAMCache(300)

	for i := 0; i < 3; i++ {
		require.True(t, c.Put(fmt.Sprintf("k%d", i), CacheEntry{Body: createTestData(100)}))
	}
	_, ok := c.Get("k0") // k0 becomes most recent
	require.True(t, ok)

	require.True(t, c.Put("k3", CacheEntry{Body: createTestData(100)}))

	_, ok = c.Get("k1")
	assert.False(t, ok, "least recently used entry is evicted first")
	for _, k := range []string{"k0", "k2", "k3"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, int64(300), c.TotalSize())
}

func TestRAMCacheReplaceKeepsTotals(t *testing.T) {
	c := newRAMCache(0)
	c.Put("a", CacheEntry{Body: createTestData(10)})
	c.Put("a", CacheEntry{Body: createTestData(30)})

	assert.Equal(t, int64(30), c.TotalSize())
	assert.Len(t, c.Keys(), 1)
}

func TestRAMCacheRejectsOversizedEntry(t *testing.T) {
	c := newRAMCache(50)
	require.True(t, c.Put("small", CacheEntry{Body: createTestData(40)}))

	assert.False(t, c.Put("big", CacheEntry{Body: createTestData(51)}))
	_, ok := c.Get("small")
	assert.True(t, ok, "a rejected entry evicts nothing")
}

func TestRAMCacheKeepsAbsentMarker(t *testing.T) {
	c := newRAMCache(1024)
	c.Put("css:/x.css", CacheEntry{Absent: true})

	ent, ok := c.Get("css:/x.css")
	require.True(t, ok)
	assert.True(t, ent.Absent)
	assert.Nil(t, ent.Body)
	assert.Equal(t, int64(len("css:/x.css")), c.TotalSize())
}

func openTestDiskCache(t *testing.T, dir, buster string) *diskCache {
	t.Helper()
	d, err := openDiskCache(dir, 1<<20, buster)
	require.NoError(t, err)
	return d
}

func TestDiskCachePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	d := openTestDiskCache(t, dir, "v1")
	d.PutAsync("css:/a.css", CacheEntry{Body: []byte("a{}"), ModTime: mod.UnixNano()})
	d.PutAsync("css:/gone.css", CacheEntry{Absent: true})
	d.close() // drains the writer

	d = openTestDiskCache(t, dir, "v1")
	defer d.close()

	ent, ok := d.Get("css:/a.css")
	require.True(t, ok)
	assert.Equal(t, []byte("a{}"), ent.Body)
	assert.True(t, ent.modTime().Equal(mod))

	_, ok = d.Get("css:/gone.css")
	assert.False(t, ok, "absence markers are not persisted")

	assert.Equal(t, 1, d.KeyCount())
	assert.True(t, d.HasKey("css:/a.css"))
	assert.Equal(t, int64(3), d.TotalSize())
}

func TestDiskCacheDropsEntriesOfOtherBuster(t *testing.T) {
	dir := t.TempDir()

	d := openTestDiskCache(t, dir, "v1")
	d.PutAsync("css:/a.css", CacheEntry{Body: []byte("old")})
	d.close()

	d = openTestDiskCache(t, dir, "v2")
	defer d.close()

	_, ok := d.Get("css:/a.css")
	assert.False(t, ok)
	assert.Zero(t, d.KeyCount())
	assert.Zero(t, d.TotalSize())
}

func TestDiskCacheEvictsWhenOverBudget(t *testing.T) {
	dir := t.TempDir()
	d, err := openDiskCache(dir, 4096, "v1")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		d.PutAsync(fmt.Sprintf("webp:/%d.png", i), CacheEntry{Body: createTestData(1024)})
	}
	d.close()

	d = openTestDiskCache(t, dir, "v1")
	defer d.close()
	assert.Less(t, d.KeyCount(), 20)
	assert.LessOrEqual(t, d.TotalSize(), int64(4096))
	_, ok := d.Get("webp:/19.png")
	assert.True(t, ok, "the newest asset survives eviction")
}

func TestDiskCacheAfterClose(t *testing.T) {
	d := openTestDiskCache(t, t.TempDir(), "v1")
	d.PutAsync("css:/a.css", CacheEntry{Body: []byte("a{}")})
	d.close()

	assert.NotPanics(t, func() {
		d.PutAsync("css:/b.css", CacheEntry{Body: []byte("b{}")})
		_, ok := d.Get("css:/a.css")
		assert.False(t, ok)
		d.close()
	})
}

func TestTieredCachePromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	d := openTestDiskCache(t, dir, "v1")
	d.PutAsync("css:/a.css", CacheEntry{Body: []byte("a{}")})
	d.close()

	d = openTestDiskCache(t, dir, "v1")
	defer d.close()
	ram := newRAMCache(1 << 20)
	c := newTieredCache(ram, d, newRateLimitedLogger(logger.Discard(), time.Minute))
	ctx := context.Background()

	_, ok := ram.Get("css:/a.css")
	require.False(t, ok)

	ent, ok := c.Get(ctx, "css:/a.css")
	require.True(t, ok)
	assert.Equal(t, "a{}", string(ent.Body))

	_, ok = ram.Get("css:/a.css")
	assert.True(t, ok, "disk hit is promoted to RAM")
	assert.Equal(t, 1, c.cachedKeysCount())
}

func TestTieredCacheKeepsAbsenceInRAM(t *testing.T) {
	dir := t.TempDir()
	d := openTestDiskCache(t, dir, "v1")
	ram := newRAMCache(1 << 20)
	c := newTieredCache(ram, d, nil)
	ctx := context.Background()

	c.Put(ctx, "css:/gone.css", CacheEntry{Absent: true})
	ent, ok := c.Get(ctx, "css:/gone.css")
	require.True(t, ok)
	assert.True(t, ent.Absent)
	d.close()

	d = openTestDiskCache(t, dir, "v1")
	defer d.close()
	c = newTieredCache(newRAMCache(1<<20), d, nil)
	_, ok = c.Get(ctx, "css:/gone.css")
	assert.False(t, ok, "a restart forgets confirmed misses")
}

func TestTieredCacheStoresOversizedEntryOnDisk(t *testing.T) {
	dir := t.TempDir()
	d := openTestDiskCache(t, dir, "v1")
	c := newTieredCache(newRAMCache(8), d, newRateLimitedLogger(logger.Discard(), time.Minute))
	ctx := context.Background()

	c.Put(ctx, "webp:/big.png", CacheEntry{Body: createTestData(64)})
	d.close()

	d = openTestDiskCache(t, dir, "v1")
	defer d.close()
	assert.Equal(t, 1, d.KeyCount())
	assert.Equal(t, int64(64), d.TotalSize())

	c = newTieredCache(newRAMCache(8), d, nil)
	ent, ok := c.Get(ctx, "webp:/big.png")
	require.True(t, ok)
	assert.Len(t, ent.Body, 64)
}

func TestNopCache(t *testing.T) {
	var c ByteCache = nopCache{}
	c.Put(context.Background(), "k", CacheEntry{Body: []byte("x")})
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}
