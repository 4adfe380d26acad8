package assetd

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Layout: b:<cache key> holds the raw asset body, r:<cache key> its
// assetRecord, v:buster the token the store was filled under.
const (
	bodyPrefix   = "b:"
	recordPrefix = "r:"
)

var busterKey = []byte("v:buster")

// assetRecord is the per-asset bookkeeping kept next to the body.
type assetRecord struct {
	Size    int64 // body length
	ModTime int64 // unix nanoseconds of the source file
	ReadAt  int64 // unix nanoseconds of the last hit
}

const assetRecordLen = 24

func (r assetRecord) marshal() []byte {
	b := make([]byte, assetRecordLen)
	binary.BigEndian.PutUint64(b[0:], uint64(r.Size))
	binary.BigEndian.PutUint64(b[8:], uint64(r.ModTime))
	binary.BigEndian.PutUint64(b[16:], uint64(r.ReadAt))
	return b
}

func unmarshalAssetRecord(b []byte) (assetRecord, bool) {
	if len(b) != assetRecordLen {
		return assetRecord{}, false
	}
	return assetRecord{
		Size:    int64(binary.BigEndian.Uint64(b[0:])),
		ModTime: int64(binary.BigEndian.Uint64(b[8:])),
		ReadAt:  int64(binary.BigEndian.Uint64(b[16:])),
	}, true
}

type diskOpKind uint8

const (
	opStore diskOpKind = iota
	opTouch
)

type diskOp struct {
	kind    diskOpKind
	key     string
	body    []byte
	modTime int64
	at      int64
}

// diskCache keeps found asset bodies in leveldb so a restarted process
// starts warm. Absence markers are never written here: a file added while
// the process was down must be picked up on the next start. One goroutine
// applies all writes; reads go to leveldb directly.
type diskCache struct {
	db       *leveldb.DB
	maxBytes int64

	mu      sync.Mutex
	records map[string]assetRecord
	total   int64

	sendMu sync.RWMutex
	closed bool
	ops    chan diskOp
	done   chan struct{}
}

// openDiskCache opens the store at path. Entries written under a different
// cache-buster are dropped, so a redeploy never serves stale bytes.
func openDiskCache(path string, maxBytes int64, buster string) (*diskCache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open disk cache %s: %w", path, err)
	}
	d := &diskCache{
		db:       db,
		maxBytes: maxBytes,
		records:  map[string]assetRecord{},
		ops:      make(chan diskOp, 1024),
		done:     make(chan struct{}),
	}
	if err := d.resetIfStale(buster); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := d.loadRecords(); err != nil {
		_ = db.Close()
		return nil, err
	}
	go d.writerLoop()
	return d, nil
}

// close drains pending writes and closes the store. Later puts and touches
// are dropped and later reads miss, so requests still in flight after a
// timed-out shutdown fall back to the filesystem.
func (d *diskCache) close() {
	d.sendMu.Lock()
	if d.closed {
		d.sendMu.Unlock()
		return
	}
	d.closed = true
	close(d.ops)
	d.sendMu.Unlock()

	<-d.done
	_ = d.db.Close()
}

func (d *diskCache) resetIfStale(buster string) error {
	cur, err := d.db.Get(busterKey, nil)
	if err == nil && string(cur) == buster {
		return nil
	}
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return err
	}

	batch := new(leveldb.Batch)
	it := d.db.NewIterator(nil, nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	batch.Put(busterKey, []byte(buster))
	return d.db.Write(batch, nil)
}

func (d *diskCache) loadRecords() error {
	it := d.db.NewIterator(util.BytesPrefix([]byte(recordPrefix)), nil)
	defer it.Release()

	records := map[string]assetRecord{}
	var total int64
	for it.Next() {
		rec, ok := unmarshalAssetRecord(it.Value())
		if !ok {
			continue
		}
		key := strings.TrimPrefix(string(it.Key()), recordPrefix)
		records[key] = rec
		total += rec.Size
	}
	if err := it.Error(); err != nil {
		return err
	}
	d.mu.Lock()
	d.records = records
	d.total = total
	d.mu.Unlock()
	return nil
}

func (d *diskCache) TotalSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

func (d *diskCache) KeyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

func (d *diskCache) HasKey(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.records[key]
	return ok
}

// Get returns the stored body of key and queues a recency update.
func (d *diskCache) Get(key string) (CacheEntry, bool) {
	d.mu.Lock()
	rec, ok := d.records[key]
	d.mu.Unlock()
	if !ok {
		return CacheEntry{}, false
	}
	body, err := d.db.Get([]byte(bodyPrefix+key), nil)
	if err != nil {
		return CacheEntry{}, false
	}
	// Recency is advisory: drop the touch rather than stall a reader.
	d.send(diskOp{kind: opTouch, key: key, at: time.Now().UnixNano()}, false)
	return CacheEntry{Body: body, ModTime: rec.ModTime}, true
}

// PutAsync queues ent for storage. Absence markers are ignored.
func (d *diskCache) PutAsync(key string, ent CacheEntry) {
	if ent.Absent {
		return
	}
	d.send(diskOp{
		kind:    opStore,
		key:     key,
		body:    ent.Body,
		modTime: ent.ModTime,
		at:      time.Now().UnixNano(),
	}, true)
}

func (d *diskCache) send(op diskOp, wait bool) {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.closed {
		return
	}
	if wait {
		d.ops <- op
		return
	}
	select {
	case d.ops <- op:
	default:
	}
}

func (d *diskCache) writerLoop() {
	defer close(d.done)
	for op := range d.ops {
		switch op.kind {
		case opStore:
			d.store(op)
		case opTouch:
			d.touch(op)
		}
	}
}

func (d *diskCache) store(op diskOp) {
	rec := assetRecord{Size: int64(len(op.body)), ModTime: op.modTime, ReadAt: op.at}

	batch := new(leveldb.Batch)
	batch.Put([]byte(bodyPrefix+op.key), op.body)
	batch.Put([]byte(recordPrefix+op.key), rec.marshal())
	if err := d.db.Write(batch, nil); err != nil {
		return
	}

	d.mu.Lock()
	if old, ok := d.records[op.key]; ok {
		d.total -= old.Size
	}
	d.records[op.key] = rec
	d.total += rec.Size
	over := d.maxBytes > 0 && d.total > d.maxBytes
	d.mu.Unlock()

	if over {
		d.shrink()
	}
}

func (d *diskCache) touch(op diskOp) {
	d.mu.Lock()
	rec, ok := d.records[op.key]
	if ok {
		rec.ReadAt = op.at
		d.records[op.key] = rec
	}
	d.mu.Unlock()
	if ok {
		_ = d.db.Put([]byte(recordPrefix+op.key), rec.marshal(), nil)
	}
}

// shrink drops the least recently read assets until the store is back
// under nine tenths of its budget.
func (d *diskCache) shrink() {
	target := d.maxBytes - d.maxBytes/10
	batch := new(leveldb.Batch)

	d.mu.Lock()
	keys := make([]string, 0, len(d.records))
	for k := range d.records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Compare(d.records[a].ReadAt, d.records[b].ReadAt)
	})
	for _, k := range keys {
		if d.total <= target {
			break
		}
		d.total -= d.records[k].Size
		delete(d.records, k)
		batch.Delete([]byte(bodyPrefix + k))
		batch.Delete([]byte(recordPrefix + k))
	}
	d.mu.Unlock()

	_ = d.db.Write(batch, nil)
}
