// Package bufferpool implements the global, shared page cache: a strict-LRU
// pool of pinned/dirty page frames keyed by (indexId, pageId), with
// write-through eviction to per-index data files. Grounded on the LRU cache
// design in intellect4all-storage-engines/btree/pager.go, generalized from a
// single-file pager to a pool shared across every index's data file.
package bufferpool

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/page"
)

// Key addresses a page globally across every index sharing the pool.
type Key struct {
	IndexId int32
	PageId  uint32
}

func (k Key) fileName() string {
	return fmt.Sprintf("table_%d.db", k.IndexId)
}

// Frame is a pooled page plus its pin count and dirty flag.
type Frame struct {
	key      Key
	page     *page.Page
	pinCount int
	dirty    bool
}

// Page returns the frame's underlying page buffer.
func (f *Frame) Page() *page.Page { return f.page }

// Pin increments the frame's pin count, making it ineligible for eviction.
func (f *Frame) Pin() { f.pinCount++ }

// Unpin decrements the frame's pin count and, if wasDirty, marks it dirty.
// markDirty is independent of this argument; callers that already called
// MarkDirty may pass false here without losing the dirty flag.
func (f *Frame) Unpin(wasDirty bool) {
	if f.pinCount > 0 {
		f.pinCount--
	}
	if wasDirty {
		f.dirty = true
	}
}

// MarkDirty sets the frame's dirty flag, independent of pin/unpin calls.
func (f *Frame) MarkDirty() { f.dirty = true }

// PinCount returns the current pin count.
func (f *Frame) PinCount() int { return f.pinCount }

// Dirty reports whether the frame has unflushed writes.
func (f *Frame) Dirty() bool { return f.dirty }

// Pool is the global in-memory cache of page frames.
type Pool struct {
	dataDir  string
	capacity int

	frames   map[Key]*Frame
	lru      *list.List
	lruElems map[Key]*list.Element

	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates an empty pool with room for capacity frames.
func New(dataDir string, capacity int, log *logger.Logger, m *metrics.Metrics) *Pool {
	return &Pool{
		dataDir:  dataDir,
		capacity: capacity,
		frames:   make(map[Key]*Frame),
		lru:      list.New(),
		lruElems: make(map[Key]*list.Element),
		log:      log.BufferLogger(),
		metrics:  m,
	}
}

// DataDirPath returns the directory backing this pool's per-index data files.
func (p *Pool) DataDirPath() string { return p.dataDir }

func (p *Pool) touch(key Key) {
	if elem, ok := p.lruElems[key]; ok {
		p.lru.MoveToFront(elem)
	}
}

func (p *Pool) admit(key Key, pg *page.Page) (*Frame, error) {
	if p.lru.Len() >= p.capacity {
		if !p.evictOne() {
			return nil, dberrors.New(dberrors.PoolExhausted, "buffer pool exhausted: no unpinned frame to evict")
		}
	}
	f := &Frame{key: key, page: pg}
	p.frames[key] = f
	p.lruElems[key] = p.lru.PushFront(key)
	return f, nil
}

// evictOne evicts the LRU unpinned frame. Returns false if none is eligible.
func (p *Pool) evictOne() bool {
	for elem := p.lru.Back(); elem != nil; elem = elem.Prev() {
		key := elem.Value.(Key)
		f := p.frames[key]
		if f.pinCount > 0 {
			continue
		}
		if f.dirty {
			if err := p.writeThrough(f); err != nil {
				p.log.Error("eviction write-through failed").
					Int32("index_id", key.IndexId).Uint32("page_id", key.PageId).Err(err).Send()
			}
		}
		delete(p.frames, key)
		delete(p.lruElems, key)
		p.lru.Remove(elem)
		p.metrics.RecordBufferEviction()
		return true
	}
	return false
}

// GetPage returns the frame for (indexId, pageId), reading it from disk on a
// miss. pm is the owning PageManager, consulted to reject requests for page
// ids that were never allocated.
func (p *Pool) GetPage(indexId int32, pageId uint32, pm *page.PageManager) (*Frame, error) {
	key := Key{IndexId: indexId, PageId: pageId}
	if f, ok := p.frames[key]; ok {
		p.touch(key)
		p.metrics.RecordBufferHit()
		return f, nil
	}

	if pm != nil && !pm.IsAllocated(pageId) {
		return nil, dberrors.New(dberrors.NotFound, "page %d of index %d was never allocated", pageId, indexId)
	}

	p.metrics.RecordBufferMiss()
	start := time.Now()
	pg, err := p.readFromDisk(key)
	p.metrics.RecordPageIO("read", time.Since(start))
	if err != nil {
		return nil, err
	}

	f, err := p.admit(key, pg)
	if err != nil {
		return nil, err
	}
	p.metrics.SetPagesInUse(p.pinnedCount())
	return f, nil
}

// NewPage admits a freshly zeroed frame for (indexId, pageId). The caller
// must have already allocated pageId via the owning PageManager.
func (p *Pool) NewPage(indexId int32, pageId uint32, pageType page.Type) (*Frame, error) {
	key := Key{IndexId: indexId, PageId: pageId}
	if f, ok := p.frames[key]; ok {
		f.page = page.New(pageType, pageId)
		p.touch(key)
		return f, nil
	}
	pg := page.New(pageType, pageId)
	f, err := p.admit(key, pg)
	if err != nil {
		return nil, err
	}
	p.metrics.SetPagesInUse(p.pinnedCount())
	return f, nil
}

func (p *Pool) pinnedCount() int {
	n := 0
	for _, f := range p.frames {
		if f.pinCount > 0 {
			n++
		}
	}
	return n
}

func (p *Pool) readFromDisk(key Key) (*page.Page, error) {
	path := filepath.Join(p.dataDir, key.fileName())
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return page.New(page.TypeIndex, key.PageId), nil
		}
		return nil, dberrors.Wrap(dberrors.IOError, err, "opening data file for index %d", key.IndexId)
	}
	defer f.Close()

	buf := make([]byte, page.Size)
	offset := int64(key.PageId) * page.Size
	n, err := f.ReadAt(buf, offset)
	if err != nil && n == 0 {
		// Offset beyond end-of-file: page has never been written.
		return page.New(page.TypeIndex, key.PageId), nil
	}
	if n < page.Size {
		// Short read: the file was truncated mid-page or never extended
		// this far; treat the remainder as zeroed, uninitialized payload.
		for i := n; i < page.Size; i++ {
			buf[i] = 0
		}
	}

	pg, err := page.FromBytes(buf)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func (p *Pool) writeThrough(f *Frame) error {
	path := filepath.Join(p.dataDir, f.key.fileName())
	if err := os.MkdirAll(p.dataDir, 0o755); err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "creating data directory %s", p.dataDir)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "opening data file for index %d", f.key.IndexId)
	}
	defer file.Close()

	start := time.Now()
	offset := int64(f.key.PageId) * page.Size
	if _, err := file.WriteAt(f.page.Bytes(), offset); err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "writing page %d of index %d", f.key.PageId, f.key.IndexId)
	}
	if err := file.Sync(); err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "syncing data file for index %d", f.key.IndexId)
	}
	p.metrics.RecordPageIO("write", time.Since(start))

	f.dirty = false
	return nil
}

// FlushTablePages writes every dirty frame whose key's IndexId exactly
// matches indexId.
func (p *Pool) FlushTablePages(indexId int32) error {
	for key, f := range p.frames {
		if key.IndexId != indexId || !f.dirty {
			continue
		}
		if err := p.writeThrough(f); err != nil {
			return err
		}
	}
	return nil
}

// FlushAllPages writes every dirty frame in the pool.
func (p *Pool) FlushAllPages() error {
	for _, f := range p.frames {
		if !f.dirty {
			continue
		}
		if err := p.writeThrough(f); err != nil {
			return err
		}
	}
	return nil
}
