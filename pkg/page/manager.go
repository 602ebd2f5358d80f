package page

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/pkg/dberrors"
)

// PageManager allocates page ids for a single index, persisting its
// allocation bitmap and free list to disk between opens.
type PageManager struct {
	indexId    int32
	dataDir    string
	nextPageId uint32
	allocated  map[uint32]bool
	freeList   []uint32 // FIFO order: oldest-freed id is reused first

	log *logger.Logger
}

// metaFileName returns the metadata file name for indexId, per
// "table_<indexId>.pagemeta".
func metaFileName(indexId int32) string {
	return fmt.Sprintf("table_%d.pagemeta", indexId)
}

// Open creates or reattaches a PageManager for indexId, loading its
// persisted state from dataDir. A missing file yields a pristine manager.
func Open(dataDir string, indexId int32, log *logger.Logger) (*PageManager, error) {
	pm := &PageManager{
		indexId:   indexId,
		dataDir:   dataDir,
		allocated: make(map[uint32]bool),
		log:       log.BufferLogger(),
	}
	if err := pm.load(); err != nil {
		return nil, err
	}
	return pm, nil
}

// Allocate returns a free page id, reusing a previously-freed id before
// minting a new one.
func (pm *PageManager) Allocate() (uint32, error) {
	var id uint32
	if len(pm.freeList) > 0 {
		id = pm.freeList[0]
		pm.freeList = pm.freeList[1:]
	} else {
		id = pm.nextPageId
		pm.nextPageId++
	}
	pm.allocated[id] = true
	if err := pm.save(); err != nil {
		return 0, err
	}
	return id, nil
}

// Free releases pageId back to the free list. Freeing an id that is not
// currently allocated is a silent no-op.
func (pm *PageManager) Free(pageId uint32) error {
	if !pm.allocated[pageId] {
		return nil
	}
	delete(pm.allocated, pageId)
	pm.freeList = append(pm.freeList, pageId)
	return pm.save()
}

// IsAllocated reports whether pageId is currently allocated.
func (pm *PageManager) IsAllocated(pageId uint32) bool {
	return pm.allocated[pageId]
}

// AllocatedCount returns the number of currently allocated page ids.
func (pm *PageManager) AllocatedCount() int {
	return len(pm.allocated)
}

// FreeCount returns the number of page ids awaiting reuse.
func (pm *PageManager) FreeCount() int {
	return len(pm.freeList)
}

// NextPageId returns the next never-used page id.
func (pm *PageManager) NextPageId() uint32 {
	return pm.nextPageId
}

// DataDir returns the directory this manager's metadata and page files
// live under.
func (pm *PageManager) DataDir() string {
	return pm.dataDir
}

func (pm *PageManager) metaPath() string {
	return filepath.Join(pm.dataDir, metaFileName(pm.indexId))
}

// load reads persisted state from disk; a missing file is not an error.
func (pm *PageManager) load() error {
	data, err := os.ReadFile(pm.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dberrors.Wrap(dberrors.IOError, err, "reading page metadata for index %d", pm.indexId)
	}
	if len(data) == 0 {
		return nil
	}
	if len(data) < 8 {
		return dberrors.New(dberrors.MetadataCorrupt, "page metadata for index %d truncated", pm.indexId)
	}

	nextPageId := beUint32(data[0:4])
	freeCount := beUint32(data[4:8])
	want := 8 + int(freeCount)*4
	if len(data) != want {
		return dberrors.New(dberrors.MetadataCorrupt, "page metadata for index %d has length %d, want %d", pm.indexId, len(data), want)
	}

	freeList := make([]uint32, freeCount)
	freeSet := make(map[uint32]bool, freeCount)
	off := 8
	for i := uint32(0); i < freeCount; i++ {
		id := beUint32(data[off : off+4])
		freeList[i] = id
		freeSet[id] = true
		off += 4
	}

	allocated := make(map[uint32]bool)
	for id := uint32(0); id < nextPageId; id++ {
		if !freeSet[id] {
			allocated[id] = true
		}
	}

	pm.nextPageId = nextPageId
	pm.freeList = freeList
	pm.allocated = allocated
	return nil
}

// save atomically overwrites the metadata file: write to a temp file, fsync
// it, rename over the target, then fsync the containing directory. Mirrors
// the teacher's temp-file-plus-rename durability pattern.
func (pm *PageManager) save() error {
	if err := os.MkdirAll(pm.dataDir, 0o755); err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "creating data directory %s", pm.dataDir)
	}

	buf := make([]byte, 8+len(pm.freeList)*4)
	putBeUint32(buf[0:4], pm.nextPageId)
	putBeUint32(buf[4:8], uint32(len(pm.freeList)))
	off := 8
	for _, id := range pm.freeList {
		putBeUint32(buf[off:off+4], id)
		off += 4
	}

	target := pm.metaPath()
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "creating temp page metadata file for index %d", pm.indexId)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return dberrors.Wrap(dberrors.IOError, err, "writing page metadata for index %d", pm.indexId)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return dberrors.Wrap(dberrors.IOError, err, "syncing page metadata for index %d", pm.indexId)
	}
	if err := f.Close(); err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "closing temp page metadata file for index %d", pm.indexId)
	}
	if err := os.Rename(tmp, target); err != nil {
		return dberrors.Wrap(dberrors.IOError, err, "renaming page metadata for index %d", pm.indexId)
	}

	if dir, err := os.Open(pm.dataDir); err == nil {
		dir.Sync()
		dir.Close()
	}

	pm.log.Debug("page metadata saved").Int32("index_id", pm.indexId).Uint32("next_page_id", pm.nextPageId).Send()
	return nil
}
