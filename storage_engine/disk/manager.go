// Package disk translates logical page ids into physical file offsets over
// a single bitmap-segmented database file, rather than one file per table.
package disk

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

var log = logging.For("disk")

// Manager owns the OS file handle for one database and maps logical page
// ids to physical offsets through an extent/bitmap scheme.
type Manager struct {
	mu   sync.Mutex
	file *os.File
	meta *metaPage
}

// Open opens or creates path and loads (or initializes) its metadata page.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.Failed, err, "open database file %s", path)
	}

	m := &Manager{file: f}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberrors.Wrap(dberrors.Failed, err, "stat database file %s", path)
	}

	if info.Size() == 0 {
		m.meta = &metaPage{}
		if err := m.flushMeta(); err != nil {
			f.Close()
			return nil, err
		}
		log.WithField("path", path).Info("initialized fresh database file")
	} else {
		raw := page.NewRaw()
		if err := m.readPhysical(0, raw); err != nil {
			f.Close()
			return nil, err
		}
		m.meta = deserializeMetaPage(raw)
		log.WithFields(map[string]any{
			"path":    path,
			"pages":   m.meta.numAllocatedPages,
			"extents": m.meta.numExtents,
		}).Info("opened existing database file")
	}

	return m, nil
}

// physicalOffset converts a logical page id into a physical page number:
// physical = 1 + extent*(BitmapSize+1) + (offset+1).
func physicalOffset(logical int64) int64 {
	extent := logical / page.BitmapSize
	offset := logical % page.BitmapSize
	return 1 + extent*(page.BitmapSize+1) + (offset + 1)
}

func bitmapPhysicalOffset(extent int64) int64 {
	return 1 + extent*(page.BitmapSize+1)
}

func (m *Manager) readPhysical(physical int64, raw *page.Raw) error {
	buf := raw.Bytes()
	n, err := m.file.ReadAt(buf, physical*page.Size)
	if err != nil && err != io.EOF && !errors.Is(err, io.EOF) {
		return dberrors.Wrap(dberrors.Failed, err, "read physical page %d", physical)
	}
	for i := n; i < page.Size; i++ {
		buf[i] = 0
	}
	return nil
}

func (m *Manager) writePhysical(physical int64, raw *page.Raw) error {
	if _, err := m.file.WriteAt(raw.Bytes(), physical*page.Size); err != nil {
		return dberrors.Wrap(dberrors.Failed, err, "write physical page %d", physical)
	}
	return nil
}

func (m *Manager) flushMeta() error {
	raw := page.NewRaw()
	m.meta.serializeTo(raw)
	return m.writePhysical(0, raw)
}

// AllocatePage reserves the first free logical page and returns its id.
func (m *Manager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.meta.numAllocatedPages >= uint32(page.MaxValidPageID) {
		return page.InvalidID, dberrors.New(dberrors.OutOfSpace, "database file exhausted")
	}

	for extent := uint32(0); extent < m.meta.numExtents; extent++ {
		if m.meta.extentUsed(extent) < page.BitmapSize {
			id, err := m.allocateInExtent(extent)
			if err != nil {
				return page.InvalidID, err
			}
			return id, nil
		}
	}

	// No extent has room: append a new one.
	extent := m.meta.numExtents
	m.meta.numExtents++
	id, err := m.allocateInExtent(extent)
	if err != nil {
		m.meta.numExtents--
		return page.InvalidID, err
	}
	log.WithField("extent", extent).Info("appended new extent")
	return id, nil
}

func (m *Manager) allocateInExtent(extent uint32) (page.ID, error) {
	raw := page.NewRaw()
	if err := m.readPhysical(bitmapPhysicalOffset(int64(extent)), raw); err != nil {
		return page.InvalidID, err
	}
	bm := deserializeBitmapPage(raw)
	offset, ok := bm.allocate()
	if !ok {
		return page.InvalidID, dberrors.New(dberrors.OutOfSpace, "extent %d has no free page despite counter", extent)
	}
	bm.serializeTo(raw)
	if err := m.writePhysical(bitmapPhysicalOffset(int64(extent)), raw); err != nil {
		return page.InvalidID, err
	}

	m.meta.numAllocatedPages++
	m.meta.extentUsedPage[extent] = bm.pageAllocated
	if err := m.flushMeta(); err != nil {
		return page.InvalidID, err
	}

	logical := int64(extent)*page.BitmapSize + int64(offset)
	log.WithFields(map[string]any{"page": logical, "extent": extent}).Debug("allocated page")
	return page.ID(logical), nil
}

// DeallocatePage clears the bit backing id.
func (m *Manager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	extent := uint32(int64(id) / page.BitmapSize)
	offset := uint32(int64(id) % page.BitmapSize)

	raw := page.NewRaw()
	if err := m.readPhysical(bitmapPhysicalOffset(int64(extent)), raw); err != nil {
		return err
	}
	bm := deserializeBitmapPage(raw)
	if !bm.deallocate(offset) {
		return dberrors.New(dberrors.InvalidPage, "page %d already free", id)
	}
	bm.serializeTo(raw)
	if err := m.writePhysical(bitmapPhysicalOffset(int64(extent)), raw); err != nil {
		return err
	}

	m.meta.numAllocatedPages--
	m.meta.extentUsedPage[extent] = bm.pageAllocated
	if err := m.flushMeta(); err != nil {
		return err
	}
	log.WithField("page", id).Debug("deallocated page")
	return nil
}

// IsPageFree reports whether id's bit is currently clear. An id past the
// highest allocated extent is considered free.
func (m *Manager) IsPageFree(id page.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	extent := uint32(int64(id) / page.BitmapSize)
	offset := uint32(int64(id) % page.BitmapSize)

	if extent >= m.meta.numExtents {
		return true, nil
	}

	raw := page.NewRaw()
	if err := m.readPhysical(bitmapPhysicalOffset(int64(extent)), raw); err != nil {
		return false, err
	}
	bm := deserializeBitmapPage(raw)
	return bm.isFree(offset), nil
}

// ReadPage loads logical page id into raw.
func (m *Manager) ReadPage(id page.ID, raw *page.Raw) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readPhysical(physicalOffset(int64(id)), raw)
}

// WritePage flushes raw to logical page id.
func (m *Manager) WritePage(id page.ID, raw *page.Raw) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writePhysical(physicalOffset(int64(id)), raw)
}

// Stats summarizes disk usage for CLI/debug consumption.
type Stats struct {
	NumAllocatedPages uint32
	NumExtents        uint32
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{NumAllocatedPages: m.meta.numAllocatedPages, NumExtents: m.meta.numExtents}
}

// Close flushes the metadata page and closes the underlying file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.flushMeta(); err != nil {
		return err
	}
	return m.file.Close()
}
