// Package heap implements the table heap: a singly linked list of slotted
// pages storing a table's variable-length records.
package heap

import (
	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

var log = logging.For("heap")

// Heap is a table's storage: a chain of slotted pages rooted at
// FirstPageID. Pages, not tuples, own their disk lifetime; individual
// tuples are deleted via MarkDelete/ApplyDelete.
type Heap struct {
	pool         *buffer.Pool
	FirstPageID  page.ID
}

// Create allocates the heap's first (empty) page.
func Create(pool *buffer.Pool) (*Heap, error) {
	h, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	defer h.Release(true)

	raw := h.Frame().Raw
	page.InitSlottedPage(raw, page.InvalidID)

	return &Heap{pool: pool, FirstPageID: h.Frame().PageID}, nil
}

// Open reconstructs a Heap handle over an existing chain rooted at first.
func Open(pool *buffer.Pool, first page.ID) *Heap {
	return &Heap{pool: pool, FirstPageID: first}
}

// InsertTuple walks the chain looking for a page with room; if none is
// found it appends a new page. Returns the tuple's RowID.
func (h *Heap) InsertTuple(data []byte) (page.RowID, error) {
	curID := h.FirstPageID
	var lastID page.ID = page.InvalidID

	for curID != page.InvalidID {
		handle, err := h.pool.FetchPage(curID)
		if err != nil {
			return page.RowID{}, err
		}
		frame := handle.Frame()
		frame.Latch.Lock()
		slot, insErr := page.InsertTuple(frame.Raw, data)
		if insErr == nil {
			next := curID
			frame.Latch.Unlock()
			handle.Release(true)
			log.WithFields(map[string]any{"page": next, "slot": slot}).Debug("inserted tuple")
			return page.RowID{PageID: next, Slot: slot}, nil
		}
		nextID := page.NextPageID(frame.Raw)
		frame.Latch.Unlock()
		handle.Release(false)

		lastID = curID
		curID = nextID
	}

	// No page had room: allocate a new one and link it in.
	newHandle, err := h.pool.NewPage()
	if err != nil {
		return page.RowID{}, err
	}
	newFrame := newHandle.Frame()
	newFrame.Latch.Lock()
	page.InitSlottedPage(newFrame.Raw, lastID)
	slot, err := page.InsertTuple(newFrame.Raw, data)
	newID := newFrame.PageID
	newFrame.Latch.Unlock()
	if err != nil {
		newHandle.Release(true)
		return page.RowID{}, dberrors.New(dberrors.Failed, "tuple of size %d too large for an empty page", len(data))
	}
	newHandle.Release(true)

	if h.FirstPageID == page.InvalidID {
		h.FirstPageID = newID
	} else {
		prevHandle, err := h.pool.FetchPage(lastID)
		if err != nil {
			return page.RowID{}, err
		}
		prevFrame := prevHandle.Frame()
		prevFrame.Latch.Lock()
		page.SetNextPageID(prevFrame.Raw, newID)
		prevFrame.Latch.Unlock()
		prevHandle.Release(true)
	}

	log.WithFields(map[string]any{"page": newID, "slot": slot}).Debug("inserted tuple on new page")
	return page.RowID{PageID: newID, Slot: slot}, nil
}

// GetTuple materializes the row at rid.
func (h *Heap) GetTuple(rid page.RowID) ([]byte, error) {
	handle, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	frame := handle.Frame()
	frame.Latch.RLock()
	data, err := page.GetTuple(frame.Raw, rid.Slot)
	frame.Latch.RUnlock()
	handle.Release(false)
	return data, err
}

// MarkDelete tombstones rid without freeing its slot.
func (h *Heap) MarkDelete(rid page.RowID) error {
	return h.mutateSlot(rid, page.MarkDelete)
}

// RollbackDelete un-tombstones a MarkDelete'd rid.
func (h *Heap) RollbackDelete(rid page.RowID) error {
	return h.mutateSlot(rid, page.RollbackDelete)
}

// ApplyDelete finalizes a MarkDelete'd rid, freeing its slot for reuse.
func (h *Heap) ApplyDelete(rid page.RowID) error {
	return h.mutateSlot(rid, page.ApplyDelete)
}

func (h *Heap) mutateSlot(rid page.RowID, op func(*page.Raw, uint16) error) error {
	handle, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	frame := handle.Frame()
	frame.Latch.Lock()
	err = op(frame.Raw, rid.Slot)
	frame.Latch.Unlock()
	handle.Release(err == nil)
	return err
}

// UpdateTuple attempts an in-place update, growing into the page's free
// space if needed. If newData still does not fit, the old slot is
// tombstoned and the row is re-inserted elsewhere, returning the new
// RowID.
func (h *Heap) UpdateTuple(rid page.RowID, newData []byte) (page.RowID, error) {
	handle, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return page.RowID{}, err
	}
	frame := handle.Frame()
	frame.Latch.Lock()
	fits, err := page.UpdateTuple(frame.Raw, rid.Slot, newData)
	frame.Latch.Unlock()
	if err != nil {
		handle.Release(false)
		return page.RowID{}, err
	}
	if fits {
		handle.Release(true)
		return rid, nil
	}
	handle.Release(false)

	if err := h.MarkDelete(rid); err != nil {
		return page.RowID{}, err
	}
	if err := h.ApplyDelete(rid); err != nil {
		return page.RowID{}, err
	}
	newRid, err := h.InsertTuple(newData)
	if err != nil {
		return page.RowID{}, err
	}
	return newRid, nil
}

// PageStats summarizes one page's live/tombstoned tuple counts.
type PageStats struct {
	PageID    page.ID
	Live      int
	Tombstone int
}

// Stats walks every page of the chain and reports live/tombstoned counts.
func (h *Heap) Stats() ([]PageStats, error) {
	var out []PageStats
	cur := h.FirstPageID
	for cur != page.InvalidID {
		handle, err := h.pool.FetchPage(cur)
		if err != nil {
			return nil, err
		}
		frame := handle.Frame()
		frame.Latch.RLock()
		count := page.TupleCount(frame.Raw)
		stats := PageStats{PageID: cur}
		for i := uint16(0); i < count; i++ {
			if _, err := page.GetTuple(frame.Raw, i); err == nil {
				stats.Live++
			} else {
				stats.Tombstone++
			}
		}
		next := page.NextPageID(frame.Raw)
		frame.Latch.RUnlock()
		handle.Release(false)

		out = append(out, stats)
		cur = next
	}
	return out, nil
}

// Drop deallocates every page in the chain. Called only at table drop.
func (h *Heap) Drop() error {
	cur := h.FirstPageID
	for cur != page.InvalidID {
		handle, err := h.pool.FetchPage(cur)
		if err != nil {
			return err
		}
		frame := handle.Frame()
		frame.Latch.RLock()
		next := page.NextPageID(frame.Raw)
		frame.Latch.RUnlock()
		handle.Release(false)

		if err := h.pool.DeletePage(cur); err != nil {
			return err
		}
		cur = next
	}
	h.FirstPageID = page.InvalidID
	return nil
}
