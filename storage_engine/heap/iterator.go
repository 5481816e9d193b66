package heap

import (
	"github.com/shadowash0215/daemonsql/storage_engine/page"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

// Iterator walks a Heap's live tuples in page order. It holds no frame
// pinned between calls to Next; each call fetches, reads, and releases.
type Iterator struct {
	heap    *Heap
	schema  *record.Schema
	pageID  page.ID
	slot    uint16
	started bool
	done    bool
}

// Begin positions a new Iterator at the first live tuple of the heap.
func Begin(h *Heap, schema *record.Schema) *Iterator {
	return &Iterator{heap: h, schema: schema, pageID: h.FirstPageID}
}

// End reports whether the iterator has been exhausted.
func (it *Iterator) End() bool {
	if it.done {
		return true
	}
	if !it.started {
		return it.peekFirst() == nil
	}
	return false
}

// RowID returns the current row's location. Valid only when !End().
func (it *Iterator) RowID() page.RowID {
	return page.RowID{PageID: it.pageID, Slot: it.slot}
}

// Row materializes and decodes the current row. Valid only when !End().
func (it *Iterator) Row() (*record.Row, error) {
	data, err := it.heap.GetTuple(it.RowID())
	if err != nil {
		return nil, err
	}
	row, _, err := record.DeserializeRow(data, it.schema)
	return row, err
}

// Next advances to the next live tuple, returning false once exhausted.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if !it.started {
		it.started = true
		return it.seekFirst()
	}
	return it.seekNext()
}

func (it *Iterator) peekFirst() *page.RowID {
	save := *it
	if save.seekFirst() {
		rid := page.RowID{PageID: save.pageID, Slot: save.slot}
		return &rid
	}
	return nil
}

func (it *Iterator) seekFirst() bool {
	cur := it.pageID
	for cur != page.InvalidID {
		handle, err := it.heap.pool.FetchPage(cur)
		if err != nil {
			it.done = true
			return false
		}
		frame := handle.Frame()
		frame.Latch.RLock()
		slot, err := page.GetFirstTupleRid(frame.Raw)
		next := page.NextPageID(frame.Raw)
		frame.Latch.RUnlock()
		handle.Release(false)

		if err == nil {
			it.pageID = cur
			it.slot = slot
			return true
		}
		cur = next
	}
	it.done = true
	return false
}

func (it *Iterator) seekNext() bool {
	cur := it.pageID
	handle, err := it.heap.pool.FetchPage(cur)
	if err != nil {
		it.done = true
		return false
	}
	frame := handle.Frame()
	frame.Latch.RLock()
	slot, err := page.GetNextTupleRid(frame.Raw, it.slot)
	next := page.NextPageID(frame.Raw)
	frame.Latch.RUnlock()
	handle.Release(false)

	if err == nil {
		it.slot = slot
		return true
	}

	cur = next
	for cur != page.InvalidID {
		handle, err := it.heap.pool.FetchPage(cur)
		if err != nil {
			it.done = true
			return false
		}
		frame := handle.Frame()
		frame.Latch.RLock()
		slot, err := page.GetFirstTupleRid(frame.Raw)
		n := page.NextPageID(frame.Raw)
		frame.Latch.RUnlock()
		handle.Release(false)

		if err == nil {
			it.pageID = cur
			it.slot = slot
			return true
		}
		cur = n
	}
	it.done = true
	return false
}
