package buffer

import (
	"sync"

	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

// Frame is one slot of the buffer pool. Its Raw payload is guarded by its
// own reader/writer latch so page-level reads/writes never contend with the
// pool's structural mutex; PinCount and Dirty are structural fields and are
// only ever touched while the pool holds its own mutex.
type Frame struct {
	Latch sync.RWMutex

	PageID   page.ID
	Raw      *page.Raw
	PinCount int
	Dirty    bool
}

// Handle is a scoped, auto-releasing reference to a pinned frame. Its
// Release method folds in the caller's dirty bit and drops the pin exactly
// once, eliminating the "forgot to unpin" class of bug that manual
// pin/unpin call pairs are prone to.
type Handle struct {
	pool     *Pool
	pageID   page.ID
	frame    *Frame
	released bool
}

// Frame exposes the underlying Frame for direct payload access under its
// own latch.
func (h *Handle) Frame() *Frame { return h.frame }

// Release unpins the frame, ORing dirty into its dirty flag. Calling
// Release more than once is a no-op past the first call.
func (h *Handle) Release(dirty bool) {
	if h.released {
		return
	}
	h.released = true
	_ = h.pool.UnpinPage(h.pageID, dirty)
}
