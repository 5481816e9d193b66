// Package buffer implements the fixed-size frame cache that mediates every
// page access in the engine: pin counts, dirty tracking, and LRU eviction
// over the disk manager, addressed by a single logical page-id space.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/disk"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

var log = logging.For("buffer")

// DefaultPoolSize is the baseline frame count used when the caller does not
// override it.
const DefaultPoolSize = 128

// Metrics counts pool activity for Stats(); updated with atomics so reads
// never contend with the structural mutex.
type Metrics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Pool is the shared, mutex-guarded frame cache. All structural operations
// (fetch/new/unpin/flush/delete) serialize through mu; individual frame
// payloads are guarded by their own Frame.Latch.
type Pool struct {
	mu sync.Mutex

	disk      *disk.Manager
	frames    []*Frame
	pageTable map[page.ID]int
	freeList  []int
	replacer  Replacer

	hits, misses, evictions uint64
}

// NewPool creates a pool of size frames backed by dm.
func NewPool(size int, dm *disk.Manager) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{
		disk:      dm,
		frames:    make([]*Frame, size),
		pageTable: make(map[page.ID]int, size),
		replacer:  newLRUReplacer(),
	}
	for i := 0; i < size; i++ {
		p.frames[i] = &Frame{PageID: page.InvalidID}
		p.freeList = append(p.freeList, i)
	}
	return p
}

// FetchPage returns a pinned handle to id, loading it from disk if it is
// not already resident.
func (p *Pool) FetchPage(id page.ID) (*Handle, error) {
	p.mu.Lock()

	if idx, ok := p.pageTable[id]; ok {
		f := p.frames[idx]
		f.PinCount++
		p.replacer.Pin(idx)
		atomic.AddUint64(&p.hits, 1)
		p.mu.Unlock()
		log.WithField("page", id).Debug("fetch hit")
		return &Handle{pool: p, pageID: id, frame: f}, nil
	}
	atomic.AddUint64(&p.misses, 1)

	idx, err := p.allocateFrame()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	f := p.frames[idx]

	raw := page.NewRaw()
	if err := p.disk.ReadPage(id, raw); err != nil {
		p.freeList = append(p.freeList, idx)
		p.mu.Unlock()
		return nil, err
	}

	f.PageID = id
	f.Raw = raw
	f.PinCount = 1
	f.Dirty = false
	p.pageTable[id] = idx
	p.mu.Unlock()

	log.WithField("page", id).Debug("fetch miss, loaded from disk")
	return &Handle{pool: p, pageID: id, frame: f}, nil
}

// NewPage allocates a fresh logical page on disk and returns it pinned and
// zeroed, marked dirty since it exists only in memory until flushed.
func (p *Pool) NewPage() (*Handle, error) {
	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	idx, err := p.allocateFrame()
	if err != nil {
		p.mu.Unlock()
		if derr := p.disk.DeallocatePage(id); derr != nil {
			log.WithError(derr).Warn("failed to roll back allocation after NoAvailableFrame")
		}
		return nil, err
	}

	f := p.frames[idx]
	f.PageID = id
	f.Raw = page.NewRaw()
	f.PinCount = 1
	f.Dirty = true
	p.pageTable[id] = idx
	p.mu.Unlock()

	log.WithField("page", id).Debug("new page")
	return &Handle{pool: p, pageID: id, frame: f}, nil
}

// allocateFrame returns a free frame index, evicting via the replacer if
// necessary. Caller must hold p.mu.
func (p *Pool) allocateFrame() (int, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, nil
	}

	idx, ok := p.replacer.Victim()
	if !ok {
		return 0, dberrors.New(dberrors.NoAvailableFrame, "all frames pinned")
	}
	victim := p.frames[idx]
	if victim.Dirty {
		if err := p.disk.WritePage(victim.PageID, victim.Raw); err != nil {
			p.replacer.Unpin(idx)
			return 0, err
		}
	}
	delete(p.pageTable, victim.PageID)
	atomic.AddUint64(&p.evictions, 1)
	log.WithField("page", victim.PageID).Debug("evicted")
	victim.PageID = page.InvalidID
	victim.Raw = nil
	victim.Dirty = false
	return idx, nil
}

// UnpinPage decrements id's pin count and ORs dirty into its dirty flag.
// Prefer releasing via the Handle returned from FetchPage/NewPage.
func (p *Pool) UnpinPage(id page.ID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return dberrors.New(dberrors.Failed, "unpin: page %d not resident", id)
	}
	f := p.frames[idx]
	if f.PinCount == 0 {
		return dberrors.New(dberrors.Failed, "unpin: page %d already at pin 0", id)
	}
	f.PinCount--
	if dirty {
		f.Dirty = true
	}
	if f.PinCount == 0 {
		p.replacer.Unpin(idx)
	}
	return nil
}

// FlushPage writes id back to disk if dirty, without changing its pin.
func (p *Pool) FlushPage(id page.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return dberrors.New(dberrors.Failed, "flush: page %d not resident", id)
	}
	f := p.frames[idx]
	if !f.Dirty {
		return nil
	}
	if err := p.disk.WritePage(f.PageID, f.Raw); err != nil {
		return err
	}
	f.Dirty = false
	return nil
}

// FlushAll writes back every resident dirty page.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, idx := range p.pageTable {
		f := p.frames[idx]
		if f.Dirty {
			if err := p.disk.WritePage(id, f.Raw); err != nil {
				return err
			}
			f.Dirty = false
		}
	}
	return nil
}

// DeletePage evicts id from the pool (it must be unpinned) and asks the
// disk manager to free its backing page.
func (p *Pool) DeletePage(id page.ID) error {
	p.mu.Lock()

	idx, ok := p.pageTable[id]
	if !ok {
		p.mu.Unlock()
		return p.disk.DeallocatePage(id)
	}
	f := p.frames[idx]
	if f.PinCount != 0 {
		p.mu.Unlock()
		return dberrors.New(dberrors.Failed, "delete: page %d still pinned (count=%d)", id, f.PinCount)
	}

	p.replacer.Pin(idx) // remove from eviction candidacy if present
	delete(p.pageTable, id)
	f.PageID = page.InvalidID
	f.Raw = nil
	f.Dirty = false
	p.freeList = append(p.freeList, idx)
	p.mu.Unlock()

	return p.disk.DeallocatePage(id)
}

// CheckAllUnpinned is the debug predicate used by property tests: true iff
// every frame currently has pin count 0.
func (p *Pool) CheckAllUnpinned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.frames {
		if f.PinCount > 0 {
			return false
		}
	}
	return true
}

// Stats reports cache activity counters.
func (p *Pool) Stats() Metrics {
	return Metrics{
		Hits:      atomic.LoadUint64(&p.hits),
		Misses:    atomic.LoadUint64(&p.misses),
		Evictions: atomic.LoadUint64(&p.evictions),
	}
}

// Size returns the pool's fixed frame capacity.
func (p *Pool) Size() int { return len(p.frames) }
