package buffer

import "container/list"

// Replacer selects an eviction victim among frames that are currently
// unpinned. The pool only ever asks a Replacer about frame indices it
// itself tracks; any policy satisfying this contract is a valid
// implementation, regardless of the eviction strategy it uses internally.
type Replacer interface {
	// Pin removes frame from eviction candidacy.
	Pin(frame int)
	// Unpin marks frame as an eviction candidate.
	Unpin(frame int)
	// Victim picks and removes an eviction candidate, or ok=false if none.
	Victim() (frame int, ok bool)
	// Size reports the number of eviction candidates.
	Size() int
}

// lruReplacer is the O(1) least-recently-used baseline: a doubly linked
// list of unpinned frame indices, most-recently-unpinned at the back, so
// Victim always returns the longest-unpinned frame (ties broken by
// longest-unpinned-first, satisfied automatically by list order).
type lruReplacer struct {
	list  *list.List
	index map[int]*list.Element
}

func newLRUReplacer() *lruReplacer {
	return &lruReplacer{list: list.New(), index: make(map[int]*list.Element)}
}

func (r *lruReplacer) Pin(frame int) {
	if e, ok := r.index[frame]; ok {
		r.list.Remove(e)
		delete(r.index, frame)
	}
}

func (r *lruReplacer) Unpin(frame int) {
	if _, ok := r.index[frame]; ok {
		return
	}
	r.index[frame] = r.list.PushBack(frame)
}

func (r *lruReplacer) Victim() (int, bool) {
	e := r.list.Front()
	if e == nil {
		return 0, false
	}
	r.list.Remove(e)
	frame := e.Value.(int)
	delete(r.index, frame)
	return frame, true
}

func (r *lruReplacer) Size() int { return r.list.Len() }
