package btree

import "github.com/shadowash0215/daemonsql/storage_engine/page"

// Iterator is a forward-only scan over a tree's leaves. It keeps a decoded
// copy of the current leaf and holds no page pinned between calls, so an
// abandoned scan needs no cleanup.
type Iterator struct {
	tree   *Index
	leafID page.ID
	leaf   *node
	idx    int
	valid  bool
}

// Begin positions an iterator at the smallest key in the tree.
func Begin(t *Index) (*Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.root == page.InvalidID {
		return &Iterator{tree: t}, nil
	}
	h, leaf, err := t.findLeaf(t.root, nil)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, leafID: leaf.pageID, leaf: leaf, idx: 0}
	it.valid = it.idx < len(it.leaf.keys)
	h.Release(false)
	if !it.valid {
		return it.advancePage()
	}
	return it, nil
}

// Seek positions an iterator at the first key >= target.
func Seek(t *Index, target []byte) (*Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.root == page.InvalidID {
		return &Iterator{tree: t}, nil
	}
	h, leaf, err := t.findLeaf(t.root, target)
	if err != nil {
		return nil, err
	}
	defer h.Release(false)

	i := lowerBound(leaf.keys, target, t.keyCompare())
	it := &Iterator{tree: t, leafID: leaf.pageID, leaf: leaf, idx: i}
	if i < len(leaf.keys) {
		it.valid = true
		return it, nil
	}
	return it.advancePage()
}

func (t *Index) keyCompare() func(a, b []byte) int { return t.cmp }

// advancePage walks next_page_id links until a non-empty leaf is found.
func (it *Iterator) advancePage() (*Iterator, error) {
	next := it.leaf.next
	for next != page.InvalidID {
		h, n, err := it.tree.fetch(next)
		if err != nil {
			return nil, err
		}
		if len(n.keys) > 0 {
			it.leafID = n.pageID
			it.leaf = n
			it.idx = 0
			it.valid = true
			h.Release(false)
			return it, nil
		}
		nxt := n.next
		h.Release(false)
		next = nxt
	}
	it.valid = false
	return it, nil
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current entry's key.
func (it *Iterator) Key() []byte {
	if !it.valid {
		return nil
	}
	return it.leaf.keys[it.idx]
}

// Value returns the current entry's RowID.
func (it *Iterator) Value() page.RowID {
	if !it.valid {
		return page.RowID{}
	}
	return it.leaf.values[it.idx]
}

// Next advances the iterator, crossing leaf boundaries as needed.
func (it *Iterator) Next() (bool, error) {
	if !it.valid {
		return false, nil
	}
	it.idx++
	if it.idx < len(it.leaf.keys) {
		return true, nil
	}
	res, err := it.advancePage()
	if err != nil {
		return false, err
	}
	*it = *res
	return it.valid, nil
}
