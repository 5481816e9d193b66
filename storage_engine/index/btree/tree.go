package btree

import (
	"context"
	"sync"

	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/keymanager"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

var log = logging.For("btree")

// Index is one B+Tree. Its structural mutations (insert/remove/split/
// merge) serialize through a tree-wide mu rather than true per-node
// crabbing latches — a deliberate simplification recorded in the
// project's design notes. Buffer pool frames still latch individually
// for the underlying page I/O.
type Index struct {
	mu sync.RWMutex

	pool        *buffer.Pool
	keySize     uint32
	cmp         func(a, b []byte) int
	root        page.ID
	maxLeaf     int
	maxInternal int

	// onRootChange, if set, is invoked whenever the root page id changes
	// (initial creation, split-induced new root, or collapse), so the
	// owning catalog can persist the new value into the index-roots page.
	onRootChange func(page.ID) error
}

// Create allocates a fresh, empty tree (a single empty leaf root).
func Create(pool *buffer.Pool, keySize uint32, onRootChange func(page.ID) error) (*Index, error) {
	t := &Index{
		pool:         pool,
		keySize:      keySize,
		cmp:          keymanager.Compare,
		maxLeaf:      maxLeafSize(keySize),
		maxInternal:  maxInternalSize(keySize),
		onRootChange: onRootChange,
	}

	handle, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	root := newLeaf(handle.Frame().PageID, keySize)
	serializeNode(root, handle.Frame().Raw)
	handle.Release(true)

	t.root = root.pageID
	if onRootChange != nil {
		if err := onRootChange(t.root); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Open reconstructs an Index handle over an existing tree rooted at root.
func Open(pool *buffer.Pool, keySize uint32, root page.ID, onRootChange func(page.ID) error) *Index {
	return &Index{
		pool:         pool,
		keySize:      keySize,
		cmp:          keymanager.Compare,
		root:         root,
		maxLeaf:      maxLeafSize(keySize),
		maxInternal:  maxInternalSize(keySize),
		onRootChange: onRootChange,
	}
}

// RootPageID returns the tree's current root page. It changes over the
// tree's lifetime as splits and collapses occur.
func (t *Index) RootPageID() page.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

func (t *Index) fetch(id page.ID) (*buffer.Handle, *node, error) {
	h, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, nil, err
	}
	f := h.Frame()
	f.Latch.RLock()
	n := deserializeNode(f.Raw, id)
	f.Latch.RUnlock()
	return h, n, nil
}

func (t *Index) write(h *buffer.Handle, n *node) {
	f := h.Frame()
	f.Latch.Lock()
	serializeNode(n, f.Raw)
	f.Latch.Unlock()
}

func (t *Index) newNode(leaf bool) (*buffer.Handle, *node, error) {
	h, err := t.pool.NewPage()
	if err != nil {
		return nil, nil, err
	}
	var n *node
	if leaf {
		n = newLeaf(h.Frame().PageID, t.keySize)
	} else {
		n = newInternal(h.Frame().PageID, t.keySize)
	}
	t.write(h, n)
	return h, n, nil
}

// GetValue looks up key and returns its RowID, or a KeyNotFound error.
func (t *Index) GetValue(ctx context.Context, key []byte) (page.RowID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leafHandle, leaf, err := t.findLeaf(t.root, key)
	if err != nil {
		return page.RowID{}, err
	}
	defer leafHandle.Release(false)

	i := exactIndex(leaf.keys, key, t.cmp)
	if i < 0 {
		return page.RowID{}, dberrors.New(dberrors.KeyNotFound, "key not found")
	}
	return leaf.values[i], nil
}

func (t *Index) findLeaf(start page.ID, key []byte) (*buffer.Handle, *node, error) {
	id := start
	for {
		h, n, err := t.fetch(id)
		if err != nil {
			return nil, nil, err
		}
		if n.isLeaf() {
			return h, n, nil
		}
		i := lowerBound(n.keys, key, t.cmp)
		// lowerBound gives the insertion point among keys; the child to
		// descend into is that same index, since children[0] covers
		// everything below keys[0].
		if i < len(n.keys) && t.cmp(n.keys[i], key) == 0 {
			i++
		}
		child := n.children[i]
		h.Release(false)
		id = child
	}
}

// Insert adds key/rid to the tree. If key is already present, the tree is
// left unchanged and Insert returns (false, nil) — callers wanting "key
// must not exist" semantics check the returned bool, not just the error.
func (t *Index) Insert(ctx context.Context, key []byte, rid page.RowID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	leafHandle, leaf, err := t.findLeaf(t.root, key)
	if err != nil {
		return false, err
	}

	if exactIndex(leaf.keys, key, t.cmp) >= 0 {
		leafHandle.Release(false)
		return false, nil
	}

	pos := lowerBound(leaf.keys, key, t.cmp)
	leaf.keys = insertKeyAt(leaf.keys, pos, key)
	leaf.values = insertKeyAt(leaf.values, pos, rid)

	if leaf.size() > t.maxLeaf {
		// One key over capacity does not fit the page; splitLeaf writes both halves.
		leafHandle.Release(false)
		return true, t.splitLeaf(leaf.pageID, leaf)
	}
	t.write(leafHandle, leaf)
	leafHandle.Release(true)
	return true, nil
}

func (t *Index) splitLeaf(leafID page.ID, leaf *node) error {
	mid := len(leaf.keys) / 2

	rightHandle, right, err := t.newNode(true)
	if err != nil {
		return err
	}

	right.keys = append(right.keys, leaf.keys[mid:]...)
	right.values = append(right.values, leaf.values[mid:]...)
	right.next = leaf.next
	right.parent = leaf.parent

	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]
	leaf.next = right.pageID

	leafHandle, err := t.pool.FetchPage(leafID)
	if err != nil {
		rightHandle.Release(true)
		return err
	}
	t.write(leafHandle, leaf)
	leafHandle.Release(true)

	sepKey := right.keys[0]
	t.write(rightHandle, right)
	rightID := right.pageID
	rightHandle.Release(true)

	if leafID == t.root {
		return t.createNewRoot(leafID, sepKey, rightID)
	}
	return t.insertIntoParent(leaf.parent, leafID, sepKey, rightID)
}

func (t *Index) insertIntoParent(parentID page.ID, leftID page.ID, sepKey []byte, rightID page.ID) error {
	parentHandle, parent, err := t.fetch(parentID)
	if err != nil {
		return err
	}

	idx := 0
	for idx < len(parent.children) && parent.children[idx] != leftID {
		idx++
	}

	parent.keys = insertKeyAt(parent.keys, idx, sepKey)
	parent.children = insertKeyAt(parent.children, idx+1, rightID)

	if err := t.setParent(rightID, parentID); err != nil {
		parentHandle.Release(false)
		return err
	}

	if parent.size() > t.maxInternal {
		// One key over capacity does not fit the page; splitInternal writes both halves.
		parentHandle.Release(false)
		return t.splitInternal(parentID, parent)
	}
	t.write(parentHandle, parent)
	parentHandle.Release(true)
	return nil
}

func (t *Index) splitInternal(nodeID page.ID, n *node) error {
	mid := len(n.keys) / 2
	promoteKey := n.keys[mid]

	rightHandle, right, err := t.newNode(false)
	if err != nil {
		return err
	}
	right.keys = append(right.keys, n.keys[mid+1:]...)
	right.children = append(right.children, n.children[mid+1:]...)
	right.parent = n.parent

	for _, childID := range right.children {
		if err := t.setParent(childID, right.pageID); err != nil {
			rightHandle.Release(false)
			return err
		}
	}

	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	nHandle, err := t.pool.FetchPage(nodeID)
	if err != nil {
		rightHandle.Release(true)
		return err
	}
	t.write(nHandle, n)
	nHandle.Release(true)

	t.write(rightHandle, right)
	rightID := right.pageID
	rightHandle.Release(true)

	if nodeID == t.root {
		return t.createNewRoot(nodeID, promoteKey, rightID)
	}
	return t.insertIntoParent(n.parent, nodeID, promoteKey, rightID)
}

func (t *Index) createNewRoot(leftID page.ID, promoteKey []byte, rightID page.ID) error {
	rootHandle, root, err := t.newNode(false)
	if err != nil {
		return err
	}
	root.keys = append(root.keys, promoteKey)
	root.children = append(root.children, leftID, rightID)
	root.parent = page.InvalidID

	if err := t.setParent(leftID, root.pageID); err != nil {
		rootHandle.Release(false)
		return err
	}
	if err := t.setParent(rightID, root.pageID); err != nil {
		rootHandle.Release(false)
		return err
	}

	t.write(rootHandle, root)
	t.root = root.pageID
	rootHandle.Release(true)

	if t.onRootChange != nil {
		return t.onRootChange(t.root)
	}
	return nil
}

func (t *Index) setParent(id page.ID, parent page.ID) error {
	h, n, err := t.fetch(id)
	if err != nil {
		return err
	}
	n.parent = parent
	t.write(h, n)
	h.Release(true)
	return nil
}

// Destroy walks every page this tree owns, leaf and internal, and releases
// it back to the disk manager. The Index must not be used afterward.
func (t *Index) Destroy(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == page.InvalidID {
		return nil
	}
	if err := t.destroySubtree(t.root); err != nil {
		return err
	}
	t.root = page.InvalidID
	return nil
}

// destroySubtree deallocates every page under (and including) nodeID,
// freeing each child before its parent.
func (t *Index) destroySubtree(nodeID page.ID) error {
	h, n, err := t.fetch(nodeID)
	if err != nil {
		return err
	}
	h.Release(false)
	if !n.isLeaf() {
		for _, childID := range n.children {
			if err := t.destroySubtree(childID); err != nil {
				return err
			}
		}
	}
	return t.pool.DeletePage(nodeID)
}

// Remove deletes key from the tree if present; absence is not an error.
func (t *Index) Remove(ctx context.Context, key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == page.InvalidID {
		return nil
	}
	_, err := t.deleteRecursive(t.root, key)
	return err
}

// deleteRecursive removes key from the subtree rooted at nodeID and
// reports whether that node (after the removal and any borrow/merge at
// its level) is now below min_size, so its caller can rebalance it.
func (t *Index) deleteRecursive(nodeID page.ID, key []byte) (bool, error) {
	h, n, err := t.fetch(nodeID)
	if err != nil {
		return false, err
	}

	if n.isLeaf() {
		i := exactIndex(n.keys, key, t.cmp)
		if i < 0 {
			h.Release(false)
			return false, nil
		}
		n.keys = removeAt(n.keys, i)
		n.values = removeAt(n.values, i)
		t.write(h, n)
		h.Release(true)
		return nodeID != t.root && n.size() < minSize(t.maxLeaf), nil
	}

	i := lowerBound(n.keys, key, t.cmp)
	if i < len(n.keys) && t.cmp(n.keys[i], key) == 0 {
		i++
	}
	childID := n.children[i]
	h.Release(false)

	underflow, err := t.deleteRecursive(childID, key)
	if err != nil || !underflow {
		return false, err
	}
	return t.coalesceOrRedistribute(nodeID, i)
}

// coalesceOrRedistribute fixes an underflowing child at index i of parent
// nodeID by borrowing from a sibling or merging with one: prefer the left
// sibling, then the right, borrow before merge.
func (t *Index) coalesceOrRedistribute(parentID page.ID, i int) (bool, error) {
	ph, parent, err := t.fetch(parentID)
	if err != nil {
		return false, err
	}

	childID := parent.children[i]
	childHandle, child, err := t.fetch(childID)
	if err != nil {
		ph.Release(false)
		return false, err
	}

	var leftID, rightID page.ID = page.InvalidID, page.InvalidID
	if i > 0 {
		leftID = parent.children[i-1]
	}
	if i < len(parent.children)-1 {
		rightID = parent.children[i+1]
	}

	maxSize := t.maxInternal
	if child.isLeaf() {
		maxSize = t.maxLeaf
	}
	min := minSize(maxSize)

	if leftID != page.InvalidID {
		leftHandle, left, err := t.fetch(leftID)
		if err != nil {
			childHandle.Release(false)
			ph.Release(false)
			return false, err
		}
		if left.size() > min {
			t.redistributeFromLeft(parent, i, left, child)
			t.write(leftHandle, left)
			t.write(childHandle, child)
			t.write(ph, parent)
			leftHandle.Release(true)
			childHandle.Release(true)
			ph.Release(true)
			return false, nil
		}
		leftHandle.Release(false)
	}

	if rightID != page.InvalidID {
		rightHandle, right, err := t.fetch(rightID)
		if err != nil {
			childHandle.Release(false)
			ph.Release(false)
			return false, err
		}
		if right.size() > min {
			t.redistributeFromRight(parent, i, child, right)
			t.write(childHandle, child)
			t.write(rightHandle, right)
			t.write(ph, parent)
			rightHandle.Release(true)
			childHandle.Release(true)
			ph.Release(true)
			return false, nil
		}
		rightHandle.Release(false)
	}

	// No sibling has a spare entry to lend: merge.
	if leftID != page.InvalidID {
		leftHandle, left, err := t.fetch(leftID)
		if err != nil {
			childHandle.Release(false)
			ph.Release(false)
			return false, err
		}
		if err := t.coalesce(parent, i-1, left, child); err != nil {
			leftHandle.Release(false)
			childHandle.Release(false)
			ph.Release(false)
			return false, err
		}
		t.write(leftHandle, left)
		leftHandle.Release(true)
		childHandle.Release(false)
		if err := t.pool.DeletePage(childID); err != nil {
			ph.Release(false)
			return false, err
		}
	} else if rightID != page.InvalidID {
		rightHandle, right, err := t.fetch(rightID)
		if err != nil {
			childHandle.Release(false)
			ph.Release(false)
			return false, err
		}
		if err := t.coalesce(parent, i, child, right); err != nil {
			rightHandle.Release(false)
			childHandle.Release(false)
			ph.Release(false)
			return false, err
		}
		t.write(childHandle, child)
		childHandle.Release(true)
		rightHandle.Release(false)
		if err := t.pool.DeletePage(rightID); err != nil {
			ph.Release(false)
			return false, err
		}
	} else {
		// Root with a single underflowing child and no siblings: nothing
		// to merge with, leave as-is.
		childHandle.Release(true)
		ph.Release(false)
		return false, nil
	}

	t.write(ph, parent)

	underflow := parentID != t.root && parent.size() < minSize(t.maxInternal)
	if parentID == t.root && parent.size() == 0 {
		ph.Release(true)
		return false, t.adjustRoot(parent)
	}
	ph.Release(true)
	return underflow, nil
}

// adjustRoot collapses an empty internal root, promoting its sole
// remaining child to be the new root.
func (t *Index) adjustRoot(oldRoot *node) error {
	if len(oldRoot.children) == 0 {
		t.root = page.InvalidID
		if t.onRootChange != nil {
			return t.onRootChange(t.root)
		}
		return nil
	}
	newRootID := oldRoot.children[0]
	if err := t.setParent(newRootID, page.InvalidID); err != nil {
		return err
	}
	if err := t.pool.DeletePage(oldRoot.pageID); err != nil {
		return err
	}
	t.root = newRootID
	if t.onRootChange != nil {
		return t.onRootChange(t.root)
	}
	return nil
}

func (t *Index) redistributeFromLeft(parent *node, childIdx int, left, child *node) {
	if child.isLeaf() {
		lastKey := left.keys[len(left.keys)-1]
		lastVal := left.values[len(left.values)-1]
		left.keys = left.keys[:len(left.keys)-1]
		left.values = left.values[:len(left.values)-1]
		child.keys = insertKeyAt(child.keys, 0, lastKey)
		child.values = insertKeyAt(child.values, 0, lastVal)
		parent.keys[childIdx-1] = child.keys[0]
		return
	}
	sep := parent.keys[childIdx-1]
	lastKey := left.keys[len(left.keys)-1]
	lastChild := left.children[len(left.children)-1]
	left.keys = left.keys[:len(left.keys)-1]
	left.children = left.children[:len(left.children)-1]
	child.keys = insertKeyAt(child.keys, 0, sep)
	child.children = insertKeyAt(child.children, 0, lastChild)
	_ = t.setParent(lastChild, child.pageID)
	parent.keys[childIdx-1] = lastKey
}

func (t *Index) redistributeFromRight(parent *node, childIdx int, child, right *node) {
	if child.isLeaf() {
		firstKey := right.keys[0]
		firstVal := right.values[0]
		right.keys = right.keys[1:]
		right.values = right.values[1:]
		child.keys = append(child.keys, firstKey)
		child.values = append(child.values, firstVal)
		parent.keys[childIdx] = right.keys[0]
		return
	}
	sep := parent.keys[childIdx]
	firstKey := right.keys[0]
	firstChild := right.children[0]
	right.keys = right.keys[1:]
	right.children = right.children[1:]
	child.keys = append(child.keys, sep)
	child.children = append(child.children, firstChild)
	_ = t.setParent(firstChild, child.pageID)
	parent.keys[childIdx] = firstKey
}

// coalesce merges right into left (right's separator lives at
// parent.keys[sepIdx]) and removes that separator and right's child slot
// from parent. Caller deletes right's now-empty page.
func (t *Index) coalesce(parent *node, sepIdx int, left, right *node) error {
	if left.isLeaf() {
		left.keys = append(left.keys, right.keys...)
		left.values = append(left.values, right.values...)
		left.next = right.next
	} else {
		left.keys = append(left.keys, parent.keys[sepIdx])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
		for _, childID := range right.children {
			if err := t.setParent(childID, left.pageID); err != nil {
				return err
			}
		}
	}
	parent.keys = removeAt(parent.keys, sepIdx)
	parent.children = removeAt(parent.children, sepIdx+1)
	return nil
}
