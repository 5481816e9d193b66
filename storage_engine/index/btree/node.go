// Package btree implements the on-disk B+Tree used for every index:
// fixed-width keys, RowID-valued leaves, and the insert/split and
// borrow-or-merge deletion algorithm.
package btree

import (
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

type nodeType uint8

const (
	typeLeaf nodeType = iota
	typeInternal
)

// Header layout shared by every node page:
//
//	0  1  nodeType
//	1  4  keySize    uint32 — this tree's fixed key width
//	5  2  numKeys    uint16
//	7  4  parentPageID int32
//	11 4  nextPageID   int32 — leaf sibling chain; unused (InvalidID) for internal nodes
const (
	nodeOffType     = 0
	nodeOffKeySize  = 1
	nodeOffNumKeys  = 5
	nodeOffParent   = 7
	nodeOffNext     = 11
	nodeHeaderSize  = 15
)

// entry widths within the body region that follows the header.
const (
	rowIDWidth = 6 // page.ID (4) + slot (2)
	childWidth = 4 // page.ID
)

// node is the in-memory form of one B+Tree page: a small fixed header plus
// parallel key/value (leaf) or key/child (internal) slices. Nodes are
// deserialized whole on fetch and serialized whole on write.
type node struct {
	pageID   page.ID
	typ      nodeType
	keySize  uint32
	parent   page.ID
	next     page.ID // leaf only
	keys     [][]byte
	values   []page.RowID // leaf only, len(values) == len(keys)
	children []page.ID    // internal only, len(children) == len(keys)+1
}

func newLeaf(pageID page.ID, keySize uint32) *node {
	return &node{pageID: pageID, typ: typeLeaf, keySize: keySize, parent: page.InvalidID, next: page.InvalidID}
}

func newInternal(pageID page.ID, keySize uint32) *node {
	return &node{pageID: pageID, typ: typeInternal, keySize: keySize, parent: page.InvalidID}
}

func (n *node) isLeaf() bool { return n.typ == typeLeaf }
func (n *node) size() int    { return len(n.keys) }

// maxLeafSize is the largest number of keys a leaf of this key width can
// hold within one page.
func maxLeafSize(keySize uint32) int {
	avail := page.Size - nodeHeaderSize
	return avail / (int(keySize) + rowIDWidth)
}

// maxInternalSize is the largest number of keys an internal node of this
// key width can hold (it has one more child than keys).
func maxInternalSize(keySize uint32) int {
	avail := page.Size - nodeHeaderSize - childWidth // reserve the first (leading) child pointer
	return avail / (int(keySize) + childWidth)
}

func minSize(maxSize int) int { return (maxSize + 1) / 2 }

func serializeNode(n *node, raw *page.Raw) {
	raw.Zero()
	t := byte(n.typ)
	raw.PutBytes(nodeOffType, []byte{t})
	raw.PutUint32(nodeOffKeySize, n.keySize)
	raw.PutUint16(nodeOffNumKeys, uint16(len(n.keys)))
	raw.PutInt32(nodeOffParent, int32(n.parent))
	raw.PutInt32(nodeOffNext, int32(n.next))

	off := nodeHeaderSize
	ks := int(n.keySize)
	if n.isLeaf() {
		for i, k := range n.keys {
			raw.PutBytes(off, k)
			off += ks
			raw.PutInt32(off, int32(n.values[i].PageID))
			off += 4
			raw.PutUint16(off, n.values[i].Slot)
			off += 2
		}
		return
	}
	raw.PutInt32(off, int32(n.children[0]))
	off += 4
	for i, k := range n.keys {
		raw.PutBytes(off, k)
		off += ks
		raw.PutInt32(off, int32(n.children[i+1]))
		off += 4
	}
}

func deserializeNode(raw *page.Raw, pageID page.ID) *node {
	typ := nodeType(raw.Slice(nodeOffType, 1)[0])
	keySize := raw.Uint32(nodeOffKeySize)
	numKeys := int(raw.Uint16(nodeOffNumKeys))
	parent := page.ID(raw.Int32(nodeOffParent))
	next := page.ID(raw.Int32(nodeOffNext))

	n := &node{pageID: pageID, typ: typ, keySize: keySize, parent: parent, next: next}
	off := nodeHeaderSize
	ks := int(keySize)

	if typ == typeLeaf {
		n.keys = make([][]byte, numKeys)
		n.values = make([]page.RowID, numKeys)
		for i := 0; i < numKeys; i++ {
			key := make([]byte, ks)
			copy(key, raw.Slice(off, ks))
			n.keys[i] = key
			off += ks
			pid := page.ID(raw.Int32(off))
			off += 4
			slot := raw.Uint16(off)
			off += 2
			n.values[i] = page.RowID{PageID: pid, Slot: slot}
		}
		return n
	}

	n.children = make([]page.ID, numKeys+1)
	n.keys = make([][]byte, numKeys)
	n.children[0] = page.ID(raw.Int32(off))
	off += 4
	for i := 0; i < numKeys; i++ {
		key := make([]byte, ks)
		copy(key, raw.Slice(off, ks))
		n.keys[i] = key
		off += ks
		n.children[i+1] = page.ID(raw.Int32(off))
		off += 4
	}
	return n
}

// lowerBound returns the index of the first key >= target (leaf semantics),
// or for an internal node the child index that target's search should
// descend into.
func lowerBound(keys [][]byte, target []byte, cmp func(a, b []byte) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func exactIndex(keys [][]byte, target []byte, cmp func(a, b []byte) int) int {
	i := lowerBound(keys, target, cmp)
	if i < len(keys) && cmp(keys[i], target) == 0 {
		return i
	}
	return -1
}

func insertKeyAt[T any](s []T, i int, v T) []T {
	s = append(s, v)
	copy(s[i+1:], s[i:len(s)-1])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}
