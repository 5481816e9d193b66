// Package page defines the fixed-size byte block every disk, buffer, heap
// and index page is built from, plus the logical/physical id space they
// share.
package page

import "encoding/binary"

// Size is the compile-time page size in bytes.
const Size = 4096

// ID identifies a logical page. A 32-bit signed value, matching the
// on-disk id width used by pointers embedded in other pages.
type ID int32

// InvalidID is the sentinel for "no page".
const InvalidID ID = -1

// BitmapSize is the number of data pages a single bitmap page can track:
// one bit per data page, in the Size-8 bytes that follow the bitmap page's
// 8-byte header.
const BitmapSize = (Size - 8) * 8

// MaxValidPageID bounds AllocatePage: once num_allocated_pages reaches this,
// the file is considered exhausted.
const MaxValidPageID = int32(1<<31 - 2)

// Reserved logical page ids.
const (
	MetaPageID        ID = 0 // disk metadata page (physical layer)
	CatalogMetaPageID ID = 0 // catalog metadata page (buffer/logical layer)
	IndexRootsPageID  ID = 1 // singleton index_id -> root_page_id map
)

// Raw is a typed, bounds-checked view over one page's bytes. It never
// reinterprets the buffer via pointer casts; every accessor decodes through
// encoding/binary at an explicit offset.
type Raw struct {
	buf [Size]byte
}

// NewRaw returns a zeroed page buffer.
func NewRaw() *Raw { return &Raw{} }

// Bytes exposes the full backing array as a slice, for handing to the disk
// manager's ReadAt/WriteAt.
func (r *Raw) Bytes() []byte { return r.buf[:] }

// CopyFrom overwrites the buffer with src, zero-padding short input.
func (r *Raw) CopyFrom(src []byte) {
	n := copy(r.buf[:], src)
	for i := n; i < Size; i++ {
		r.buf[i] = 0
	}
}

func (r *Raw) Uint16(off int) uint16 { return binary.LittleEndian.Uint16(r.buf[off:]) }
func (r *Raw) PutUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(r.buf[off:], v)
}

func (r *Raw) Uint32(off int) uint32 { return binary.LittleEndian.Uint32(r.buf[off:]) }
func (r *Raw) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(r.buf[off:], v)
}

func (r *Raw) Int32(off int) int32 { return int32(r.Uint32(off)) }
func (r *Raw) PutInt32(off int, v int32) {
	r.PutUint32(off, uint32(v))
}

func (r *Raw) Uint64(off int) uint64 { return binary.LittleEndian.Uint64(r.buf[off:]) }
func (r *Raw) PutUint64(off int, v uint64) {
	binary.LittleEndian.PutUint64(r.buf[off:], v)
}

func (r *Raw) Slice(off, length int) []byte { return r.buf[off : off+length] }

func (r *Raw) PutBytes(off int, data []byte) { copy(r.buf[off:], data) }

func (r *Raw) Zero() {
	for i := range r.buf {
		r.buf[i] = 0
	}
}
