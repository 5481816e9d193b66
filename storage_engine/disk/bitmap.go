package disk

import "github.com/shadowash0215/daemonsql/storage_engine/page"

// bitmapPage tracks free/allocated status for the BitmapSize data pages of
// one extent. Bit (b/8, b%8) == 0 means free.
//
// On-disk layout:
//
//	0  4              pageAllocated uint32
//	4  4              nextFreePage  uint32 (advisory hint)
//	8  BitmapSize/8    bytes
type bitmapPage struct {
	pageAllocated uint32
	nextFreePage  uint32
	bytes         [page.BitmapSize / 8]byte
}

const bitmapHeaderSize = 8

func newBitmapPage() *bitmapPage {
	return &bitmapPage{}
}

func (b *bitmapPage) serializeTo(raw *page.Raw) {
	raw.Zero()
	raw.PutUint32(0, b.pageAllocated)
	raw.PutUint32(4, b.nextFreePage)
	raw.PutBytes(bitmapHeaderSize, b.bytes[:])
}

func deserializeBitmapPage(raw *page.Raw) *bitmapPage {
	b := &bitmapPage{
		pageAllocated: raw.Uint32(0),
		nextFreePage:  raw.Uint32(4),
	}
	copy(b.bytes[:], raw.Slice(bitmapHeaderSize, len(b.bytes)))
	return b
}

func (b *bitmapPage) isFree(offset uint32) bool {
	if offset >= page.BitmapSize {
		return false
	}
	return b.bytes[offset/8]&(1<<(offset%8)) == 0
}

// allocate finds the first free bit, sets it, and returns its offset.
// The nextFreePage hint is consulted first but a full scan is the
// correctness fallback when the hint is stale.
func (b *bitmapPage) allocate() (offset uint32, ok bool) {
	if b.isFree(b.nextFreePage) {
		offset = b.nextFreePage
	} else {
		found := false
		for i := uint32(0); i < page.BitmapSize; i++ {
			if b.isFree(i) {
				offset = i
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	b.bytes[offset/8] |= 1 << (offset % 8)
	b.pageAllocated++
	for i := offset + 1; i < page.BitmapSize; i++ {
		if b.isFree(i) {
			b.nextFreePage = i
			break
		}
	}
	return offset, true
}

// deallocate clears the bit for offset. Returns false if it was already
// clear (double-free).
func (b *bitmapPage) deallocate(offset uint32) bool {
	if offset >= page.BitmapSize || b.isFree(offset) {
		return false
	}
	b.bytes[offset/8] &^= 1 << (offset % 8)
	b.pageAllocated--
	if offset < b.nextFreePage {
		b.nextFreePage = offset
	}
	return true
}
