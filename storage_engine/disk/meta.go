package disk

import "github.com/shadowash0215/daemonsql/storage_engine/page"

// metaPage is the in-memory mirror of physical page 0: the disk file's
// metadata page. It tracks how many extents exist and how many data pages
// within each extent are currently allocated.
//
// On-disk layout (all little-endian):
//
//	0   4  numAllocatedPages uint32
//	4   4  numExtents        uint32
//	8   4*maxExtents  extentUsedPage[i] uint32
//
// maxExtents is sized so the whole table fits in one page.
const maxExtents = (page.Size - 8) / 4

type metaPage struct {
	numAllocatedPages uint32
	numExtents        uint32
	extentUsedPage    [maxExtents]uint32
}

func (m *metaPage) serializeTo(raw *page.Raw) {
	raw.Zero()
	raw.PutUint32(0, m.numAllocatedPages)
	raw.PutUint32(4, m.numExtents)
	for i := uint32(0); i < m.numExtents; i++ {
		raw.PutUint32(8+int(i)*4, m.extentUsedPage[i])
	}
}

func deserializeMetaPage(raw *page.Raw) *metaPage {
	m := &metaPage{
		numAllocatedPages: raw.Uint32(0),
		numExtents:        raw.Uint32(4),
	}
	for i := uint32(0); i < m.numExtents; i++ {
		m.extentUsedPage[i] = raw.Uint32(8 + int(i)*4)
	}
	return m
}

// extentUsed returns the number of data pages allocated in extent i,
// or 0 if the extent does not exist yet.
func (m *metaPage) extentUsed(i uint32) uint32 {
	if i >= m.numExtents {
		return 0
	}
	return m.extentUsedPage[i]
}
