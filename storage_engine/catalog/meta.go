package catalog

import (
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

// catalogMetaMagic stamps the catalog's root page so a corrupt or foreign
// file is rejected instead of silently misread.
const catalogMetaMagic uint32 = 0xCA7A10C0

const indexRootsMagic uint32 = 0x1D737007

// catalogMeta is the binary contents of page.CatalogMetaPageID: the set of
// (table_id -> its metadata page) and (index_id -> its metadata page)
// mappings, plus the next-id counters.
type catalogMeta struct {
	nextTableID uint32
	nextIndexID uint32
	tablePages  map[uint32]page.ID
	indexPages  map[uint32]page.ID
}

func newCatalogMeta() *catalogMeta {
	return &catalogMeta{
		nextTableID: 0,
		nextIndexID: 0,
		tablePages:  make(map[uint32]page.ID),
		indexPages:  make(map[uint32]page.ID),
	}
}

func (m *catalogMeta) serializeTo(raw *page.Raw) error {
	raw.Zero()
	off := 0
	raw.PutUint32(off, catalogMetaMagic)
	off += 4
	raw.PutUint32(off, m.nextTableID)
	off += 4
	raw.PutUint32(off, m.nextIndexID)
	off += 4
	raw.PutUint32(off, uint32(len(m.tablePages)))
	off += 4
	raw.PutUint32(off, uint32(len(m.indexPages)))
	off += 4

	if off+len(m.tablePages)*8+len(m.indexPages)*8 > page.Size {
		return dberrors.New(dberrors.Failed, "catalog metadata does not fit in one page")
	}

	for id, pid := range m.tablePages {
		raw.PutUint32(off, id)
		off += 4
		raw.PutInt32(off, int32(pid))
		off += 4
	}
	for id, pid := range m.indexPages {
		raw.PutUint32(off, id)
		off += 4
		raw.PutInt32(off, int32(pid))
		off += 4
	}
	return nil
}

func deserializeCatalogMeta(raw *page.Raw) (*catalogMeta, error) {
	off := 0
	magic := raw.Uint32(off)
	if magic != catalogMetaMagic {
		return nil, dberrors.New(dberrors.Failed, "catalog metadata: bad magic %x", magic)
	}
	off += 4
	m := newCatalogMeta()
	m.nextTableID = raw.Uint32(off)
	off += 4
	m.nextIndexID = raw.Uint32(off)
	off += 4
	numTables := raw.Uint32(off)
	off += 4
	numIndexes := raw.Uint32(off)
	off += 4
	for i := uint32(0); i < numTables; i++ {
		id := raw.Uint32(off)
		off += 4
		pid := page.ID(raw.Int32(off))
		off += 4
		m.tablePages[id] = pid
	}
	for i := uint32(0); i < numIndexes; i++ {
		id := raw.Uint32(off)
		off += 4
		pid := page.ID(raw.Int32(off))
		off += 4
		m.indexPages[id] = pid
	}
	return m, nil
}

// indexRoots is the binary contents of page.IndexRootsPageID: a flat
// index_id -> current B+Tree root page_id map, rewritten whenever any
// tree's root changes (split-induced promotion or underflow collapse).
type indexRoots struct {
	roots map[uint32]page.ID
}

func newIndexRoots() *indexRoots { return &indexRoots{roots: make(map[uint32]page.ID)} }

func (r *indexRoots) serializeTo(raw *page.Raw) error {
	raw.Zero()
	off := 0
	raw.PutUint32(off, indexRootsMagic)
	off += 4
	raw.PutUint32(off, uint32(len(r.roots)))
	off += 4
	if off+len(r.roots)*8 > page.Size {
		return dberrors.New(dberrors.Failed, "index roots page overflow")
	}
	for id, pid := range r.roots {
		raw.PutUint32(off, id)
		off += 4
		raw.PutInt32(off, int32(pid))
		off += 4
	}
	return nil
}

func deserializeIndexRoots(raw *page.Raw) (*indexRoots, error) {
	off := 0
	magic := raw.Uint32(off)
	if magic != indexRootsMagic {
		return nil, dberrors.New(dberrors.Failed, "index roots page: bad magic %x", magic)
	}
	off += 4
	count := raw.Uint32(off)
	off += 4
	r := newIndexRoots()
	for i := uint32(0); i < count; i++ {
		id := raw.Uint32(off)
		off += 4
		pid := page.ID(raw.Int32(off))
		off += 4
		r.roots[id] = pid
	}
	return r, nil
}

// tableMeta is one table's own metadata page: its id, name, schema, and
// the first page of its heap.
type tableMeta struct {
	id          uint32
	name        string
	firstPageID page.ID
	schema      *record.Schema
}

const tableMetaMagic uint32 = 0x7AB1E000

func (t *tableMeta) serializeTo(raw *page.Raw) error {
	raw.Zero()
	off := 0
	raw.PutUint32(off, tableMetaMagic)
	off += 4
	raw.PutUint32(off, t.id)
	off += 4
	raw.PutInt32(off, int32(t.firstPageID))
	off += 4
	nameBytes := []byte(t.name)
	raw.PutUint32(off, uint32(len(nameBytes)))
	off += 4
	raw.PutBytes(off, nameBytes)
	off += len(nameBytes)

	schemaSize := t.schema.SerializedSize()
	if off+int(schemaSize) > page.Size {
		return dberrors.New(dberrors.Failed, "table metadata for %q does not fit in one page", t.name)
	}
	buf := make([]byte, schemaSize)
	t.schema.Serialize(buf)
	raw.PutBytes(off, buf)
	return nil
}

func deserializeTableMeta(raw *page.Raw) (*tableMeta, error) {
	off := 0
	magic := raw.Uint32(off)
	if magic != tableMetaMagic {
		return nil, dberrors.New(dberrors.Failed, "table metadata: bad magic %x", magic)
	}
	off += 4
	id := raw.Uint32(off)
	off += 4
	firstPage := page.ID(raw.Int32(off))
	off += 4
	nameLen := raw.Uint32(off)
	off += 4
	name := string(raw.Slice(off, int(nameLen)))
	off += int(nameLen)

	schema, _, err := record.DeserializeSchema(raw.Slice(off, page.Size-off))
	if err != nil {
		return nil, err
	}
	return &tableMeta{id: id, name: name, firstPageID: firstPage, schema: schema}, nil
}

// indexMeta is one index's own metadata page: its id, name, owning table,
// and the (ordered) names of the columns it indexes. The tree's root page
// id is not stored here — it lives in the shared indexRoots page so a
// split never has to rewrite this page.
type indexMeta struct {
	id      uint32
	name    string
	tableID uint32
	columns []string
	keySize uint32
}

const indexMetaMagic uint32 = 0x1D5E0000

func (m *indexMeta) serializeTo(raw *page.Raw) error {
	raw.Zero()
	off := 0
	raw.PutUint32(off, indexMetaMagic)
	off += 4
	raw.PutUint32(off, m.id)
	off += 4
	raw.PutUint32(off, m.tableID)
	off += 4
	raw.PutUint32(off, m.keySize)
	off += 4
	nameBytes := []byte(m.name)
	raw.PutUint32(off, uint32(len(nameBytes)))
	off += 4
	raw.PutBytes(off, nameBytes)
	off += len(nameBytes)
	raw.PutUint32(off, uint32(len(m.columns)))
	off += 4
	for _, c := range m.columns {
		cb := []byte(c)
		if off+4+len(cb) > page.Size {
			return dberrors.New(dberrors.Failed, "index metadata for %q does not fit in one page", m.name)
		}
		raw.PutUint32(off, uint32(len(cb)))
		off += 4
		raw.PutBytes(off, cb)
		off += len(cb)
	}
	return nil
}

func deserializeIndexMeta(raw *page.Raw) (*indexMeta, error) {
	off := 0
	magic := raw.Uint32(off)
	if magic != indexMetaMagic {
		return nil, dberrors.New(dberrors.Failed, "index metadata: bad magic %x", magic)
	}
	off += 4
	id := raw.Uint32(off)
	off += 4
	tableID := raw.Uint32(off)
	off += 4
	keySize := raw.Uint32(off)
	off += 4
	nameLen := raw.Uint32(off)
	off += 4
	name := string(raw.Slice(off, int(nameLen)))
	off += int(nameLen)
	numCols := raw.Uint32(off)
	off += 4
	cols := make([]string, numCols)
	for i := uint32(0); i < numCols; i++ {
		clen := raw.Uint32(off)
		off += 4
		cols[i] = string(raw.Slice(off, int(clen)))
		off += int(clen)
	}
	return &indexMeta{id: id, name: name, tableID: tableID, columns: cols, keySize: keySize}, nil
}
