package record

import (
	"encoding/binary"

	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
)

const schemaMagic uint32 = 0x5C4E0A11

// Schema is an ordered list of columns. IsManage marks whether this Schema
// instance owns its Columns slice's lifetime; it has no bearing on the
// on-disk format, only on caller lifetime discipline.
type Schema struct {
	Columns  []*Column
	IsManage bool
}

func NewSchema(columns []*Column, isManage bool) *Schema {
	return &Schema{Columns: columns, IsManage: isManage}
}

// ColumnIndex returns the ordinal of the named column, or an error.
func (s *Schema) ColumnIndex(name string) (int, error) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, dberrors.New(dberrors.ColumnNameNotExist, "no column named %q", name)
}

func (s *Schema) SerializedSize() uint32 {
	size := uint32(4 + 4 + 1) // magic + count + is_manage
	for _, c := range s.Columns {
		size += c.SerializedSize()
	}
	return size
}

func (s *Schema) Serialize(buf []byte) uint32 {
	off := uint32(0)
	binary.LittleEndian.PutUint32(buf[off:], schemaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Columns)))
	off += 4
	for _, c := range s.Columns {
		off += c.Serialize(buf[off:])
	}
	buf[off] = boolByte(s.IsManage)
	off++
	return off
}

func DeserializeSchema(buf []byte) (*Schema, uint32, error) {
	off := uint32(0)
	magic := binary.LittleEndian.Uint32(buf[off:])
	if magic != schemaMagic {
		return nil, 0, dberrors.New(dberrors.Failed, "schema deserialize: bad magic %x", magic)
	}
	off += 4
	count := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	cols := make([]*Column, 0, count)
	for i := uint32(0); i < count; i++ {
		c, n, err := DeserializeColumn(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		cols = append(cols, c)
		off += n
	}
	isManage := buf[off] != 0
	off++
	return &Schema{Columns: cols, IsManage: isManage}, off, nil
}
