// Package record implements bit-exact serialization of columns, schemas
// and rows, with typed per-Field encode/decode methods over a closed
// column type set (INT32, FLOAT32, CHAR(n)).
package record

import (
	"encoding/binary"

	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
)

// Type is the closed set of column types the codec understands.
type Type uint8

const (
	TypeInt32 Type = iota
	TypeFloat32
	TypeChar
)

const columnMagic uint32 = 0xC01C0101

// Column describes one field of a Schema.
type Column struct {
	Name       string
	Type       Type
	Length     uint32 // byte length: 4 for INT32/FLOAT32, N for CHAR(N)
	TableIndex uint32 // ordinal position within the owning schema
	Nullable   bool
	Unique     bool
}

// NewColumn builds a Column with Length derived from typ for INT32/FLOAT32;
// for CHAR the caller-supplied length must be > 0.
func NewColumn(name string, typ Type, length uint32, tableIndex uint32, nullable, unique bool) (*Column, error) {
	switch typ {
	case TypeInt32, TypeFloat32:
		length = 4
	case TypeChar:
		if length == 0 {
			return nil, dberrors.New(dberrors.Failed, "CHAR column %q must have length > 0", name)
		}
	default:
		return nil, dberrors.New(dberrors.Failed, "unknown column type %d", typ)
	}
	return &Column{Name: name, Type: typ, Length: length, TableIndex: tableIndex, Nullable: nullable, Unique: unique}, nil
}

// SerializedSize returns the exact byte length Serialize will write.
func (c *Column) SerializedSize() uint32 {
	// magic(4) + namelen(4) + name + type(1) + length(4) + tableindex(4) + nullable(1) + unique(1)
	return 4 + 4 + uint32(len(c.Name)) + 1 + 4 + 4 + 1 + 1
}

// Serialize writes c to buf and returns the number of bytes written.
func (c *Column) Serialize(buf []byte) uint32 {
	off := uint32(0)
	binary.LittleEndian.PutUint32(buf[off:], columnMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Name)))
	off += 4
	off += uint32(copy(buf[off:], c.Name))
	buf[off] = byte(c.Type)
	off++
	binary.LittleEndian.PutUint32(buf[off:], c.Length)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.TableIndex)
	off += 4
	buf[off] = boolByte(c.Nullable)
	off++
	buf[off] = boolByte(c.Unique)
	off++
	return off
}

// DeserializeColumn reads a Column from buf and returns it plus the number
// of bytes consumed.
func DeserializeColumn(buf []byte) (*Column, uint32, error) {
	off := uint32(0)
	magic := binary.LittleEndian.Uint32(buf[off:])
	if magic != columnMagic {
		return nil, 0, dberrors.New(dberrors.Failed, "column deserialize: bad magic %x", magic)
	}
	off += 4
	nameLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	name := string(buf[off : off+nameLen])
	off += nameLen
	typ := Type(buf[off])
	off++
	length := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	tableIndex := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nullable := buf[off] != 0
	off++
	unique := buf[off] != 0
	off++
	return &Column{Name: name, Type: typ, Length: length, TableIndex: tableIndex, Nullable: nullable, Unique: unique}, off, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
