package record

import (
	"math"
	"strings"

	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
)

// Field holds one column's value. Exactly one of the typed accessors is
// meaningful, selected by the owning Column's Type, unless IsNull is set.
type Field struct {
	IsNull  bool
	Int32   int32
	Float32 float32
	Str     string // CHAR(n): stored value, un-padded
}

func NullField() Field { return Field{IsNull: true} }
func IntField(v int32) Field { return Field{Int32: v} }
func FloatField(v float32) Field { return Field{Float32: v} }
func CharField(v string) Field { return Field{Str: v} }

// Row is an ordered list of fields, one per column of the schema it was
// built against.
type Row struct {
	Fields []Field
}

func NewRow(fields []Field) *Row { return &Row{Fields: fields} }

// SerializedSize returns the exact wire size of r under schema: a
// one-byte-per-field null bitmap followed by each non-null field's
// schema-derived fixed width.
func (r *Row) SerializedSize(schema *Schema) (uint32, error) {
	if len(r.Fields) != len(schema.Columns) {
		return 0, dberrors.New(dberrors.Failed, "row has %d fields, schema has %d columns", len(r.Fields), len(schema.Columns))
	}
	size := uint32(len(r.Fields)) // one byte per field for the null bitmap
	for i, f := range r.Fields {
		if f.IsNull {
			continue
		}
		size += schema.Columns[i].Length
	}
	return size, nil
}

// Serialize writes r to buf per schema and returns the bytes written.
func (r *Row) Serialize(buf []byte, schema *Schema) (uint32, error) {
	if len(r.Fields) != len(schema.Columns) {
		return 0, dberrors.New(dberrors.Failed, "row has %d fields, schema has %d columns", len(r.Fields), len(schema.Columns))
	}
	n := len(r.Fields)
	for i, f := range r.Fields {
		if f.IsNull {
			buf[i] = 1
		} else {
			buf[i] = 0
		}
	}
	off := uint32(n)
	for i, f := range r.Fields {
		if f.IsNull {
			continue
		}
		col := schema.Columns[i]
		written, err := encodeField(buf[off:], col, f)
		if err != nil {
			return 0, err
		}
		off += written
	}
	return off, nil
}

// DeserializeRow reads a Row from buf per schema and returns it plus bytes
// consumed.
func DeserializeRow(buf []byte, schema *Schema) (*Row, uint32, error) {
	n := len(schema.Columns)
	fields := make([]Field, n)
	nullBitmap := buf[:n]
	off := uint32(n)
	for i, col := range schema.Columns {
		if nullBitmap[i] != 0 {
			fields[i] = NullField()
			continue
		}
		f, read, err := decodeField(buf[off:], col)
		if err != nil {
			return nil, 0, err
		}
		fields[i] = f
		off += read
	}
	return &Row{Fields: fields}, off, nil
}

func encodeField(buf []byte, col *Column, f Field) (uint32, error) {
	switch col.Type {
	case TypeInt32:
		putInt32(buf, f.Int32)
		return 4, nil
	case TypeFloat32:
		putUint32(buf, math.Float32bits(f.Float32))
		return 4, nil
	case TypeChar:
		n := copy(buf[:col.Length], f.Str)
		for i := n; i < int(col.Length); i++ {
			buf[i] = 0
		}
		return col.Length, nil
	default:
		return 0, dberrors.New(dberrors.Failed, "encode: unknown column type %d", col.Type)
	}
}

func decodeField(buf []byte, col *Column) (Field, uint32, error) {
	switch col.Type {
	case TypeInt32:
		return IntField(getInt32(buf)), 4, nil
	case TypeFloat32:
		return FloatField(math.Float32frombits(getUint32(buf))), 4, nil
	case TypeChar:
		raw := buf[:col.Length]
		s := string(raw)
		s = strings.TrimRight(s, "\x00")
		return CharField(s), col.Length, nil
	default:
		return Field{}, 0, dberrors.New(dberrors.Failed, "decode: unknown column type %d", col.Type)
	}
}

func putInt32(buf []byte, v int32) { putUint32(buf, uint32(v)) }
func getInt32(buf []byte) int32    { return int32(getUint32(buf)) }

func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func getUint32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}
