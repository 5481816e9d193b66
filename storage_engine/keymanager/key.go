// Package keymanager projects a Row's index columns into the fixed-width
// byte key the B+Tree stores and compares, over an arbitrary column list
// rather than a single fixed key type.
package keymanager

import (
	"bytes"
	"math"

	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

// Manager projects rows of a table Schema down to the fixed-width key of
// one index, and compares two such keys.
type Manager struct {
	schema     *record.Schema
	keyColumns []int // ordinals into schema.Columns, in index column order
	keySize    uint32
}

// New builds a Manager for an index over the named columns of schema.
func New(schema *record.Schema, columnNames []string) (*Manager, error) {
	cols := make([]int, len(columnNames))
	var size uint32
	for i, name := range columnNames {
		idx, err := schema.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		cols[i] = idx
		size += schema.Columns[idx].Length
	}
	return &Manager{schema: schema, keyColumns: cols, keySize: size}, nil
}

// KeySize is the fixed byte width of every key this Manager produces.
func (m *Manager) KeySize() uint32 { return m.keySize }

// KeyFromRow projects row's indexed columns into a fixed-width key, every
// key exactly KeySize() bytes. INT32 and FLOAT32 columns are encoded so
// that plain byte-lexicographic order matches numeric order (sign bit
// flipped for ints, full sortable-float encoding for floats); CHAR columns
// are copied NUL-padded to their declared length, which sorts correctly
// for their un-padded string values.
func (m *Manager) KeyFromRow(row *record.Row) ([]byte, error) {
	if len(row.Fields) != len(m.schema.Columns) {
		return nil, dberrors.New(dberrors.Failed, "keymanager: row has %d fields, schema has %d columns", len(row.Fields), len(m.schema.Columns))
	}
	key := make([]byte, m.keySize)
	off := uint32(0)
	for _, colIdx := range m.keyColumns {
		col := m.schema.Columns[colIdx]
		field := row.Fields[colIdx]
		if field.IsNull {
			// Nulls sort before every non-null value of the column: leave
			// the region zeroed, treating a null index entry as a
			// degenerate, least-valued key.
			off += col.Length
			continue
		}
		switch col.Type {
		case record.TypeInt32:
			putUint32(key[off:off+4], uint32(field.Int32)^0x80000000)
		case record.TypeFloat32:
			putUint32(key[off:off+4], sortableFloatBits(field.Float32))
		case record.TypeChar:
			n := copy(key[off:off+col.Length], field.Str)
			for i := off + uint32(n); i < off+col.Length; i++ {
				key[i] = 0
			}
		}
		off += col.Length
	}
	return key, nil
}

// Compare orders two keys of equal length produced by KeyFromRow by plain
// byte-lexicographic order, which matches numeric/lexicographic order on
// the underlying columns given that encoding.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func putUint32(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}

// sortableFloatBits maps an IEEE-754 float32 to a uint32 whose unsigned
// numeric order matches the float's order: flip the sign bit for
// positives, flip every bit for negatives.
func sortableFloatBits(f float32) uint32 {
	bits := math.Float32bits(f)
	if bits&0x80000000 != 0 {
		return ^bits
	}
	return bits | 0x80000000
}
