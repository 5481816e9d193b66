package heap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowash0215/daemonsql/storage_engine/page"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

func testSchema(t *testing.T) *record.Schema {
	t.Helper()
	col, err := record.NewColumn("v", record.TypeInt32, 0, 0, false, false)
	require.NoError(t, err)
	return record.NewSchema([]*record.Column{col}, true)
}

func serializeInt(t *testing.T, schema *record.Schema, v int32) []byte {
	t.Helper()
	row := record.NewRow([]record.Field{record.IntField(v)})
	size, err := row.SerializedSize(schema)
	require.NoError(t, err)
	buf := make([]byte, size)
	_, err = row.Serialize(buf, schema)
	require.NoError(t, err)
	return buf
}

func TestIteratorVisitsEveryLiveRowInOrder(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)
	schema := testSchema(t)

	var rids []recordedRow
	for i := int32(0); i < 20; i++ {
		rid, err := h.InsertTuple(serializeInt(t, schema, i))
		require.NoError(t, err)
		rids = append(rids, recordedRow{rid, i})
	}
	// delete every third row.
	for i, rr := range rids {
		if i%3 == 0 {
			require.NoError(t, h.MarkDelete(rr.rid))
			require.NoError(t, h.ApplyDelete(rr.rid))
		}
	}

	it := Begin(h, schema)
	var got []int32
	for it.Next() {
		row, err := it.Row()
		require.NoError(t, err)
		got = append(got, row.Fields[0].Int32)
	}
	require.True(t, it.End())

	var want []int32
	for i, rr := range rids {
		if i%3 != 0 {
			want = append(want, rr.val)
		}
	}
	require.Equal(t, want, got)
}

func TestIteratorOnEmptyHeapIsImmediatelyDone(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)
	schema := testSchema(t)

	it := Begin(h, schema)
	require.True(t, it.End())
	require.False(t, it.Next())
}

func TestIteratorSpansMultiplePages(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)

	col, err := record.NewColumn("v", record.TypeChar, 4000, 0, false, false)
	require.NoError(t, err)
	schema := record.NewSchema([]*record.Column{col}, true)

	n := 8
	for i := 0; i < n; i++ {
		row := record.NewRow([]record.Field{record.CharField(fmt.Sprintf("r%d", i))})
		size, err := row.SerializedSize(schema)
		require.NoError(t, err)
		buf := make([]byte, size)
		_, err = row.Serialize(buf, schema)
		require.NoError(t, err)
		_, err = h.InsertTuple(buf)
		require.NoError(t, err)
	}

	it := Begin(h, schema)
	count := 0
	for it.Next() {
		count++
	}
	require.Equal(t, n, count)
}

type recordedRow struct {
	rid page.RowID
	val int32
}
