package record

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnRoundTrip(t *testing.T) {
	cols := []*Column{
		mustColumn(t, "id", TypeInt32, 0, 0, false, true),
		mustColumn(t, "score", TypeFloat32, 0, 1, true, false),
		mustColumn(t, "name", TypeChar, 32, 2, true, false),
	}
	for _, c := range cols {
		buf := make([]byte, c.SerializedSize())
		n := c.Serialize(buf)
		require.EqualValues(t, len(buf), n)

		got, read, err := DeserializeColumn(buf)
		require.NoError(t, err)
		require.Equal(t, n, read)
		require.Equal(t, c, got)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	schema := NewSchema([]*Column{
		mustColumn(t, "id", TypeInt32, 0, 0, false, true),
		mustColumn(t, "name", TypeChar, 16, 1, true, false),
	}, true)

	buf := make([]byte, schema.SerializedSize())
	n := schema.Serialize(buf)
	require.EqualValues(t, len(buf), n)

	got, read, err := DeserializeSchema(buf)
	require.NoError(t, err)
	require.Equal(t, n, read)
	require.Equal(t, schema, got)
}

func TestRowRoundTrip(t *testing.T) {
	schema := NewSchema([]*Column{
		mustColumn(t, "id", TypeInt32, 0, 0, false, true),
		mustColumn(t, "score", TypeFloat32, 0, 1, true, false),
		mustColumn(t, "name", TypeChar, 8, 2, true, false),
	}, true)

	rows := []*Row{
		NewRow([]Field{IntField(1), FloatField(3.5), CharField("abc")}),
		NewRow([]Field{IntField(2), NullField(), CharField("")}),
		NewRow([]Field{IntField(3), FloatField(-1.25), NullField()}),
	}

	for _, r := range rows {
		size, err := r.SerializedSize(schema)
		require.NoError(t, err)
		buf := make([]byte, size)
		n, err := r.Serialize(buf, schema)
		require.NoError(t, err)
		require.EqualValues(t, size, n)

		got, read, err := DeserializeRow(buf, schema)
		require.NoError(t, err)
		require.Equal(t, n, read)
		require.Equal(t, r, got)
	}
}

func TestRowRoundTripRandom(t *testing.T) {
	schema := NewSchema([]*Column{
		mustColumn(t, "a", TypeInt32, 0, 0, true, false),
		mustColumn(t, "b", TypeFloat32, 0, 1, true, false),
		mustColumn(t, "c", TypeChar, 12, 2, true, false),
	}, true)

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		fields := make([]Field, 3)
		if rnd.Intn(4) == 0 {
			fields[0] = NullField()
		} else {
			fields[0] = IntField(rnd.Int31())
		}
		if rnd.Intn(4) == 0 {
			fields[1] = NullField()
		} else {
			fields[1] = FloatField(rnd.Float32())
		}
		if rnd.Intn(4) == 0 {
			fields[2] = NullField()
		} else {
			letters := "abcdefghij"
			n := rnd.Intn(12)
			s := make([]byte, n)
			for j := range s {
				s[j] = letters[rnd.Intn(len(letters))]
			}
			fields[2] = CharField(string(s))
		}
		row := NewRow(fields)

		size, err := row.SerializedSize(schema)
		require.NoError(t, err)
		buf := make([]byte, size)
		_, err = row.Serialize(buf, schema)
		require.NoError(t, err)

		got, _, err := DeserializeRow(buf, schema)
		require.NoError(t, err)
		require.Equal(t, row, got)
	}
}

func mustColumn(t *testing.T, name string, typ Type, length, idx uint32, nullable, unique bool) *Column {
	t.Helper()
	c, err := NewColumn(name, typ, length, idx, nullable, unique)
	require.NoError(t, err)
	return c
}
