package page

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertGetRoundTrip(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)

	s1, err := InsertTuple(raw, []byte("hello"))
	require.NoError(t, err)
	s2, err := InsertTuple(raw, []byte("world!!"))
	require.NoError(t, err)

	got1, err := GetTuple(raw, s1)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got1))

	got2, err := GetTuple(raw, s2)
	require.NoError(t, err)
	require.Equal(t, "world!!", string(got2))
}

func TestMarkDeleteThenRollback(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)
	slot, err := InsertTuple(raw, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, MarkDelete(raw, slot))
	_, err = GetTuple(raw, slot)
	require.Error(t, err)

	require.NoError(t, RollbackDelete(raw, slot))
	got, err := GetTuple(raw, slot)
	require.NoError(t, err)
	require.Equal(t, "x", string(got))
}

func TestApplyDeleteFreesSlotForReuse(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)
	slot, err := InsertTuple(raw, []byte("abc"))
	require.NoError(t, err)

	require.NoError(t, MarkDelete(raw, slot))
	require.NoError(t, ApplyDelete(raw, slot))

	before := TupleCount(raw)
	newSlot, err := InsertTuple(raw, []byte("yz"))
	require.NoError(t, err)
	require.Equal(t, slot, newSlot)
	require.Equal(t, before, TupleCount(raw))
}

func TestUpdateTupleShrinksInPlace(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)
	slot, err := InsertTuple(raw, []byte("12345"))
	require.NoError(t, err)

	fits, err := UpdateTuple(raw, slot, []byte("abc"))
	require.NoError(t, err)
	require.True(t, fits)
	got, err := GetTuple(raw, slot)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
}

func TestUpdateTupleGrowsIntoFreeSpace(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)
	slot, err := InsertTuple(raw, []byte("12345"))
	require.NoError(t, err)

	longer := "this tuple is longer than its original allocation"
	fits, err := UpdateTuple(raw, slot, []byte(longer))
	require.NoError(t, err)
	require.True(t, fits)

	got, err := GetTuple(raw, slot)
	require.NoError(t, err)
	require.Equal(t, longer, string(got))
}

func TestUpdateTupleFailsWhenGrowthExceedsFreeSpace(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)

	big := make([]byte, Size-SlottedHeaderSize-2*SlotHeaderSize-10)
	slot, err := InsertTuple(raw, big)
	require.NoError(t, err)
	_, err = InsertTuple(raw, []byte("filler"))
	require.NoError(t, err)

	fits, err := UpdateTuple(raw, slot, make([]byte, len(big)+100))
	require.NoError(t, err)
	require.False(t, fits)
}

func TestIterationSkipsTombstonesAndGaps(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)

	var slots []uint16
	for i := 0; i < 5; i++ {
		s, err := InsertTuple(raw, []byte(fmt.Sprintf("row%d", i)))
		require.NoError(t, err)
		slots = append(slots, s)
	}
	require.NoError(t, MarkDelete(raw, slots[1]))
	require.NoError(t, MarkDelete(raw, slots[3]))

	var seen []uint16
	cur, err := GetFirstTupleRid(raw)
	require.NoError(t, err)
	seen = append(seen, cur)
	for {
		next, err := GetNextTupleRid(raw, cur)
		if err != nil {
			break
		}
		seen = append(seen, next)
		cur = next
	}
	require.Equal(t, []uint16{slots[0], slots[2], slots[4]}, seen)
}

func TestInsertFailsWhenPageIsFull(t *testing.T) {
	raw := NewRaw()
	InitSlottedPage(raw, InvalidID)

	big := make([]byte, Size-SlottedHeaderSize-SlotHeaderSize-10)
	_, err := InsertTuple(raw, big)
	require.NoError(t, err)

	_, err = InsertTuple(raw, []byte("no room"))
	require.Error(t, err)
}
