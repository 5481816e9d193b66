package heap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/disk"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

func newTestPool(t *testing.T, size int) *buffer.Pool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "heap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return buffer.NewPool(size, dm)
}

func TestInsertThenGetRoundTrip(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)

	rid, err := h.InsertTuple([]byte("some tuple bytes"))
	require.NoError(t, err)

	got, err := h.GetTuple(rid)
	require.NoError(t, err)
	require.Equal(t, "some tuple bytes", string(got))
}

func TestInsertSpillsToNewPageWhenFull(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)

	big := make([]byte, page.Size/3)
	var rids []page.RowID
	for i := 0; i < 5; i++ {
		rid, err := h.InsertTuple(big)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	seen := make(map[page.ID]bool)
	for _, rid := range rids {
		seen[rid.PageID] = true
	}
	require.Greater(t, len(seen), 1)

	for _, rid := range rids {
		got, err := h.GetTuple(rid)
		require.NoError(t, err)
		require.Len(t, got, len(big))
	}
}

func TestApplyDeleteThenReuseSlot(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)

	rid, err := h.InsertTuple([]byte("gone soon"))
	require.NoError(t, err)

	require.NoError(t, h.MarkDelete(rid))
	_, err = h.GetTuple(rid)
	require.Error(t, err)

	require.NoError(t, h.RollbackDelete(rid))
	got, err := h.GetTuple(rid)
	require.NoError(t, err)
	require.Equal(t, "gone soon", string(got))

	require.NoError(t, h.MarkDelete(rid))
	require.NoError(t, h.ApplyDelete(rid))
	_, err = h.GetTuple(rid)
	require.Error(t, err)
}

func TestUpdateTupleRelocatesWhenTooBig(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)

	rid, err := h.InsertTuple([]byte("short"))
	require.NoError(t, err)
	// Fill the page so the update cannot grow into its free space.
	_, err = h.InsertTuple(make([]byte, page.Size/2))
	require.NoError(t, err)

	huge := make([]byte, page.Size/2)
	for i := range huge {
		huge[i] = 'z'
	}
	newRid, err := h.UpdateTuple(rid, huge)
	require.NoError(t, err)

	got, err := h.GetTuple(newRid)
	require.NoError(t, err)
	require.Equal(t, huge, got)

	// old rid was tombstoned+applied.
	_, err = h.GetTuple(rid)
	require.Error(t, err)
}

func TestDropDeallocatesEveryPageInChain(t *testing.T) {
	pool := newTestPool(t, 8)
	h, err := Create(pool)
	require.NoError(t, err)

	big := make([]byte, page.Size/3)
	for i := 0; i < 5; i++ {
		_, err := h.InsertTuple(big)
		require.NoError(t, err)
	}

	require.NoError(t, h.Drop())
	require.Equal(t, page.InvalidID, h.FirstPageID)
}
