package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

func openTemp(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestAllocateThenFreeThenReuse(t *testing.T) {
	m := openTemp(t)

	ids := make([]page.ID, 10)
	for i := range ids {
		id, err := m.AllocatePage()
		require.NoError(t, err)
		ids[i] = id
	}
	require.Equal(t, page.ID(0), ids[0])
	require.Equal(t, page.ID(9), ids[9])

	require.NoError(t, m.DeallocatePage(ids[3]))
	free, err := m.IsPageFree(ids[3])
	require.NoError(t, err)
	require.True(t, free)

	reused, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, ids[3], reused)
}

func TestReadWriteRoundTrip(t *testing.T) {
	m := openTemp(t)

	id, err := m.AllocatePage()
	require.NoError(t, err)

	raw := page.NewRaw()
	raw.PutUint32(0, 0xDEADBEEF)
	require.NoError(t, m.WritePage(id, raw))

	got := page.NewRaw()
	require.NoError(t, m.ReadPage(id, got))
	require.Equal(t, uint32(0xDEADBEEF), got.Uint32(0))
}

func TestAllocationSpansMultipleExtents(t *testing.T) {
	m := openTemp(t)

	n := int(page.BitmapSize) + 5
	ids := make([]page.ID, n)
	for i := 0; i < n; i++ {
		id, err := m.AllocatePage()
		require.NoError(t, err)
		ids[i] = id
	}
	require.EqualValues(t, 2, m.Stats().NumExtents)
	require.Equal(t, page.ID(page.BitmapSize), ids[page.BitmapSize])
}

func TestDeallocatingAFreePageFails(t *testing.T) {
	m := openTemp(t)
	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, m.DeallocatePage(id))
	require.Error(t, m.DeallocatePage(id))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	m, err := Open(path)
	require.NoError(t, err)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	raw := page.NewRaw()
	raw.PutUint32(4, 42)
	require.NoError(t, m.WritePage(id, raw))
	require.NoError(t, m.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, 1, reopened.Stats().NumAllocatedPages)
	got := page.NewRaw()
	require.NoError(t, reopened.ReadPage(id, got))
	require.EqualValues(t, 42, got.Uint32(4))
}
