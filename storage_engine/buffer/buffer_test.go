package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowash0215/daemonsql/storage_engine/disk"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return NewPool(size, dm)
}

func TestNewPageThenFetchRoundTrip(t *testing.T) {
	pool := newTestPool(t, 8)

	h, err := pool.NewPage()
	require.NoError(t, err)
	id := h.Frame().PageID
	h.Frame().Raw.PutUint32(0, 1234)
	h.Release(true)

	h2, err := pool.FetchPage(id)
	require.NoError(t, err)
	require.EqualValues(t, 1234, h2.Frame().Raw.Uint32(0))
	h2.Release(false)

	require.True(t, pool.CheckAllUnpinned())
}

func TestEvictionPrefersLongestUnpinned(t *testing.T) {
	pool := newTestPool(t, 2)

	h1, err := pool.NewPage()
	require.NoError(t, err)
	id1 := h1.Frame().PageID
	h1.Release(false)

	h2, err := pool.NewPage()
	require.NoError(t, err)
	id2 := h2.Frame().PageID
	h2.Release(false)

	// id1 unpinned first (longest unpinned); a third page should evict it.
	h3, err := pool.NewPage()
	require.NoError(t, err)
	id3 := h3.Frame().PageID
	h3.Release(false)

	require.Positive(t, pool.Stats().Evictions)

	// id1 should have been evicted, id2 and id3 still resident.
	hits := pool.Stats().Hits
	_, err = pool.FetchPage(id2)
	require.NoError(t, err)
	_, err = pool.FetchPage(id3)
	require.NoError(t, err)
	require.Equal(t, hits+2, pool.Stats().Hits)
	_ = id1
}

func TestFetchingPinnedPageNeverEvictsIt(t *testing.T) {
	pool := newTestPool(t, 1)

	h, err := pool.NewPage()
	require.NoError(t, err)
	id := h.Frame().PageID

	// Pool has only one frame and it's pinned: another NewPage must fail.
	_, err = pool.NewPage()
	require.Error(t, err)

	h.Release(false)
	_ = id
}

func TestDeletePageRequiresUnpinned(t *testing.T) {
	pool := newTestPool(t, 4)

	h, err := pool.NewPage()
	require.NoError(t, err)
	id := h.Frame().PageID

	require.Error(t, pool.DeletePage(id))
	h.Release(false)
	require.NoError(t, pool.DeletePage(id))

	free, err := pool.disk.IsPageFree(id)
	require.NoError(t, err)
	require.True(t, free)
}

func TestFlushAllPersistsDirtyPages(t *testing.T) {
	pool := newTestPool(t, 4)

	h, err := pool.NewPage()
	require.NoError(t, err)
	id := h.Frame().PageID
	h.Frame().Raw.PutUint32(8, 99)
	h.Release(true)

	require.NoError(t, pool.FlushAll())

	raw := page.NewRaw()
	require.NoError(t, pool.disk.ReadPage(id, raw))
	require.EqualValues(t, 99, raw.Uint32(8))
}
