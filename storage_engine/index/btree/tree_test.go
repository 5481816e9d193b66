package btree

import (
	"context"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/disk"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
)

func newTestPool(t *testing.T, size int) *buffer.Pool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "btree.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return buffer.NewPool(size, dm)
}

func key(n int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}

func rid(n int) page.RowID {
	return page.RowID{PageID: page.ID(n), Slot: uint16(n % 100)}
}

func mustInsert(t *testing.T, tree *Index, ctx context.Context, k []byte, r page.RowID) {
	t.Helper()
	ok, err := tree.Insert(ctx, k, r)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInsertThenGetValueRoundTrip(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		mustInsert(t, tree, ctx, key(i), rid(i))
	}
	for i := 0; i < 200; i++ {
		got, err := tree.GetValue(ctx, key(i))
		require.NoError(t, err)
		require.Equal(t, rid(i), got)
	}
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	mustInsert(t, tree, ctx, key(7), rid(1))
	ok, err := tree.Insert(ctx, key(7), rid(2))
	require.NoError(t, err)
	require.False(t, ok)

	got, err := tree.GetValue(ctx, key(7))
	require.NoError(t, err)
	require.Equal(t, rid(1), got)
}

func TestGetValueOnMissingKeyErrors(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	_, err = tree.GetValue(ctx, key(42))
	require.Error(t, err)
}

func TestRemoveThenLookupFails(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		mustInsert(t, tree, ctx, key(i), rid(i))
	}
	for i := 0; i < 50; i += 2 {
		require.NoError(t, tree.Remove(ctx, key(i)))
	}
	for i := 0; i < 50; i++ {
		_, err := tree.GetValue(ctx, key(i))
		if i%2 == 0 {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
	}
}

func TestRemoveEveryKeyLeavesEmptyTree(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	n := 300
	for i := 0; i < n; i++ {
		mustInsert(t, tree, ctx, key(i), rid(i))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, tree.Remove(ctx, key(i)))
	}
	for i := 0; i < n; i++ {
		_, err := tree.GetValue(ctx, key(i))
		require.Error(t, err)
	}
}

func TestRemoveAbsentKeyIsNotAnError(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	mustInsert(t, tree, ctx, key(1), rid(1))
	require.NoError(t, tree.Remove(ctx, key(999)))
}

func TestOnRootChangeFiresOnSplitAndCollapse(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()

	var roots []page.ID
	tree, err := Create(pool, 4, func(id page.ID) error {
		roots = append(roots, id)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	for i := 0; i < 500; i++ {
		mustInsert(t, tree, ctx, key(i), rid(i))
	}
	require.Greater(t, len(roots), 1)
	require.Equal(t, tree.RootPageID(), roots[len(roots)-1])

	afterSplit := len(roots)
	for i := 0; i < 500; i++ {
		require.NoError(t, tree.Remove(ctx, key(i)))
	}
	require.Greater(t, len(roots), afterSplit)
	require.Equal(t, tree.RootPageID(), roots[len(roots)-1])
}

func TestIteratorVisitsKeysInSortedOrder(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	perm := rand.New(rand.NewSource(1)).Perm(200)
	for _, v := range perm {
		mustInsert(t, tree, ctx, key(v), rid(v))
	}

	it, err := Begin(tree)
	require.NoError(t, err)
	var seen []int
	for it.Valid() {
		seen = append(seen, int(binary.BigEndian.Uint32(it.Key())))
		_, err := it.Next()
		require.NoError(t, err)
	}
	require.Len(t, seen, 200)
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i])
	}
}

func TestIteratorSeekStartsAtOrAfterTarget(t *testing.T) {
	pool := newTestPool(t, 64)
	ctx := context.Background()
	tree, err := Create(pool, 4, nil)
	require.NoError(t, err)

	for i := 0; i < 100; i += 2 {
		mustInsert(t, tree, ctx, key(i), rid(i))
	}

	it, err := Seek(tree, key(41))
	require.NoError(t, err)
	require.True(t, it.Valid())
	require.Equal(t, key(42), it.Key())
}
