package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/disk"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

func testRowID() page.RowID { return page.RowID{PageID: 3, Slot: 1} }

func newTestPool(t *testing.T, size int) *buffer.Pool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return buffer.NewPool(size, dm)
}

func testSchema(t *testing.T) *record.Schema {
	t.Helper()
	id, err := record.NewColumn("id", record.TypeInt32, 0, 0, false, true)
	require.NoError(t, err)
	name, err := record.NewColumn("name", record.TypeChar, 16, 1, false, false)
	require.NoError(t, err)
	return record.NewSchema([]*record.Column{id, name}, true)
}

func TestCreateTableThenGetTable(t *testing.T) {
	pool := newTestPool(t, 32)
	m, err := Create(pool)
	require.NoError(t, err)

	schema := testSchema(t)
	info, err := m.CreateTable("users", schema)
	require.NoError(t, err)
	require.Equal(t, "users", info.Name)

	got, err := m.GetTable("users")
	require.NoError(t, err)
	require.Equal(t, info.ID, got.ID)
}

func TestCreateDuplicateTableFails(t *testing.T) {
	pool := newTestPool(t, 32)
	m, err := Create(pool)
	require.NoError(t, err)

	schema := testSchema(t)
	_, err = m.CreateTable("users", schema)
	require.NoError(t, err)
	_, err = m.CreateTable("users", schema)
	require.Error(t, err)
}

func TestCreateIndexThenDropOnlyRemovesThatIndex(t *testing.T) {
	pool := newTestPool(t, 32)
	m, err := Create(pool)
	require.NoError(t, err)

	schema := testSchema(t)
	_, err = m.CreateTable("users", schema)
	require.NoError(t, err)

	_, err = m.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)
	_, err = m.CreateIndex("users", "by_name", []string{"name"})
	require.NoError(t, err)

	require.NoError(t, m.DropIndex("users", "by_id"))

	_, err = m.GetIndex("users", "by_id")
	require.Error(t, err)
	_, err = m.GetIndex("users", "by_name")
	require.NoError(t, err)

	idxs, err := m.GetTableIndexes("users")
	require.NoError(t, err)
	require.Len(t, idxs, 1)
}

func TestDropTableCascadesIndexes(t *testing.T) {
	pool := newTestPool(t, 32)
	m, err := Create(pool)
	require.NoError(t, err)

	schema := testSchema(t)
	_, err = m.CreateTable("users", schema)
	require.NoError(t, err)
	_, err = m.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	require.NoError(t, m.DropTable("users"))

	_, err = m.GetTable("users")
	require.Error(t, err)
	_, err = m.GetIndex("users", "by_id")
	require.Error(t, err)
}

func TestIndexSurvivesPersistAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	dm, err := disk.Open(path)
	require.NoError(t, err)
	pool := buffer.NewPool(32, dm)
	m, err := Create(pool)
	require.NoError(t, err)

	schema := testSchema(t)
	_, err = m.CreateTable("users", schema)
	require.NoError(t, err)
	idx, err := m.CreateIndex("users", "by_id", []string{"id"})
	require.NoError(t, err)

	row := record.NewRow([]record.Field{record.IntField(5), record.CharField("a")})
	key, err := idx.Keys.KeyFromRow(row)
	require.NoError(t, err)
	ok, err := idx.Tree.Insert(ctx, key, testRowID())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.FlushCatalogMetaPage())
	require.NoError(t, pool.FlushAll())
	require.NoError(t, dm.Close())

	dm2, err := disk.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm2.Close() })
	pool2 := buffer.NewPool(32, dm2)
	m2, err := Open(pool2)
	require.NoError(t, err)

	table, err := m2.GetTable("users")
	require.NoError(t, err)
	require.Equal(t, "users", table.Name)

	idx2, err := m2.GetIndex("users", "by_id")
	require.NoError(t, err)
	got, err := idx2.Tree.GetValue(ctx, key)
	require.NoError(t, err)
	require.Equal(t, testRowID(), got)
}
