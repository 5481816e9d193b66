package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

func testSchema(t *testing.T) *record.Schema {
	t.Helper()
	id, err := record.NewColumn("id", record.TypeInt32, 0, 0, false, true)
	require.NoError(t, err)
	name, err := record.NewColumn("name", record.TypeChar, 16, 1, false, false)
	require.NoError(t, err)
	return record.NewSchema([]*record.Column{id, name}, true)
}

func TestInsertScanAndPointLookup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "e2e.db")

	db, err := Create("e2e", path, 32)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema := testSchema(t)
	require.NoError(t, db.CreateTable("users", schema))
	require.NoError(t, db.CreateIndex("users", "by_id", []string{"id"}))

	for i := int32(0); i < 10; i++ {
		row := record.NewRow([]record.Field{record.IntField(i), record.CharField("user")})
		_, err := db.InsertRow(ctx, "users", row)
		require.NoError(t, err)
	}

	it, err := db.Scan("users")
	require.NoError(t, err)
	count := 0
	for it.Next() {
		count++
	}
	require.Equal(t, 10, count)

	row, err := db.PointLookup(ctx, "users", "by_id", mustKey(t, db, 5))
	require.NoError(t, err)
	require.Equal(t, int32(5), row.Fields[0].Int32)
}

func mustKey(t *testing.T, db *Database, id int32) []byte {
	t.Helper()
	idx, err := db.cat.GetIndex("users", "by_id")
	require.NoError(t, err)
	row := record.NewRow([]record.Field{record.IntField(id), record.CharField("")})
	key, err := idx.Keys.KeyFromRow(row)
	require.NoError(t, err)
	return key
}

func TestDeleteRowRemovesFromHeapAndIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "del.db")

	db, err := Create("del", path, 32)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema := testSchema(t)
	require.NoError(t, db.CreateTable("users", schema))
	require.NoError(t, db.CreateIndex("users", "by_id", []string{"id"}))

	row := record.NewRow([]record.Field{record.IntField(1), record.CharField("a")})
	rid, err := db.InsertRow(ctx, "users", row)
	require.NoError(t, err)

	require.NoError(t, db.DeleteRow(ctx, "users", rid))

	_, err = db.PointLookup(ctx, "users", "by_id", mustKey(t, db, 1))
	require.Error(t, err)
}

func TestUpdateRowReKeysIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "upd.db")

	db, err := Create("upd", path, 32)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema := testSchema(t)
	require.NoError(t, db.CreateTable("users", schema))
	require.NoError(t, db.CreateIndex("users", "by_id", []string{"id"}))

	row := record.NewRow([]record.Field{record.IntField(1), record.CharField("a")})
	rid, err := db.InsertRow(ctx, "users", row)
	require.NoError(t, err)

	newRow := record.NewRow([]record.Field{record.IntField(2), record.CharField("b")})
	newRid, err := db.UpdateRow(ctx, "users", rid, newRow)
	require.NoError(t, err)

	_, err = db.PointLookup(ctx, "users", "by_id", mustKey(t, db, 1))
	require.Error(t, err)

	got, err := db.PointLookup(ctx, "users", "by_id", mustKey(t, db, 2))
	require.NoError(t, err)
	require.Equal(t, "b", got.Fields[1].Str)
	_ = newRid
}

func TestCloseThenReopenPreservesData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	db, err := Create("reopen", path, 32)
	require.NoError(t, err)

	schema := testSchema(t)
	require.NoError(t, db.CreateTable("users", schema))
	require.NoError(t, db.CreateIndex("users", "by_id", []string{"id"}))

	row := record.NewRow([]record.Field{record.IntField(9), record.CharField("x")})
	_, err = db.InsertRow(ctx, "users", row)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open("reopen", path, 32)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	got, err := db2.PointLookup(ctx, "users", "by_id", mustKey(t, db2, 9))
	require.NoError(t, err)
	require.Equal(t, "x", got.Fields[1].Str)
}
