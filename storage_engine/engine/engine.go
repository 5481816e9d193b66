// Package engine is the thin executor shell that turns table/row-level
// requests into the storage layers underneath: catalog lookups, heap
// scans, and B+Tree maintenance, trimmed to single-statement atomicity
// (no write-ahead log, no multi-statement transaction recovery).
package engine

import (
	"context"

	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/catalog"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/disk"
	"github.com/shadowash0215/daemonsql/storage_engine/heap"
	"github.com/shadowash0215/daemonsql/storage_engine/keymanager"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

var log = logging.For("engine")

// Database is one open database file: its disk manager, buffer pool, and
// catalog. All table/index operations are reached through it.
type Database struct {
	Name string

	disk *disk.Manager
	pool *buffer.Pool
	cat  *catalog.Manager
}

// Create makes a brand-new database file at path and initializes its
// catalog. poolSize <= 0 uses buffer.DefaultPoolSize.
func Create(name, path string, poolSize int) (*Database, error) {
	dm, err := disk.Open(path)
	if err != nil {
		return nil, err
	}
	pool := buffer.NewPool(poolSize, dm)
	cat, err := catalog.Create(pool)
	if err != nil {
		return nil, err
	}
	log.WithField("database", name).Info("created database")
	return &Database{Name: name, disk: dm, pool: pool, cat: cat}, nil
}

// Open reopens an existing database file, reconstructing its catalog.
func Open(name, path string, poolSize int) (*Database, error) {
	dm, err := disk.Open(path)
	if err != nil {
		return nil, err
	}
	pool := buffer.NewPool(poolSize, dm)
	cat, err := catalog.Open(pool)
	if err != nil {
		return nil, err
	}
	log.WithField("database", name).Info("opened database")
	return &Database{Name: name, disk: dm, pool: pool, cat: cat}, nil
}

// Close flushes every dirty page and closes the underlying file.
func (d *Database) Close() error {
	if err := d.cat.FlushCatalogMetaPage(); err != nil {
		return err
	}
	if err := d.pool.FlushAll(); err != nil {
		return err
	}
	return d.disk.Close()
}

// CreateTable registers name with schema.
func (d *Database) CreateTable(name string, schema *record.Schema) error {
	_, err := d.cat.CreateTable(name, schema)
	return err
}

// DropTable removes a table and every index defined on it.
func (d *Database) DropTable(name string) error {
	return d.cat.DropTable(name)
}

// CreateIndex builds a B+Tree over the named columns of table.
func (d *Database) CreateIndex(table, index string, columns []string) error {
	_, err := d.cat.CreateIndex(table, index, columns)
	return err
}

// DropIndex removes the named index only.
func (d *Database) DropIndex(table, index string) error {
	return d.cat.DropIndex(table, index)
}

// Tables lists every table's name.
func (d *Database) Tables() []string {
	infos := d.cat.GetTables()
	names := make([]string, len(infos))
	for i, t := range infos {
		names[i] = t.Name
	}
	return names
}

// Indexes lists every index defined on table.
func (d *Database) Indexes(table string) ([]string, error) {
	infos, err := d.cat.GetTableIndexes(table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, idx := range infos {
		names[i] = idx.Name
	}
	return names, nil
}

// TableSchema returns table's schema.
func (d *Database) TableSchema(table string) (*record.Schema, error) {
	info, err := d.cat.GetTable(table)
	if err != nil {
		return nil, err
	}
	return info.Schema, nil
}

// InsertRow serializes row under table's schema, inserts it into the
// heap, and maintains every index defined on the table.
func (d *Database) InsertRow(ctx context.Context, table string, row *record.Row) (page.RowID, error) {
	info, err := d.cat.GetTable(table)
	if err != nil {
		return page.RowID{}, err
	}

	size, err := row.SerializedSize(info.Schema)
	if err != nil {
		return page.RowID{}, err
	}
	buf := make([]byte, size)
	if _, err := row.Serialize(buf, info.Schema); err != nil {
		return page.RowID{}, err
	}

	rid, err := info.Heap.InsertTuple(buf)
	if err != nil {
		return page.RowID{}, err
	}

	indexes, err := d.cat.GetTableIndexes(table)
	if err != nil {
		return page.RowID{}, err
	}
	for n, idx := range indexes {
		key, err := idx.Keys.KeyFromRow(row)
		if err != nil {
			d.rollbackInsert(ctx, info, row, rid, indexes[:n])
			return page.RowID{}, err
		}
		ok, err := idx.Tree.Insert(ctx, key, rid)
		if err != nil {
			d.rollbackInsert(ctx, info, row, rid, indexes[:n])
			return page.RowID{}, err
		}
		if !ok {
			d.rollbackInsert(ctx, info, row, rid, indexes[:n])
			return page.RowID{}, dberrors.New(dberrors.Failed, "duplicate key for index %q on table %q", idx.Name, table)
		}
	}

	log.WithFields(map[string]any{"table": table, "page": rid.PageID, "slot": rid.Slot}).Debug("inserted row")
	return rid, nil
}

// rollbackInsert undoes a partially applied InsertRow: it removes rid from
// every index that already accepted it, then tombstones the heap tuple.
func (d *Database) rollbackInsert(ctx context.Context, info *catalog.TableInfo, row *record.Row, rid page.RowID, applied []*catalog.IndexInfo) {
	for _, idx := range applied {
		key, err := idx.Keys.KeyFromRow(row)
		if err != nil {
			continue
		}
		_ = idx.Tree.Remove(ctx, key)
	}
	if err := info.Heap.MarkDelete(rid); err == nil {
		_ = info.Heap.ApplyDelete(rid)
	}
}

// DeleteRow removes the row at rid from table and every index on it.
// Matches the tombstone-then-apply path Update uses when a row must move.
func (d *Database) DeleteRow(ctx context.Context, table string, rid page.RowID) error {
	info, err := d.cat.GetTable(table)
	if err != nil {
		return err
	}

	data, err := info.Heap.GetTuple(rid)
	if err != nil {
		return err
	}
	row, _, err := record.DeserializeRow(data, info.Schema)
	if err != nil {
		return err
	}

	if err := info.Heap.MarkDelete(rid); err != nil {
		return err
	}
	if err := info.Heap.ApplyDelete(rid); err != nil {
		return err
	}

	indexes, err := d.cat.GetTableIndexes(table)
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		key, err := idx.Keys.KeyFromRow(row)
		if err != nil {
			return err
		}
		if err := idx.Tree.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRow replaces the row at rid with newRow, re-keying every index
// affected by the change. If the heap relocates the row (it no longer
// fits its original slot), every index is updated to the new RowID.
func (d *Database) UpdateRow(ctx context.Context, table string, rid page.RowID, newRow *record.Row) (page.RowID, error) {
	info, err := d.cat.GetTable(table)
	if err != nil {
		return page.RowID{}, err
	}

	oldData, err := info.Heap.GetTuple(rid)
	if err != nil {
		return page.RowID{}, err
	}
	oldRow, _, err := record.DeserializeRow(oldData, info.Schema)
	if err != nil {
		return page.RowID{}, err
	}

	size, err := newRow.SerializedSize(info.Schema)
	if err != nil {
		return page.RowID{}, err
	}
	buf := make([]byte, size)
	if _, err := newRow.Serialize(buf, info.Schema); err != nil {
		return page.RowID{}, err
	}

	newRid, err := info.Heap.UpdateTuple(rid, buf)
	if err != nil {
		return page.RowID{}, err
	}

	indexes, err := d.cat.GetTableIndexes(table)
	if err != nil {
		return page.RowID{}, err
	}
	for _, idx := range indexes {
		oldKey, err := idx.Keys.KeyFromRow(oldRow)
		if err != nil {
			return page.RowID{}, err
		}
		newKey, err := idx.Keys.KeyFromRow(newRow)
		if err != nil {
			return page.RowID{}, err
		}
		if err := idx.Tree.Remove(ctx, oldKey); err != nil {
			return page.RowID{}, err
		}
		ok, err := idx.Tree.Insert(ctx, newKey, newRid)
		if err != nil {
			return page.RowID{}, err
		}
		if !ok {
			return page.RowID{}, dberrors.New(dberrors.Failed, "duplicate key for index %q on table %q", idx.Name, table)
		}
	}

	return newRid, nil
}

// Scan returns a fresh sequential-scan iterator over table.
func (d *Database) Scan(table string) (*heap.Iterator, error) {
	info, err := d.cat.GetTable(table)
	if err != nil {
		return nil, err
	}
	return heap.Begin(info.Heap, info.Schema), nil
}

// IndexOnColumn returns the name of an index whose leading key column is
// column, if one exists on table.
func (d *Database) IndexOnColumn(table, column string) (string, bool, error) {
	infos, err := d.cat.GetTableIndexes(table)
	if err != nil {
		return "", false, err
	}
	for _, idx := range infos {
		if len(idx.Columns) > 0 && idx.Columns[0] == column {
			return idx.Name, true, nil
		}
	}
	return "", false, nil
}

// IndexKeyManager returns the key projector for the named index, so
// callers can turn a probe row into the same key bytes the index stores.
func (d *Database) IndexKeyManager(table, index string) (*keymanager.Manager, error) {
	idx, err := d.cat.GetIndex(table, index)
	if err != nil {
		return nil, err
	}
	return idx.Keys, nil
}

// PointLookup resolves key to a RowID through the named index, then
// materializes the row.
func (d *Database) PointLookup(ctx context.Context, table, index string, key []byte) (*record.Row, error) {
	tableInfo, err := d.cat.GetTable(table)
	if err != nil {
		return nil, err
	}
	idx, err := d.cat.GetIndex(table, index)
	if err != nil {
		return nil, err
	}
	rid, err := idx.Tree.GetValue(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := tableInfo.Heap.GetTuple(rid)
	if err != nil {
		return nil, err
	}
	row, _, err := record.DeserializeRow(data, tableInfo.Schema)
	return row, err
}

// Stats exposes disk and buffer pool counters for diagnostics.
type Stats struct {
	Disk   disk.Stats
	Buffer buffer.Metrics
}

func (d *Database) Stats() Stats {
	return Stats{Disk: d.disk.Stats(), Buffer: d.pool.Stats()}
}
