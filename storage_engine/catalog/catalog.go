// Package catalog tracks every table and index a database owns: names,
// schemas, and the page each one's metadata and data live at, persisted as
// magic-prefixed binary pages rather than one file per table.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/shadowash0215/daemonsql/storage_engine/buffer"
	"github.com/shadowash0215/daemonsql/storage_engine/dberrors"
	"github.com/shadowash0215/daemonsql/storage_engine/heap"
	"github.com/shadowash0215/daemonsql/storage_engine/index/btree"
	"github.com/shadowash0215/daemonsql/storage_engine/keymanager"
	"github.com/shadowash0215/daemonsql/storage_engine/logging"
	"github.com/shadowash0215/daemonsql/storage_engine/page"
	"github.com/shadowash0215/daemonsql/storage_engine/record"
)

var log = logging.For("catalog")

// TableInfo is the live, in-memory handle to one table: its schema, its
// heap, and the bookkeeping needed to flush changes back to its page.
type TableInfo struct {
	ID     uint32
	Name   string
	Schema *record.Schema
	Heap   *heap.Heap

	metaPageID page.ID
}

// IndexInfo is the live, in-memory handle to one index.
type IndexInfo struct {
	ID      uint32
	Name    string
	TableID uint32
	Columns []string
	Tree    *btree.Index
	Keys    *keymanager.Manager

	metaPageID page.ID
}

// Manager owns every table and index of one open database. Table
// name -> id lookups are served through a ristretto cache in front of the
// authoritative maps, since a busy CLI session resolves the same few table
// names on nearly every statement. Index names are also written to the
// cache, but GetIndex reads indexByTable directly.
type Manager struct {
	mu sync.RWMutex

	pool *buffer.Pool
	meta *catalogMeta
	root *indexRoots

	tables       map[uint32]*TableInfo
	tableNames   map[string]uint32
	indexes      map[uint32]*IndexInfo
	indexByTable map[uint32]map[string]uint32 // table_id -> index name -> index_id

	nameCache *ristretto.Cache[string, uint32]
}

// newNameCache builds the small name->id lookup cache shared by table and
// index name resolution.
func newNameCache() (*ristretto.Cache[string, uint32], error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, uint32]{
		NumCounters: 1e4,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, dberrors.Wrap(dberrors.Failed, err, "build catalog name cache")
	}
	return cache, nil
}

// Create initializes a brand-new database's catalog: it reserves logical
// pages 0 and 1 (page.CatalogMetaPageID and page.IndexRootsPageID) as its
// first two allocations, guaranteed by the disk manager's first-fit
// allocation order on an empty file.
func Create(pool *buffer.Pool) (*Manager, error) {
	cache, err := newNameCache()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		pool:         pool,
		meta:         newCatalogMeta(),
		root:         newIndexRoots(),
		tables:       make(map[uint32]*TableInfo),
		tableNames:   make(map[string]uint32),
		indexes:      make(map[uint32]*IndexInfo),
		indexByTable: make(map[uint32]map[string]uint32),
		nameCache:    cache,
	}

	metaHandle, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	if metaHandle.Frame().PageID != page.CatalogMetaPageID {
		metaHandle.Release(false)
		return nil, dberrors.New(dberrors.Failed, "expected fresh database's first page to be %d, got %d", page.CatalogMetaPageID, metaHandle.Frame().PageID)
	}
	if err := m.meta.serializeTo(metaHandle.Frame().Raw); err != nil {
		metaHandle.Release(false)
		return nil, err
	}
	metaHandle.Release(true)

	rootsHandle, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	if rootsHandle.Frame().PageID != page.IndexRootsPageID {
		rootsHandle.Release(false)
		return nil, dberrors.New(dberrors.Failed, "expected fresh database's second page to be %d, got %d", page.IndexRootsPageID, rootsHandle.Frame().PageID)
	}
	if err := m.root.serializeTo(rootsHandle.Frame().Raw); err != nil {
		rootsHandle.Release(false)
		return nil, err
	}
	rootsHandle.Release(true)

	log.Info("initialized new catalog")
	return m, nil
}

// Open reconstructs a Manager over an existing database file, loading
// every table and index's metadata into memory.
func Open(pool *buffer.Pool) (*Manager, error) {
	cache, err := newNameCache()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		pool:         pool,
		tables:       make(map[uint32]*TableInfo),
		tableNames:   make(map[string]uint32),
		indexes:      make(map[uint32]*IndexInfo),
		indexByTable: make(map[uint32]map[string]uint32),
		nameCache:    cache,
	}

	metaHandle, err := pool.FetchPage(page.CatalogMetaPageID)
	if err != nil {
		return nil, err
	}
	meta, err := deserializeCatalogMeta(metaHandle.Frame().Raw)
	metaHandle.Release(false)
	if err != nil {
		return nil, err
	}
	m.meta = meta

	rootsHandle, err := pool.FetchPage(page.IndexRootsPageID)
	if err != nil {
		return nil, err
	}
	roots, err := deserializeIndexRoots(rootsHandle.Frame().Raw)
	rootsHandle.Release(false)
	if err != nil {
		return nil, err
	}
	m.root = roots

	for tableID, pid := range meta.tablePages {
		if err := m.loadTable(tableID, pid); err != nil {
			return nil, err
		}
	}
	for indexID, pid := range meta.indexPages {
		if err := m.loadIndex(indexID, pid); err != nil {
			return nil, err
		}
	}

	log.WithFields(map[string]any{"tables": len(m.tables), "indexes": len(m.indexes)}).Info("loaded catalog")
	return m, nil
}

func (m *Manager) loadTable(tableID uint32, pid page.ID) error {
	h, err := m.pool.FetchPage(pid)
	if err != nil {
		return err
	}
	tm, err := deserializeTableMeta(h.Frame().Raw)
	h.Release(false)
	if err != nil {
		return err
	}

	info := &TableInfo{
		ID:         tm.id,
		Name:       tm.name,
		Schema:     tm.schema,
		Heap:       heap.Open(m.pool, tm.firstPageID),
		metaPageID: pid,
	}
	m.tables[tableID] = info
	m.tableNames[tm.name] = tableID
	return nil
}

func (m *Manager) loadIndex(indexID uint32, pid page.ID) error {
	h, err := m.pool.FetchPage(pid)
	if err != nil {
		return err
	}
	im, err := deserializeIndexMeta(h.Frame().Raw)
	h.Release(false)
	if err != nil {
		return err
	}

	table, ok := m.tables[im.tableID]
	if !ok {
		return dberrors.New(dberrors.Failed, "index %q references unknown table id %d", im.name, im.tableID)
	}
	keys, err := keymanager.New(table.Schema, im.columns)
	if err != nil {
		return err
	}

	rootPageID, ok := m.root.roots[indexID]
	if !ok {
		return dberrors.New(dberrors.Failed, "index %q missing from index roots page", im.name)
	}

	indexID2 := indexID
	tree := btree.Open(m.pool, im.keySize, rootPageID, func(newRoot page.ID) error {
		return m.persistIndexRoot(indexID2, newRoot)
	})

	info := &IndexInfo{
		ID:         im.id,
		Name:       im.name,
		TableID:    im.tableID,
		Columns:    im.columns,
		Tree:       tree,
		Keys:       keys,
		metaPageID: pid,
	}
	m.indexes[indexID] = info
	bucket, ok := m.indexByTable[im.tableID]
	if !ok {
		bucket = make(map[string]uint32)
		m.indexByTable[im.tableID] = bucket
	}
	bucket[im.name] = indexID
	return nil
}

func (m *Manager) persistIndexRoot(indexID uint32, newRoot page.ID) error {
	m.root.roots[indexID] = newRoot
	h, err := m.pool.FetchPage(page.IndexRootsPageID)
	if err != nil {
		return err
	}
	if err := m.root.serializeTo(h.Frame().Raw); err != nil {
		h.Release(false)
		return err
	}
	h.Release(true)
	return nil
}

func (m *Manager) flushCatalogMeta() error {
	h, err := m.pool.FetchPage(page.CatalogMetaPageID)
	if err != nil {
		return err
	}
	if err := m.meta.serializeTo(h.Frame().Raw); err != nil {
		h.Release(false)
		return err
	}
	h.Release(true)
	return nil
}

// CreateTable registers a new table with the given schema and an empty
// heap, persisting its metadata page and updating the catalog root page.
func (m *Manager) CreateTable(name string, schema *record.Schema) (*TableInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tableNames[name]; exists {
		return nil, dberrors.New(dberrors.TableAlreadyExist, "table %q already exists", name)
	}

	h, err := heap.Create(m.pool)
	if err != nil {
		return nil, err
	}

	tableID := m.meta.nextTableID
	m.meta.nextTableID++

	metaHandle, err := m.pool.NewPage()
	if err != nil {
		return nil, err
	}
	tm := &tableMeta{id: tableID, name: name, firstPageID: h.FirstPageID, schema: schema}
	if err := tm.serializeTo(metaHandle.Frame().Raw); err != nil {
		metaHandle.Release(false)
		return nil, err
	}
	metaPageID := metaHandle.Frame().PageID
	metaHandle.Release(true)

	m.meta.tablePages[tableID] = metaPageID
	if err := m.flushCatalogMeta(); err != nil {
		return nil, err
	}

	info := &TableInfo{ID: tableID, Name: name, Schema: schema, Heap: h, metaPageID: metaPageID}
	m.tables[tableID] = info
	m.tableNames[name] = tableID
	m.nameCache.Set(tableNameKey(name), tableID, 1)

	log.WithFields(map[string]any{"table": name, "id": tableID}).Info("created table")
	return info, nil
}

// GetTable resolves a table by name.
func (m *Manager) GetTable(name string) (*TableInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.nameCache.Get(tableNameKey(name)); ok {
		if info, ok := m.tables[id]; ok {
			return info, nil
		}
	}
	id, ok := m.tableNames[name]
	if !ok {
		return nil, dberrors.New(dberrors.TableNotExist, "table %q does not exist", name)
	}
	m.nameCache.Set(tableNameKey(name), id, 1)
	return m.tables[id], nil
}

// GetTableByID resolves a table by its numeric id.
func (m *Manager) GetTableByID(id uint32) (*TableInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.tables[id]
	if !ok {
		return nil, dberrors.New(dberrors.TableNotExist, "table id %d does not exist", id)
	}
	return info, nil
}

// GetTables returns every table currently registered.
func (m *Manager) GetTables() []*TableInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TableInfo, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	return out
}

// DropTable removes a table and cascades to every index defined on it,
// dropping each index before erasing the table itself.
func (m *Manager) DropTable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.tableNames[name]
	if !ok {
		return dberrors.New(dberrors.TableNotExist, "table %q does not exist", name)
	}

	if bucket, ok := m.indexByTable[id]; ok {
		for indexName := range bucket {
			if err := m.dropIndexLocked(name, indexName); err != nil {
				return err
			}
		}
	}

	info := m.tables[id]
	delete(m.tableNames, name)
	delete(m.tables, id)
	m.nameCache.Del(tableNameKey(name))

	if err := m.pool.DeletePage(info.metaPageID); err != nil {
		return err
	}
	delete(m.meta.tablePages, id)
	if err := m.flushCatalogMeta(); err != nil {
		return err
	}

	if err := info.Heap.Drop(); err != nil {
		return err
	}

	log.WithFields(map[string]any{"table": name, "id": id}).Info("dropped table")
	return nil
}

// CreateIndex builds a new B+Tree over the named columns of table and
// registers it in the catalog.
func (m *Manager) CreateIndex(tableName, indexName string, columns []string) (*IndexInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableID, ok := m.tableNames[tableName]
	if !ok {
		return nil, dberrors.New(dberrors.TableNotExist, "table %q does not exist", tableName)
	}
	if bucket, ok := m.indexByTable[tableID]; ok {
		if _, exists := bucket[indexName]; exists {
			return nil, dberrors.New(dberrors.IndexAlreadyExist, "index %q already exists on table %q", indexName, tableName)
		}
	}

	table := m.tables[tableID]
	keys, err := keymanager.New(table.Schema, columns)
	if err != nil {
		return nil, err
	}

	indexID := m.meta.nextIndexID
	m.meta.nextIndexID++

	tree, err := btree.Create(m.pool, keys.KeySize(), func(newRoot page.ID) error {
		return m.persistIndexRoot(indexID, newRoot)
	})
	if err != nil {
		return nil, err
	}

	metaHandle, err := m.pool.NewPage()
	if err != nil {
		return nil, err
	}
	im := &indexMeta{id: indexID, name: indexName, tableID: tableID, columns: columns, keySize: keys.KeySize()}
	if err := im.serializeTo(metaHandle.Frame().Raw); err != nil {
		metaHandle.Release(false)
		return nil, err
	}
	metaPageID := metaHandle.Frame().PageID
	metaHandle.Release(true)

	m.meta.indexPages[indexID] = metaPageID
	if err := m.flushCatalogMeta(); err != nil {
		return nil, err
	}

	info := &IndexInfo{ID: indexID, Name: indexName, TableID: tableID, Columns: columns, Tree: tree, Keys: keys, metaPageID: metaPageID}
	m.indexes[indexID] = info
	bucket, ok := m.indexByTable[tableID]
	if !ok {
		bucket = make(map[string]uint32)
		m.indexByTable[tableID] = bucket
	}
	bucket[indexName] = indexID
	m.nameCache.Set(indexNameKey(tableName, indexName), indexID, 1)

	log.WithFields(map[string]any{"index": indexName, "table": tableName, "id": indexID}).Info("created index")
	return info, nil
}

// GetIndex resolves an index by table name and index name.
func (m *Manager) GetIndex(tableName, indexName string) (*IndexInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tableID, ok := m.tableNames[tableName]
	if !ok {
		return nil, dberrors.New(dberrors.TableNotExist, "table %q does not exist", tableName)
	}
	bucket, ok := m.indexByTable[tableID]
	if !ok {
		return nil, dberrors.New(dberrors.IndexNotFound, "index %q not found on table %q", indexName, tableName)
	}
	indexID, ok := bucket[indexName]
	if !ok {
		return nil, dberrors.New(dberrors.IndexNotFound, "index %q not found on table %q", indexName, tableName)
	}
	return m.indexes[indexID], nil
}

// GetTableIndexes returns every index defined on tableName.
func (m *Manager) GetTableIndexes(tableName string) ([]*IndexInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tableID, ok := m.tableNames[tableName]
	if !ok {
		return nil, dberrors.New(dberrors.TableNotExist, "table %q does not exist", tableName)
	}
	bucket := m.indexByTable[tableID]
	out := make([]*IndexInfo, 0, len(bucket))
	for _, id := range bucket {
		out = append(out, m.indexes[id])
	}
	return out, nil
}

// DropIndex removes exactly the named index, erasing only the single
// (table_name, index_name) entry from its bucket rather than the whole
// per-table bucket.
func (m *Manager) DropIndex(tableName, indexName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropIndexLocked(tableName, indexName)
}

func (m *Manager) dropIndexLocked(tableName, indexName string) error {
	tableID, ok := m.tableNames[tableName]
	if !ok {
		return dberrors.New(dberrors.TableNotExist, "table %q does not exist", tableName)
	}
	bucket, ok := m.indexByTable[tableID]
	if !ok {
		return dberrors.New(dberrors.IndexNotFound, "index %q not found on table %q", indexName, tableName)
	}
	indexID, ok := bucket[indexName]
	if !ok {
		return dberrors.New(dberrors.IndexNotFound, "index %q not found on table %q", indexName, tableName)
	}

	info := m.indexes[indexID]
	delete(bucket, indexName) // only this entry, not the whole table bucket
	delete(m.indexes, indexID)
	delete(m.root.roots, indexID)
	m.nameCache.Del(indexNameKey(tableName, indexName))

	if err := info.Tree.Destroy(context.Background()); err != nil {
		return err
	}
	if err := m.pool.DeletePage(info.metaPageID); err != nil {
		return err
	}
	delete(m.meta.indexPages, indexID)
	if err := m.flushCatalogMeta(); err != nil {
		return err
	}
	rootsHandle, err := m.pool.FetchPage(page.IndexRootsPageID)
	if err != nil {
		return err
	}
	if err := m.root.serializeTo(rootsHandle.Frame().Raw); err != nil {
		rootsHandle.Release(false)
		return err
	}
	rootsHandle.Release(true)

	log.WithFields(map[string]any{"index": indexName, "table": tableName}).Info("dropped index")
	return nil
}

// FlushCatalogMetaPage forces the catalog root page and index roots page
// back to disk, independent of the buffer pool's own eviction schedule.
func (m *Manager) FlushCatalogMetaPage() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.pool.FlushPage(page.CatalogMetaPageID); err != nil {
		return err
	}
	return m.pool.FlushPage(page.IndexRootsPageID)
}

func tableNameKey(name string) string { return fmt.Sprintf("t:%s", name) }
func indexNameKey(table, index string) string { return fmt.Sprintf("i:%s:%s", table, index) }
