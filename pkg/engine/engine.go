// Package engine provides the StorageEngine façade: the global buffer
// pool, the table registry, and (when persistence is enabled) the schema
// manager.
package engine

import (
	"strings"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/catalog"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/page"
	"github.com/relcore/reldb/pkg/record"
	"github.com/relcore/reldb/pkg/table"
)

const defaultBufferPoolCapacity = 256

// Config parameterizes a StorageEngine.
type Config struct {
	DataDir            string
	BufferPoolCapacity int
	Persistent         bool
	Log                *logger.Logger
	Metrics            *metrics.Metrics
}

// StorageEngine is the top-level façade. It owns the shared buffer pool,
// the table registry (keyed by both id and name), and the schema manager
// when persistence is on.
type StorageEngine struct {
	dataDir string
	pool    *bufferpool.Pool

	pageManagers map[int32]*page.PageManager

	tablesById   map[int32]*table.Table
	tablesByName map[string]*table.Table

	secondaryCounters map[int32]int32

	schema *catalog.SchemaManager

	persistent bool
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// Open constructs and initializes a StorageEngine. When cfg.Persistent is
// true, the schema manager bootstraps (or reattaches) SYS_TABLES/
// SYS_COLUMNS and every previously-known user table is reopened.
func Open(cfg Config) (*StorageEngine, error) {
	capacity := cfg.BufferPoolCapacity
	if capacity <= 0 {
		capacity = defaultBufferPoolCapacity
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	e := &StorageEngine{
		dataDir:           cfg.DataDir,
		pool:              bufferpool.New(cfg.DataDir, capacity, log, cfg.Metrics),
		pageManagers:      make(map[int32]*page.PageManager),
		tablesById:        make(map[int32]*table.Table),
		tablesByName:      make(map[string]*table.Table),
		secondaryCounters: make(map[int32]int32),
		persistent:        cfg.Persistent,
		log:               log,
		metrics:           cfg.Metrics,
	}

	if !cfg.Persistent {
		return e, nil
	}

	e.schema = catalog.New(cfg.DataDir, e.pool, log, cfg.Metrics)
	if err := e.schema.Initialize(); err != nil {
		return nil, err
	}
	e.registerSystemTable(e.schema.SysTables())
	e.registerSystemTable(e.schema.SysColumns())

	if err := e.loadAllTables(); err != nil {
		return nil, err
	}

	return e, nil
}

func isSystemTableName(name string) bool {
	u := strings.ToUpper(name)
	return u == "SYS_TABLES" || u == "SYS_COLUMNS"
}

func clusteredIndexId(tableId int32) int32          { return tableId*100 + 0 }
func secondaryIndexId(tableId int32, k int32) int32 { return tableId*100 + k }

// validateColumns enforces the Column invariant type==VARCHAR ⇔ length>0 and
// case-insensitive unique column names, ahead of any metadata write.
func validateColumns(columns []record.Column) error {
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		key := strings.ToLower(col.Name)
		if seen[key] {
			return dberrors.New(dberrors.InvalidArgument, "duplicate column name %q", col.Name)
		}
		seen[key] = true

		if col.Type == record.VarcharType && col.Length <= 0 {
			return dberrors.New(dberrors.InvalidArgument, "VARCHAR column %q must have length > 0", col.Name)
		}
		if col.Type != record.VarcharType && col.Length != 0 {
			return dberrors.New(dberrors.InvalidArgument, "non-VARCHAR column %q must have length 0", col.Name)
		}
	}
	return nil
}

func (e *StorageEngine) pageManagerFor(indexId int32) (*page.PageManager, error) {
	if pm, ok := e.pageManagers[indexId]; ok {
		return pm, nil
	}
	pm, err := page.Open(e.dataDir, indexId, e.log)
	if err != nil {
		return nil, err
	}
	e.pageManagers[indexId] = pm
	return pm, nil
}

func (e *StorageEngine) loadAllTables() error {
	for _, meta := range e.schema.LoadAllTables() {
		t := table.New(meta.TableId, meta.Name, meta.Columns, e.log, e.metrics)
		pm, err := e.pageManagerFor(clusteredIndexId(meta.TableId))
		if err != nil {
			return err
		}
		if err := t.Open(e.pool, pm, clusteredIndexId(meta.TableId)); err != nil {
			return err
		}
		e.registerTable(t)
	}
	return nil
}

// CreateTable rejects system-table names; if persistence is on, delegates
// to the schema manager for id assignment and metadata write, then
// constructs, opens, attaches the clustered index on column 0, and
// registers the new table.
func (e *StorageEngine) CreateTable(name string, columns []record.Column) (*table.Table, error) {
	if isSystemTableName(name) {
		return nil, dberrors.New(dberrors.InvalidArgument, "%q is a reserved system-table name", name)
	}
	if e.TableExists(name) {
		return nil, dberrors.New(dberrors.AlreadyExists, "table %q already exists", name)
	}
	if err := validateColumns(columns); err != nil {
		return nil, err
	}

	var tableId int32
	if e.persistent {
		id, err := e.schema.CreateTable(name, columns)
		if err != nil {
			return nil, err
		}
		tableId = id
	} else {
		tableId = int32(len(e.tablesById) + 1)
	}

	t := table.New(tableId, name, columns, e.log, e.metrics)
	pm, err := e.pageManagerFor(clusteredIndexId(tableId))
	if err != nil {
		return nil, err
	}
	if err := t.Open(e.pool, pm, clusteredIndexId(tableId)); err != nil {
		return nil, err
	}

	e.registerTable(t)
	return t, nil
}

// CreateIndex attaches a new secondary index named indexName on column
// columnName of tableName. Each secondary index on a table gets its own
// page-manager id derived from secondaryIndexId, numbered from 1 up per
// table so it never collides with the table's clustered index (k=0).
func (e *StorageEngine) CreateIndex(tableName, indexName, columnName string, unique bool) error {
	t, ok := e.tablesByName[strings.ToLower(tableName)]
	if !ok {
		return dberrors.New(dberrors.NotFound, "table %q does not exist", tableName)
	}

	e.secondaryCounters[t.TableId()]++
	k := e.secondaryCounters[t.TableId()]
	indexId := secondaryIndexId(t.TableId(), k)

	pm, err := e.pageManagerFor(indexId)
	if err != nil {
		return err
	}
	return t.AttachSecondaryIndex(indexName, columnName, unique, e.pool, pm, indexId)
}

// DropTable rejects system-table names; closes the table, unregisters it,
// forgets the engine's cached PageManager for its clustered index, and
// deletes its metadata. No pages are freed: the index's .db and .pagemeta
// files and any of its frames in the buffer pool are left as they are.
func (e *StorageEngine) DropTable(name string) (bool, error) {
	if isSystemTableName(name) {
		return false, dberrors.New(dberrors.InvalidArgument, "%q is a reserved system-table name", name)
	}
	t, ok := e.tablesByName[strings.ToLower(name)]
	if !ok {
		return false, nil
	}

	t.Close()
	delete(e.tablesById, t.TableId())
	delete(e.tablesByName, strings.ToLower(name))
	delete(e.pageManagers, clusteredIndexId(t.TableId()))

	if e.persistent {
		if err := e.schema.DropTable(name); err != nil {
			return false, err
		}
	}
	return true, nil
}

// GetTable returns the table registered under name, if any.
func (e *StorageEngine) GetTable(name string) (*table.Table, bool) {
	t, ok := e.tablesByName[strings.ToLower(name)]
	return t, ok
}

// GetTableById returns the table registered under tableId, if any.
func (e *StorageEngine) GetTableById(tableId int32) (*table.Table, bool) {
	t, ok := e.tablesById[tableId]
	return t, ok
}

// GetAllTableNames returns every registered table's name, including the
// system tables when persistence is on.
func (e *StorageEngine) GetAllTableNames() []string {
	out := make([]string, 0, len(e.tablesByName))
	for _, t := range e.tablesById {
		out = append(out, t.TableName())
	}
	return out
}

// TableExists reports whether name is a currently registered table.
func (e *StorageEngine) TableExists(name string) bool {
	_, ok := e.tablesByName[strings.ToLower(name)]
	return ok
}

// registerTable adds t to both the id and name registries.
func (e *StorageEngine) registerTable(t *table.Table) {
	e.tablesById[t.TableId()] = t
	e.tablesByName[strings.ToLower(t.TableName())] = t
}

// RegisterTable is the exported form used by callers outside this package
// (e.g. tests constructing a table directly).
func (e *StorageEngine) RegisterTable(t *table.Table) { e.registerTable(t) }

// registerSystemTable registers a system table constructed by the schema
// manager's bootstrap path, bypassing the reserved-name check.
func (e *StorageEngine) registerSystemTable(t *table.Table) {
	if t == nil {
		return
	}
	e.tablesById[t.TableId()] = t
	e.tablesByName[strings.ToLower(t.TableName())] = t
}

// GetBufferPool returns the engine's shared buffer pool.
func (e *StorageEngine) GetBufferPool() *bufferpool.Pool { return e.pool }

// GetPageManager returns (allocating if necessary) the PageManager for the
// clustered index of tableId.
func (e *StorageEngine) GetPageManager(tableId int32) (*page.PageManager, error) {
	return e.pageManagerFor(clusteredIndexId(tableId))
}

// Close flushes all pages and closes every registered table.
func (e *StorageEngine) Close() error {
	for _, t := range e.tablesById {
		t.Close()
	}
	return e.pool.FlushAllPages()
}
