// Package catalog implements the self-bootstrapping system-table metadata
// store: SYS_TABLES and SYS_COLUMNS, themselves ordinary Tables over the
// clustered-index storage.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/page"
	"github.com/relcore/reldb/pkg/record"
	"github.com/relcore/reldb/pkg/table"
)

// Canonical index ids for the two system tables, per the on-disk layout
// convention indexId = tableId*100 + k.
const (
	SysTablesTableId  int32 = -1
	SysColumnsTableId int32 = -2

	SysTablesIndexId  int32 = -100
	SysColumnsIndexId int32 = -200
)

// TableMetadata is the in-memory replay of one user table's schema.
type TableMetadata struct {
	TableId int32
	Name    string
	Columns []record.Column
}

// SchemaManager owns and persists table/column metadata. It requires
// Initialize before any other method is called.
type SchemaManager struct {
	dataDir string
	pool    *bufferpool.Pool

	sysTables  *table.Table
	sysColumns *table.Table

	cache       map[string]*TableMetadata
	nextTableId int32

	log     *logger.Logger
	metrics *metrics.Metrics
}

func sysTablesColumns() []record.Column {
	return []record.Column{
		{Name: "table_id", Type: record.IntType, Nullable: false},
		{Name: "table_name", Type: record.VarcharType, Length: 128, Nullable: false},
	}
}

func sysColumnsColumns() []record.Column {
	return []record.Column{
		{Name: "table_id", Type: record.IntType, Nullable: false},
		{Name: "column_name", Type: record.VarcharType, Length: 128, Nullable: false},
		{Name: "column_type", Type: record.VarcharType, Length: 32, Nullable: false},
		{Name: "column_length", Type: record.IntType, Nullable: false},
		{Name: "nullable", Type: record.BooleanType, Nullable: false},
		{Name: "column_position", Type: record.IntType, Nullable: false},
	}
}

// New constructs a SchemaManager rooted at dataDir, sharing pool with the
// rest of the engine.
func New(dataDir string, pool *bufferpool.Pool, log *logger.Logger, m *metrics.Metrics) *SchemaManager {
	return &SchemaManager{
		dataDir: dataDir,
		pool:    pool,
		cache:   make(map[string]*TableMetadata),
		log:     log.CatalogLogger(),
		metrics: m,
	}
}

// Initialize bootstraps or reattaches the two system tables, then replays
// their rows into the in-memory metadata cache.
func (s *SchemaManager) Initialize() error {
	sysTablesPm, err := page.Open(s.dataDir, SysTablesIndexId, s.log)
	if err != nil {
		return err
	}
	sysColumnsPm, err := page.Open(s.dataDir, SysColumnsIndexId, s.log)
	if err != nil {
		return err
	}

	s.sysTables = table.New(SysTablesTableId, "SYS_TABLES", sysTablesColumns(), s.log, s.metrics)
	if err := s.sysTables.Open(s.pool, sysTablesPm, SysTablesIndexId); err != nil {
		return err
	}

	s.sysColumns = table.New(SysColumnsTableId, "SYS_COLUMNS", sysColumnsColumns(), s.log, s.metrics)
	if err := s.sysColumns.Open(s.pool, sysColumnsPm, SysColumnsIndexId); err != nil {
		return err
	}

	return s.replay()
}

// replay reconstructs the in-memory cache from the two system tables'
// current contents and sets nextTableId = 1 + max(table_id, 0).
func (s *SchemaManager) replay() error {
	s.cache = make(map[string]*TableMetadata)

	tableRows, err := s.sysTables.FullTableScan()
	if err != nil {
		return err
	}
	columnRows, err := s.sysColumns.FullTableScan()
	if err != nil {
		return err
	}

	byTableId := make(map[int32][]record.Row)
	for _, cr := range columnRows {
		tid := cr[0].(int32)
		byTableId[tid] = append(byTableId[tid], cr)
	}

	maxId := int32(0)
	for _, tr := range tableRows {
		tid := tr[0].(int32)
		name := tr[1].(string)
		if tid > maxId {
			maxId = tid
		}

		cols := byTableId[tid]
		sort.Slice(cols, func(i, j int) bool {
			return cols[i][5].(int32) < cols[j][5].(int32)
		})

		columns := make([]record.Column, len(cols))
		for i, cr := range cols {
			columns[i] = record.Column{
				Name:     cr[1].(string),
				Type:     parseColumnType(cr[2].(string)),
				Length:   int(cr[3].(int32)),
				Nullable: cr[4].(bool),
			}
		}

		s.cache[strings.ToLower(name)] = &TableMetadata{TableId: tid, Name: name, Columns: columns}
	}

	s.nextTableId = maxId + 1
	return nil
}

func parseColumnType(s string) record.ColumnType {
	switch s {
	case "INT":
		return record.IntType
	case "BIGINT":
		return record.BigIntType
	case "DOUBLE":
		return record.DoubleType
	case "BOOLEAN":
		return record.BooleanType
	case "VARCHAR":
		return record.VarcharType
	case "DATE":
		return record.DateType
	case "TIMESTAMP":
		return record.TimestampType
	default:
		return record.IntType
	}
}

// CreateTable assigns a new table id, records one SYS_TABLES row and one
// SYS_COLUMNS row per column, updates the cache, and flushes system-table
// pages.
func (s *SchemaManager) CreateTable(name string, columns []record.Column) (int32, error) {
	key := strings.ToLower(name)
	if _, exists := s.cache[key]; exists {
		return 0, dberrors.New(dberrors.AlreadyExists, "table %q already exists", name)
	}

	tableId := s.nextTableId
	s.nextTableId++

	if err := s.sysTables.InsertRow(record.Row{tableId, name}); err != nil {
		return 0, err
	}
	for pos, col := range columns {
		row := record.Row{
			tableId,
			col.Name,
			col.Type.String(),
			int32(col.Length),
			col.Nullable,
			int32(pos),
		}
		if err := s.sysColumns.InsertRow(row); err != nil {
			return 0, err
		}
	}

	s.cache[key] = &TableMetadata{TableId: tableId, Name: name, Columns: append([]record.Column(nil), columns...)}
	s.flushSystemTables()

	return tableId, nil
}

// DropTable removes the SYS_TABLES row for name. SYS_COLUMNS rows for that
// table are left orphaned: composite-key delete over (table_id,
// column_position) is not wired in this engine, so those rows remain on
// disk unreferenced by the cache. This is a documented limitation, not a
// bug.
func (s *SchemaManager) DropTable(name string) error {
	key := strings.ToLower(name)
	meta, exists := s.cache[key]
	if !exists {
		return dberrors.New(dberrors.NotFound, "table %q does not exist", name)
	}

	if n, err := s.sysTables.DeleteRow(meta.TableId); err != nil {
		return err
	} else if n == 0 {
		return dberrors.New(dberrors.MetadataCorrupt, "SYS_TABLES missing row for table %q (id %d)", name, meta.TableId)
	}

	delete(s.cache, key)
	s.flushSystemTables()
	return nil
}

// LoadAllTables returns every cached TableMetadata entry, in no particular
// order; callers reconstruct and open a Table for each.
func (s *SchemaManager) LoadAllTables() []*TableMetadata {
	out := make([]*TableMetadata, 0, len(s.cache))
	for _, m := range s.cache {
		out = append(out, m)
	}
	return out
}

// Lookup returns the cached metadata for name, if any.
func (s *SchemaManager) Lookup(name string) (*TableMetadata, bool) {
	m, ok := s.cache[strings.ToLower(name)]
	return m, ok
}

// SysTables returns the bootstrapped SYS_TABLES table.
func (s *SchemaManager) SysTables() *table.Table { return s.sysTables }

// SysColumns returns the bootstrapped SYS_COLUMNS table.
func (s *SchemaManager) SysColumns() *table.Table { return s.sysColumns }

// flushSystemTables persists the system tables' pages immediately, since
// metadata operations flush after each mutation per the durability model.
func (s *SchemaManager) flushSystemTables() {
	start := time.Now()
	err := s.pool.FlushTablePages(SysTablesIndexId)
	if err2 := s.pool.FlushTablePages(SysColumnsIndexId); err == nil {
		err = err2
	}
	s.log.LogOperation("flush-system-tables", time.Since(start), err)
}
