// Package table owns row-level operations over a clustered index and its
// secondary indexes: insert, point/range lookup, full scan, update, and
// delete.
package table

import (
	"strings"
	"time"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/index"
	"github.com/relcore/reldb/pkg/page"
	"github.com/relcore/reldb/pkg/record"
)

// Table owns an immutable column list, one clustered index (the table's
// primary storage), and a name-keyed map of secondary indexes.
type Table struct {
	tableId   int32
	tableName string
	columns   []record.Column

	clustered  *index.ClusteredIndex
	secondary  map[string]*index.SecondaryIndex
	secondaryOn map[string]string // index name -> indexed column name

	open bool

	log     *logger.Logger
	metrics *metrics.Metrics
}

// New constructs a closed Table over the given schema. Call Open before
// any row operation.
func New(tableId int32, tableName string, columns []record.Column, log *logger.Logger, m *metrics.Metrics) *Table {
	return &Table{
		tableId:     tableId,
		tableName:   tableName,
		columns:     columns,
		secondary:   make(map[string]*index.SecondaryIndex),
		secondaryOn: make(map[string]string),
		log:         log.TableLogger(),
		metrics:     m,
	}
}

// Columns satisfies index.SchemaSource.
func (t *Table) Columns() []record.Column { return t.columns }

// TableId returns the table's assigned id.
func (t *Table) TableId() int32 { return t.tableId }

// TableName returns the table's declared name.
func (t *Table) TableName() string { return t.tableName }

// IsOpen reports whether Open has succeeded and Close has not since run.
func (t *Table) IsOpen() bool { return t.open }

// Open attaches the clustered index at indexId (tableId*100 + 0). Opening
// an already-open table is a no-op.
func (t *Table) Open(pool *bufferpool.Pool, pm *page.PageManager, indexId int32) error {
	if t.open {
		return nil
	}
	ci, err := index.OpenClusteredIndex(indexId, t, pool, pm, t.log, t.metrics)
	if err != nil {
		return err
	}
	t.clustered = ci
	t.open = true
	return nil
}

// AttachSecondaryIndex registers a secondary index over columnName, opening
// it at indexId (tableId*100 + k, k>=1), and indexes every row already in
// the table.
func (t *Table) AttachSecondaryIndex(name, columnName string, unique bool, pool *bufferpool.Pool, pm *page.PageManager, indexId int32) error {
	if !t.open {
		return dberrors.New(dberrors.InvalidState, "table %q is not open", t.tableName)
	}
	pos, _, err := t.columnPosition(columnName)
	if err != nil {
		return err
	}
	si, err := index.OpenSecondaryIndex(indexId, name, unique, t.clustered, pool, pm, t.log, t.metrics)
	if err != nil {
		return err
	}
	rows, err := t.clustered.GetAllRows()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := si.InsertEntry(row[pos], row[0]); err != nil {
			return err
		}
	}
	t.secondary[name] = si
	t.secondaryOn[name] = strings.ToLower(columnName)
	return nil
}

// Close marks the table unavailable for row operations. Underlying pages
// are not flushed here; callers use the buffer pool's flush primitives.
func (t *Table) Close() {
	t.open = false
}

func (t *Table) requireOpen() error {
	if !t.open {
		return dberrors.New(dberrors.InvalidState, "table %q is not open", t.tableName)
	}
	return nil
}

func (t *Table) columnPosition(name string) (int, record.Column, error) {
	for i, c := range t.columns {
		if strings.EqualFold(c.Name, name) {
			return i, c, nil
		}
	}
	return -1, record.Column{}, dberrors.New(dberrors.InvalidArgument, "unknown column %q", name)
}

// validateRow checks shape, per-column type, and nullability before any
// index is touched, per the documented best-effort-atomic contract: a
// type-validation failure must occur before any index mutation.
func (t *Table) validateRow(row record.Row) error {
	if len(row) != len(t.columns) {
		return dberrors.New(dberrors.InvalidArgument, "row has %d values, table %q has %d columns", len(row), t.tableName, len(t.columns))
	}
	for i, col := range t.columns {
		v := row[i]
		if v == nil {
			if !col.Nullable {
				return dberrors.New(dberrors.InvalidArgument, "column %q is not nullable", col.Name)
			}
			continue
		}
		if !typeMatches(col, v) {
			return dberrors.New(dberrors.TypeMismatch, "column %q expects %s, got %T", col.Name, col.Type, v)
		}
	}
	if row[0] == nil {
		return dberrors.New(dberrors.InvalidArgument, "primary key value must not be null")
	}
	return nil
}

func typeMatches(col record.Column, v any) bool {
	switch col.Type {
	case record.IntType:
		_, ok := v.(int32)
		return ok
	case record.BigIntType:
		_, ok := v.(int64)
		return ok
	case record.DoubleType:
		_, ok := v.(float64)
		return ok
	case record.BooleanType:
		_, ok := v.(bool)
		return ok
	case record.VarcharType:
		_, ok := v.(string)
		return ok
	case record.DateType, record.TimestampType:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}

// InsertRow validates row shape and per-column types/nullability, inserts
// into the clustered index, then best-effort inserts into every secondary
// index. A failure in a secondary index after the clustered insert leaves
// indexes out of sync; this is a documented limitation, not rolled back,
// since there are no transactions.
func (t *Table) InsertRow(row record.Row) error {
	if err := t.requireOpen(); err != nil {
		return err
	}
	if err := t.validateRow(row); err != nil {
		return err
	}
	if err := t.clustered.InsertRow(row); err != nil {
		return err
	}
	for name, si := range t.secondary {
		pos := -1
		for i, c := range t.columns {
			if strings.EqualFold(c.Name, t.secondaryOn[name]) {
				pos = i
				break
			}
		}
		if pos < 0 {
			continue
		}
		if err := si.InsertEntry(row[pos], row[0]); err != nil {
			t.log.Warn("secondary index insert failed after clustered insert").
				Str("index", name).Err(err).Send()
		}
	}
	return nil
}

// SelectByPrimaryKey returns the row stored under pk, if any.
func (t *Table) SelectByPrimaryKey(pk any) (record.Row, bool, error) {
	if err := t.requireOpen(); err != nil {
		return nil, false, err
	}
	return t.clustered.SelectByPrimaryKey(pk)
}

// SelectBySecondaryIndex performs the two-step lookup against the named
// secondary index.
func (t *Table) SelectBySecondaryIndex(name string, value any) (record.Row, bool, error) {
	if err := t.requireOpen(); err != nil {
		return nil, false, err
	}
	si, ok := t.secondary[name]
	if !ok {
		return nil, false, dberrors.New(dberrors.NotFound, "no secondary index named %q on table %q", name, t.tableName)
	}
	row, found, err := si.SelectRow(value)
	if err != nil || !found {
		return nil, found, err
	}
	return row.(record.Row), true, nil
}

// RangeSelect delegates to the clustered index's leaf chain. Only
// semantically meaningful when the primary key column is int32 valued.
func (t *Table) RangeSelect(start, end int32) ([]record.Row, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	return t.clustered.RangeSelect(start, end)
}

// FullTableScan returns every row in ascending primary-key order.
func (t *Table) FullTableScan() ([]record.Row, error) {
	if err := t.requireOpen(); err != nil {
		return nil, err
	}
	return t.clustered.GetAllRows()
}

// UpdateRow replaces the row stored under pk with newRow via
// delete-then-insert (non-atomic, documented): it goes through DeleteRow
// and InsertRow so secondary indexes are maintained exactly as they would
// be for a standalone delete followed by a standalone insert. Returns 0 if
// pk does not exist, else 1.
func (t *Table) UpdateRow(pk any, newRow record.Row) (int, error) {
	if err := t.requireOpen(); err != nil {
		return 0, err
	}
	if err := t.validateRow(newRow); err != nil {
		return 0, err
	}
	n, err := t.DeleteRow(pk)
	if err != nil || n == 0 {
		return n, err
	}
	if err := t.InsertRow(newRow); err != nil {
		return 0, err
	}
	return 1, nil
}

// DeleteRow removes the row stored under pk, and best-effort removes the
// corresponding entry from every secondary index. Unsupported deletes are
// swallowed and logged, per the documented secondary-index consistency
// limitation. Returns 0 if pk does not exist, else 1.
func (t *Table) DeleteRow(pk any) (int, error) {
	if err := t.requireOpen(); err != nil {
		return 0, err
	}
	row, found, err := t.clustered.SelectByPrimaryKey(pk)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	for name, si := range t.secondary {
		pos := -1
		for i, c := range t.columns {
			if strings.EqualFold(c.Name, t.secondaryOn[name]) {
				pos = i
				break
			}
		}
		if pos < 0 {
			continue
		}
		if _, err := si.DeleteEntry(row[pos]); err != nil {
			t.log.Warn("secondary index delete failed, leaving it out of sync").
				Str("index", name).Err(err).Send()
		}
	}

	if _, err := t.clustered.DeleteByPrimaryKey(pk); err != nil {
		return 0, err
	}
	return 1, nil
}
