package exec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/record"
	"github.com/relcore/reldb/pkg/table"
)

// RowOperator is the Volcano-model iterator interface: advance, then read.
type RowOperator interface {
	HasNext() (bool, error)
	Next() (record.Row, error)
}

// ScanOperator iterates a table's full scan result set.
type ScanOperator struct {
	rows []record.Row
	pos  int
}

// NewScanOperator materializes table.FullTableScan() for iteration.
func NewScanOperator(t *table.Table) (*ScanOperator, error) {
	rows, err := t.FullTableScan()
	if err != nil {
		return nil, err
	}
	return &ScanOperator{rows: rows}, nil
}

func (s *ScanOperator) HasNext() (bool, error) { return s.pos < len(s.rows), nil }

func (s *ScanOperator) Next() (record.Row, error) {
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// FilterOperator advances child until wherePredicate evaluates true.
type FilterOperator struct {
	child     RowOperator
	predicate *Expr
	columns   []record.Column
	m         *metrics.Metrics

	buffered  record.Row
	haveNext  bool
	exhausted bool
}

// NewFilterOperator wraps child, keeping only rows for which
// wherePredicate evaluates to boolean true. A non-boolean predicate result
// fails with predicate-not-boolean.
func NewFilterOperator(child RowOperator, wherePredicate *Expr, columns []record.Column, m *metrics.Metrics) *FilterOperator {
	return &FilterOperator{child: child, predicate: wherePredicate, columns: columns, m: m}
}

func (f *FilterOperator) advance() error {
	for {
		has, err := f.child.HasNext()
		if err != nil {
			return err
		}
		if !has {
			f.exhausted = true
			return nil
		}
		row, err := f.child.Next()
		if err != nil {
			return err
		}
		v, err := Evaluate(f.predicate, row, f.columns)
		if err != nil {
			return err
		}
		b, ok := v.(bool)
		if !ok {
			return dberrors.New(dberrors.PredicateNotBoolean, "WHERE predicate evaluated to non-boolean %T", v)
		}
		if b {
			f.buffered = row
			f.haveNext = true
			return nil
		}
	}
}

func (f *FilterOperator) HasNext() (bool, error) {
	if f.haveNext {
		return true, nil
	}
	if f.exhausted {
		return false, nil
	}
	if err := f.advance(); err != nil {
		return false, err
	}
	return f.haveNext, nil
}

func (f *FilterOperator) Next() (record.Row, error) {
	if !f.haveNext {
		if err := f.advance(); err != nil {
			return nil, err
		}
	}
	row := f.buffered
	f.haveNext = false
	if f.m != nil {
		f.m.RecordOperatorRows("filter", 1)
	}
	return row, nil
}

// ProjectOperator reorders/narrows a row to the select list. An empty
// selectItems means "*": pass the child's row through unchanged.
type ProjectOperator struct {
	child       RowOperator
	selectItems []*Expr
	columns     []record.Column
	m           *metrics.Metrics
}

// NewProjectOperator wraps child. Every non-empty selectItems entry must be
// a COLUMN reference; only column projection is supported.
func NewProjectOperator(child RowOperator, selectItems []*Expr, columns []record.Column, m *metrics.Metrics) (*ProjectOperator, error) {
	for _, item := range selectItems {
		if item.Kind != ColumnExpr {
			return nil, dberrors.New(dberrors.InvalidArgument, "only column projection is supported")
		}
	}
	return &ProjectOperator{child: child, selectItems: selectItems, columns: columns, m: m}, nil
}

func (p *ProjectOperator) HasNext() (bool, error) { return p.child.HasNext() }

func (p *ProjectOperator) Next() (record.Row, error) {
	row, err := p.child.Next()
	if err != nil {
		return nil, err
	}
	if p.m != nil {
		p.m.RecordOperatorRows("project", 1)
	}
	if len(p.selectItems) == 0 {
		return row, nil
	}
	out := make(record.Row, len(p.selectItems))
	for i, item := range p.selectItems {
		v, err := Evaluate(item, row, p.columns)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// InsertOperator is a one-shot DML operator: each value expression must be
// a LITERAL, columnNames empty means positional insert, otherwise named
// insert with unnamed columns defaulting to null.
type InsertOperator struct {
	t           *table.Table
	columnNames []string
	valueRows   [][]*Expr
	executed    bool
}

// NewInsertOperator constructs an insert over t.
func NewInsertOperator(t *table.Table, columnNames []string, valueRows [][]*Expr) *InsertOperator {
	return &InsertOperator{t: t, columnNames: columnNames, valueRows: valueRows}
}

// Execute runs the insert once, returning the affected row count. A second
// call fails with already-executed.
func (op *InsertOperator) Execute() (int, error) {
	if op.executed {
		return 0, dberrors.New(dberrors.InvalidState, "already-executed")
	}
	op.executed = true

	columns := op.t.Columns()
	affected := 0
	for _, values := range op.valueRows {
		row, err := op.buildRow(columns, values)
		if err != nil {
			return affected, err
		}
		if err := op.t.InsertRow(row); err != nil {
			return affected, err
		}
		affected++
	}
	return affected, nil
}

func (op *InsertOperator) buildRow(columns []record.Column, values []*Expr) (record.Row, error) {
	for _, v := range values {
		if v.Kind != LiteralExpr {
			return nil, dberrors.New(dberrors.InvalidArgument, "insert values must be literals")
		}
	}

	row := make(record.Row, len(columns))

	if len(op.columnNames) == 0 {
		if len(values) != len(columns) {
			return nil, dberrors.New(dberrors.InvalidArgument, "expected %d values, got %d", len(columns), len(values))
		}
		for i, v := range values {
			coerced, err := coerceLiteral(columns[i], v.Literal)
			if err != nil {
				return nil, err
			}
			row[i] = coerced
		}
		return row, nil
	}

	if len(values) != len(op.columnNames) {
		return nil, dberrors.New(dberrors.InvalidArgument, "column list has %d names, %d values given", len(op.columnNames), len(values))
	}
	set := make([]bool, len(columns))
	for i, name := range op.columnNames {
		pos := columnIndex(columns, name)
		if pos < 0 {
			return nil, dberrors.New(dberrors.InvalidArgument, "unknown column %q", name)
		}
		coerced, err := coerceLiteral(columns[pos], values[i].Literal)
		if err != nil {
			return nil, err
		}
		row[pos] = coerced
		set[pos] = true
	}
	for i, col := range columns {
		if set[i] {
			continue
		}
		if !col.Nullable {
			return nil, dberrors.New(dberrors.InvalidArgument, "column %q is not nullable and was not given a value", col.Name)
		}
		row[i] = nil
	}
	return row, nil
}

func columnIndex(columns []record.Column, name string) int {
	for i, c := range columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// coerceLiteral implements the narrow insert-time coercion: numeric ->
// INT via intValue(), string -> INT via parse, anything -> VARCHAR via
// toString(); other mismatches fail.
func coerceLiteral(col record.Column, v any) (any, error) {
	if v == nil {
		if !col.Nullable {
			return nil, dberrors.New(dberrors.InvalidArgument, "column %q is not nullable", col.Name)
		}
		return nil, nil
	}

	switch col.Type {
	case record.IntType:
		switch t := v.(type) {
		case int32:
			return t, nil
		case int64:
			return int32(t), nil
		case float64:
			return int32(t), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 32)
			if err != nil {
				return nil, dberrors.New(dberrors.TypeMismatch, "cannot parse %q as INT for column %q", t, col.Name)
			}
			return int32(n), nil
		default:
			return nil, dberrors.New(dberrors.TypeMismatch, "cannot coerce %T to INT for column %q", v, col.Name)
		}
	case record.VarcharType:
		return toStringValue(v), nil
	default:
		if matchesNative(col, v) {
			return v, nil
		}
		return nil, dberrors.New(dberrors.TypeMismatch, "cannot coerce %T to %s for column %q", v, col.Type, col.Name)
	}
}

func matchesNative(col record.Column, v any) bool {
	switch col.Type {
	case record.BigIntType:
		_, ok := v.(int64)
		return ok
	case record.DoubleType:
		_, ok := v.(float64)
		return ok
	case record.BooleanType:
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}

func toStringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// UpdateOperator forbids updating the primary-key column; for each row
// passing where (or every row if where is nil), evaluates each assignment
// over the original row and calls table.UpdateRow.
type UpdateOperator struct {
	t           *table.Table
	assignments map[string]*Expr
	where       *Expr
}

// NewUpdateOperator constructs an update over t. assignments maps column
// name to the expression to assign.
func NewUpdateOperator(t *table.Table, assignments map[string]*Expr, where *Expr) (*UpdateOperator, error) {
	columns := t.Columns()
	for name := range assignments {
		if strings.EqualFold(name, columns[0].Name) {
			return nil, dberrors.New(dberrors.InvalidArgument, "cannot update the primary-key column %q", columns[0].Name)
		}
	}
	return &UpdateOperator{t: t, assignments: assignments, where: where}, nil
}

// Execute runs the update once, returning the affected row count.
func (op *UpdateOperator) Execute() (int, error) {
	columns := op.t.Columns()
	rows, err := op.t.FullTableScan()
	if err != nil {
		return 0, err
	}

	affected := 0
	for _, row := range rows {
		if op.where != nil {
			v, err := Evaluate(op.where, row, columns)
			if err != nil {
				return affected, err
			}
			b, ok := v.(bool)
			if !ok {
				return affected, dberrors.New(dberrors.PredicateNotBoolean, "WHERE predicate evaluated to non-boolean %T", v)
			}
			if !b {
				continue
			}
		}

		newRow := append(record.Row(nil), row...)
		for name, expr := range op.assignments {
			pos := columnIndex(columns, name)
			if pos < 0 {
				return affected, dberrors.New(dberrors.InvalidArgument, "unknown column %q", name)
			}
			v, err := Evaluate(expr, row, columns)
			if err != nil {
				return affected, err
			}
			newRow[pos] = v
		}

		n, err := op.t.UpdateRow(row[0], newRow)
		if err != nil {
			return affected, err
		}
		affected += n
	}
	return affected, nil
}

// DeleteOperator is two-pass to avoid iterator invalidation: collect the
// primary keys of matching rows, then delete them.
type DeleteOperator struct {
	t     *table.Table
	where *Expr
}

// NewDeleteOperator constructs a delete over t.
func NewDeleteOperator(t *table.Table, where *Expr) *DeleteOperator {
	return &DeleteOperator{t: t, where: where}
}

// Execute runs the delete once, returning the affected row count.
func (op *DeleteOperator) Execute() (int, error) {
	columns := op.t.Columns()
	rows, err := op.t.FullTableScan()
	if err != nil {
		return 0, err
	}

	var pks []any
	for _, row := range rows {
		if op.where != nil {
			v, err := Evaluate(op.where, row, columns)
			if err != nil {
				return 0, err
			}
			b, ok := v.(bool)
			if !ok {
				return 0, dberrors.New(dberrors.PredicateNotBoolean, "WHERE predicate evaluated to non-boolean %T", v)
			}
			if !b {
				continue
			}
		}
		pks = append(pks, row[0])
	}

	affected := 0
	for _, pk := range pks {
		n, err := op.t.DeleteRow(pk)
		if err != nil {
			return affected, err
		}
		affected += n
	}
	return affected, nil
}
