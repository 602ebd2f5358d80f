package exec

import (
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/engine"
	"github.com/relcore/reldb/pkg/record"
	"github.com/relcore/reldb/pkg/table"
)

// SelectStatement names the table, an optional WHERE predicate, and an
// optional select list (empty means "*").
type SelectStatement struct {
	Table       string
	Where       *Expr
	SelectItems []*Expr
}

// InsertStatement names the target table, an optional column list
// (positional insert when empty), and one or more literal value rows.
type InsertStatement struct {
	Table       string
	ColumnNames []string
	ValueRows   [][]*Expr
}

// UpdateStatement names the target table, its SET assignments, and an
// optional WHERE predicate.
type UpdateStatement struct {
	Table       string
	Assignments map[string]*Expr
	Where       *Expr
}

// DeleteStatement names the target table and an optional WHERE predicate.
type DeleteStatement struct {
	Table string
	Where *Expr
}

// CreateTableStatement names the new table and its column list.
type CreateTableStatement struct {
	Table   string
	Columns []record.Column
}

// DropTableStatement names the table to drop.
type DropTableStatement struct {
	Table string
}

// CreateTableOperator is a thin wrapper over StorageEngine.CreateTable.
type CreateTableOperator struct {
	eng     *engine.StorageEngine
	name    string
	columns []record.Column
}

// Execute creates the table and returns it.
func (op *CreateTableOperator) Execute() (*table.Table, error) {
	return op.eng.CreateTable(op.name, op.columns)
}

// DropTableOperator is a thin wrapper over StorageEngine.DropTable.
type DropTableOperator struct {
	eng  *engine.StorageEngine
	name string
}

// Execute drops the table and reports whether it existed.
func (op *DropTableOperator) Execute() (bool, error) {
	return op.eng.DropTable(op.name)
}

// Plan is either an iterator chain (SELECT) or a one-shot DDL/DML
// operator, never both.
type Plan struct {
	Query RowOperator

	ExecInsert       *InsertOperator
	ExecUpdate       *UpdateOperator
	ExecDelete       *DeleteOperator
	ExecCreateTable  *CreateTableOperator
	ExecDropTable    *DropTableOperator
}

// BuildSelect resolves stmt.Table, builds a Scan, wraps it in Filter iff a
// WHERE is present, and wraps that in Project iff the select list is not
// "*". Fails with invalid-plan on an unknown table or column.
func BuildSelect(eng *engine.StorageEngine, stmt SelectStatement, m *metrics.Metrics) (*Plan, error) {
	t, ok := eng.GetTable(stmt.Table)
	if !ok {
		return nil, dberrors.New(dberrors.InvalidArgument, "invalid-plan: unknown table %q", stmt.Table)
	}

	var op RowOperator
	scan, err := NewScanOperator(t)
	if err != nil {
		return nil, err
	}
	op = scan

	if stmt.Where != nil {
		if err := checkColumnsResolve(stmt.Where, t.Columns()); err != nil {
			return nil, err
		}
		op = NewFilterOperator(op, stmt.Where, t.Columns(), m)
	}

	if len(stmt.SelectItems) > 0 {
		for _, item := range stmt.SelectItems {
			if err := checkColumnsResolve(item, t.Columns()); err != nil {
				return nil, err
			}
		}
		proj, err := NewProjectOperator(op, stmt.SelectItems, t.Columns(), m)
		if err != nil {
			return nil, err
		}
		op = proj
	}

	return &Plan{Query: op}, nil
}

// BuildInsert resolves stmt.Table and constructs an InsertOperator.
func BuildInsert(eng *engine.StorageEngine, stmt InsertStatement) (*Plan, error) {
	t, ok := eng.GetTable(stmt.Table)
	if !ok {
		return nil, dberrors.New(dberrors.InvalidArgument, "invalid-plan: unknown table %q", stmt.Table)
	}
	return &Plan{ExecInsert: NewInsertOperator(t, stmt.ColumnNames, stmt.ValueRows)}, nil
}

// BuildUpdate resolves stmt.Table and constructs an UpdateOperator.
func BuildUpdate(eng *engine.StorageEngine, stmt UpdateStatement) (*Plan, error) {
	t, ok := eng.GetTable(stmt.Table)
	if !ok {
		return nil, dberrors.New(dberrors.InvalidArgument, "invalid-plan: unknown table %q", stmt.Table)
	}
	if stmt.Where != nil {
		if err := checkColumnsResolve(stmt.Where, t.Columns()); err != nil {
			return nil, err
		}
	}
	op, err := NewUpdateOperator(t, stmt.Assignments, stmt.Where)
	if err != nil {
		return nil, err
	}
	return &Plan{ExecUpdate: op}, nil
}

// BuildDelete resolves stmt.Table and constructs a DeleteOperator.
func BuildDelete(eng *engine.StorageEngine, stmt DeleteStatement) (*Plan, error) {
	t, ok := eng.GetTable(stmt.Table)
	if !ok {
		return nil, dberrors.New(dberrors.InvalidArgument, "invalid-plan: unknown table %q", stmt.Table)
	}
	if stmt.Where != nil {
		if err := checkColumnsResolve(stmt.Where, t.Columns()); err != nil {
			return nil, err
		}
	}
	return &Plan{ExecDelete: NewDeleteOperator(t, stmt.Where)}, nil
}

// BuildCreateTable constructs a CreateTableOperator.
func BuildCreateTable(eng *engine.StorageEngine, stmt CreateTableStatement) (*Plan, error) {
	if stmt.Table == "" || len(stmt.Columns) == 0 {
		return nil, dberrors.New(dberrors.InvalidArgument, "invalid-plan: CREATE TABLE requires a name and at least one column")
	}
	return &Plan{ExecCreateTable: &CreateTableOperator{eng: eng, name: stmt.Table, columns: stmt.Columns}}, nil
}

// BuildDropTable constructs a DropTableOperator.
func BuildDropTable(eng *engine.StorageEngine, stmt DropTableStatement) (*Plan, error) {
	if stmt.Table == "" {
		return nil, dberrors.New(dberrors.InvalidArgument, "invalid-plan: DROP TABLE requires a name")
	}
	return &Plan{ExecDropTable: &DropTableOperator{eng: eng, name: stmt.Table}}, nil
}

// checkColumnsResolve walks expr looking for COLUMN references that do not
// exist in columns, failing with invalid-plan.
func checkColumnsResolve(expr *Expr, columns []record.Column) error {
	if expr == nil {
		return nil
	}
	switch expr.Kind {
	case ColumnExpr:
		if columnIndex(columns, expr.ColumnName) < 0 {
			return dberrors.New(dberrors.InvalidArgument, "invalid-plan: unknown column %q", expr.ColumnName)
		}
	case BinaryExpr:
		if err := checkColumnsResolve(expr.Left, columns); err != nil {
			return err
		}
		return checkColumnsResolve(expr.Right, columns)
	case NotExpr:
		return checkColumnsResolve(expr.Operand, columns)
	}
	return nil
}
