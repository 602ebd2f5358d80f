// Package exec implements the expression evaluator, the Volcano-model
// operators, and the execution-plan builder that together form the
// engine's query-execution surface.
package exec

import (
	"strings"

	"github.com/relcore/reldb/pkg/dberrors"
	"github.com/relcore/reldb/pkg/record"
)

// Op is a binary expression operator.
type Op string

const (
	Eq  Op = "="
	Neq Op = "<>"
	Lt  Op = "<"
	Le  Op = "<="
	Gt  Op = ">"
	Ge  Op = ">="
	And Op = "AND"
	Or  Op = "OR"
	Add Op = "+"
	Sub Op = "-"
	Mul Op = "*"
	Div Op = "/"
	Mod Op = "%"
)

// ExprKind discriminates the Expr sum type.
type ExprKind int

const (
	ColumnExpr ExprKind = iota
	LiteralExpr
	BinaryExpr
	NotExpr
)

// Expr is the expression ADT fed to the evaluator: COLUMN(name),
// LITERAL(value|null), BINARY(left, op, right), NOT(expr).
type Expr struct {
	Kind ExprKind

	ColumnName string // ColumnExpr
	Literal    any    // LiteralExpr, may be nil for SQL NULL

	Op    Op    // BinaryExpr
	Left  *Expr // BinaryExpr
	Right *Expr // BinaryExpr

	Operand *Expr // NotExpr
}

// Column builds a COLUMN(name) expression.
func Column(name string) *Expr { return &Expr{Kind: ColumnExpr, ColumnName: name} }

// Lit builds a LITERAL(value) expression; value may be nil for SQL NULL.
func Lit(value any) *Expr { return &Expr{Kind: LiteralExpr, Literal: value} }

// Binary builds a BINARY(left, op, right) expression.
func Binary(left *Expr, op Op, right *Expr) *Expr {
	return &Expr{Kind: BinaryExpr, Op: op, Left: left, Right: right}
}

// Not builds a NOT(expr) expression.
func Not(operand *Expr) *Expr { return &Expr{Kind: NotExpr, Operand: operand} }

func isLogicalOp(op Op) bool { return op == And || op == Or }
func isArithmeticOp(op Op) bool {
	switch op {
	case Add, Sub, Mul, Div, Mod:
		return true
	default:
		return false
	}
}
func isComparisonOp(op Op) bool {
	switch op {
	case Eq, Neq, Lt, Le, Gt, Ge:
		return true
	default:
		return false
	}
}

// Evaluate is a pure function over (row, columns): COLUMN looks up a value
// by case-insensitive name, LITERAL returns its stored value, BINARY
// dispatches by operator family, and NOT boolean-coerces then inverts.
func Evaluate(expr *Expr, row record.Row, columns []record.Column) (any, error) {
	switch expr.Kind {
	case ColumnExpr:
		for i, col := range columns {
			if strings.EqualFold(col.Name, expr.ColumnName) {
				return row[i], nil
			}
		}
		return nil, dberrors.New(dberrors.InvalidArgument, "unknown column %q", expr.ColumnName)

	case LiteralExpr:
		return expr.Literal, nil

	case BinaryExpr:
		return evalBinary(expr, row, columns)

	case NotExpr:
		v, err := Evaluate(expr.Operand, row, columns)
		if err != nil {
			return nil, err
		}
		return !coerceBool(v), nil

	default:
		return nil, dberrors.New(dberrors.Unknown, "unrecognized expression kind")
	}
}

func evalBinary(expr *Expr, row record.Row, columns []record.Column) (any, error) {
	left, err := Evaluate(expr.Left, row, columns)
	if err != nil {
		return nil, err
	}
	right, err := Evaluate(expr.Right, row, columns)
	if err != nil {
		return nil, err
	}

	switch {
	case isLogicalOp(expr.Op):
		lb, rb := coerceBool(left), coerceBool(right)
		if expr.Op == And {
			return lb && rb, nil
		}
		return lb || rb, nil

	case isComparisonOp(expr.Op):
		// Simplified three-valued logic collapsed to two-valued: either
		// operand being NULL makes the comparison false.
		if left == nil || right == nil {
			return false, nil
		}
		return compare(expr.Op, left, right)

	case isArithmeticOp(expr.Op):
		return arithmetic(expr.Op, left, right)

	default:
		return nil, dberrors.New(dberrors.Unknown, "unrecognized operator %q", expr.Op)
	}
}

// coerceBool implements the logical-context coercion: null -> false,
// numeric -> != 0, string -> non-empty, boolean -> itself.
func coerceBool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return false
	}
}

func compare(op Op, left, right any) (bool, error) {
	switch l := left.(type) {
	case int32:
		r, ok := right.(int32)
		if !ok {
			return false, dberrors.New(dberrors.TypeMismatch, "cannot compare INT with %T", right)
		}
		return compareOrdered(op, int64(l), int64(r)), nil
	case int64:
		r, ok := right.(int64)
		if !ok {
			return false, dberrors.New(dberrors.TypeMismatch, "cannot compare BIGINT with %T", right)
		}
		return compareOrdered(op, l, r), nil
	case float64:
		r, ok := right.(float64)
		if !ok {
			return false, dberrors.New(dberrors.TypeMismatch, "cannot compare DOUBLE with %T", right)
		}
		return compareOrderedFloat(op, l, r), nil
	case string:
		r, ok := right.(string)
		if !ok {
			return false, dberrors.New(dberrors.TypeMismatch, "cannot compare VARCHAR with %T", right)
		}
		return compareOrderedString(op, l, r), nil
	case bool:
		r, ok := right.(bool)
		if !ok {
			return false, dberrors.New(dberrors.TypeMismatch, "cannot compare BOOLEAN with %T", right)
		}
		if op == Eq {
			return l == r, nil
		}
		if op == Neq {
			return l != r, nil
		}
		return false, dberrors.New(dberrors.TypeMismatch, "BOOLEAN only supports = and <>")
	default:
		return false, dberrors.New(dberrors.TypeMismatch, "unsupported comparison operand type %T", left)
	}
}

func compareOrdered(op Op, l, r int64) bool {
	switch op {
	case Eq:
		return l == r
	case Neq:
		return l != r
	case Lt:
		return l < r
	case Le:
		return l <= r
	case Gt:
		return l > r
	case Ge:
		return l >= r
	}
	return false
}

func compareOrderedFloat(op Op, l, r float64) bool {
	switch op {
	case Eq:
		return l == r
	case Neq:
		return l != r
	case Lt:
		return l < r
	case Le:
		return l <= r
	case Gt:
		return l > r
	case Ge:
		return l >= r
	}
	return false
}

func compareOrderedString(op Op, l, r string) bool {
	switch op {
	case Eq:
		return l == r
	case Neq:
		return l != r
	case Lt:
		return l < r
	case Le:
		return l <= r
	case Gt:
		return l > r
	case Ge:
		return l >= r
	}
	return false
}

func arithmetic(op Op, left, right any) (any, error) {
	switch l := left.(type) {
	case int32:
		r, ok := right.(int32)
		if !ok {
			return nil, dberrors.New(dberrors.TypeMismatch, "cannot apply %s to INT and %T", op, right)
		}
		if (op == Div || op == Mod) && r == 0 {
			return nil, dberrors.New(dberrors.ArithmeticError, "division by zero")
		}
		switch op {
		case Add:
			return l + r, nil
		case Sub:
			return l - r, nil
		case Mul:
			return l * r, nil
		case Div:
			return l / r, nil
		case Mod:
			return l % r, nil
		}
	case int64:
		r, ok := right.(int64)
		if !ok {
			return nil, dberrors.New(dberrors.TypeMismatch, "cannot apply %s to BIGINT and %T", op, right)
		}
		if (op == Div || op == Mod) && r == 0 {
			return nil, dberrors.New(dberrors.ArithmeticError, "division by zero")
		}
		switch op {
		case Add:
			return l + r, nil
		case Sub:
			return l - r, nil
		case Mul:
			return l * r, nil
		case Div:
			return l / r, nil
		case Mod:
			return l % r, nil
		}
	case float64:
		r, ok := right.(float64)
		if !ok {
			return nil, dberrors.New(dberrors.TypeMismatch, "cannot apply %s to DOUBLE and %T", op, right)
		}
		if r == 0 && (op == Div || op == Mod) {
			return nil, dberrors.New(dberrors.ArithmeticError, "division by zero")
		}
		switch op {
		case Add:
			return l + r, nil
		case Sub:
			return l - r, nil
		case Mul:
			return l * r, nil
		case Div:
			return l / r, nil
		case Mod:
			return float64(int64(l) % int64(r)), nil
		}
	}
	return nil, dberrors.New(dberrors.TypeMismatch, "unsupported arithmetic operand type %T", left)
}
