// Package record converts logical rows to and from the COMPACT on-disk
// byte layout used by clustered-index leaves.
package record

// ColumnType enumerates the scalar types a Column may hold.
type ColumnType uint8

const (
	IntType ColumnType = iota
	BigIntType
	DoubleType
	BooleanType
	VarcharType
	DateType
	TimestampType
)

func (t ColumnType) String() string {
	switch t {
	case IntType:
		return "INT"
	case BigIntType:
		return "BIGINT"
	case DoubleType:
		return "DOUBLE"
	case BooleanType:
		return "BOOLEAN"
	case VarcharType:
		return "VARCHAR"
	case DateType:
		return "DATE"
	case TimestampType:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// FixedWidth returns the on-disk width of a fixed-width type, or 0 for
// VARCHAR (variable-length).
func (t ColumnType) FixedWidth() int {
	switch t {
	case IntType:
		return 4
	case BigIntType:
		return 8
	case DoubleType:
		return 8
	case BooleanType:
		return 1
	case DateType, TimestampType:
		return 8 // 64-bit millisecond epoch
	default:
		return 0
	}
}

// Column is an immutable descriptor of one table column.
type Column struct {
	Name     string
	Type     ColumnType
	Length   int // VARCHAR only; 0 for fixed-width types
	Nullable bool
}

// Row is an ordered sequence of values aligned positionally to a Column
// list. A nil entry represents SQL NULL.
type Row []any
