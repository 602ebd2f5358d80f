package record

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/relcore/reldb/pkg/dberrors"
)

const maxShortLength = 127
const maxVarcharLength = 1<<15 - 1 // length list tops out at 15 bits

// RecordSerializer converts logical rows to and from the COMPACT byte
// layout: a NULL bitmap, a reverse-order VARCHAR length list, then the
// column payload in forward order.
type RecordSerializer struct{}

// NewRecordSerializer returns a stateless COMPACT-format serializer.
func NewRecordSerializer() *RecordSerializer { return &RecordSerializer{} }

func bitmapSize(columnCount int) int {
	return (columnCount + 7) / 8
}

// Serialize writes row as a COMPACT byte record against columns.
func (s *RecordSerializer) Serialize(row Row, columns []Column) ([]byte, error) {
	if len(row) != len(columns) {
		return nil, dberrors.New(dberrors.InvalidArgument, "row has %d values, columns has %d", len(row), len(columns))
	}

	size, err := s.CalculateRecordSize(row, columns)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)

	bmSize := bitmapSize(len(columns))
	for i := range columns {
		if row[i] == nil {
			buf[i/8] |= 1 << uint(i%8)
		}
	}

	off := bmSize
	for i := len(columns) - 1; i >= 0; i-- {
		col := columns[i]
		if col.Type != VarcharType || row[i] == nil {
			continue
		}
		str, ok := row[i].(string)
		if !ok {
			return nil, dberrors.New(dberrors.InvalidArgument, "column %q expects a string value", col.Name)
		}
		n := len(str)
		if n > maxVarcharLength {
			return nil, dberrors.New(dberrors.InvalidArgument, "varchar-too-long: column %q value is %d bytes, max %d", col.Name, n, maxVarcharLength)
		}
		if n <= maxShortLength {
			buf[off] = byte(n)
			off++
		} else {
			binary.BigEndian.PutUint16(buf[off:off+2], uint16(n)|0x8000)
			off += 2
		}
	}

	for i, col := range columns {
		if row[i] == nil {
			continue
		}
		n, err := encodeValue(buf[off:], col, row[i])
		if err != nil {
			return nil, err
		}
		off += n
	}

	return buf, nil
}

// CalculateRecordSize returns the exact serialized byte length of row
// against columns, without allocating the record itself.
func (s *RecordSerializer) CalculateRecordSize(row Row, columns []Column) (int, error) {
	if len(row) != len(columns) {
		return 0, dberrors.New(dberrors.InvalidArgument, "shape-mismatch: row has %d values, columns has %d", len(row), len(columns))
	}

	size := bitmapSize(len(columns))
	for i, col := range columns {
		if row[i] == nil {
			continue
		}
		if col.Type == VarcharType {
			str, ok := row[i].(string)
			if !ok {
				return 0, dberrors.New(dberrors.InvalidArgument, "column %q expects a string value", col.Name)
			}
			n := len(str)
			if n > maxVarcharLength {
				return 0, dberrors.New(dberrors.InvalidArgument, "varchar-too-long: column %q value is %d bytes, max %d", col.Name, n, maxVarcharLength)
			}
			if n <= maxShortLength {
				size += 1 + n
			} else {
				size += 2 + n
			}
			continue
		}
		w := col.Type.FixedWidth()
		if w == 0 {
			return 0, dberrors.New(dberrors.InvalidArgument, "unsupported-type: column %q has type %s", col.Name, col.Type)
		}
		size += w
	}
	return size, nil
}

// Deserialize inverts Serialize: the bitmap is read first so NULL VARCHARs
// can be skipped when walking the variable-length list.
func (s *RecordSerializer) Deserialize(data []byte, columns []Column) (Row, error) {
	bmSize := bitmapSize(len(columns))
	if len(data) < bmSize {
		return nil, dberrors.New(dberrors.IndexCorrupt, "record too short for null bitmap")
	}
	isNull := make([]bool, len(columns))
	for i := range columns {
		isNull[i] = data[i/8]&(1<<uint(i%8)) != 0
	}

	lengths := make([]int, len(columns))
	off := bmSize
	for i := len(columns) - 1; i >= 0; i-- {
		col := columns[i]
		if col.Type != VarcharType || isNull[i] {
			continue
		}
		if off >= len(data) {
			return nil, dberrors.New(dberrors.IndexCorrupt, "record truncated in length list")
		}
		first := data[off]
		if first&0x80 == 0 {
			lengths[i] = int(first)
			off++
		} else {
			if off+2 > len(data) {
				return nil, dberrors.New(dberrors.IndexCorrupt, "record truncated in length list")
			}
			lengths[i] = int(binary.BigEndian.Uint16(data[off:off+2]) &^ 0x8000)
			off += 2
		}
	}

	row := make(Row, len(columns))
	for i, col := range columns {
		if isNull[i] {
			row[i] = nil
			continue
		}
		val, n, err := decodeValue(data[off:], col, lengths[i])
		if err != nil {
			return nil, err
		}
		row[i] = val
		off += n
	}

	return row, nil
}

func encodeValue(buf []byte, col Column, v any) (int, error) {
	switch col.Type {
	case IntType:
		iv, ok := v.(int32)
		if !ok {
			return 0, dberrors.New(dberrors.InvalidArgument, "column %q expects int32", col.Name)
		}
		binary.BigEndian.PutUint32(buf[:4], uint32(iv))
		return 4, nil
	case BigIntType:
		iv, ok := v.(int64)
		if !ok {
			return 0, dberrors.New(dberrors.InvalidArgument, "column %q expects int64", col.Name)
		}
		binary.BigEndian.PutUint64(buf[:8], uint64(iv))
		return 8, nil
	case DoubleType:
		fv, ok := v.(float64)
		if !ok {
			return 0, dberrors.New(dberrors.InvalidArgument, "column %q expects float64", col.Name)
		}
		binary.BigEndian.PutUint64(buf[:8], math.Float64bits(fv))
		return 8, nil
	case BooleanType:
		bv, ok := v.(bool)
		if !ok {
			return 0, dberrors.New(dberrors.InvalidArgument, "column %q expects bool", col.Name)
		}
		if bv {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
		return 1, nil
	case VarcharType:
		sv, ok := v.(string)
		if !ok {
			return 0, dberrors.New(dberrors.InvalidArgument, "column %q expects string", col.Name)
		}
		n := copy(buf, []byte(sv))
		return n, nil
	case DateType, TimestampType:
		tv, ok := v.(time.Time)
		if !ok {
			return 0, dberrors.New(dberrors.InvalidArgument, "column %q expects time.Time", col.Name)
		}
		binary.BigEndian.PutUint64(buf[:8], uint64(tv.UnixMilli()))
		return 8, nil
	default:
		return 0, dberrors.New(dberrors.InvalidArgument, "unsupported-type: %s", col.Type)
	}
}

func decodeValue(buf []byte, col Column, varcharLen int) (any, int, error) {
	switch col.Type {
	case IntType:
		if len(buf) < 4 {
			return nil, 0, dberrors.New(dberrors.IndexCorrupt, "record truncated for column %q", col.Name)
		}
		return int32(binary.BigEndian.Uint32(buf[:4])), 4, nil
	case BigIntType:
		if len(buf) < 8 {
			return nil, 0, dberrors.New(dberrors.IndexCorrupt, "record truncated for column %q", col.Name)
		}
		return int64(binary.BigEndian.Uint64(buf[:8])), 8, nil
	case DoubleType:
		if len(buf) < 8 {
			return nil, 0, dberrors.New(dberrors.IndexCorrupt, "record truncated for column %q", col.Name)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf[:8])), 8, nil
	case BooleanType:
		if len(buf) < 1 {
			return nil, 0, dberrors.New(dberrors.IndexCorrupt, "record truncated for column %q", col.Name)
		}
		return buf[0] != 0, 1, nil
	case VarcharType:
		if len(buf) < varcharLen {
			return nil, 0, dberrors.New(dberrors.IndexCorrupt, "record truncated for column %q", col.Name)
		}
		b := make([]byte, varcharLen)
		copy(b, buf[:varcharLen])
		return string(b), varcharLen, nil
	case DateType, TimestampType:
		if len(buf) < 8 {
			return nil, 0, dberrors.New(dberrors.IndexCorrupt, "record truncated for column %q", col.Name)
		}
		ms := int64(binary.BigEndian.Uint64(buf[:8]))
		return time.UnixMilli(ms).UTC(), 8, nil
	default:
		return nil, 0, dberrors.New(dberrors.InvalidArgument, "unsupported-type: %s", col.Type)
	}
}
