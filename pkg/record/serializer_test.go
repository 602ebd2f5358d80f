package record

import (
	"strings"
	"testing"
	"time"
)

func sampleColumns() []Column {
	return []Column{
		{Name: "id", Type: IntType, Nullable: false},
		{Name: "balance", Type: BigIntType, Nullable: true},
		{Name: "score", Type: DoubleType, Nullable: false},
		{Name: "active", Type: BooleanType, Nullable: false},
		{Name: "name", Type: VarcharType, Length: 64, Nullable: true},
		{Name: "bio", Type: VarcharType, Length: 200, Nullable: true},
		{Name: "created_at", Type: TimestampType, Nullable: false},
	}
}

func TestRoundTrip(t *testing.T) {
	s := NewRecordSerializer()
	cols := sampleColumns()

	row := Row{
		int32(42),
		int64(1_000_000),
		3.14159,
		true,
		"alice",
		nil,
		time.UnixMilli(1_700_000_000_000).UTC(),
	}

	data, err := s.Serialize(row, cols)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	size, err := s.CalculateRecordSize(row, cols)
	if err != nil {
		t.Fatalf("CalculateRecordSize: %v", err)
	}
	if size != len(data) {
		t.Fatalf("CalculateRecordSize = %d, want %d", size, len(data))
	}

	got, err := s.Deserialize(data, cols)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	for i := range cols {
		if got[i] != row[i] {
			t.Fatalf("column %d round-trip mismatch: got %#v, want %#v", i, got[i], row[i])
		}
	}
}

func TestRoundTripAllNull(t *testing.T) {
	s := NewRecordSerializer()
	cols := []Column{
		{Name: "a", Type: IntType, Nullable: true},
		{Name: "b", Type: VarcharType, Length: 10, Nullable: true},
	}
	row := Row{nil, nil}

	data, err := s.Serialize(row, cols)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := s.Deserialize(data, cols)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	for i := range cols {
		if got[i] != nil {
			t.Fatalf("column %d = %#v, want nil", i, got[i])
		}
	}
}

func TestLongVarcharUsesTwoByteLength(t *testing.T) {
	s := NewRecordSerializer()
	cols := []Column{
		{Name: "id", Type: IntType},
		{Name: "body", Type: VarcharType, Length: 1000, Nullable: true},
	}
	long := strings.Repeat("x", 200)
	row := Row{int32(1), long}

	data, err := s.Serialize(row, cols)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := s.Deserialize(data, cols)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got[1].(string) != long {
		t.Fatalf("long varchar round-trip mismatch, len got=%d want=%d", len(got[1].(string)), len(long))
	}
}

func TestShapeMismatch(t *testing.T) {
	s := NewRecordSerializer()
	cols := sampleColumns()
	row := Row{int32(1)}

	if _, err := s.Serialize(row, cols); err == nil {
		t.Fatal("Serialize with mismatched row/column count succeeded, want error")
	}
}

func TestVarcharTooLong(t *testing.T) {
	s := NewRecordSerializer()
	cols := []Column{
		{Name: "id", Type: IntType},
		{Name: "body", Type: VarcharType, Length: 1 << 16, Nullable: false},
	}
	row := Row{int32(1), strings.Repeat("y", 1<<16)}

	if _, err := s.Serialize(row, cols); err == nil {
		t.Fatal("Serialize with over-length varchar succeeded, want error")
	}
}
