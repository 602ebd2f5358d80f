package table

import (
	"testing"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/page"
	"github.com/relcore/reldb/pkg/record"
)

func usersColumns() []record.Column {
	return []record.Column{
		{Name: "id", Type: record.IntType},
		{Name: "name", Type: record.VarcharType, Length: 100},
		{Name: "age", Type: record.IntType, Nullable: true},
	}
}

func newTestTable(t *testing.T, tableId int32) (*Table, *bufferpool.Pool, string) {
	t.Helper()
	dir := t.TempDir()
	pool := bufferpool.New(dir, 64, logger.Nop(), metrics.NewMetrics())
	tb := New(tableId, "users", usersColumns(), logger.Nop(), metrics.NewMetrics())
	pm, err := page.Open(dir, tableId*100, logger.Nop())
	if err != nil {
		t.Fatalf("page.Open: %v", err)
	}
	if err := tb.Open(pool, pm, tableId*100); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tb, pool, dir
}

func TestInsertSelectFullScan(t *testing.T) {
	tb, _, _ := newTestTable(t, 1)

	rows := []record.Row{
		{int32(1), "Alice", int32(25)},
		{int32(2), "Bob", int32(30)},
		{int32(3), "Charlie", int32(35)},
	}
	for _, r := range rows {
		if err := tb.InsertRow(r); err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}

	row, ok, err := tb.SelectByPrimaryKey(int32(2))
	if err != nil || !ok {
		t.Fatalf("SelectByPrimaryKey(2) = (%v, %v, %v)", row, ok, err)
	}
	if row[1].(string) != "Bob" || row[2].(int32) != 30 {
		t.Fatalf("SelectByPrimaryKey(2) = %v, want (2,Bob,30)", row)
	}

	scanned, err := tb.FullTableScan()
	if err != nil {
		t.Fatalf("FullTableScan: %v", err)
	}
	if len(scanned) != 3 {
		t.Fatalf("FullTableScan returned %d rows, want 3", len(scanned))
	}
}

func TestInsertRejectsShapeMismatch(t *testing.T) {
	tb, _, _ := newTestTable(t, 1)
	if err := tb.InsertRow(record.Row{int32(1), "Alice"}); err == nil {
		t.Fatal("InsertRow with too few values succeeded, want error")
	}
}

func TestInsertRejectsNonNullableNull(t *testing.T) {
	tb, _, _ := newTestTable(t, 1)
	if err := tb.InsertRow(record.Row{int32(1), nil, int32(25)}); err == nil {
		t.Fatal("InsertRow with null non-nullable name succeeded, want error")
	}
}

func TestUpdateRow(t *testing.T) {
	tb, _, _ := newTestTable(t, 1)
	if err := tb.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	n, err := tb.UpdateRow(int32(1), record.Row{int32(1), "Alice", int32(26)})
	if err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}
	if n != 1 {
		t.Fatalf("UpdateRow affected %d rows, want 1", n)
	}

	row, ok, err := tb.SelectByPrimaryKey(int32(1))
	if err != nil || !ok {
		t.Fatalf("SelectByPrimaryKey after update: (%v,%v,%v)", row, ok, err)
	}
	if row[2].(int32) != 26 {
		t.Fatalf("age after update = %v, want 26", row[2])
	}

	n, err = tb.UpdateRow(int32(999), record.Row{int32(999), "Nobody", int32(1)})
	if err != nil {
		t.Fatalf("UpdateRow missing pk: %v", err)
	}
	if n != 0 {
		t.Fatalf("UpdateRow on missing pk affected %d rows, want 0", n)
	}
}

func TestDeleteRow(t *testing.T) {
	tb, _, _ := newTestTable(t, 1)
	if err := tb.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if err := tb.InsertRow(record.Row{int32(2), "Bob", int32(30)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	n, err := tb.DeleteRow(int32(1))
	if err != nil {
		t.Fatalf("DeleteRow: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteRow affected %d rows, want 1", n)
	}

	_, ok, err := tb.SelectByPrimaryKey(int32(1))
	if err != nil {
		t.Fatalf("SelectByPrimaryKey after delete: %v", err)
	}
	if ok {
		t.Fatal("deleted row still selectable")
	}

	n, err = tb.DeleteRow(int32(1))
	if err != nil {
		t.Fatalf("DeleteRow missing: %v", err)
	}
	if n != 0 {
		t.Fatalf("DeleteRow on missing pk affected %d rows, want 0", n)
	}
}

func TestSecondaryIndexDelegation(t *testing.T) {
	tb, pool, dir := newTestTable(t, 1)
	siPm, err := page.Open(dir, 101, logger.Nop())
	if err != nil {
		t.Fatalf("page.Open: %v", err)
	}
	if err := tb.AttachSecondaryIndex("idx_name", "name", true, pool, siPm, 101); err != nil {
		t.Fatalf("AttachSecondaryIndex: %v", err)
	}

	if err := tb.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	row, ok, err := tb.SelectBySecondaryIndex("idx_name", "Alice")
	if err != nil || !ok {
		t.Fatalf("SelectBySecondaryIndex = (%v,%v,%v)", row, ok, err)
	}
	if row[0].(int32) != 1 {
		t.Fatalf("SelectBySecondaryIndex returned pk %v, want 1", row[0])
	}
}

func TestOperationsRequireOpenTable(t *testing.T) {
	tb := New(1, "users", usersColumns(), logger.Nop(), metrics.NewMetrics())
	if err := tb.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err == nil {
		t.Fatal("InsertRow on unopened table succeeded, want error")
	}
}
