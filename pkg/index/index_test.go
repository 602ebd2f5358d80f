package index

import (
	"testing"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/page"
	"github.com/relcore/reldb/pkg/record"
)

type fakeSchema struct{ cols []record.Column }

func (f fakeSchema) Columns() []record.Column { return f.cols }

func newTestClustered(t *testing.T, indexId int32, cols []record.Column) (*ClusteredIndex, *bufferpool.Pool, *page.PageManager) {
	t.Helper()
	dir := t.TempDir()
	pm, err := page.Open(dir, indexId, logger.Nop())
	if err != nil {
		t.Fatalf("page.Open: %v", err)
	}
	pool := bufferpool.New(dir, 64, logger.Nop(), metrics.NewMetrics())
	ci, err := OpenClusteredIndex(indexId, fakeSchema{cols}, pool, pm, logger.Nop(), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("OpenClusteredIndex: %v", err)
	}
	return ci, pool, pm
}

func userColumns() []record.Column {
	return []record.Column{
		{Name: "id", Type: record.IntType},
		{Name: "name", Type: record.VarcharType, Length: 64},
		{Name: "age", Type: record.IntType},
	}
}

func TestClusteredInsertAndSelect(t *testing.T) {
	ci, _, _ := newTestClustered(t, 100, userColumns())

	if err := ci.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if err := ci.InsertRow(record.Row{int32(2), "Bob", int32(30)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	row, ok, err := ci.SelectByPrimaryKey(int32(2))
	if err != nil {
		t.Fatalf("SelectByPrimaryKey: %v", err)
	}
	if !ok {
		t.Fatal("SelectByPrimaryKey(2) not found")
	}
	if row[1].(string) != "Bob" {
		t.Fatalf("row[1] = %v, want Bob", row[1])
	}

	_, ok, err = ci.SelectByPrimaryKey(int32(99))
	if err != nil {
		t.Fatalf("SelectByPrimaryKey: %v", err)
	}
	if ok {
		t.Fatal("SelectByPrimaryKey(99) unexpectedly found")
	}
}

func TestClusteredNullPrimaryKeyRejected(t *testing.T) {
	ci, _, _ := newTestClustered(t, 100, userColumns())
	if err := ci.InsertRow(record.Row{nil, "Alice", int32(25)}); err == nil {
		t.Fatal("InsertRow with nil primary key succeeded, want error")
	}
}

func TestClusteredGetAllRows(t *testing.T) {
	ci, _, _ := newTestClustered(t, 100, userColumns())
	for i := int32(1); i <= 20; i++ {
		if err := ci.InsertRow(record.Row{i, "x", i}); err != nil {
			t.Fatalf("InsertRow(%d): %v", i, err)
		}
	}
	rows, err := ci.GetAllRows()
	if err != nil {
		t.Fatalf("GetAllRows: %v", err)
	}
	if len(rows) != 20 {
		t.Fatalf("GetAllRows returned %d rows, want 20", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1][0].(int32) >= rows[i][0].(int32) {
			t.Fatalf("GetAllRows not ascending at %d: %v >= %v", i, rows[i-1][0], rows[i][0])
		}
	}
}

func TestSecondaryIndexUniqueDuplicateKey(t *testing.T) {
	ci, pool, pm := newTestClustered(t, 100, userColumns())
	if err := ci.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if err := ci.InsertRow(record.Row{int32(2), "Bob", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	siPm, err := page.Open(pm.DataDir(), 101, logger.Nop())
	if err != nil {
		t.Fatalf("page.Open secondary: %v", err)
	}
	si, err := OpenSecondaryIndex(101, "idx_age", true, ci, pool, siPm, logger.Nop(), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("OpenSecondaryIndex: %v", err)
	}

	if err := si.InsertEntry(int32(25), int32(1)); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if err := si.InsertEntry(int32(25), int32(2)); err == nil {
		t.Fatal("InsertEntry with duplicate unique key succeeded, want duplicate-key error")
	}
}

func TestSecondaryIndexSelectRow(t *testing.T) {
	ci, pool, pm := newTestClustered(t, 100, userColumns())
	if err := ci.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	siPm, err := page.Open(pm.DataDir(), 101, logger.Nop())
	if err != nil {
		t.Fatalf("page.Open secondary: %v", err)
	}
	si, err := OpenSecondaryIndex(101, "idx_name", false, ci, pool, siPm, logger.Nop(), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("OpenSecondaryIndex: %v", err)
	}
	if err := si.InsertEntry("Alice", int32(1)); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	row, ok, err := si.SelectRow("Alice")
	if err != nil {
		t.Fatalf("SelectRow: %v", err)
	}
	if !ok {
		t.Fatal("SelectRow(Alice) not found")
	}
	if row.(record.Row)[0].(int32) != 1 {
		t.Fatalf("SelectRow(Alice) returned pk %v, want 1", row.(record.Row)[0])
	}
}

func TestSecondaryIndexSkipsNullValues(t *testing.T) {
	ci, pool, pm := newTestClustered(t, 100, userColumns())
	siPm, err := page.Open(pm.DataDir(), 101, logger.Nop())
	if err != nil {
		t.Fatalf("page.Open secondary: %v", err)
	}
	si, err := OpenSecondaryIndex(101, "idx_name", false, ci, pool, siPm, logger.Nop(), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("OpenSecondaryIndex: %v", err)
	}
	if err := si.InsertEntry(nil, int32(1)); err != nil {
		t.Fatalf("InsertEntry(nil): %v", err)
	}
	if _, ok, err := si.FindPrimaryKey(nil); err != nil || ok {
		t.Fatalf("FindPrimaryKey(nil) = (%v, %v), want (_, false)", ok, err)
	}
}
