package catalog

import (
	"testing"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/record"
)

func newTestSchemaManager(t *testing.T, dir string) *SchemaManager {
	t.Helper()
	pool := bufferpool.New(dir, 64, logger.Nop(), metrics.NewMetrics())
	sm := New(dir, pool, logger.Nop(), metrics.NewMetrics())
	if err := sm.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return sm
}

func sampleUserColumns() []record.Column {
	return []record.Column{
		{Name: "id", Type: record.IntType},
		{Name: "name", Type: record.VarcharType, Length: 64},
	}
}

func TestCreateTableAssignsIncrementingIds(t *testing.T) {
	dir := t.TempDir()
	sm := newTestSchemaManager(t, dir)

	id1, err := sm.CreateTable("users", sampleUserColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	id2, err := sm.CreateTable("orders", sampleUserColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if id2 != id1+1 {
		t.Fatalf("second table id = %d, want %d", id2, id1+1)
	}

	if _, err := sm.CreateTable("users", sampleUserColumns()); err == nil {
		t.Fatal("CreateTable with duplicate name succeeded, want error")
	}
}

func TestDropTableRemovesFromCache(t *testing.T) {
	dir := t.TempDir()
	sm := newTestSchemaManager(t, dir)

	if _, err := sm.CreateTable("users", sampleUserColumns()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := sm.DropTable("users"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, ok := sm.Lookup("users"); ok {
		t.Fatal("dropped table still present in cache")
	}
	if err := sm.DropTable("users"); err == nil {
		t.Fatal("DropTable on missing table succeeded, want error")
	}
}

func TestMetadataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	sm := newTestSchemaManager(t, dir)

	id, err := sm.CreateTable("users", sampleUserColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	sm2 := newTestSchemaManager(t, dir)
	meta, ok := sm2.Lookup("users")
	if !ok {
		t.Fatal("reopened schema manager lost table 'users'")
	}
	if meta.TableId != id {
		t.Fatalf("reopened table id = %d, want %d", meta.TableId, id)
	}
	if len(meta.Columns) != 2 || meta.Columns[1].Name != "name" {
		t.Fatalf("reopened columns = %+v, want 2 columns with 'name' second", meta.Columns)
	}
}
