package engine

import (
	"testing"

	"github.com/relcore/reldb/pkg/record"
)

func sampleColumns() []record.Column {
	return []record.Column{
		{Name: "id", Type: record.IntType},
		{Name: "name", Type: record.VarcharType, Length: 64},
		{Name: "age", Type: record.IntType},
	}
}

func TestCreateTableInsertSelect(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tbl, err := eng.CreateTable("users", sampleColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := tbl.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	got, ok := eng.GetTable("users")
	if !ok {
		t.Fatal("GetTable(users) not found")
	}
	row, found, err := got.SelectByPrimaryKey(int32(1))
	if err != nil || !found {
		t.Fatalf("SelectByPrimaryKey: (%v,%v,%v)", row, found, err)
	}
}

func TestCreateTableRejectsSystemNames(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := eng.CreateTable("SYS_TABLES", sampleColumns()); err == nil {
		t.Fatal("CreateTable(SYS_TABLES) succeeded, want error")
	}
}

func TestCreateTableRejectsDuplicateColumnNames(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	columns := []record.Column{
		{Name: "id", Type: record.IntType},
		{Name: "Id", Type: record.VarcharType, Length: 32},
	}
	if _, err := eng.CreateTable("users", columns); err == nil {
		t.Fatal("CreateTable with case-insensitive duplicate column names succeeded, want error")
	}
}

func TestCreateTableRejectsBadVarcharLength(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	zeroLength := []record.Column{{Name: "name", Type: record.VarcharType, Length: 0}}
	if _, err := eng.CreateTable("t1", zeroLength); err == nil {
		t.Fatal("CreateTable with VARCHAR length 0 succeeded, want error")
	}

	nonVarcharLength := []record.Column{{Name: "id", Type: record.IntType, Length: 10}}
	if _, err := eng.CreateTable("t2", nonVarcharLength); err == nil {
		t.Fatal("CreateTable with non-VARCHAR length > 0 succeeded, want error")
	}
}

func TestDropTableUnregisters(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := eng.CreateTable("users", sampleColumns()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	ok, err := eng.DropTable("users")
	if err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if !ok {
		t.Fatal("DropTable(users) = false, want true")
	}
	if eng.TableExists("users") {
		t.Fatal("dropped table still registered")
	}
}

func TestCreateIndexAndLookup(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := eng.CreateTable("users", sampleColumns()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	tbl, _ := eng.GetTable("users")
	for _, r := range []record.Row{
		{int32(1), "Alice", int32(25)},
		{int32(2), "Bob", int32(30)},
	} {
		if err := tbl.InsertRow(r); err != nil {
			t.Fatalf("InsertRow: %v", err)
		}
	}

	if err := eng.CreateIndex("users", "idx_name", "name", true); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	row, found, err := tbl.SelectBySecondaryIndex("idx_name", "Bob")
	if err != nil || !found {
		t.Fatalf("SelectBySecondaryIndex: (%v,%v,%v)", row, found, err)
	}
	if row[0].(int32) != 2 {
		t.Fatalf("row[0] = %v, want 2", row[0])
	}
}

func TestCreateIndexUnknownTable(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.CreateIndex("ghost", "idx_name", "name", false); err == nil {
		t.Fatal("CreateIndex on unknown table succeeded, want error")
	}
}

func TestTablesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tbl, err := eng.CreateTable("users", sampleColumns())
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := tbl.InsertRow(record.Row{int32(1), "Alice", int32(25)}); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	eng2, err := Open(Config{DataDir: dir, Persistent: true})
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	reopened, ok := eng2.GetTable("users")
	if !ok {
		t.Fatal("reopened engine lost table 'users'")
	}
	row, found, err := reopened.SelectByPrimaryKey(int32(1))
	if err != nil || !found {
		t.Fatalf("SelectByPrimaryKey after reopen: (%v,%v,%v)", row, found, err)
	}
	if row[1].(string) != "Alice" {
		t.Fatalf("row[1] after reopen = %v, want Alice", row[1])
	}
}
