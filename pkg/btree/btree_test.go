package btree

import (
	"testing"

	"github.com/relcore/reldb/internal/logger"
	"github.com/relcore/reldb/internal/metrics"
	"github.com/relcore/reldb/pkg/bufferpool"
	"github.com/relcore/reldb/pkg/page"
)

func newTestTree(t *testing.T, leafValueIsBytes bool) (*BPlusTree, *page.PageManager) {
	t.Helper()
	dir := t.TempDir()
	pm, err := page.Open(dir, int32(100), logger.Nop())
	if err != nil {
		t.Fatalf("page.Open: %v", err)
	}
	pool := bufferpool.New(dir, 64, logger.Nop(), metrics.NewMetrics())
	tree, err := Open(100, leafValueIsBytes, pool, pm, logger.Nop(), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("btree.Open: %v", err)
	}
	return tree, pm
}

func TestInsertAndSearch(t *testing.T) {
	tree, _ := newTestTree(t, false)

	for i := int32(0); i < 300; i++ {
		if err := tree.Insert(i, IntValue(i*10)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(0); i < 300; i++ {
		val, ok, err := tree.Search(i)
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if !ok {
			t.Fatalf("Search(%d): not found", i)
		}
		if val.Int != i*10 {
			t.Fatalf("Search(%d) = %d, want %d", i, val.Int, i*10)
		}
	}

	if _, ok, _ := tree.Search(9999); ok {
		t.Fatal("Search(9999) unexpectedly found")
	}
}

func TestRangeSearch(t *testing.T) {
	tree, _ := newTestTree(t, false)

	for i := int32(0); i < 200; i++ {
		if err := tree.Insert(i, IntValue(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	vals, err := tree.RangeSearch(50, 60)
	if err != nil {
		t.Fatalf("RangeSearch: %v", err)
	}
	if len(vals) != 11 {
		t.Fatalf("RangeSearch(50,60) returned %d values, want 11", len(vals))
	}
	for i, v := range vals {
		if v.Int != int32(50+i) {
			t.Fatalf("RangeSearch result[%d] = %d, want %d", i, v.Int, 50+i)
		}
	}
}

func TestGetAllOrdersByKey(t *testing.T) {
	tree, _ := newTestTree(t, false)

	keys := []int32{50, 10, 40, 20, 30}
	for _, k := range keys {
		if err := tree.Insert(k, IntValue(k)); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}

	all, err := tree.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != len(keys) {
		t.Fatalf("GetAll returned %d values, want %d", len(all), len(keys))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Int > all[i].Int {
			t.Fatalf("GetAll not sorted: %d before %d", all[i-1].Int, all[i].Int)
		}
	}
}

func TestDeleteAndRebalance(t *testing.T) {
	tree, _ := newTestTree(t, false)

	const n = 500
	for i := int32(0); i < n; i++ {
		if err := tree.Insert(i, IntValue(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(0); i < n; i += 2 {
		found, err := tree.Delete(i)
		if err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
		if !found {
			t.Fatalf("Delete(%d): not found", i)
		}
	}

	for i := int32(0); i < n; i++ {
		_, ok, err := tree.Search(i)
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		wantFound := i%2 != 0
		if ok != wantFound {
			t.Fatalf("Search(%d) found=%v, want %v", i, ok, wantFound)
		}
	}

	all, err := tree.GetAll()
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != n/2 {
		t.Fatalf("GetAll returned %d values after deletes, want %d", len(all), n/2)
	}
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	tree, _ := newTestTree(t, false)

	if err := tree.Insert(1, IntValue(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	found, err := tree.Delete(42)
	if err != nil {
		t.Fatalf("Delete(42): %v", err)
	}
	if found {
		t.Fatal("Delete(42) reported found for a missing key")
	}
}

func TestBytesValueLeaves(t *testing.T) {
	tree, _ := newTestTree(t, true)

	record := []byte("hello world")
	if err := tree.Insert(7, BytesValue(record)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	val, ok, err := tree.Search(7)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !ok {
		t.Fatal("Search(7): not found")
	}
	if string(val.Bytes) != string(record) {
		t.Fatalf("Search(7).Bytes = %q, want %q", val.Bytes, record)
	}
}
