package page

import (
	"testing"

	"github.com/relcore/reldb/internal/logger"
)

func TestAllocateFreeReuse(t *testing.T) {
	dir := t.TempDir()
	pm, err := Open(dir, 1, logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	a, err := pm.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b, err := pm.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a == b {
		t.Fatalf("Allocate returned duplicate id %d", a)
	}

	if err := pm.Free(a); err != nil {
		t.Fatalf("Free: %v", err)
	}

	c, err := pm.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if c != a {
		t.Fatalf("Allocate after Free = %d, want reused id %d", c, a)
	}

	if got, want := pm.AllocatedCount()+pm.FreeCount(), int(pm.NextPageId()); got != want {
		t.Fatalf("allocatedCount+freeCount = %d, want nextPageId = %d", got, want)
	}
}

func TestFreeUnallocatedIsNoop(t *testing.T) {
	dir := t.TempDir()
	pm, err := Open(dir, 2, logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := pm.Free(999); err != nil {
		t.Fatalf("Free on unallocated id returned error: %v", err)
	}
	if pm.IsAllocated(999) {
		t.Fatal("Free on unallocated id marked it allocated")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	pm, err := Open(dir, 3, logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ids := make([]uint32, 5)
	for i := range ids {
		id, err := pm.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		ids[i] = id
	}
	if err := pm.Free(ids[2]); err != nil {
		t.Fatalf("Free: %v", err)
	}

	pm2, err := Open(dir, 3, logger.Nop())
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	if pm2.NextPageId() != pm.NextPageId() {
		t.Fatalf("reopened nextPageId = %d, want %d", pm2.NextPageId(), pm.NextPageId())
	}
	if pm2.IsAllocated(ids[2]) {
		t.Fatalf("reopened manager still reports freed id %d as allocated", ids[2])
	}
	for i, id := range ids {
		if i == 2 {
			continue
		}
		if !pm2.IsAllocated(id) {
			t.Fatalf("reopened manager lost allocation of id %d", id)
		}
	}
}

func TestPageHeaderRoundTrip(t *testing.T) {
	p := New(TypeIndex, 42)
	if p.Type() != TypeIndex {
		t.Fatalf("Type() = %v, want TypeIndex", p.Type())
	}
	if p.PageId() != 42 {
		t.Fatalf("PageId() = %d, want 42", p.PageId())
	}
	if len(p.Payload()) != PayloadSize {
		t.Fatalf("Payload() length = %d, want %d", len(p.Payload()), PayloadSize)
	}
	if len(p.Bytes()) != Size {
		t.Fatalf("Bytes() length = %d, want %d", len(p.Bytes()), Size)
	}
}
