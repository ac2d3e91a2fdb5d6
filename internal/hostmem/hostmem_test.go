package hostmem

import (
	"testing"

	"github.com/tinyrange/paintbrush/internal/addr"
	"github.com/tinyrange/paintbrush/internal/rangeset"
)

func TestArenaBacksRangeSetAllocations(t *testing.T) {
	arena, err := New(addr.Phys(0x100000), 4*addr.PageSize4K)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer arena.Close()

	rs := rangeset.New()
	rs.AttachArena(uint64(arena.Base), arena.Bytes())
	if err := rs.Insert(rangeset.InclusiveRange{Start: uint64(arena.Base), End: uint64(arena.Base) + uint64(arena.Len()) - 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	page, err := rs.AllocPageZeroed()
	if err != nil {
		t.Fatalf("AllocPageZeroed: %v", err)
	}

	slice, err := rs.GetMutSlice(page, addr.PageSize4K)
	if err != nil {
		t.Fatalf("GetMutSlice: %v", err)
	}
	for i, b := range slice {
		if b != 0 {
			t.Fatalf("expected zeroed page, byte %d = %d", i, b)
		}
	}
	slice[0] = 0xAB
	if arena.Bytes()[0] != 0xAB {
		t.Fatalf("expected write through to arena backing")
	}
}

func TestArenaCloseIsIdempotent(t *testing.T) {
	arena, err := New(addr.Phys(0), addr.PageSize4K)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := arena.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := arena.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
