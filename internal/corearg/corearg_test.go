package corearg

import (
	"math"
	"testing"

	"github.com/tinyrange/paintbrush/internal/rangeset"
)

func TestSetCoreAndReset(t *testing.T) {
	c := New()
	c.SetCore(3)
	if c.Core == nil || *c.Core != 3 {
		t.Fatalf("expected core 3, got %v", c.Core)
	}

	if err := c.InsertMemory(0x1000, 0x1000); err != nil {
		t.Fatalf("InsertMemory: %v", err)
	}

	c.Reset()
	if c.Core != nil {
		t.Fatalf("expected core cleared after reset")
	}
	size, err := c.Memory.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 0 {
		t.Fatalf("expected empty memory after reset, got %d bytes", size)
	}
}

func TestInsertMemoryRejectsZeroSize(t *testing.T) {
	c := New()
	if err := c.InsertMemory(0x1000, 0); err != ErrNoMemoryInserted {
		t.Fatalf("expected ErrNoMemoryInserted, got %v", err)
	}
}

func TestInsertMemoryPropagatesOverflow(t *testing.T) {
	c := New()
	if err := c.InsertMemory(math.MaxUint64-1, 10); err != rangeset.ErrSizeOverflow {
		t.Fatalf("expected ErrSizeOverflow, got %v", err)
	}
}

func TestInsertMemoryPropagatesRangeSetError(t *testing.T) {
	c := New()
	for i := 0; i < rangeset.MaxRanges; i++ {
		base := uint64(i) * 0x10000
		if err := c.InsertMemory(base, 0x1000); err != nil {
			t.Fatalf("unexpected error filling ranges: %v", err)
		}
	}
	if err := c.InsertMemory(uint64(rangeset.MaxRanges)*0x10000+0x100000, 0x1000); err != rangeset.ErrFull {
		t.Fatalf("expected ErrFull propagated from RangeSet, got %v", err)
	}
}

func TestAliveFlagRoundTrip(t *testing.T) {
	var f AliveFlag
	if f.Get() {
		t.Fatalf("expected flag initially clear")
	}
	f.Set()
	if !f.Get() {
		t.Fatalf("expected flag set")
	}
	f.Clear()
	if f.Get() {
		t.Fatalf("expected flag cleared")
	}
}
