package errchain

import (
	"errors"
	"strings"
	"testing"
)

func TestNewAndError(t *testing.T) {
	c := New("rangeset.go", 42, errors.New("boom"))
	if got := c.Error(); !strings.Contains(got, "rangeset.go:42:") || !strings.Contains(got, "boom") {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestContextSuppressesDuplicateLocation(t *testing.T) {
	c := New("a.go", 1, errors.New("cause"))
	c.Context("a.go", 1, "wrapped again at same site")
	if c.Len() != 1 {
		t.Fatalf("expected duplicate location to be suppressed, got len=%d", c.Len())
	}
}

func TestContextAppendsNewLocation(t *testing.T) {
	c := New("a.go", 1, errors.New("cause"))
	c.Context("b.go", 2, "higher up")
	if c.Len() != 2 {
		t.Fatalf("expected 2 frames, got %d", c.Len())
	}
	last, _ := c.Last()
	if last.File != "b.go" || last.Line != 2 {
		t.Fatalf("unexpected last frame: %+v", last)
	}
}

func TestBoundedDepth(t *testing.T) {
	c := New("a.go", 1, errors.New("cause"))
	for i := 0; i < MaxChainLen+10; i++ {
		c.Context("x.go", i+100, "frame")
	}
	if c.Len() != MaxChainLen {
		t.Fatalf("expected chain to cap at %d, got %d", MaxChainLen, c.Len())
	}
}

func TestFirstAndLastOnEmpty(t *testing.T) {
	var c *Chain
	if _, ok := c.First(); ok {
		t.Fatalf("expected no first frame on nil chain")
	}
	if _, ok := c.Last(); ok {
		t.Fatalf("expected no last frame on nil chain")
	}
}
