package stackvec

import "testing"

func TestPushUntilFull(t *testing.T) {
	sv := New[uint8](4)
	for i := uint8(0); i < 4; i++ {
		if err := sv.Push(i); err != nil {
			t.Fatalf("unexpected error on push %d: %v", i, err)
		}
	}
	if err := sv.Push(99); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if sv.Len() != 4 {
		t.Fatalf("expected len 4, got %d", sv.Len())
	}
}

func TestDataOrder(t *testing.T) {
	sv := New[int](8)
	for _, v := range []int{10, 20, 30} {
		if err := sv.Push(v); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	got := sv.Data()
	want := []int{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d want %d", i, got[i], want[i])
		}
	}
}
