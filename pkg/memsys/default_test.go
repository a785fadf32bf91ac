package memsys

import (
	"bytes"
	"testing"
)

// TestDefaultAlloc verifies sizing and the zero/negative sentinel.
func TestDefaultAlloc(t *testing.T) {
	t.Parallel()
	m := Default()

	if p := m.Alloc(0); p != nil {
		t.Fatal("alloc(0) returned a block")
	}
	if p := m.Alloc(-3); p != nil {
		t.Fatal("alloc(-3) returned a block")
	}

	p := m.Alloc(10)
	if len(p) != 10 {
		t.Fatalf("len = %d, want 10", len(p))
	}
	if m.Size(p) != 16 {
		t.Fatalf("size = %d, want 16 (rounded up)", m.Size(p))
	}
}

// TestDefaultRealloc verifies copy-on-grow and the free-on-zero cases.
func TestDefaultRealloc(t *testing.T) {
	t.Parallel()
	m := Default()

	if p := m.Realloc(nil, 8); len(p) != 8 {
		t.Fatalf("realloc(nil, 8) len = %d, want 8", len(p))
	}

	p := m.Alloc(4)
	copy(p, "abcd")
	q := m.Realloc(p, 64)
	if !bytes.Equal(q[:4], []byte("abcd")) {
		t.Fatalf("content lost on grow: %q", q[:4])
	}

	if r := m.Realloc(q, 0); r != nil {
		t.Fatal("realloc to zero did not free")
	}
}

// TestDefaultRoundup verifies 8-byte granularity.
func TestDefaultRoundup(t *testing.T) {
	t.Parallel()
	m := Default()

	cases := map[int]int{1: 8, 8: 8, 9: 16, 100: 104}
	for in, want := range cases {
		if got := m.Roundup(in); got != want {
			t.Errorf("roundup(%d) = %d, want %d", in, got, want)
		}
	}
}
