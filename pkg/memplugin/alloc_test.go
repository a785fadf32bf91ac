package memplugin

import "testing"

// TestResetAllocator verifies the bump pointer rewinds to the heap base.
func TestResetAllocator(t *testing.T) {
	Alloc(128)
	ResetAllocator()

	if ptr := Alloc(1); ptr != heapBase {
		t.Errorf("ptr after reset = %d, want %d", ptr, heapBase)
	}
}

// TestAllocAlignment verifies successive blocks stay 8-byte aligned and do
// not overlap.
func TestAllocAlignment(t *testing.T) {
	ResetAllocator()

	ptr1 := Alloc(5)
	ptr2 := Alloc(3)

	if ptr2%8 != 0 {
		t.Errorf("ptr2 = %d, want 8-byte aligned", ptr2)
	}
	if ptr2 < ptr1+5 {
		t.Errorf("blocks overlap: ptr1=%d ptr2=%d", ptr1, ptr2)
	}
}
