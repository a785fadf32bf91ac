package memplugin

import (
	"testing"
)

// TestPackResult verifies that PackResult combines pointer and length into a uint64 value.
func TestPackResult(t *testing.T) {
	highIn := uint32(0xDEADBEEF)
	lowIn := uint32(0xFEEDFACE)
	combined := PackResult(highIn, lowIn)

	high := uint32(combined >> 32)
	low := uint32(combined)
	if high != highIn || low != lowIn {
		t.Errorf("expected high=0x%X low=0x%X, got high=0x%X low=0x%X", highIn, lowIn, high, low)
	}
}

// TestUnpackResult verifies that UnpackResult is the inverse of PackResult.
func TestUnpackResult(t *testing.T) {
	ptr, length := UnpackResult(PackResult(16, 42))
	if ptr != 16 || length != 42 {
		t.Errorf("expected ptr=16 length=42, got ptr=%d length=%d", ptr, length)
	}
}

// TestWriteResultEmpty verifies that an empty result packs to zero.
func TestWriteResultEmpty(t *testing.T) {
	ResetAllocator()

	if res := WriteResult(nil); res != 0 {
		t.Errorf("expected 0, got %d", res)
	}
}
