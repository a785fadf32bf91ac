// Package memplugin provides the guest-side runtime for WASM test
// scenarios: a linear-memory bump allocator, read/write helpers, and
// result packing matching the host ABI.
package memplugin

// Guest blocks live above the low reserved words and stay 8-byte aligned,
// matching the rounding granularity the host allocator reports.
const (
	heapBase  = 8
	alignMask = 7
)

var bumpPtr uint32 = heapBase

// ResetAllocator rewinds the bump pointer to the base of the guest heap.
// Scenarios call it at the top of Execute so repeated runs reuse the same
// region.
func ResetAllocator() {
	bumpPtr = heapBase
}

// Alloc reserves n bytes of linear memory and returns the starting offset.
func Alloc(n uint32) uint32 {
	ptr := bumpPtr
	bumpPtr += (n + alignMask) &^ alignMask

	return ptr
}

// Free is a no-op; the bump allocator reclaims memory only through
// ResetAllocator.
func Free(ptr uint32) {
	_ = ptr
}
