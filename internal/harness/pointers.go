// Package harness binds the wire command protocol to the allocation
// subsystem and the fault-injection shim. Blocks crossing the text protocol
// are identified by synthetic pointers rendered as hexadecimal text.
package harness

import (
	"fmt"
	"sync"

	"github.com/andrei-cloud/go_memtest/internal/status"
)

// ptrTextLen is the number of hex digits in rendered pointer text.
const ptrTextLen = 16

// PointerMap hands out monotonically increasing 8-aligned synthetic
// addresses for blocks held on behalf of test scripts.
type PointerMap struct {
	mu     sync.Mutex
	next   uint64
	blocks map[uint64][]byte
}

// NewPointerMap returns an empty map. Address 0 is reserved for the nil
// block.
func NewPointerMap() *PointerMap {
	return &PointerMap{next: 8, blocks: make(map[uint64][]byte)}
}

// Register stores p and returns its synthetic address; a nil block maps to
// address 0.
func (pm *PointerMap) Register(p []byte) uint64 {
	if p == nil {
		return 0
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	addr := pm.next
	step := uint64(cap(p))
	if step < 8 {
		step = 8
	}
	pm.next += (step + 7) &^ 7
	pm.blocks[addr] = p

	return addr
}

// Lookup returns the block registered at addr. Address 0 resolves to the
// nil block.
func (pm *PointerMap) Lookup(addr uint64) ([]byte, bool) {
	if addr == 0 {
		return nil, true
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	p, ok := pm.blocks[addr]

	return p, ok
}

// Release removes and returns the block registered at addr.
func (pm *PointerMap) Release(addr uint64) ([]byte, bool) {
	if addr == 0 {
		return nil, true
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	p, ok := pm.blocks[addr]
	if ok {
		delete(pm.blocks, addr)
	}

	return p, ok
}

// Outstanding returns the number of registered blocks.
func (pm *PointerMap) Outstanding() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return len(pm.blocks)
}

// FormatPointer renders addr as pointer text: 16 lowercase hex digits, with
// the nil block rendered as "0".
func FormatPointer(addr uint64) string {
	if addr == 0 {
		return "0"
	}

	return fmt.Sprintf("%016x", addr)
}

// ParsePointer parses pointer text back into an address. At most 16
// lowercase hex digits are accepted.
func ParsePointer(z string) (uint64, error) {
	if z == "" || len(z) > ptrTextLen {
		return 0, status.Err03
	}

	var n uint64
	for i := 0; i < len(z); i++ {
		v := hexToInt(z[i])
		if v < 0 {
			return 0, status.Err03
		}
		n = n*16 + uint64(v)
	}

	return n, nil
}

func hexToInt(h byte) int {
	switch {
	case h >= '0' && h <= '9':
		return int(h - '0')
	case h >= 'a' && h <= 'f':
		return int(h-'a') + 10
	default:
		return -1
	}
}
