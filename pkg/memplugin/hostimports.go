// Package memplugin provides helper functions for WASM scenario guests.
package memplugin

// Host functions imported from the env module. Handles returned by MemAlloc
// are opaque 64-bit identifiers for host-side blocks; 0 means the allocation
// failed or the handle is unknown.

//go:wasm-module env
//export mem_alloc
func MemAlloc(n uint64) uint64 { _ = n; return 0 }

//go:wasm-module env
//export mem_realloc
func MemRealloc(handle, n uint64) uint64 { _, _ = handle, n; return 0 }

//go:wasm-module env
//export mem_free
func MemFree(handle uint64) { _ = handle }

//go:wasm-module env
//export mem_size
func MemSize(handle uint64) uint64 { _ = handle; return 0 }

//go:wasm-module env
//export mem_roundup
func MemRoundup(n uint64) uint64 { return n }

//go:wasm-module env
//export fault_config
func FaultConfig(delay, repeat int64) { _, _ = delay, repeat }

//go:wasm-module env
//export fault_failures
func FaultFailures() uint64 { return 0 }

//go:wasm-module env
//export fault_benign_failures
func FaultBenignFailures() uint64 { return 0 }

//go:wasm-module env
//export fault_pending
func FaultPending() int64 { return -1 }

//go:wasm-module env
//export benign_begin
func BenignBegin() {}

//go:wasm-module env
//export benign_end
func BenignEnd() {}
