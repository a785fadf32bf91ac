package main

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"
)

// Memory layout:
// [0-7]: reserved
// [8+]: available for allocation.
var nextPtr uint32 = 8

//export Alloc
func Alloc(size uint32) uint32 {
	ptr := nextPtr
	nextPtr += size + (8 - size%8) // Align to 8-byte boundary.
	return ptr
}

//export Free
func Free(_ uint32) {
	// No-op for this implementation
}

// Host functions from the env module.

//go:wasm-module env
//export mem_alloc
func memAlloc(n uint64) uint64 { _ = n; return 0 }

//go:wasm-module env
//export mem_free
func memFree(handle uint64) { _ = handle }

//go:wasm-module env
//export fault_config
func faultConfig(delay, repeat int64) { _, _ = delay, repeat }

//go:wasm-module env
//export fault_failures
func faultFailures() uint64 { return 0 }

//go:wasm-module env
//export fault_pending
func faultPending() int64 { return -1 }

//go:wasm-module env
//export benign_begin
func benignBegin() {}

//go:wasm-module env
//export benign_end
func benignEnd() {}

// Execute runs an out-of-memory march: arm the fault simulation, allocate in
// a loop, and report how many allocations failed.
//
// Input: "DELAY REPEAT SIZE COUNT [benign]"
//
//export Execute
func Execute(ptr, length uint32) uint64 {
	nextPtr = 8

	args := strings.Fields(string(getData(ptr, length)))
	if len(args) < 4 {
		return makeErrorResponse("expected DELAY REPEAT SIZE COUNT")
	}

	delay, err1 := strconv.ParseInt(args[0], 10, 64)
	repeat, err2 := strconv.ParseInt(args[1], 10, 64)
	size, err3 := strconv.ParseUint(args[2], 10, 32)
	count, err4 := strconv.ParseUint(args[3], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return makeErrorResponse("non-numeric argument")
	}

	benign := len(args) > 4 && args[4] == "benign"

	faultConfig(delay, repeat)

	if benign {
		benignBegin()
	}

	failed := uint64(0)
	for i := uint64(0); i < count; i++ {
		handle := memAlloc(size)
		if handle == 0 {
			failed++
			continue
		}
		memFree(handle)
	}

	if benign {
		benignEnd()
	}

	resp := fmt.Sprintf(
		"failed=%d reported=%d pending=%d",
		failed, faultFailures(), faultPending(),
	)

	outPtr := Alloc(uint32(len(resp)))
	putData(outPtr, []byte(resp))

	return uint64(outPtr)<<32 | uint64(len(resp))
}

func makeErrorResponse(msg string) uint64 {
	errResp := []byte("scenario error: " + msg)
	outPtr := Alloc(uint32(len(errResp)))
	putData(outPtr, errResp)

	return uint64(outPtr)<<32 | uint64(len(errResp))
}

// getData gets a slice of data from WASM memory.
//
//go:inline
func getData(offset, length uint32) []byte {
	return (*[1 << 30]byte)(unsafe.Pointer(uintptr(offset)))[:length:length]
}

// putData writes data to WASM memory.
//
//go:inline
func putData(offset uint32, data []byte) {
	dest := getData(offset, uint32(len(data)))
	copy(dest, data)
}

func main() {}
