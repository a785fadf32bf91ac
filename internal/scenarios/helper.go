// Package scenarios loads and executes WASM test scenarios. A scenario is a
// compiled guest module driving the allocation subsystem through host
// functions; the harness XS command runs one by name.
package scenarios

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// AllocAndWrite allocates guest memory via the wasm Alloc export and writes
// data into the guest's linear memory, returning the guest pointer.
func AllocAndWrite(
	ctx context.Context,
	mod api.Module,
	alloc api.Function,
	data []byte,
) (uint32, error) {
	length := uint32(len(data))
	if length == 0 {
		return 0, nil
	}

	results, err := alloc.Call(ctx, uint64(length))
	if err != nil {
		return 0, fmt.Errorf("alloc failed: %w", err)
	}
	if len(results) < 1 {
		return 0, errors.New("alloc returned no results")
	}

	ptr := api.DecodeU32(results[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, errors.New("memory write failed: bounds exceeded")
	}

	return ptr, nil
}

// CallExecute invokes the scenario's Execute function with input pointer and
// length and returns the packed uint64 result.
func CallExecute(ctx context.Context, exec api.Function, ptr, length uint32) (uint64, error) {
	results, err := exec.Call(ctx, uint64(ptr), uint64(length))
	if err != nil {
		return 0, fmt.Errorf("execution failed: %w", err)
	}
	if len(results) < 1 {
		return 0, errors.New("invalid execution result")
	}

	return results[0], nil
}

// UnpackResult splits a packed uint64 into guest pointer and length.
func UnpackResult(combined uint64) (uint32, uint32) {
	return uint32(combined >> 32), uint32(combined & 0xFFFFFFFF)
}

// ReadResult reads the scenario response from guest memory.
func ReadResult(mod api.Module, ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, errors.New("memory read failed: bounds exceeded")
	}

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}
