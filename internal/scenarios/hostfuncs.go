package scenarios

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/andrei-cloud/go_memtest/internal/harness"
	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
	"github.com/andrei-cloud/go_memtest/pkg/memsys"
)

// HostFunctions provides the env module imported by scenario guests. Host
// blocks never enter guest linear memory; guests hold opaque 64-bit handles
// and move data through explicit read/write calls.
type HostFunctions struct {
	builder  wazero.HostModuleBuilder
	injector *faultsim.Injector
	blocks   *harness.PointerMap
}

// NewHostFunctions creates a new host functions provider.
func NewHostFunctions(
	runtime wazero.Runtime,
	inj *faultsim.Injector,
	blocks *harness.PointerMap,
) *HostFunctions {
	return &HostFunctions{
		builder:  runtime.NewHostModuleBuilder("env"),
		injector: inj,
		blocks:   blocks,
	}
}

// Register adds all host functions and instantiates the env module.
func (h *HostFunctions) Register(ctx context.Context) error {
	// Allocation subsystem
	h.builder.NewFunctionBuilder().
		WithFunc(h.memAlloc).
		Export("mem_alloc")

	h.builder.NewFunctionBuilder().
		WithFunc(h.memRealloc).
		Export("mem_realloc")

	h.builder.NewFunctionBuilder().
		WithFunc(h.memFree).
		Export("mem_free")

	h.builder.NewFunctionBuilder().
		WithFunc(h.memSize).
		Export("mem_size")

	h.builder.NewFunctionBuilder().
		WithFunc(h.memRoundup).
		Export("mem_roundup")

	// Fault simulation
	h.builder.NewFunctionBuilder().
		WithFunc(h.faultConfig).
		Export("fault_config")

	h.builder.NewFunctionBuilder().
		WithFunc(h.faultFailures).
		Export("fault_failures")

	h.builder.NewFunctionBuilder().
		WithFunc(h.faultBenignFailures).
		Export("fault_benign_failures")

	h.builder.NewFunctionBuilder().
		WithFunc(h.faultPending).
		Export("fault_pending")

	// Benign regions
	h.builder.NewFunctionBuilder().
		WithFunc(h.benignBegin).
		Export("benign_begin")

	h.builder.NewFunctionBuilder().
		WithFunc(h.benignEnd).
		Export("benign_end")

	// Logging
	h.builder.NewFunctionBuilder().
		WithFunc(h.logDebug).
		Export("log_debug")

	if _, err := h.builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host functions module: %w", err)
	}

	return nil
}

// memAlloc allocates n bytes through the active allocator and returns a
// handle, or 0 when the allocation fails.
func (h *HostFunctions) memAlloc(_ context.Context, _ api.Module, n uint64) uint64 {
	p := memsys.Alloc(int(n))

	return h.blocks.Register(p)
}

func (h *HostFunctions) memRealloc(
	_ context.Context,
	_ api.Module,
	handle, n uint64,
) uint64 {
	p, ok := h.blocks.Lookup(handle)
	if !ok {
		log.Error().Uint64("handle", handle).Msg("mem_realloc: unknown handle")

		return 0
	}

	q := memsys.Realloc(p, int(n))
	if q == nil {
		if int(n) <= 0 {
			h.blocks.Release(handle)
		}

		return 0
	}

	h.blocks.Release(handle)

	return h.blocks.Register(q)
}

func (h *HostFunctions) memFree(_ context.Context, _ api.Module, handle uint64) {
	p, ok := h.blocks.Release(handle)
	if !ok {
		log.Error().Uint64("handle", handle).Msg("mem_free: unknown handle")

		return
	}
	memsys.Free(p)
}

func (h *HostFunctions) memSize(_ context.Context, _ api.Module, handle uint64) uint64 {
	p, ok := h.blocks.Lookup(handle)
	if !ok {
		return 0
	}

	return uint64(memsys.Size(p))
}

func (h *HostFunctions) memRoundup(_ context.Context, _ api.Module, n uint64) uint64 {
	return uint64(memsys.Roundup(int(n)))
}

func (h *HostFunctions) faultConfig(_ context.Context, _ api.Module, delay, repeat int64) {
	h.injector.Config(int(delay), int(repeat))
}

func (h *HostFunctions) faultFailures(_ context.Context, _ api.Module) uint64 {
	return uint64(h.injector.Failures())
}

func (h *HostFunctions) faultBenignFailures(_ context.Context, _ api.Module) uint64 {
	return uint64(h.injector.BenignFailures())
}

func (h *HostFunctions) faultPending(_ context.Context, _ api.Module) int64 {
	return int64(h.injector.Pending())
}

func (h *HostFunctions) benignBegin(_ context.Context, _ api.Module) {
	memsys.BeginBenign()
}

func (h *HostFunctions) benignEnd(_ context.Context, _ api.Module) {
	memsys.EndBenign()
}

func (h *HostFunctions) logDebug(_ context.Context, mod api.Module, ptr, size uint32) {
	data, ok := mod.Memory().Read(ptr, size)
	if !ok {
		log.Error().Msg("failed to read debug log message")

		return
	}

	log.Debug().
		Str("source", "wasm").
		Msg(string(data))
}
