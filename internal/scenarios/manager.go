package scenarios

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/andrei-cloud/go_memtest/internal/harness"
	"github.com/andrei-cloud/go_memtest/internal/status"
	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
)

// Manager manages WASM scenario instances and supports hot reload by
// recreating the runtime.
type Manager struct {
	//nolint:containedctx // Context is stored intentionally to allow reuse across scenario operations.
	ctx       context.Context
	runtime   wazero.Runtime
	scenarios map[string]*Instance
	injector  *faultsim.Injector
	blocks    *harness.PointerMap
	mu        sync.RWMutex
}

// Instance holds a WASM scenario module and its exported functions.
type Instance struct {
	Module      api.Module
	Alloc       api.Function
	Free        api.Function
	ExecuteFn   api.Function
	Description string
	mu          sync.Mutex
}

// NewManager returns a Manager ready to load scenarios. Host blocks handed to
// guests are registered in blocks; fault host functions drive inj.
func NewManager(ctx context.Context, inj *faultsim.Injector, blocks *harness.PointerMap) *Manager {
	return &Manager{
		ctx:       ctx,
		scenarios: make(map[string]*Instance),
		injector:  inj,
		blocks:    blocks,
	}
}

// LoadAll loads all WASM scenarios from the specified directory. Calling it
// again swaps in a fresh runtime and closes the old one.
func (m *Manager) LoadAll(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	// create new runtime for fresh module instantiation.
	newRt := wazero.NewRuntime(m.ctx)
	wasi_snapshot_preview1.MustInstantiate(m.ctx, newRt)

	hostFns := NewHostFunctions(newRt, m.injector, m.blocks)
	if err := hostFns.Register(m.ctx); err != nil {
		return err
	}

	newScenarios := make(map[string]*Instance)

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".wasm" {
			continue
		}

		wasmBytes, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			log.Error().Err(err).Str("file", f.Name()).Msg("failed to read scenario file")

			continue
		}

		name := strings.TrimSuffix(f.Name(), ".wasm")
		compiled, err := newRt.CompileModule(m.ctx, wasmBytes)
		if err != nil {
			log.Error().Err(err).Str("file", f.Name()).Msg("failed to compile scenario module")

			continue
		}

		// Disable automatic start function execution.
		cfg := wazero.NewModuleConfig().
			WithName(name).
			WithStartFunctions()

		module, err := newRt.InstantiateModule(m.ctx, compiled, cfg)
		if err != nil {
			log.Error().Err(err).Str("file", f.Name()).Msg("failed to instantiate scenario module")

			continue
		}

		executeFn := module.ExportedFunction("Execute")
		if executeFn == nil {
			log.Warn().Str("file", f.Name()).Msg("scenario does not export Execute function")

			continue
		}

		allocFn := module.ExportedFunction("Alloc")
		if allocFn == nil {
			log.Warn().Str("file", f.Name()).Msg("scenario does not export Alloc function")

			continue
		}

		freeFn := module.ExportedFunction("Free")
		if freeFn == nil {
			log.Warn().Str("file", f.Name()).Msg("scenario does not export Free function")

			continue
		}

		newScenarios[name] = &Instance{
			Module:      module,
			Alloc:       allocFn,
			Free:        freeFn,
			ExecuteFn:   executeFn,
			Description: name,
		}
		log.Info().Str("scenario", name).Msg("loaded wasm scenario")
	}

	m.mu.Lock()
	if m.runtime != nil {
		if err := m.runtime.Close(m.ctx); err != nil {
			log.Error().Err(err).Msg("failed to close previous runtime")
		}
	}
	m.runtime = newRt
	m.scenarios = newScenarios
	m.mu.Unlock()

	return nil
}

// Execute runs the named scenario with the given input and returns its
// response bytes.
func (m *Manager) Execute(name string, input []byte) ([]byte, error) {
	m.mu.RLock()
	inst, ok := m.scenarios[name]
	m.mu.RUnlock()
	if !ok {
		return nil, harness.ErrUnknownScenario
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	runID := uuid.NewString()
	log.Debug().
		Str("event", "scenario_start").
		Str("scenario", name).
		Str("run_id", runID).
		Msg("executing scenario")

	// allocate guest memory and write input.
	ptr, err := AllocAndWrite(m.ctx, inst.Module, inst.Alloc, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.Err08, err)
	}

	// execute scenario and get combined result.
	combined, err := CallExecute(m.ctx, inst.ExecuteFn, ptr, uint32(len(input)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.Err08, err)
	}

	// unpack result into pointer and length.
	outPtr, outLen := UnpackResult(combined)

	// read response from guest memory.
	resp, err := ReadResult(inst.Module, outPtr, outLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.Err08, err)
	}

	log.Debug().
		Str("event", "scenario_done").
		Str("scenario", name).
		Str("run_id", runID).
		Int("response_len", len(resp)).
		Msg("scenario execution response")

	return resp, nil
}

// Names returns the loaded scenario names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.scenarios))
	for name := range m.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// GetDescription returns the description of the named scenario or the name
// itself when not loaded.
func (m *Manager) GetDescription(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inst, ok := m.scenarios[name]; ok {
		return inst.Description
	}

	return name
}

// Close closes the underlying WASM runtime.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runtime == nil {
		return nil
	}

	return m.runtime.Close(m.ctx)
}
