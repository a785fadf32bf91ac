package harness

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_memtest/internal/status"
	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
	"github.com/andrei-cloud/go_memtest/pkg/memsys"
)

// ErrUnknownScenario is returned by a ScenarioRunner when no scenario with
// the requested name is loaded.
var ErrUnknownScenario = errors.New("unknown scenario")

// ScenarioRunner executes named WASM test scenarios.
type ScenarioRunner interface {
	Execute(name string, input []byte) ([]byte, error)
	Names() []string
}

// Handler executes one harness command and returns the response payload.
type Handler func(payload []byte) ([]byte, error)

// Harness is the test-binding layer: a registry of two-character wire
// commands operating on the allocation subsystem and the fault-injection
// shim. Command execution is serialized; the global allocator configuration
// is a critical section and the harness is its embedding boundary.
type Harness struct {
	mu       sync.Mutex
	pointers *PointerMap
	injector *faultsim.Injector
	pool     *memsys.PagePool

	scenarios atomic.Value // holds ScenarioRunner

	handlers     map[string]Handler
	descriptions map[string]string
}

// New returns a harness operating the given injector.
func New(inj *faultsim.Injector) *Harness {
	h := &Harness{
		pointers: NewPointerMap(),
		injector: inj,
	}

	h.handlers = map[string]Handler{
		"MA": h.malloc,
		"MR": h.realloc,
		"MF": h.free,
		"MS": h.memset,
		"MG": h.memget,
		"MU": h.memoryUsed,
		"MW": h.memoryHighwater,
		"MC": h.allocCount,
		"MO": h.memstatus,
		"RU": h.roundup,
		"SZ": h.sizeOf,
		"FC": h.faultConfig,
		"FP": h.faultPending,
		"FI": h.faultInstall,
		"PC": h.pageCache,
		"PS": h.poolStats,
		"XS": h.runScenario,
	}
	h.descriptions = map[string]string{
		"MA": "Allocate a raw block",
		"MR": "Reallocate a raw block",
		"MF": "Free a raw block",
		"MS": "Fill a block with a hex pattern",
		"MG": "Read a block as hex",
		"MU": "Bytes of memory outstanding",
		"MW": "Memory high-water mark",
		"MC": "Total allocation count",
		"MO": "Toggle memory-status accounting",
		"RU": "Round up an allocation size",
		"SZ": "Usable size of a block",
		"FC": "Configure allocation fault injection",
		"FP": "Successes pending before the next fault",
		"FI": "Install or remove the fault layer",
		"PC": "Install the pooled page allocator",
		"PS": "Page pool statistics",
		"XS": "Execute a WASM scenario",
	}

	return h
}

// Injector returns the fault injector operated by the harness.
func (h *Harness) Injector() *faultsim.Injector {
	return h.injector
}

// Pointers returns the pointer registry used for wire pointer text.
func (h *Harness) Pointers() *PointerMap {
	return h.pointers
}

// SetPagePool records pool as the active pooled allocator so the PS command
// can report its statistics.
func (h *Harness) SetPagePool(pool *memsys.PagePool) {
	h.mu.Lock()
	h.pool = pool
	h.mu.Unlock()
}

// SetScenarioRunner swaps in the runner used by the XS command.
func (h *Harness) SetScenarioRunner(r ScenarioRunner) {
	h.scenarios.Store(&r)
}

func (h *Harness) scenarioRunner() ScenarioRunner {
	if v, ok := h.scenarios.Load().(*ScenarioRunner); ok && v != nil {
		return *v
	}

	return nil
}

// Describe returns the human description of a command code.
func (h *Harness) Describe(cmd string) string {
	if d, ok := h.descriptions[cmd]; ok {
		return d
	}

	return cmd
}

// incrementCode returns the response code by incrementing the second
// character of the command code.
func incrementCode(cmd string) string {
	b := []byte(cmd)
	if len(b) < 2 {
		return cmd
	}
	if b[1] == 'Z' {
		b[1] = 'A'
	} else {
		b[1]++
	}

	return string(b)
}

// statusFor maps a handler error to a wire status.
func statusFor(err error) status.Status {
	var st status.Status
	switch {
	case errors.As(err, &st):
		return st
	case errors.Is(err, faultsim.ErrAlreadyInstalled):
		return status.Err06
	case errors.Is(err, faultsim.ErrNotInstalled):
		return status.Err07
	case errors.Is(err, ErrUnknownScenario):
		return status.Err09
	default:
		return status.Err41
	}
}

// Dispatch executes a command and builds the full wire response:
// the incremented command code, a two-character status, and the payload.
func (h *Harness) Dispatch(cmd string, payload []byte) []byte {
	respCode := incrementCode(cmd)

	handler, ok := h.handlers[cmd]
	if !ok {
		log.Warn().
			Str("event", "unknown_command").
			Str("command", cmd).
			Msg("command not recognized")

		return []byte(respCode + status.Err68.CodeOnly())
	}

	h.mu.Lock()
	data, err := handler(payload)
	h.mu.Unlock()

	if err != nil {
		st := statusFor(err)
		log.Warn().
			Str("event", "command_failed").
			Str("command", cmd).
			Str("status", st.CodeOnly()).
			Err(err).
			Msg("command failed")

		return []byte(respCode + st.CodeOnly())
	}

	resp := []byte(respCode + status.Err00.CodeOnly())

	return append(resp, data...)
}

// Commands returns the registered command codes.
func (h *Harness) Commands() []string {
	codes := make([]string, 0, len(h.handlers))
	for code := range h.handlers {
		codes = append(codes, code)
	}

	return codes
}
