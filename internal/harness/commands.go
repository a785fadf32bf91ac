package harness

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_memtest/internal/status"
	"github.com/andrei-cloud/go_memtest/pkg/memsys"
)

// malloc handles MA NBYTES: raw interface to the active allocator. The
// response is pointer text; a failed allocation renders as "0".
func (h *Harness) malloc(payload []byte) ([]byte, error) {
	m, err := NewMalloc(payload)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("trace", m.Trace()).Msg("parsed request")

	n, err := m.GetInt("NBytes")
	if err != nil {
		return nil, err
	}

	p := memsys.Alloc(n)
	addr := h.pointers.Register(p)

	return []byte(FormatPointer(addr)), nil
}

// realloc handles MR PRIOR NBYTES. A prior pointer of "0" behaves like MA.
// On a failed reallocation the prior block stays registered and "0" is
// returned.
func (h *Harness) realloc(payload []byte) ([]byte, error) {
	m, err := NewRealloc(payload)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("trace", m.Trace()).Msg("parsed request")

	prior, err := m.GetPointer("Prior")
	if err != nil {
		return nil, err
	}
	n, err := m.GetInt("NBytes")
	if err != nil {
		return nil, err
	}

	p, ok := h.pointers.Lookup(prior)
	if !ok {
		return nil, status.Err03
	}

	q := memsys.Realloc(p, n)
	if q == nil {
		if n <= 0 {
			// Shrinking to nothing frees the prior block.
			h.pointers.Release(prior)
		}

		return []byte(FormatPointer(0)), nil
	}

	h.pointers.Release(prior)
	addr := h.pointers.Register(q)

	return []byte(FormatPointer(addr)), nil
}

// free handles MF PRIOR.
func (h *Harness) free(payload []byte) ([]byte, error) {
	m, err := NewFree(payload)
	if err != nil {
		return nil, err
	}

	prior, err := m.GetPointer("Prior")
	if err != nil {
		return nil, err
	}

	p, ok := h.pointers.Release(prior)
	if !ok {
		return nil, status.Err03
	}
	memsys.Free(p)

	return nil, nil
}

// memset handles MS ADDRESS SIZE HEX: fills a block with a repeating hex
// pattern.
func (h *Harness) memset(payload []byte) ([]byte, error) {
	m, err := NewMemset(payload)
	if err != nil {
		return nil, err
	}

	addr, err := m.GetPointer("Address")
	if err != nil {
		return nil, err
	}
	size, err := m.GetInt("Size")
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, status.Err04
	}

	pattern, err := hex.DecodeString(string(m.Get("Hex")))
	if err != nil {
		return nil, status.Err15
	}
	if len(pattern) == 0 {
		return nil, status.Err10
	}

	p, ok := h.pointers.Lookup(addr)
	if !ok || p == nil {
		return nil, status.Err03
	}
	if size > len(p) {
		return nil, status.Err15
	}

	for i := 0; i < size; i++ {
		p[i] = pattern[i%len(pattern)]
	}

	return nil, nil
}

// memget handles MG ADDRESS SIZE: returns block contents as hexadecimal
// text.
func (h *Harness) memget(payload []byte) ([]byte, error) {
	m, err := NewMemget(payload)
	if err != nil {
		return nil, err
	}

	addr, err := m.GetPointer("Address")
	if err != nil {
		return nil, err
	}
	size, err := m.GetInt("Size")
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, status.Err04
	}

	p, ok := h.pointers.Lookup(addr)
	if !ok || p == nil {
		return nil, status.Err03
	}
	if size > len(p) {
		return nil, status.Err15
	}

	return []byte(hex.EncodeToString(p[:size])), nil
}

// memoryUsed handles MU: bytes currently outstanding.
func (h *Harness) memoryUsed([]byte) ([]byte, error) {
	return []byte(strconv.FormatInt(memsys.Used(), 10)), nil
}

// memoryHighwater handles MW [RESET].
func (h *Harness) memoryHighwater(payload []byte) ([]byte, error) {
	m, err := NewHighwater(payload)
	if err != nil {
		return nil, err
	}

	reset, err := m.GetBoolDefault("Reset", false)
	if err != nil {
		return nil, err
	}

	return []byte(strconv.FormatInt(memsys.Highwater(reset), 10)), nil
}

// allocCount handles MC: total successful allocations.
func (h *Harness) allocCount([]byte) ([]byte, error) {
	return []byte(strconv.FormatInt(memsys.AllocCount(), 10)), nil
}

// memstatus handles MO BOOLEAN: toggles status accounting.
func (h *Harness) memstatus(payload []byte) ([]byte, error) {
	m, err := NewMemstatus(payload)
	if err != nil {
		return nil, err
	}

	on, err := m.GetBool("Enabled")
	if err != nil {
		return nil, err
	}
	memsys.SetStatusEnabled(on)

	return nil, nil
}

// roundup handles RU NBYTES.
func (h *Harness) roundup(payload []byte) ([]byte, error) {
	m, err := NewRoundup(payload)
	if err != nil {
		return nil, err
	}

	n, err := m.GetInt("NBytes")
	if err != nil {
		return nil, err
	}

	return []byte(strconv.Itoa(memsys.Roundup(n))), nil
}

// sizeOf handles SZ ADDRESS.
func (h *Harness) sizeOf(payload []byte) ([]byte, error) {
	m, err := NewSizeOf(payload)
	if err != nil {
		return nil, err
	}

	addr, err := m.GetPointer("Address")
	if err != nil {
		return nil, err
	}

	p, ok := h.pointers.Lookup(addr)
	if !ok {
		return nil, status.Err03
	}

	return []byte(strconv.Itoa(memsys.Size(p))), nil
}

// faultConfig handles FC COUNTER [REPEAT]: arranges a simulated allocation
// failure after COUNTER successes, repeated REPEAT times (default 1). A
// COUNTER of -1 disarms the simulation. The response carries the failure
// and benign-failure counts accumulated since the previous FC, which this
// call resets.
func (h *Harness) faultConfig(payload []byte) ([]byte, error) {
	m, err := NewFaultConfig(payload)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("trace", m.Trace()).Msg("parsed request")

	counter, err := m.GetInt("Counter")
	if err != nil {
		return nil, err
	}
	repeat, err := m.GetIntDefault("Repeat", 1)
	if err != nil {
		return nil, err
	}

	failures := h.injector.Failures()
	benign := h.injector.BenignFailures()
	h.injector.Config(counter, repeat)

	return []byte(fmt.Sprintf("%d %d", failures, benign)), nil
}

// faultPending handles FP: allocations that will succeed before the next
// simulated failure, or -1 when none is scheduled.
func (h *Harness) faultPending([]byte) ([]byte, error) {
	return []byte(strconv.Itoa(h.injector.Pending())), nil
}

// faultInstall handles FI BOOLEAN: adds or removes the fault simulation
// layer. Repeating a transition surfaces the protocol-misuse status.
func (h *Harness) faultInstall(payload []byte) ([]byte, error) {
	m, err := NewFaultInstall(payload)
	if err != nil {
		return nil, err
	}

	install, err := m.GetBool("Install")
	if err != nil {
		return nil, err
	}
	if err := h.injector.Install(install); err != nil {
		return nil, err
	}

	return nil, nil
}

// pageCache handles PC SIZE N: installs a pooled page allocator with the
// given page size and N prewarmed pages as the active capability set.
func (h *Harness) pageCache(payload []byte) ([]byte, error) {
	m, err := NewPageCache(payload)
	if err != nil {
		return nil, err
	}

	size, err := m.GetInt("Size")
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, status.Err04
	}
	n, err := m.GetInt("N")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, status.Err02
	}

	pool := memsys.NewPagePool(size, n)
	memsys.SetMethods(pool.Methods())
	h.pool = pool

	log.Info().
		Str("event", "page_pool_installed").
		Int("page_size", pool.PageSize()).
		Int("pages", n).
		Msg("pooled page allocator installed")

	return nil, nil
}

// poolStats handles PS: reports page pool counters.
func (h *Harness) poolStats([]byte) ([]byte, error) {
	if h.pool == nil {
		return nil, status.Err15
	}

	stats := h.pool.Stats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, stats[k]))
	}

	return []byte(strings.Join(parts, " ")), nil
}

// runScenario handles XS NAME [INPUT...]: executes a loaded WASM scenario
// with the remaining payload as input.
func (h *Harness) runScenario(payload []byte) ([]byte, error) {
	args := strings.Fields(string(payload))
	if len(args) < 1 {
		return nil, status.Err01
	}

	runner := h.scenarioRunner()
	if runner == nil {
		return nil, ErrUnknownScenario
	}

	input := strings.Join(args[1:], " ")

	return runner.Execute(args[0], []byte(input))
}
