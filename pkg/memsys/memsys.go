// Package memsys implements the pluggable memory-allocation subsystem of the
// test harness. The active allocator is a capability set registered process
// wide; test instrumentation such as the fault-injection shim swaps the set
// out and back through SetMethods/GetMethods.
package memsys

import (
	"sync"
	"sync/atomic"
)

// Methods is the allocator capability set. A nil slice returned from Alloc
// or Realloc is the out-of-memory sentinel; a real allocator running out of
// memory and a simulated failure are indistinguishable to callers.
type Methods struct {
	Alloc    func(n int) []byte
	Realloc  func(p []byte, n int) []byte
	Free     func(p []byte)
	Size     func(p []byte) int
	Roundup  func(n int) int
	Init     func(appData any) error
	Shutdown func(appData any)
	AppData  any
}

// IsZero reports whether the set carries no capabilities at all.
func (m Methods) IsZero() bool {
	return m.Alloc == nil &&
		m.Realloc == nil &&
		m.Free == nil &&
		m.Size == nil &&
		m.Roundup == nil &&
		m.Init == nil &&
		m.Shutdown == nil &&
		m.AppData == nil
}

// registry holds the active allocator and the benign-region hooks. The mutex
// is the single mutual-exclusion point for global allocator configuration;
// allocators themselves perform no locking.
var registry struct {
	mu          sync.Mutex
	methods     Methods
	beginBenign func()
	endBenign   func()
	benignDepth int32
}

// counters implement the memory-status accounting exposed to tests.
var counters struct {
	enabled atomic.Bool
	used    atomic.Int64 // bytes currently outstanding
	high    atomic.Int64 // high-water mark of used
	allocs  atomic.Int64 // total successful allocations
}

func init() {
	registry.methods = Default()
	counters.enabled.Store(true)
}

// SetMethods replaces the active allocator capability set. Storing a zero
// set is permitted; it marks the registry empty until the next SetMethods,
// which the fault shim relies on during its uninstall read-back check.
func SetMethods(m Methods) {
	registry.mu.Lock()
	registry.methods = m
	registry.mu.Unlock()
}

// GetMethods returns the currently active capability set.
func GetMethods() Methods {
	registry.mu.Lock()
	m := registry.methods
	registry.mu.Unlock()

	return m
}

// SetBenignHooks registers the pair invoked when a benign region opens and
// closes. Pass nil for both to deregister.
func SetBenignHooks(begin, end func()) {
	registry.mu.Lock()
	registry.beginBenign = begin
	registry.endBenign = end
	registry.mu.Unlock()
}

// BeginBenign opens a region in which allocation failure is an expected,
// recoverable condition. Regions nest; callers must pair every BeginBenign
// with an EndBenign.
func BeginBenign() {
	registry.mu.Lock()
	registry.benignDepth++
	hook := registry.beginBenign
	registry.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// EndBenign closes the innermost benign region.
func EndBenign() {
	registry.mu.Lock()
	registry.benignDepth--
	hook := registry.endBenign
	registry.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// BenignDepth returns the current benign-region nesting depth.
func BenignDepth() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	return int(registry.benignDepth)
}

// Alloc allocates n bytes through the active allocator.
func Alloc(n int) []byte {
	m := GetMethods()
	if m.Alloc == nil {
		return nil
	}

	p := m.Alloc(n)
	if p != nil && counters.enabled.Load() {
		counters.allocs.Add(1)
		addUsed(int64(sizeOf(m, p)))
	}

	return p
}

// AllocZero allocates n bytes and zeroes the result.
func AllocZero(n int) []byte {
	p := Alloc(n)
	clear(p)

	return p
}

// Realloc resizes p to n bytes through the active allocator. Resizing to
// zero or fewer bytes is a free and returns nil.
func Realloc(p []byte, n int) []byte {
	if n <= 0 {
		Free(p)

		return nil
	}

	m := GetMethods()
	if m.Realloc == nil {
		return nil
	}

	old := 0
	if p != nil {
		old = sizeOf(m, p)
	}

	q := m.Realloc(p, n)
	if q != nil && counters.enabled.Load() {
		counters.allocs.Add(1)
		addUsed(int64(sizeOf(m, q) - old))
	}

	return q
}

// Free releases p through the active allocator.
func Free(p []byte) {
	if p == nil {
		return
	}

	m := GetMethods()
	if m.Free == nil {
		return
	}
	if counters.enabled.Load() {
		addUsed(-int64(sizeOf(m, p)))
	}
	m.Free(p)
}

// Size returns the usable size of p.
func Size(p []byte) int {
	m := GetMethods()
	if p == nil || m.Size == nil {
		return 0
	}

	return m.Size(p)
}

// Roundup returns the allocation size the active allocator would use for a
// request of n bytes.
func Roundup(n int) int {
	m := GetMethods()
	if m.Roundup == nil {
		return n
	}

	return m.Roundup(n)
}

// SetStatusEnabled toggles memory-status accounting. With accounting off,
// Used, Highwater and AllocCount stop updating; the stored values remain.
func SetStatusEnabled(on bool) {
	counters.enabled.Store(on)
}

// Used returns the number of bytes currently checked out of the allocator.
func Used() int64 {
	return counters.used.Load()
}

// Highwater returns the maximum value Used has reached. With reset true the
// mark is lowered back to the current Used value.
func Highwater(reset bool) int64 {
	h := counters.high.Load()
	if reset {
		counters.high.Store(counters.used.Load())
	}

	return h
}

// AllocCount returns the total number of successful allocations and
// reallocations since process start or the last ResetCounters.
func AllocCount() int64 {
	return counters.allocs.Load()
}

// ResetCounters zeroes all status counters. Intended for test setup.
func ResetCounters() {
	counters.used.Store(0)
	counters.high.Store(0)
	counters.allocs.Store(0)
}

func addUsed(delta int64) {
	used := counters.used.Add(delta)
	for {
		high := counters.high.Load()
		if used <= high || counters.high.CompareAndSwap(high, used) {
			return
		}
	}
}

func sizeOf(m Methods, p []byte) int {
	if m.Size != nil {
		return m.Size(p)
	}

	return cap(p)
}
