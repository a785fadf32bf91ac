// Package faultsim implements the fault-injecting allocator shim. An
// installed Injector sits in front of the active memsys allocator and
// simulates out-of-memory conditions at a configured call number: after a
// configured count of successes the next allocations fail a configured
// number of times in a row, then the injector disarms itself.
//
// The injector performs no locking of its own. The surrounding test process
// is expected to drive allocation calls from one logical thread of control
// at a time; install and uninstall touch global allocator state and must be
// treated as a critical section by multi-threaded callers.
package faultsim

import (
	"errors"

	"github.com/andrei-cloud/go_memtest/pkg/memsys"
)

// Install-protocol misuse errors.
var (
	ErrAlreadyInstalled = errors.New("fault simulation layer already installed")
	ErrNotInstalled     = errors.New("fault simulation layer not installed")
)

// Injector encapsulates the process-wide state used by allocation fault
// simulation.
type Injector struct {
	countdown   int  // pending successes before the next failure
	repeat      int  // times the failure repeats once triggered
	benignCount int  // benign failures seen since the last Config
	failCount   int  // failures seen since the last Config
	enabled     bool // true while failures are scheduled
	installed   bool // true while the shim is the active allocator
	benignDepth int  // nesting depth of benign regions
	real        memsys.Methods
}

// New returns a disarmed, uninstalled injector.
func New() *Injector {
	return &Injector{}
}

// step decides whether the current allocation attempt must be failed.
func (inj *Injector) step() bool {
	if !inj.enabled {
		return false
	}
	if inj.countdown > 0 {
		inj.countdown--

		return false
	}

	inj.failCount++
	if inj.benignDepth > 0 {
		inj.benignCount++
	}
	inj.repeat--
	if inj.repeat <= 0 {
		inj.enabled = false
	}

	return true
}

// alloc chains into the real allocator unless a fault fires. A nil result
// from the real allocator is a genuine out-of-memory condition and does not
// count as a simulated failure.
func (inj *Injector) alloc(n int) []byte {
	if inj.step() {
		return nil
	}

	return inj.real.Alloc(n)
}

func (inj *Injector) realloc(p []byte, n int) []byte {
	if inj.step() {
		return nil
	}

	return inj.real.Realloc(p, n)
}

// Config arms the failure simulation: the next delay allocations succeed,
// the following repeat allocations fail, then allocations succeed again.
// A negative delay disarms the simulation. Each call fully overrides the
// prior configuration and resets both failure counters.
func (inj *Injector) Config(delay, repeat int) {
	inj.countdown = delay
	inj.repeat = repeat
	inj.benignCount = 0
	inj.failCount = 0
	inj.enabled = delay >= 0
}

// Failures returns the number of failures, benign and otherwise, simulated
// since the last Config.
func (inj *Injector) Failures() int {
	return inj.failCount
}

// BenignFailures returns the number of failures simulated inside a benign
// region since the last Config.
func (inj *Injector) BenignFailures() int {
	return inj.benignCount
}

// Pending returns the number of allocations that will succeed before the
// next simulated failure, or -1 when no failure is scheduled.
func (inj *Injector) Pending() int {
	if inj.enabled {
		return inj.countdown
	}

	return -1
}

// BeginBenign opens a benign region: failures simulated inside it are
// recorded as expected rather than test-relevant. Regions nest.
func (inj *Injector) BeginBenign() {
	inj.benignDepth++
}

// EndBenign closes the innermost benign region.
func (inj *Injector) EndBenign() {
	inj.benignDepth--
}

// Installed reports whether the shim is the active allocator.
func (inj *Injector) Installed() bool {
	return inj.installed
}

// methods returns the shim capability set chained to the captured real
// allocator. Only Alloc and Realloc are intercepted; everything else passes
// straight through.
func (inj *Injector) methods() memsys.Methods {
	return memsys.Methods{
		Alloc:    inj.alloc,
		Realloc:  inj.realloc,
		Free:     func(p []byte) { inj.real.Free(p) },
		Size:     func(p []byte) int { return inj.real.Size(p) },
		Roundup:  func(n int) int { return inj.real.Roundup(n) },
		Init:     func(any) error { return inj.real.Init(inj.real.AppData) },
		Shutdown: func(any) { inj.real.Shutdown(inj.real.AppData) },
	}
}

// Install adds (install true) or removes (install false) the fault
// simulation layer. Installing captures the currently active allocator set;
// uninstalling restores exactly that snapshot. Repeating a transition
// without the opposite one in between returns ErrAlreadyInstalled or
// ErrNotInstalled and changes nothing.
func (inj *Injector) Install(install bool) error {
	if install == inj.installed {
		if install {
			return ErrAlreadyInstalled
		}

		return ErrNotInstalled
	}

	if install {
		inj.real = memsys.GetMethods()
		if inj.real.Alloc == nil {
			panic("faultsim: captured allocator capability set is empty")
		}
		memsys.SetMethods(inj.methods())
		memsys.SetBenignHooks(inj.BeginBenign, inj.EndBenign)
	} else {
		if inj.real.Alloc == nil {
			panic("faultsim: no captured allocator to restore")
		}

		// Resetting the registry to a zero set and reading it back must
		// yield zero; anything else means another component swapped
		// allocators underneath the shim.
		memsys.SetMethods(memsys.Methods{})
		if rb := memsys.GetMethods(); !rb.IsZero() {
			panic("faultsim: allocator registry did not clear on uninstall")
		}

		memsys.SetMethods(inj.real)
		memsys.SetBenignHooks(nil, nil)
	}

	inj.installed = install

	return nil
}
