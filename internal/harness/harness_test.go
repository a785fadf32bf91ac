package harness

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/go_memtest/pkg/faultsim"
	"github.com/andrei-cloud/go_memtest/pkg/memsys"
)

// newTestHarness returns a harness against a fresh default allocator and
// restores the global allocator configuration when the test finishes.
func newTestHarness(t *testing.T) *Harness {
	t.Helper()

	memsys.SetMethods(memsys.Default())
	memsys.SetStatusEnabled(true)
	memsys.ResetCounters()

	h := New(faultsim.New())
	t.Cleanup(func() {
		if h.injector.Installed() {
			require.NoError(t, h.injector.Install(false))
		}
		memsys.SetMethods(memsys.Default())
		memsys.SetBenignHooks(nil, nil)
		memsys.SetStatusEnabled(true)
		memsys.ResetCounters()
	})

	return h
}

// dispatch runs one command and splits the response into status code and
// payload, asserting the response code matches the request.
func dispatch(t *testing.T, h *Harness, cmd, payload string) (string, string) {
	t.Helper()

	resp := string(h.Dispatch(cmd, []byte(payload)))
	require.GreaterOrEqual(t, len(resp), 4)
	assert.Equal(t, incrementCode(cmd), resp[:2])

	return resp[2:4], resp[4:]
}

func TestIncrementCode(t *testing.T) {
	assert.Equal(t, "MB", incrementCode("MA"))
	assert.Equal(t, "SA", incrementCode("SZ"))
}

func TestMallocMemsetMemgetFree(t *testing.T) {
	h := newTestHarness(t)

	st, ptr := dispatch(t, h, "MA", "16")
	require.Equal(t, "00", st)
	require.NotEqual(t, "0", ptr)

	st, _ = dispatch(t, h, "MS", ptr+" 16 ab")
	require.Equal(t, "00", st)

	st, data := dispatch(t, h, "MG", ptr+" 16")
	require.Equal(t, "00", st)
	assert.Equal(t, strings.Repeat("ab", 16), data)

	st, size := dispatch(t, h, "SZ", ptr)
	require.Equal(t, "00", st)
	assert.Equal(t, "16", size)

	st, _ = dispatch(t, h, "MF", ptr)
	require.Equal(t, "00", st)

	st, _ = dispatch(t, h, "MF", ptr)
	assert.Equal(t, "03", st, "double free reports a bad pointer")
	assert.Zero(t, h.Pointers().Outstanding())
}

func TestMemsetPatternRepeats(t *testing.T) {
	h := newTestHarness(t)

	_, ptr := dispatch(t, h, "MA", "8")
	st, _ := dispatch(t, h, "MS", ptr+" 8 0102")
	require.Equal(t, "00", st)

	_, data := dispatch(t, h, "MG", ptr+" 8")
	assert.Equal(t, "0102010201020102", data)

	dispatch(t, h, "MF", ptr)
}

func TestMallocZeroBytesYieldsNilPointer(t *testing.T) {
	h := newTestHarness(t)

	st, ptr := dispatch(t, h, "MA", "0")
	assert.Equal(t, "00", st)
	assert.Equal(t, "0", ptr)
}

func TestReallocGrowKeepsContents(t *testing.T) {
	h := newTestHarness(t)

	_, ptr := dispatch(t, h, "MA", "4")
	dispatch(t, h, "MS", ptr+" 4 7f")

	st, grown := dispatch(t, h, "MR", ptr+" 64")
	require.Equal(t, "00", st)
	require.NotEqual(t, "0", grown)

	st, _ = dispatch(t, h, "SZ", ptr)
	assert.Equal(t, "03", st, "prior pointer is gone after realloc")

	_, data := dispatch(t, h, "MG", grown+" 4")
	assert.Equal(t, "7f7f7f7f", data)

	dispatch(t, h, "MF", grown)
}

func TestReallocToZeroFrees(t *testing.T) {
	h := newTestHarness(t)

	_, ptr := dispatch(t, h, "MA", "32")

	st, next := dispatch(t, h, "MR", ptr+" 0")
	require.Equal(t, "00", st)
	assert.Equal(t, "0", next)

	st, _ = dispatch(t, h, "SZ", ptr)
	assert.Equal(t, "03", st)

	st, used := dispatch(t, h, "MU", "")
	require.Equal(t, "00", st)
	assert.Equal(t, "0", used, "freed block left the outstanding count")
}

func TestFaultLifecycle(t *testing.T) {
	h := newTestHarness(t)

	st, _ := dispatch(t, h, "FI", "1")
	require.Equal(t, "00", st)

	st, _ = dispatch(t, h, "FI", "1")
	assert.Equal(t, "06", st, "second install is a protocol error")

	st, counts := dispatch(t, h, "FC", "1 2")
	require.Equal(t, "00", st)
	assert.Equal(t, "0 0", counts)

	st, ptr := dispatch(t, h, "MA", "8")
	require.Equal(t, "00", st)
	require.NotEqual(t, "0", ptr, "one success before the fault fires")

	for i := 0; i < 2; i++ {
		st, p := dispatch(t, h, "MA", "8")
		require.Equal(t, "00", st)
		assert.Equal(t, "0", p, "fault %d", i+1)
	}

	st, p := dispatch(t, h, "MA", "8")
	require.Equal(t, "00", st)
	assert.NotEqual(t, "0", p, "simulation disarms after repeat failures")

	st, pending := dispatch(t, h, "FP", "")
	require.Equal(t, "00", st)
	assert.Equal(t, "-1", pending)

	st, counts = dispatch(t, h, "FC", "-1")
	require.Equal(t, "00", st)
	assert.Equal(t, "2 0", counts, "prior failure counts are reported")

	dispatch(t, h, "MF", ptr)
	dispatch(t, h, "MF", p)

	st, _ = dispatch(t, h, "FI", "0")
	require.Equal(t, "00", st)

	st, _ = dispatch(t, h, "FI", "0")
	assert.Equal(t, "07", st, "second uninstall is a protocol error")
}

func TestFaultPendingCountsDown(t *testing.T) {
	h := newTestHarness(t)

	dispatch(t, h, "FI", "1")
	dispatch(t, h, "FC", "3 1")

	for want := 3; want > 0; want-- {
		_, pending := dispatch(t, h, "FP", "")
		assert.Equal(t, strconv.Itoa(want), pending)

		_, ptr := dispatch(t, h, "MA", "8")
		dispatch(t, h, "MF", ptr)
	}

	_, pending := dispatch(t, h, "FP", "")
	assert.Equal(t, "0", pending, "the very next allocation fails")
}

func TestStatusCounters(t *testing.T) {
	h := newTestHarness(t)

	_, ptr := dispatch(t, h, "MA", "100")

	st, used := dispatch(t, h, "MU", "")
	require.Equal(t, "00", st)
	n, err := strconv.Atoi(used)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 100)

	st, count := dispatch(t, h, "MC", "")
	require.Equal(t, "00", st)
	assert.Equal(t, "1", count)

	dispatch(t, h, "MF", ptr)

	st, used = dispatch(t, h, "MU", "")
	require.Equal(t, "00", st)
	assert.Equal(t, "0", used)

	st, high := dispatch(t, h, "MW", "1")
	require.Equal(t, "00", st)
	n, err = strconv.Atoi(high)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 100)

	_, high = dispatch(t, h, "MW", "")
	assert.Equal(t, "0", high, "reset lowered the mark to current usage")
}

func TestMemstatusFreezesCounters(t *testing.T) {
	h := newTestHarness(t)

	st, _ := dispatch(t, h, "MO", "0")
	require.Equal(t, "00", st)

	_, ptr := dispatch(t, h, "MA", "64")

	_, count := dispatch(t, h, "MC", "")
	assert.Equal(t, "0", count)

	dispatch(t, h, "MO", "1")
	dispatch(t, h, "MF", ptr)
}

func TestRoundup(t *testing.T) {
	h := newTestHarness(t)

	st, size := dispatch(t, h, "RU", "13")
	require.Equal(t, "00", st)
	assert.Equal(t, "16", size)
}

func TestPageCacheCommands(t *testing.T) {
	h := newTestHarness(t)

	st, _ := dispatch(t, h, "PS", "")
	assert.Equal(t, "15", st, "stats before install fail")

	st, _ = dispatch(t, h, "PC", "256 4")
	require.Equal(t, "00", st)

	st, size := dispatch(t, h, "RU", "100")
	require.Equal(t, "00", st)
	assert.Equal(t, "128", size, "roundup follows the pool buckets")

	_, ptr := dispatch(t, h, "MA", "100")
	require.NotEqual(t, "0", ptr)
	dispatch(t, h, "MF", ptr)

	st, stats := dispatch(t, h, "PS", "")
	require.Equal(t, "00", st)
	assert.Contains(t, stats, "requests=1")
	assert.Contains(t, stats, "oversized=0")
}

func TestArgumentValidation(t *testing.T) {
	h := newTestHarness(t)

	cases := []struct {
		name    string
		cmd     string
		payload string
		status  string
	}{
		{"malloc no args", "MA", "", "01"},
		{"malloc extra args", "MA", "1 2", "01"},
		{"malloc non-numeric", "MA", "abc", "02"},
		{"free bad pointer", "MF", "zz", "03"},
		{"memget bad pointer", "MG", "nope 4", "03"},
		{"memset zero size", "MS", "0 0 ab", "04"},
		{"memset bad hex", "MS", "0 4 xyz", "15"},
		{"install non-boolean", "FI", "maybe", "02"},
		{"page cache zero size", "PC", "0 4", "04"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, _ := dispatch(t, h, tc.cmd, tc.payload)
			assert.Equal(t, tc.status, st)
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newTestHarness(t)

	resp := string(h.Dispatch("QQ", nil))
	assert.Equal(t, "QR68", resp)
}

type fakeRunner struct {
	lastName  string
	lastInput string
}

func (f *fakeRunner) Execute(name string, input []byte) ([]byte, error) {
	if name != "echo" {
		return nil, ErrUnknownScenario
	}
	f.lastName = name
	f.lastInput = string(input)

	return []byte("ok " + string(input)), nil
}

func (f *fakeRunner) Names() []string { return []string{"echo"} }

func TestRunScenario(t *testing.T) {
	h := newTestHarness(t)

	st, _ := dispatch(t, h, "XS", "echo hello")
	assert.Equal(t, "09", st, "no runner loaded")

	runner := &fakeRunner{}
	h.SetScenarioRunner(runner)

	st, out := dispatch(t, h, "XS", "echo hello world")
	require.Equal(t, "00", st)
	assert.Equal(t, "ok hello world", out)
	assert.Equal(t, "hello world", runner.lastInput)

	st, _ = dispatch(t, h, "XS", "missing")
	assert.Equal(t, "09", st)
}
