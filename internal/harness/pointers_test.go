package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointerTextRoundTrip(t *testing.T) {
	pm := NewPointerMap()

	p := make([]byte, 24)
	addr := pm.Register(p)
	require.NotZero(t, addr)
	assert.Zero(t, addr%8, "addresses are 8-aligned")

	text := FormatPointer(addr)
	assert.Len(t, text, 16)

	back, err := ParsePointer(text)
	require.NoError(t, err)
	assert.Equal(t, addr, back)

	got, ok := pm.Lookup(back)
	require.True(t, ok)
	assert.Equal(t, &p[0], &got[0], "lookup returns the registered block")
}

func TestNilBlockIsAddressZero(t *testing.T) {
	pm := NewPointerMap()

	assert.Equal(t, uint64(0), pm.Register(nil))
	assert.Equal(t, "0", FormatPointer(0))

	p, ok := pm.Lookup(0)
	require.True(t, ok)
	assert.Nil(t, p)

	p, ok = pm.Release(0)
	require.True(t, ok)
	assert.Nil(t, p)
	assert.Zero(t, pm.Outstanding())
}

func TestRegisteredAddressesDoNotCollide(t *testing.T) {
	pm := NewPointerMap()

	a := pm.Register(make([]byte, 1))
	b := pm.Register(make([]byte, 100))
	c := pm.Register(make([]byte, 1))

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.Equal(t, 3, pm.Outstanding())
}

func TestReleaseRemovesBlock(t *testing.T) {
	pm := NewPointerMap()

	addr := pm.Register(make([]byte, 8))

	_, ok := pm.Release(addr)
	require.True(t, ok)

	_, ok = pm.Lookup(addr)
	assert.False(t, ok)

	_, ok = pm.Release(addr)
	assert.False(t, ok, "double release fails")
}

func TestParsePointerRejectsBadText(t *testing.T) {
	cases := []string{
		"",
		"xyz",
		"DEADBEEF",
		"00112233445566778", // 17 digits
		"12 34",
	}
	for _, tc := range cases {
		_, err := ParsePointer(tc)
		assert.Error(t, err, "input %q", tc)
	}
}
