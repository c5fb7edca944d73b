package weight_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nnuecore/internal/weight"
)

func TestMulIdentity(t *testing.T) {
	// a * One == a for any representable a, since One is the fixed-point 1.0.
	for _, a := range []weight.Weight{0, weight.One, -weight.One, 12345, -98765} {
		assert.Equal(t, a, weight.Mul(a, weight.One))
	}
}

func TestMulZero(t *testing.T) {
	assert.Equal(t, weight.Weight(0), weight.Mul(weight.One, 0))
	assert.Equal(t, weight.Weight(0), weight.Mul(0, weight.One))
}

func TestMulHalf(t *testing.T) {
	half := weight.One / 2
	got := weight.Mul(half, weight.Denormalize(4.0))
	assert.InDelta(t, 2.0, weight.Normalize(got), 1e-6)
}

func TestRateBounds(t *testing.T) {
	min, max := weight.Weight(0), weight.One
	assert.Equal(t, min, weight.Rate(min, max, 0))
	got := weight.Rate(min, max, 65535)
	assert.Less(t, got, max)
	assert.Greater(t, got, weight.Weight(0))
}

func TestNormalizeRoundTrip(t *testing.T) {
	w := weight.Denormalize(3.5)
	assert.InDelta(t, 3.5, weight.Normalize(w), 1e-6)
}

func TestReadWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := weight.Weight(-123456)
	require.NoError(t, weight.WriteTo(&buf, want))
	got, err := weight.ReadFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadFromShortBuffer(t *testing.T) {
	_, err := weight.ReadFrom(bytes.NewReader([]byte{1, 2}))
	assert.Error(t, err)
}
