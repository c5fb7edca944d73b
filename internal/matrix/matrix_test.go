package matrix_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nnuecore/internal/matrix"
	"nnuecore/internal/weight"
)

func TestForwardPropZeroInputIsBias(t *testing.T) {
	// weights: 2 inputs -> 3 outputs, followed by 3 biases.
	w := []weight.Weight{
		1, 2, 3,
		4, 5, 6,
		10, 20, 30,
	}
	src := []weight.Weight{0, 0}
	dst := make([]weight.Weight, 3)
	matrix.ForwardProp(dst, src, w, 3, 2)
	assert.Equal(t, []weight.Weight{10, 20, 30}, dst)
}

func TestForwardPropUnitInputIsWeightRow(t *testing.T) {
	w := []weight.Weight{
		1, 2, 3,
		4, 5, 6,
		10, 20, 30,
	}
	src := []weight.Weight{weight.One, 0}
	dst := make([]weight.Weight, 3)
	matrix.ForwardProp(dst, src, w, 3, 2)
	assert.Equal(t, []weight.Weight{11, 22, 33}, dst)
}

func TestBackPropZeroedBeforeAccumulate(t *testing.T) {
	// 2 upstream neurons (dstSize=2), 1 downstream (srcSize=1), weights
	// laid out dstSize*srcSize.
	w := []weight.Weight{weight.One, weight.One}
	src := []weight.Weight{weight.One}
	dst := []weight.Weight{999, 999}
	matrix.BackProp(dst, src, w, 2, 1)
	assert.Equal(t, []weight.Weight{weight.One, weight.One}, dst)
}

func TestGradUpdateAccumulatesOuterProduct(t *testing.T) {
	gradient := make([]weight.Weight, 2*1+1) // inputSize=2, outputSize=1
	src := []weight.Weight{weight.One, 2 * weight.One}
	delta := []weight.Weight{weight.One}
	matrix.GradUpdate(gradient, delta, src, 2, 1)
	assert.Equal(t, weight.One, gradient[0])
	assert.Equal(t, 2*weight.One, gradient[1])
	assert.Equal(t, weight.One, gradient[2]) // bias gradient
}

func TestIncrementDecrementRoundTrip(t *testing.T) {
	acc := []weight.Weight{1, 2, 3}
	w := []weight.Weight{10, 20, 30}
	matrix.Increment(acc, w)
	assert.Equal(t, []weight.Weight{11, 22, 33}, acc)
	matrix.Decrement(acc, w)
	assert.Equal(t, []weight.Weight{1, 2, 3}, acc)
}

func TestHadamard(t *testing.T) {
	dst := []weight.Weight{weight.One, 2 * weight.One}
	src := []weight.Weight{weight.One / 2, weight.One}
	matrix.Hadamard(dst, src)
	assert.Equal(t, weight.One/2, dst[0])
	assert.Equal(t, 2*weight.One, dst[1])
}
