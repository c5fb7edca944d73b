// Package matrix implements the fixed-point dense kernels that the network
// and accumulator packages are built from: forward and backward
// propagation across a single dense layer, the gradient accumulation step,
// and the incremental accumulator update primitives.
//
// Every kernel operates on flat []weight.Weight slices rather than a
// matrix type: layer buffers are already contiguous inside the network's
// single weight buffer, and introducing a matrix abstraction here would
// just be a second indirection over the same memory.
package matrix

import "nnuecore/internal/weight"

// Hadamard multiplies dst by src element-wise in place. Both slices must
// have the same length; callers are expected to pass matching lengths
// since this is always used layer-size-to-layer-size internally.
func Hadamard(dst, src []weight.Weight) {
	for i := range dst {
		dst[i] = weight.Mul(dst[i], src[i])
	}
}

// ForwardProp propagates src (length srcSize) through weights (a
// srcSize*dstSize block of connection weights followed by dstSize biases)
// into dst (length dstSize). dst is overwritten, not accumulated into.
//
// The zero and unit fast paths below skip the fixed-point multiply for
// inputs of exactly 0 or exactly One (which ReLU and ClippedReLU produce
// at their boundaries). They give the same result as the general path,
// since multiplying by 0 or One is exact in the fixed-point domain.
func ForwardProp(dst, src, weights []weight.Weight, dstSize, srcSize int) {
	copy(dst, weights[srcSize*dstSize:srcSize*dstSize+dstSize])

	for i := 0; i < srcSize; i++ {
		v := src[i]
		if v == 0 {
			continue
		}
		row := weights[i*dstSize : i*dstSize+dstSize]
		if v == weight.One {
			for k := 0; k < dstSize; k++ {
				dst[k] += row[k]
			}
		} else {
			for k := 0; k < dstSize; k++ {
				dst[k] += weight.Mul(v, row[k])
			}
		}
	}
}

// BackProp propagates an error vector src (length srcSize) backward through
// weights (a dstSize*srcSize block in the same layout ForwardProp reads:
// row i holds the weights from upstream neuron i to every downstream
// neuron) into dst (length dstSize). dst is zeroed first.
func BackProp(dst, src, weights []weight.Weight, dstSize, srcSize int) {
	for i := range dst[:dstSize] {
		dst[i] = 0
	}
	for i := 0; i < dstSize; i++ {
		row := weights[i*srcSize : i*srcSize+srcSize]
		var acc weight.Weight
		for k := 0; k < srcSize; k++ {
			acc += weight.Mul(src[k], row[k])
		}
		dst[i] += acc
	}
}

// GradUpdate accumulates the outer product of src (the upstream
// activation, length inputSize) and error (the downstream delta, length
// outputSize) into gradient, in the same inputSize*outputSize-plus-biases
// layout as a layer's weight block. Gradient is accumulated into, never
// reset — callers zero it once per batch, not once per sample.
func GradUpdate(gradient, delta, src []weight.Weight, inputSize, outputSize int) {
	for i := 0; i < inputSize; i++ {
		row := gradient[i*outputSize : i*outputSize+outputSize]
		for o := 0; o < outputSize; o++ {
			row[o] += weight.Mul(delta[o], src[i])
		}
	}
	biasRow := gradient[inputSize*outputSize : inputSize*outputSize+outputSize]
	for o := 0; o < outputSize; o++ {
		biasRow[o] += delta[o]
	}
}

// Increment adds weights (one row of the first layer's weight block,
// selected by feature index) into accumulator in place. Used by the
// accumulator façade when a feature turns on.
func Increment(accumulator, weights []weight.Weight) {
	for i := range accumulator {
		accumulator[i] += weights[i]
	}
}

// Decrement subtracts weights from accumulator in place. Used by the
// accumulator façade when a feature turns off.
func Decrement(accumulator, weights []weight.Weight) {
	for i := range accumulator {
		accumulator[i] -= weights[i]
	}
}
