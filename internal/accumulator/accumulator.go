// Package accumulator implements the incremental first-layer update
// façade used for NNUE-style inference: instead of recomputing the first
// layer's forward pass from scratch on every input change, the caller
// maintains a pre-activation accumulator that is incremented/decremented
// as individual input features toggle on and off, then finished off with
// a single forward pass over the remaining layers.
package accumulator

import (
	"nnuecore/internal/matrix"
	"nnuecore/internal/network"
	"nnuecore/internal/weight"
)

// Reset sets acc to the network's first-layer biases — the accumulator
// state corresponding to every input feature being off. acc must have
// length at least nn.LayerSizes[1].
func Reset(nn *network.Network, acc []weight.Weight) {
	biasOffset := nn.LayerSizes[0] * nn.LayerSizes[1]
	copy(acc, nn.Weights[biasOffset:biasOffset+nn.LayerSizes[1]])
}

// Increment adds the first layer's weight row for input feature index into
// acc, reflecting that feature turning on.
func Increment(nn *network.Network, acc []weight.Weight, index int) {
	row := nn.Weights[index*nn.LayerSizes[1] : (index+1)*nn.LayerSizes[1]]
	matrix.Increment(acc[:nn.LayerSizes[1]], row)
}

// Decrement subtracts the first layer's weight row for input feature index
// from acc, reflecting that feature turning off.
func Decrement(nn *network.Network, acc []weight.Weight, index int) {
	row := nn.Weights[index*nn.LayerSizes[1] : (index+1)*nn.LayerSizes[1]]
	matrix.Decrement(acc[:nn.LayerSizes[1]], row)
}

// Compute finishes an accumulator-based inference: it applies the first
// layer's activation to acc (the maintained pre-activation state) and then
// forward-propagates through every remaining layer, same as
// (*network.Network).ConstCompute but starting from an externally
// maintained first layer instead of recomputing it.
//
// acc and outputBuffer are scratch; both must be at least as large as the
// largest of layers 1..Layers. The final network output ends up in
// outputBuffer.
func Compute(nn *network.Network, acc, outputBuffer []weight.Weight) {
	firstPair := nn.ActivationPair(0)
	firstPair.Forward(acc[:nn.LayerSizes[1]], outputBuffer[:nn.LayerSizes[1]])

	for l := 1; l < nn.Layers; l++ {
		inputSize := nn.LayerSizes[l]
		outputSize := nn.LayerSizes[l+1]
		layerWeights := nn.Weights[nn.LayerOffsets[l]:]

		matrix.ForwardProp(acc, outputBuffer, layerWeights, outputSize, inputSize)
		nn.ActivationPair(l).Forward(acc[:outputSize], outputBuffer[:outputSize])
	}
}
