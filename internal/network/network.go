// Package network implements the dense feedforward network: contiguous
// weight storage, layer offsets, per-layer activation dispatch, and the
// binary persistence format described for network files.
package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/c2h5oh/datasize"

	"nnuecore/internal/activation"
	"nnuecore/internal/matrix"
	"nnuecore/internal/weight"
)

// ErrZeroSizedLayer is returned when a layer size of 0 is requested.
var ErrZeroSizedLayer = errors.New("network: layer is zero-sized")

// ErrTrailingData is logged-as-warning (not returned) when a network file
// has bytes left over after the last weight; kept as a sentinel so callers
// can match on it if Load is ever changed to surface it as an error.
var ErrTrailingData = errors.New("network: trailing data after final weight")

// Network is a dense feedforward network with Layers dense layers. Layer l
// maps LayerSizes[l] inputs to LayerSizes[l+1] outputs, so LayerSizes has
// Layers+1 entries. All weights for every layer are stored contiguously in
// Weights; LayerOffsets[l] is the index of the first weight belonging to
// layer l.
type Network struct {
	Layers        int
	LayerSizes    []int
	Weights       []weight.Weight
	LayerOffsets  []int
	ActivationIDs []activation.ID

	activations []activation.Pair

	cpuInput  []weight.Weight
	cpuOutput []weight.Weight
}

// New allocates a network with the given layer sizes (Layers+1 entries,
// input size first) and per-layer activation ids (Layers entries). All
// weights and biases start at zero. Every activation id must name an
// implemented activation (see the activation package).
func New(layerSizes []int, activationIDs []activation.ID) (*Network, error) {
	nn := &Network{}
	layers := len(layerSizes) - 1
	if layers <= 0 {
		return nil, fmt.Errorf("network: need at least one layer, got %d sizes", len(layerSizes))
	}
	if len(activationIDs) != layers {
		return nil, fmt.Errorf("network: expected %d activation ids, got %d", layers, len(activationIDs))
	}

	for i, size := range layerSizes {
		if size <= 0 {
			return nil, fmt.Errorf("%w: layer %d", ErrZeroSizedLayer, i)
		}
	}

	nn.Layers = layers
	nn.LayerSizes = append([]int(nil), layerSizes...)
	nn.ActivationIDs = append([]activation.ID(nil), activationIDs...)
	nn.LayerOffsets = make([]int, layers)
	nn.activations = make([]activation.Pair, layers)

	for l := 1; l < layers; l++ {
		nn.LayerOffsets[l] = nn.LayerOffsets[l-1] + (nn.LayerSizes[l-1]+1)*nn.LayerSizes[l]
	}

	for l, id := range activationIDs {
		pair, err := activation.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("network: layer %d: %w", l, err)
		}
		nn.activations[l] = pair
	}

	weightCount := nn.LayerOffsets[layers-1] + (nn.LayerSizes[layers-1]+1)*nn.LayerSizes[layers]
	nn.Weights = make([]weight.Weight, weightCount)

	nn.allocateBuffers()
	return nn, nil
}

func (nn *Network) allocateBuffers() {
	maxLayerSize := nn.LayerSizes[0]
	for _, s := range nn.LayerSizes[1:] {
		if s > maxLayerSize {
			maxLayerSize = s
		}
	}
	nn.cpuInput = make([]weight.Weight, maxLayerSize)
	nn.cpuOutput = make([]weight.Weight, maxLayerSize)
}

// WeightCount returns the total number of weights (including biases)
// stored across every layer.
func (nn *Network) WeightCount() int {
	return len(nn.Weights)
}

// ActivationPair returns the activation function pair dispatched for
// layer. Exposed for the accumulator package, which drives forward
// propagation one layer at a time from externally maintained state.
func (nn *Network) ActivationPair(layer int) activation.Pair {
	return nn.activations[layer]
}

// SetLayerActivation changes the activation function used by layer.
func (nn *Network) SetLayerActivation(layer int, id activation.ID) error {
	pair, err := activation.Lookup(id)
	if err != nil {
		return fmt.Errorf("network: layer %d: %w", layer, err)
	}
	nn.ActivationIDs[layer] = id
	nn.activations[layer] = pair
	return nil
}

// Reset zeroes every weight and bias in the network.
func (nn *Network) Reset() {
	for i := range nn.Weights {
		nn.Weights[i] = 0
	}
}

// Compute runs a forward pass over inputs (length LayerSizes[0]) and
// writes LayerSizes[Layers] outputs into outputs. It uses the network's
// own scratch buffers and is not safe to call concurrently on the same
// Network — use ConstCompute with caller-owned buffers for that.
func (nn *Network) Compute(inputs, outputs []weight.Weight) {
	copy(nn.cpuInput, inputs[:nn.LayerSizes[0]])

	in, out := nn.cpuInput, nn.cpuOutput
	for l := 0; l < nn.Layers; l++ {
		inputSize := nn.LayerSizes[l]
		outputSize := nn.LayerSizes[l+1]
		layerWeights := nn.Weights[nn.LayerOffsets[l]:]

		matrix.ForwardProp(out, in, layerWeights, outputSize, inputSize)
		nn.activations[l].Forward(out[:outputSize], in[:outputSize])
	}

	copy(outputs, in[:nn.LayerSizes[nn.Layers]])
}

// ConstCompute runs a forward pass without touching the network's own
// scratch buffers, so it may be called concurrently on the same *Network
// from multiple goroutines as long as each caller passes its own ioBuffer
// and cpuBuffer. Both buffers must be at least as large as the network's
// largest layer. The result is left in ioBuffer.
func (nn *Network) ConstCompute(ioBuffer, cpuBuffer []weight.Weight) {
	for l := 0; l < nn.Layers; l++ {
		inputSize := nn.LayerSizes[l]
		outputSize := nn.LayerSizes[l+1]
		layerWeights := nn.Weights[nn.LayerOffsets[l]:]

		matrix.ForwardProp(cpuBuffer, ioBuffer, layerWeights, outputSize, inputSize)
		nn.activations[l].Forward(cpuBuffer[:outputSize], ioBuffer[:outputSize])
	}
}

// MaxLayerSize returns the size of the network's largest layer, the
// minimum buffer size ConstCompute callers must provide.
func (nn *Network) MaxLayerSize() int {
	return len(nn.cpuInput)
}

// InitAllWeights randomizes every layer's weights using InitLayerWeights.
func (nn *Network) InitAllWeights(min, max weight.Weight, seed int32) {
	for l := 0; l < nn.Layers; l++ {
		nn.InitLayerWeights(min, max, seed, l)
	}
}

// InitLayerWeights randomizes the weights of a single layer using a
// xorshift64 generator seeded deterministically from seed and the layer
// index, so a given (seed, layer) pair always reproduces the same weights
// regardless of call order.
func (nn *Network) InitLayerWeights(min, max weight.Weight, seed int32, layer int) {
	state := uint64(uint32(seed)) + uint64(layer)<<32
	if state == 0 {
		state = 1
	}

	inputSize := nn.LayerSizes[layer] + 1
	outputSize := nn.LayerSizes[layer+1]
	offset := nn.LayerOffsets[layer]

	for n := 0; n < inputSize; n++ {
		for w := 0; w < outputSize; w++ {
			state ^= state << 13
			state ^= state >> 7
			state ^= state << 17

			index := uint16(state)
			nn.Weights[offset+outputSize*n+w] = weight.Rate(min, max, index)
		}
	}
}

// SizeReport returns a human-readable summary of the network's memory
// footprint, suitable for diagnostic logging.
func (nn *Network) SizeReport() string {
	weights := datasize.ByteSize(len(nn.Weights) * 4)
	scratch := datasize.ByteSize((len(nn.cpuInput) + len(nn.cpuOutput)) * 4)
	return fmt.Sprintf("weights=%s scratch=%s layers=%d", weights.HumanReadable(), scratch.HumanReadable(), nn.Layers)
}

// Load reads a network from the binary format described for network
// files: layer count, Layers+1 layer sizes, Layers activation ids, then
// every layer's weight block (in rows of output-size followed by a bias
// row), all as little-endian 32-bit integers.
func Load(r io.Reader) (*Network, error) {
	layers, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("network: reading layer count: %w", err)
	}

	layerSizes := make([]int, layers+1)
	for i := range layerSizes {
		v, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("network: reading layer %d size: %w", i, err)
		}
		if v == 0 {
			return nil, fmt.Errorf("%w: layer %d", ErrZeroSizedLayer, i)
		}
		layerSizes[i] = int(v)
	}

	activationIDs := make([]activation.ID, layers)
	for i := range activationIDs {
		v, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("network: reading layer %d activation id: %w", i, err)
		}
		activationIDs[i] = activation.ID(int32(v))
	}

	nn, err := New(layerSizes, activationIDs)
	if err != nil {
		return nil, err
	}

	for i := range nn.Weights {
		w, err := weight.ReadFrom(r)
		if err != nil {
			l, in, out := nn.weightLocation(i)
			return nil, fmt.Errorf("network: reading layer %d weight (%d, %d): %w", l, in, out, err)
		}
		nn.Weights[i] = w
	}

	var trailing [1]byte
	if n, _ := r.Read(trailing[:]); n == 1 {
		log.Printf("network: warning: %v (value %d)", ErrTrailingData, trailing[0])
	}

	return nn, nil
}

// LoadFile opens path and calls Load on its contents.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// weightLocation resolves a flat weight index back into (layer, input
// index, output index), used to produce precise I/O error messages.
func (nn *Network) weightLocation(i int) (layer, input, output int) {
	l := 1
	for l < nn.Layers && nn.LayerOffsets[l] <= i {
		l++
	}
	l--
	outputSize := nn.LayerSizes[l+1]
	rel := i - nn.LayerOffsets[l]
	return l, rel / outputSize, rel % outputSize
}

// Save writes the network to w in the same binary format Load reads.
func (nn *Network) Save(w io.Writer) error {
	if err := writeUint32(w, uint32(nn.Layers)); err != nil {
		return fmt.Errorf("network: writing layer count: %w", err)
	}
	for i, size := range nn.LayerSizes {
		if err := writeUint32(w, uint32(size)); err != nil {
			return fmt.Errorf("network: writing layer %d size: %w", i, err)
		}
	}
	for i, id := range nn.ActivationIDs {
		if err := writeUint32(w, uint32(int32(id))); err != nil {
			return fmt.Errorf("network: writing layer %d activation id: %w", i, err)
		}
	}
	for l := 0; l < nn.Layers; l++ {
		inputSize := nn.LayerSizes[l] + 1
		outputSize := nn.LayerSizes[l+1]
		offset := nn.LayerOffsets[l]
		for n := 0; n < inputSize; n++ {
			for o := 0; o < outputSize; o++ {
				if err := weight.WriteTo(w, nn.Weights[offset+outputSize*n+o]); err != nil {
					return fmt.Errorf("network: writing layer %d weight (%d, %d): %w", l, n, o, err)
				}
			}
		}
	}
	return nil
}

// SaveFile creates (or truncates) path and writes the network to it.
func (nn *Network) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	defer f.Close()
	return nn.Save(f)
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
