package network_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nnuecore/internal/activation"
	"nnuecore/internal/network"
	"nnuecore/internal/weight"
)

func TestNewRejectsZeroSizedLayer(t *testing.T) {
	_, err := network.New([]int{2, 0, 1}, []activation.ID{activation.Identity, activation.Identity})
	assert.ErrorIs(t, err, network.ErrZeroSizedLayer)
}

func TestNewRejectsUnavailableActivation(t *testing.T) {
	_, err := network.New([]int{2, 3}, []activation.ID{activation.Tanh})
	assert.ErrorIs(t, err, activation.ErrActivationUnavailable)
}

func TestWeightCountMatchesLayout(t *testing.T) {
	nn, err := network.New([]int{2, 3, 1}, []activation.ID{activation.ReLU, activation.Identity})
	require.NoError(t, err)
	// layer0: (2+1)*3 = 9, layer1: (3+1)*1 = 4
	assert.Equal(t, 13, nn.WeightCount())
}

func TestComputeIdentityBiasOnly(t *testing.T) {
	// A 1-layer Identity network with zero weights and a known bias
	// should return exactly the bias, independent of input.
	nn, err := network.New([]int{736, 1}, []activation.ID{activation.Identity})
	require.NoError(t, err)
	nn.Weights[nn.WeightCount()-1] = weight.Denormalize(4.25)

	inputs := make([]weight.Weight, 736)
	outputs := make([]weight.Weight, 1)
	nn.Compute(inputs, outputs)
	assert.InDelta(t, 4.25, weight.Normalize(outputs[0]), 1e-6)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	nn, err := network.New([]int{2, 3, 1}, []activation.ID{activation.ReLU, activation.Identity})
	require.NoError(t, err)
	nn.InitAllWeights(weight.Denormalize(-1), weight.Denormalize(1), 42)

	var buf bytes.Buffer
	require.NoError(t, nn.Save(&buf))

	loaded, err := network.Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, nn.Weights, loaded.Weights)
	assert.Equal(t, nn.LayerSizes, loaded.LayerSizes)
	assert.Equal(t, nn.ActivationIDs, loaded.ActivationIDs)
}

func TestSaveLoadSaveByteIdentical(t *testing.T) {
	nn, err := network.New([]int{2, 3, 1}, []activation.ID{activation.ReLU, activation.Identity})
	require.NoError(t, err)
	nn.InitAllWeights(weight.Denormalize(-1), weight.Denormalize(1), 7)

	var first bytes.Buffer
	require.NoError(t, nn.Save(&first))

	loaded, err := network.Load(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)

	var second bytes.Buffer
	require.NoError(t, loaded.Save(&second))

	assert.True(t, bytes.Equal(first.Bytes(), second.Bytes()))
}

func TestLoadAcceptsTrailingData(t *testing.T) {
	nn, err := network.New([]int{1, 1}, []activation.ID{activation.Identity})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, nn.Save(&buf))
	buf.WriteByte(0xAB)

	loaded, err := network.Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, nn.Weights, loaded.Weights)
}

func TestInitLayerWeightsDeterministic(t *testing.T) {
	a, err := network.New([]int{2, 2}, []activation.ID{activation.Identity})
	require.NoError(t, err)
	b, err := network.New([]int{2, 2}, []activation.ID{activation.Identity})
	require.NoError(t, err)

	a.InitAllWeights(weight.Denormalize(-1), weight.Denormalize(1), 99)
	b.InitAllWeights(weight.Denormalize(-1), weight.Denormalize(1), 99)

	assert.Equal(t, a.Weights, b.Weights)
}

func TestSetLayerActivationRejectsUnavailable(t *testing.T) {
	nn, err := network.New([]int{2, 2}, []activation.ID{activation.Identity})
	require.NoError(t, err)
	err = nn.SetLayerActivation(0, activation.Mish)
	assert.ErrorIs(t, err, activation.ErrActivationUnavailable)
}
