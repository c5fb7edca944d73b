package dataset_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nnuecore/internal/dataset"
	"nnuecore/internal/weight"
)

func packWeights(values ...weight.Weight) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func TestAddEntryWithoutDecoderFixesSize(t *testing.T) {
	d := dataset.New(2, 1)
	d.AddEntry(packWeights(1, 2), packWeights(3))
	require.Len(t, d.Entries, 1)
	assert.Len(t, d.Entries[0].InData, 8)
	assert.Len(t, d.Entries[0].OutData, 4)
}

func TestCapacityGrowsQuadratically(t *testing.T) {
	d := dataset.New(1, 1)
	assert.Equal(t, 0, d.Capacity())
	d.AddEntry(packWeights(0), packWeights(0))
	assert.Equal(t, 16, d.Capacity())
	for i := 0; i < 16; i++ {
		d.AddEntry(packWeights(0), packWeights(0))
	}
	assert.Equal(t, 24, d.Capacity()) // 16 + floor(sqrt(16))*2
}

func TestPushEntriesSpillRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spill.bin")

	d := dataset.New(2, 1)
	d.AddEntry(packWeights(1, 2), packWeights(3))
	d.AddEntry(packWeights(4, 5), packWeights(6))

	require.NoError(t, d.PushEntries(path))
	assert.Empty(t, d.Entries)
	assert.Equal(t, 0, d.Capacity())

	info, err := os.Stat(path)
	require.NoError(t, err)
	// Each record: 16-byte length prefix + 8 bytes in + 4 bytes out.
	assert.Equal(t, int64(2*(16+8+4)), info.Size())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	first, err := dataset.ReadRecord(f)
	require.NoError(t, err)
	assert.Equal(t, packWeights(1, 2), first.InData)
	assert.Equal(t, packWeights(3), first.OutData)

	second, err := dataset.ReadRecord(f)
	require.NoError(t, err)
	assert.Equal(t, packWeights(4, 5), second.InData)
	assert.Equal(t, packWeights(6), second.OutData)
}

func TestPushEntriesAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spill.bin")

	d := dataset.New(1, 1)
	d.AddEntry(packWeights(1), packWeights(2))
	require.NoError(t, d.PushEntries(path))

	d.AddEntry(packWeights(3), packWeights(4))
	require.NoError(t, d.PushEntries(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	first, err := dataset.ReadRecord(f)
	require.NoError(t, err)
	assert.Equal(t, packWeights(1), first.InData)

	second, err := dataset.ReadRecord(f)
	require.NoError(t, err)
	assert.Equal(t, packWeights(3), second.InData)
}

func TestDecodeWithoutDecoderReinterpretsLittleEndian(t *testing.T) {
	d := dataset.New(1, 1)
	d.AddEntry(packWeights(weight.Denormalize(2.0)), packWeights(weight.Denormalize(3.0)))

	in := make([]weight.Weight, 1)
	out := make([]weight.Weight, 1)
	d.Decode(d.Entries[0], in, out)
	assert.InDelta(t, 2.0, weight.Normalize(in[0]), 1e-6)
	assert.InDelta(t, 3.0, weight.Normalize(out[0]), 1e-6)
}

func TestLoadCSV(t *testing.T) {
	d := dataset.New(2, 1)
	csv := "0.0,0.0,0.0\n1.0,0.0,1.0\n0.0,1.0,1.0\n1.0,1.0,0.0\n"
	require.NoError(t, d.LoadCSV(bytes.NewReader([]byte(csv))))
	require.Len(t, d.Entries, 4)

	in := make([]weight.Weight, 2)
	out := make([]weight.Weight, 1)
	d.Decode(d.Entries[1], in, out)
	assert.InDelta(t, 1.0, weight.Normalize(in[0]), 1e-6)
	assert.InDelta(t, 0.0, weight.Normalize(in[1]), 1e-6)
	assert.InDelta(t, 1.0, weight.Normalize(out[0]), 1e-6)
}
