// Package dataset implements the in-memory training-sample buffer and its
// binary spill format: samples accumulate in memory up to a quadratically
// growing capacity, then are appended ("pushed") to a spill file and the
// in-memory buffer is cleared, so a dataset far larger than memory can be
// streamed through training one spill-file pass at a time.
package dataset

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"nnuecore/internal/weight"
)

// Entry is a single training sample before decoding: raw input and output
// byte payloads, interpreted by a Decoder when the caller doesn't simply
// want a flat buffer of Weight values.
type Entry struct {
	InData  []byte
	OutData []byte
}

// Decoder turns an Entry's raw bytes into fixed-point input/output
// buffers. A Dataset with no decoder treats InData/OutData as already
// holding little-endian Weight values, one per input/output feature.
type Decoder func(entry Entry, in, out []weight.Weight)

// Dataset accumulates training entries in memory and spills them to a
// binary file once flushed via PushEntries.
type Dataset struct {
	InputSize  int
	OutputSize int
	Entries    []Entry
	decode     Decoder
	capacity   int
}

// New creates an empty dataset for samples with inputSize input features
// and outputSize output features.
func New(inputSize, outputSize int) *Dataset {
	return &Dataset{InputSize: inputSize, OutputSize: outputSize}
}

// SetDecoder installs the decoding function used to interpret raw entry
// bytes. Without one, AddEntry expects inData/outData to already be
// little-endian Weight buffers sized exactly for InputSize/OutputSize.
func (d *Dataset) SetDecoder(decode Decoder) {
	d.decode = decode
}

// nextCapacity implements the dataset's quadratic growth policy: doubling
// would work just as well, but this matches the growth curve the training
// core has always used, and isn't worth changing without a reason to.
func nextCapacity(cur int) int {
	if cur == 0 {
		return 16
	}
	return cur + int(math.Sqrt(float64(cur)))*2
}

// AddEntry appends a new sample to the in-memory buffer. If no decoder is
// installed, inData and outData must already be sized
// InputSize*4/OutputSize*4 bytes (one little-endian Weight per feature);
// with a decoder installed, inSize/outSize are taken from the provided
// slices' own lengths.
func (d *Dataset) AddEntry(inData, outData []byte) {
	d.grow()

	if d.decode == nil {
		inSize := 4 * d.InputSize
		outSize := 4 * d.OutputSize
		in := make([]byte, inSize)
		out := make([]byte, outSize)
		copy(in, inData)
		copy(out, outData)
		d.Entries = append(d.Entries, Entry{InData: in, OutData: out})
		return
	}

	in := append([]byte(nil), inData...)
	out := append([]byte(nil), outData...)
	d.Entries = append(d.Entries, Entry{InData: in, OutData: out})
}

// grow reserves capacity ahead of the next append, following the same
// quadratic growth curve as the original streaming core instead of
// relying on the slice runtime's own (undocumented, doubling-ish) growth
// heuristic.
func (d *Dataset) grow() {
	if len(d.Entries) < d.capacity {
		return
	}
	d.capacity = nextCapacity(d.capacity)
	grown := make([]Entry, len(d.Entries), d.capacity)
	copy(grown, d.Entries)
	d.Entries = grown
}

// Capacity returns the dataset's current reserved entry capacity, the
// quantity nextCapacity operates on.
func (d *Dataset) Capacity() int {
	return d.capacity
}

// Decode resolves an Entry into fixed-point input/output buffers, using
// the installed Decoder, or a direct little-endian reinterpretation of the
// bytes if none was installed.
func (d *Dataset) Decode(entry Entry, in, out []weight.Weight) {
	if d.decode != nil {
		d.decode(entry, in, out)
		return
	}
	for i := range in {
		in[i] = weight.Weight(binary.LittleEndian.Uint32(entry.InData[i*4:]))
	}
	for i := range out {
		out[i] = weight.Weight(binary.LittleEndian.Uint32(entry.OutData[i*4:]))
	}
}

// Reset clears the in-memory entry buffer without touching any spill
// file. Capacity growth starts over from scratch on the next AddEntry.
func (d *Dataset) Reset() {
	d.Entries = nil
	d.capacity = 0
}

// PushEntries appends every in-memory entry to the spill file at path (in
// append mode, creating it if necessary) and clears the in-memory buffer.
// On error, all of d's entries are still dropped, matching the original
// streaming core's one-shot drain semantics; records written before the
// failing one stay in the file.
//
// Each record is written as: 8-byte little-endian input length, 8-byte
// little-endian output length, input bytes, output bytes. The original C
// implementation wrote platform-native size_t lengths, which aren't
// portable across machines with different size_t widths; this
// implementation fixes the length prefix at 8 bytes so spill files are
// portable.
func (d *Dataset) PushEntries(path string) error {
	defer func() {
		d.Entries = nil
		d.capacity = 0
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("dataset: opening spill file: %w", err)
	}
	defer f.Close()

	for i, entry := range d.Entries {
		if err := writeRecord(f, entry); err != nil {
			return fmt.Errorf("dataset: writing entry %d: %w", i, err)
		}
	}
	return nil
}

func writeRecord(w io.Writer, entry Entry) error {
	var lengths [16]byte
	binary.LittleEndian.PutUint64(lengths[0:8], uint64(len(entry.InData)))
	binary.LittleEndian.PutUint64(lengths[8:16], uint64(len(entry.OutData)))
	if _, err := w.Write(lengths[:]); err != nil {
		return err
	}
	if _, err := w.Write(entry.InData); err != nil {
		return err
	}
	_, err := w.Write(entry.OutData)
	return err
}

// ReadRecord reads a single spilled entry from r, in the format
// PushEntries writes. It returns io.EOF (unwrapped) when r is exhausted
// before a new record begins.
func ReadRecord(r io.Reader) (Entry, error) {
	var lengths [16]byte
	if _, err := io.ReadFull(r, lengths[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Entry{}, fmt.Errorf("dataset: truncated record header: %w", err)
		}
		return Entry{}, err
	}
	inSize := binary.LittleEndian.Uint64(lengths[0:8])
	outSize := binary.LittleEndian.Uint64(lengths[8:16])

	in := make([]byte, inSize)
	if _, err := io.ReadFull(r, in); err != nil {
		return Entry{}, fmt.Errorf("dataset: reading input payload: %w", err)
	}
	out := make([]byte, outSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return Entry{}, fmt.Errorf("dataset: reading output payload: %w", err)
	}
	return Entry{InData: in, OutData: out}, nil
}

// LoadCSV reads rows of inputSize+outputSize whitespace-free numeric
// columns from r (inputs first, then outputs) and adds one dataset entry
// per row. It supplements the original streaming core, which had no
// notion of a tabular ingestion format of its own.
func (d *Dataset) LoadCSV(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = d.InputSize + d.OutputSize

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dataset: reading csv row: %w", err)
		}

		inBuf := make([]weight.Weight, d.InputSize)
		outBuf := make([]weight.Weight, d.OutputSize)
		for i := 0; i < d.InputSize; i++ {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return fmt.Errorf("dataset: parsing input column %d: %w", i, err)
			}
			inBuf[i] = weight.Denormalize(v)
		}
		for i := 0; i < d.OutputSize; i++ {
			v, err := strconv.ParseFloat(record[d.InputSize+i], 64)
			if err != nil {
				return fmt.Errorf("dataset: parsing output column %d: %w", i, err)
			}
			outBuf[i] = weight.Denormalize(v)
		}

		inBytes := make([]byte, len(inBuf)*4)
		for i, v := range inBuf {
			binary.LittleEndian.PutUint32(inBytes[i*4:], uint32(v))
		}
		outBytes := make([]byte, len(outBuf)*4)
		for i, v := range outBuf {
			binary.LittleEndian.PutUint32(outBytes[i*4:], uint32(v))
		}
		d.AddEntry(inBytes, outBytes)
	}
}
