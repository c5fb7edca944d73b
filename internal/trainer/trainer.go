// Package trainer implements multi-threaded (goroutine-based) batch
// training of a Network against a Dataset: per-batch worker dispatch,
// backpropagation, gradient reduction, and an Adam-like optimizer step,
// with periodic checkpointing and progress callbacks.
package trainer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sync"

	"gonum.org/v1/gonum/mat"

	"nnuecore/internal/dataset"
	"nnuecore/internal/matrix"
	"nnuecore/internal/network"
	"nnuecore/internal/weight"
)

// Debug is a bitset selecting which diagnostics Train prints.
type Debug uint32

const (
	ShowConfig Debug = 1 << iota
	ShowEpoch
	ShowBatch
	ShowLoss
	ShowSaves
)

// ShowAll enables every diagnostic.
const ShowAll = ShowConfig | ShowEpoch | ShowBatch | ShowLoss | ShowSaves

// Params configures a training session.
type Params struct {
	Epochs       int
	LearningRate float64
	BatchSize    int
	Momentum     float64
	Velocity     float64
	Threads      int

	// SaveEvery, if non-zero, checkpoints the network every SaveEvery
	// epochs using NameFormat (a fmt verb taking the 1-based epoch
	// number, e.g. "checkpoint-%04d.bin").
	SaveEvery  int
	NameFormat string
}

// ProgressCallback is notified after every batch and every epoch. Both
// methods may be called from the goroutine running Train; implementations
// that need to hop onto another goroutine (e.g. a websocket broadcaster)
// must do their own synchronization.
type ProgressCallback interface {
	OnBatch(epoch, batch, batchCount int, nn *network.Network)
	OnEpoch(epoch, epochCount int, nn *network.Network, loss float64, lossValid bool)
}

// ErrInvalidParam is returned when a training parameter is non-finite or
// negative.
var ErrInvalidParam = errors.New("trainer: invalid parameter")

// ErrMissingNameFormat is returned when SaveEvery is set without a
// NameFormat to checkpoint to.
var ErrMissingNameFormat = errors.New("trainer: SaveEvery is set but NameFormat is empty")

func checkRange(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s is not finite (%g)", ErrInvalidParam, name, value)
	}
	if value < 0 {
		return fmt.Errorf("%w: %s is negative (%g)", ErrInvalidParam, name, value)
	}
	if value > 1 {
		log.Printf("trainer: warning: %s exceeds 1 (%g)", name, value)
	}
	return nil
}

// Train runs batched training of nn against d for Params.Epochs epochs. If
// spillPath is non-empty, entries are additionally streamed from that
// spill file (in the format produced by (*dataset.Dataset).PushEntries)
// once the in-memory dataset is exhausted for a batch. cb may be nil.
func Train(nn *network.Network, d *dataset.Dataset, spillPath string, p Params, debug Debug, cb ProgressCallback) error {
	if err := checkRange("learning rate", p.LearningRate); err != nil {
		return err
	}
	if err := checkRange("momentum", p.Momentum); err != nil {
		return err
	}
	if err := checkRange("velocity", p.Velocity); err != nil {
		return err
	}
	if p.SaveEvery != 0 && p.NameFormat == "" {
		return ErrMissingNameFormat
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 1
	}
	if p.Threads <= 0 {
		p.Threads = 1
	}

	var spill *os.File
	if spillPath != "" {
		f, err := os.Open(spillPath)
		if err != nil {
			return fmt.Errorf("trainer: opening spill file: %w", err)
		}
		spill = f
		defer spill.Close()
	}

	nnInputSize := nn.LayerSizes[0]
	nnOutputSize := nn.LayerSizes[nn.Layers]
	totalLayerSize := 0
	for _, s := range nn.LayerSizes {
		totalLayerSize += s
	}
	totalWeightSize := nn.WeightCount()
	maxLayerSize := nn.MaxLayerSize()

	workers := make([]*worker, p.Threads)
	for i := range workers {
		workers[i] = newWorker(maxLayerSize, totalLayerSize, totalWeightSize)
	}

	mGrad := mat.NewVecDense(totalWeightSize, nil)
	vGrad := mat.NewVecDense(totalWeightSize, nil)

	spillCount := 0
	if spill != nil {
		n, err := countSpillRecords(spill)
		if err != nil {
			return fmt.Errorf("trainer: scanning spill file: %w", err)
		}
		spillCount = n
		if _, err := spill.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("trainer: rewinding spill file: %w", err)
		}
	}
	datasetSize := len(d.Entries) + spillCount

	batchCount := 0
	if datasetSize > 0 {
		batchCount = (datasetSize-1)/p.BatchSize + 1
	}

	if debug&ShowConfig != 0 {
		log.Printf("training session: epochs=%d lr=%g batch=%d dataset=%d momentum=%g velocity=%g threads=%d",
			p.Epochs, p.LearningRate, p.BatchSize, datasetSize, p.Momentum, p.Velocity, p.Threads)
	}

	batchIn := make([]weight.Weight, p.BatchSize*nnInputSize)
	batchOut := make([]weight.Weight, p.BatchSize*nnOutputSize)

	for epoch := 0; epoch < p.Epochs; epoch++ {
		if spill != nil {
			if _, err := spill.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("trainer: rewinding spill file: %w", err)
			}
		}

		if debug&ShowEpoch != 0 {
			log.Printf("epoch %d/%d", epoch+1, p.Epochs)
		}

		for batchIdx := 0; batchIdx < batchCount; batchIdx++ {
			batchStart := batchIdx * p.BatchSize
			batchFill, err := fillBatch(d, spill, batchStart, p.BatchSize, nnInputSize, nnOutputSize, batchIn, batchOut)
			if err != nil {
				return err
			}
			if batchFill == 0 {
				continue
			}

			runBatch(workers, nn, batchIn, batchOut, batchFill, nnInputSize, nnOutputSize, totalLayerSize)
			applyOptimizerStep(nn, workers[0].gradient, mGrad, vGrad, batchFill, p.LearningRate, p.Momentum, p.Velocity)

			if cb != nil {
				cb.OnBatch(epoch, batchIdx, batchCount, nn)
			}
			if debug&ShowBatch != 0 {
				log.Printf("batch %d/%d", batchIdx+1, batchCount)
			}
		}

		loss, lossValid := 0.0, false
		if debug&ShowLoss != 0 {
			loss = computeLoss(nn, d, nnInputSize, nnOutputSize)
			lossValid = true
			log.Printf("current loss: %g", loss)
		}

		if cb != nil {
			cb.OnEpoch(epoch, p.Epochs, nn, loss, lossValid)
		}

		if p.SaveEvery != 0 && epoch%p.SaveEvery == p.SaveEvery-1 {
			filename := fmt.Sprintf(p.NameFormat, epoch+1)
			if debug&ShowSaves != 0 {
				log.Printf("saving network to %q", filename)
			}
			if err := nn.SaveFile(filename); err != nil {
				return fmt.Errorf("trainer: checkpointing: %w", err)
			}
		}
	}

	return nil
}

// countSpillRecords scans a spill file from its current position to EOF,
// counting records without decoding their payloads, then leaves the file
// positioned at EOF (callers are expected to rewind afterward).
func countSpillRecords(f *os.File) (int, error) {
	count := 0
	var lengths [16]byte
	for {
		if _, err := io.ReadFull(f, lengths[:]); err != nil {
			if err == io.EOF {
				return count, nil
			}
			return count, err
		}
		inSize := int64(leUint64(lengths[0:8]))
		outSize := int64(leUint64(lengths[8:16]))
		if _, err := f.Seek(inSize+outSize, io.SeekCurrent); err != nil {
			return count, err
		}
		count++
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// fillBatch fills batchIn/batchOut with up to batchSize decoded entries,
// starting with whatever is left in d's in-memory buffer at batchStart and
// falling back to the spill file for the remainder, returning the number
// of entries actually filled.
func fillBatch(d *dataset.Dataset, spill *os.File, batchStart, batchSize, nnInputSize, nnOutputSize int, batchIn, batchOut []weight.Weight) (int, error) {
	batchFill := 0

	if batchStart < len(d.Entries) {
		remaining := len(d.Entries) - batchStart
		if remaining > batchSize {
			remaining = batchSize
		}
		for i := 0; i < remaining; i++ {
			in := batchIn[i*nnInputSize : (i+1)*nnInputSize]
			out := batchOut[i*nnOutputSize : (i+1)*nnOutputSize]
			d.Decode(d.Entries[batchStart+i], in, out)
		}
		batchFill = remaining
	}

	if batchFill < batchSize && spill != nil {
		for batchFill < batchSize {
			entry, err := dataset.ReadRecord(spill)
			if err != nil {
				if err == io.EOF {
					break
				}
				return batchFill, fmt.Errorf("trainer: reading spill entry: %w", err)
			}
			in := batchIn[batchFill*nnInputSize : (batchFill+1)*nnInputSize]
			out := batchOut[batchFill*nnOutputSize : (batchFill+1)*nnOutputSize]
			d.Decode(entry, in, out)
			batchFill++
		}
	}

	return batchFill, nil
}

// runBatch partitions the first batchFill entries of batchIn/batchOut
// across workers, runs worker 0 inline and the rest on their own
// goroutines, and reduces every worker's gradient into workers[0].
func runBatch(workers []*worker, nn *network.Network, batchIn, batchOut []weight.Weight, batchFill, nnInputSize, nnOutputSize, totalLayerSize int) {
	threads := len(workers)
	starts := make([]int, threads+1)
	for t := 0; t <= threads; t++ {
		starts[t] = batchFill * t / threads
	}

	var wg sync.WaitGroup
	for t := 1; t < threads; t++ {
		start, end := starts[t], starts[t+1]
		wg.Add(1)
		go func(w *worker, start, end int) {
			defer wg.Done()
			w.run(nn, batchIn[start*nnInputSize:end*nnInputSize], batchOut[start*nnOutputSize:end*nnOutputSize], end-start, totalLayerSize)
		}(workers[t], start, end)
	}
	workers[0].run(nn, batchIn[starts[0]*nnInputSize:starts[1]*nnInputSize], batchOut[starts[0]*nnOutputSize:starts[1]*nnOutputSize], starts[1]-starts[0], totalLayerSize)
	wg.Wait()

	for t := 1; t < threads; t++ {
		for i, g := range workers[t].gradient {
			workers[0].gradient[i] += g
		}
	}
}

// applyOptimizerStep performs one Adam-like update, without bias
// correction, over every weight. The gradient normalization and moment
// updates deliberately stay in the same mixed fixed-point/real domains as
// the training core this package is a port of (see the design notes on
// gradient normalization) rather than normalizing consistently, since
// doing so would change the trajectory of training runs at a given seed.
func applyOptimizerStep(nn *network.Network, summedGradient []weight.Weight, mGrad, vGrad *mat.VecDense, batchFill int, lr, momentum, velocity float64) {
	for i, raw := range summedGradient {
		grad := raw / weight.Weight(batchFill)

		m := mGrad.AtVec(i)*momentum + float64(grad)*(1-momentum)
		v := vGrad.AtVec(i)*velocity + math.Pow(weight.Normalize(grad), 2)*(1-velocity)
		mGrad.SetVec(i, m)
		vGrad.SetVec(i, v)

		nn.Weights[i] -= weight.Weight(m * lr / math.Sqrt(v+1e-8))
	}
}

func computeLoss(nn *network.Network, d *dataset.Dataset, nnInputSize, nnOutputSize int) float64 {
	if len(d.Entries) == 0 {
		return 0
	}
	in := make([]weight.Weight, nnInputSize)
	out := make([]weight.Weight, nnOutputSize)
	predicted := make([]weight.Weight, nnOutputSize)

	total := 0.0
	for _, entry := range d.Entries {
		d.Decode(entry, in, out)
		nn.Compute(in, predicted)
		for o := 0; o < nnOutputSize; o++ {
			diff := weight.Normalize(predicted[o] - out[o])
			total += diff * diff
		}
	}
	return total / float64(len(d.Entries))
}

// worker holds the scratch buffers a single batch-processing goroutine
// needs, reused across every entry and every batch it is assigned.
type worker struct {
	entryInput []weight.Weight
	cpuBuffer  []weight.Weight
	nValues    []weight.Weight
	errorBuf   []weight.Weight
	gradient   []weight.Weight
}

func newWorker(maxLayerSize, totalLayerSize, totalWeightSize int) *worker {
	return &worker{
		entryInput: make([]weight.Weight, maxLayerSize),
		cpuBuffer:  make([]weight.Weight, maxLayerSize+1),
		nValues:    make([]weight.Weight, totalLayerSize),
		errorBuf:   make([]weight.Weight, totalLayerSize),
		gradient:   make([]weight.Weight, totalWeightSize),
	}
}

// run processes entryCount samples from inputArray/outputArray,
// accumulating their gradient contribution into w.gradient (which is
// zeroed first — callers must reduce gradients across workers
// themselves, once per batch, not accumulate across batches).
func (w *worker) run(nn *network.Network, inputArray, outputArray []weight.Weight, entryCount, totalLayerSize int) {
	nnInputSize := nn.LayerSizes[0]
	nnOutputSize := nn.LayerSizes[nn.Layers]

	for i := range w.gradient {
		w.gradient[i] = 0
	}

	for e := 0; e < entryCount; e++ {
		curIn := inputArray[e*nnInputSize : (e+1)*nnInputSize]
		curOut := outputArray[e*nnOutputSize : (e+1)*nnOutputSize]

		copy(w.entryInput, curIn)
		copy(w.nValues[:nnInputSize], curIn)

		nOffset := nnInputSize
		for l := 0; l < nn.Layers; l++ {
			inputSize := nn.LayerSizes[l]
			outputSize := nn.LayerSizes[l+1]
			layerWeights := nn.Weights[nn.LayerOffsets[l]:]

			matrix.ForwardProp(w.cpuBuffer, w.entryInput, layerWeights, outputSize, inputSize)
			copy(w.nValues[nOffset:nOffset+outputSize], w.cpuBuffer[:outputSize])
			nOffset += outputSize

			nn.ActivationPair(l).Forward(w.cpuBuffer[:outputSize], w.entryInput[:outputSize])
		}

		for o := 0; o < nnOutputSize; o++ {
			w.cpuBuffer[o] = w.entryInput[o] - curOut[o]
		}

		nOffset -= nnOutputSize
		nn.ActivationPair(nn.Layers-1).Derivative(w.nValues[nOffset:nOffset+nnOutputSize], w.errorBuf[nOffset:nOffset+nnOutputSize])
		matrix.Hadamard(w.errorBuf[nOffset:nOffset+nnOutputSize], w.cpuBuffer[:nnOutputSize])

		for l := nn.Layers - 1; l > 0; l-- {
			inputSize := nn.LayerSizes[l]
			outputSize := nn.LayerSizes[l+1]
			layerWeights := nn.Weights[nn.LayerOffsets[l]:]

			matrix.BackProp(w.cpuBuffer, w.errorBuf[nOffset:nOffset+outputSize], layerWeights, inputSize, outputSize)
			nOffset -= inputSize

			nn.ActivationPair(l - 1).Derivative(w.nValues[nOffset:nOffset+inputSize], w.errorBuf[nOffset:nOffset+inputSize])
			matrix.Hadamard(w.errorBuf[nOffset:nOffset+inputSize], w.cpuBuffer[:inputSize])
		}

		nOffset = totalLayerSize
		for l := nn.Layers; l > 0; l-- {
			inputSize := nn.LayerSizes[l-1]
			outputSize := nn.LayerSizes[l]
			gradient := w.gradient[nn.LayerOffsets[l-1]:]

			nOffset -= outputSize

			nn.ActivationPair(l - 1).Forward(w.nValues[nOffset-inputSize:nOffset], w.cpuBuffer[:inputSize])
			matrix.GradUpdate(gradient, w.errorBuf[nOffset:nOffset+outputSize], w.cpuBuffer[:inputSize], inputSize, outputSize)
		}
	}
}
