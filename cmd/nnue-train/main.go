// Command nnue-train trains a dense feedforward network against a CSV
// dataset and writes the resulting binary network file, optionally
// checkpointing periodically and streaming live progress over WebSocket.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"nnuecore/internal/activation"
	"nnuecore/internal/dataset"
	"nnuecore/internal/network"
	"nnuecore/internal/progress"
	"nnuecore/internal/trainer"
	"nnuecore/internal/weight"
)

func main() {
	csvPath := flag.String("data", "", "path to training CSV (inputs then outputs per row)")
	spillPath := flag.String("spill", "", "optional spill file to stream additional entries from")
	outputPath := flag.String("output", "model.bin", "path to write the trained network")
	layerSpec := flag.String("layers", "", "comma-separated layer sizes, e.g. 768,256,1")
	activationSpec := flag.String("activations", "", "comma-separated activation names, one per layer transition")
	epochs := flag.Int("epochs", 100, "training epochs")
	lr := flag.Float64("lr", 0.01, "learning rate")
	batchSize := flag.Int("batch-size", 32, "mini-batch size")
	momentum := flag.Float64("momentum", 0.9, "Adam-style first moment decay")
	velocity := flag.Float64("velocity", 0.999, "Adam-style second moment decay")
	threads := flag.Int("threads", 1, "worker goroutines per batch")
	saveEvery := flag.Int("save-every", 0, "checkpoint cadence in epochs (0 disables)")
	checkpointFormat := flag.String("checkpoint-format", "checkpoint-%d.bin", "fmt verb for checkpoint filenames")
	seed := flag.Int("seed", 42, "weight initialization seed")
	listenAddr := flag.String("listen", "", "optional address to serve live progress over WebSocket, e.g. :8090")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "nnue-train: -data is required")
		os.Exit(1)
	}
	if *layerSpec == "" {
		fmt.Fprintln(os.Stderr, "nnue-train: -layers is required")
		os.Exit(1)
	}

	layers, err := parseLayers(*layerSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nnue-train: %v\n", err)
		os.Exit(1)
	}
	activations, err := parseActivations(*activationSpec, len(layers)-1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nnue-train: %v\n", err)
		os.Exit(1)
	}

	nn, err := network.New(layers, activations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nnue-train: creating network: %v\n", err)
		os.Exit(1)
	}
	nn.InitAllWeights(weight.Denormalize(-1), weight.Denormalize(1), int32(*seed))
	fmt.Printf("Network: %s\n", nn.SizeReport())

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nnue-train: opening training CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	d := dataset.New(layers[0], layers[len(layers)-1])
	if err := d.LoadCSV(f); err != nil {
		fmt.Fprintf(os.Stderr, "nnue-train: loading training CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d training samples\n", len(d.Entries))

	var cb trainer.ProgressCallback
	if *listenAddr != "" {
		hub := progress.NewHub()
		bridge := progress.NewBridge(hub)
		cb = bridge

		mux := http.NewServeMux()
		mux.Handle("/progress", progress.NewHandler(hub))
		go func() {
			if err := http.ListenAndServe(*listenAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "nnue-train: progress server: %v\n", err)
			}
		}()
		fmt.Printf("Streaming progress on ws://%s/progress\n", *listenAddr)
	}

	params := trainer.Params{
		Epochs:       *epochs,
		LearningRate: *lr,
		BatchSize:    *batchSize,
		Momentum:     *momentum,
		Velocity:     *velocity,
		Threads:      *threads,
		SaveEvery:    *saveEvery,
		NameFormat:   *checkpointFormat,
	}

	if err := trainer.Train(nn, d, *spillPath, params, trainer.ShowConfig|trainer.ShowEpoch|trainer.ShowLoss|trainer.ShowSaves, cb); err != nil {
		fmt.Fprintf(os.Stderr, "nnue-train: training: %v\n", err)
		os.Exit(1)
	}

	if err := nn.SaveFile(*outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "nnue-train: saving network: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved trained network to %s\n", *outputPath)
}

func parseLayers(spec string) ([]int, error) {
	parts := strings.Split(spec, ",")
	sizes := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parsing layer size %q: %w", p, err)
		}
		sizes[i] = v
	}
	return sizes, nil
}

var activationByName = map[string]activation.ID{
	"identity":     activation.Identity,
	"sigmoid":      activation.Sigmoid,
	"relu":         activation.ReLU,
	"clippedrelu":  activation.ClippedReLU,
	"clipped_relu": activation.ClippedReLU,
}

func parseActivations(spec string, count int) ([]activation.ID, error) {
	if spec == "" {
		ids := make([]activation.ID, count)
		for i := range ids {
			ids[i] = activation.ReLU
		}
		if count > 0 {
			ids[count-1] = activation.Identity
		}
		return ids, nil
	}

	parts := strings.Split(spec, ",")
	if len(parts) != count {
		return nil, fmt.Errorf("expected %d activations, got %d", count, len(parts))
	}
	ids := make([]activation.ID, len(parts))
	for i, p := range parts {
		id, ok := activationByName[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			return nil, fmt.Errorf("unknown activation %q", p)
		}
		ids[i] = id
	}
	return ids, nil
}
