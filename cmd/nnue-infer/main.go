// Command nnue-infer loads a trained network file and evaluates it
// against input rows read from a CSV file (or stdin), printing the
// network's outputs for each row.
//
// Usage:
//
//	nnue-infer -model model.bin -data inputs.csv
//	nnue-infer -model model.bin -data inputs.csv -csv
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"nnuecore/internal/network"
	"nnuecore/internal/weight"
)

func main() {
	modelPath := flag.String("model", "", "path to trained network file")
	dataPath := flag.String("data", "", "path to CSV of input rows (default: stdin)")
	csvOut := flag.Bool("csv", false, "output as CSV instead of a formatted table")
	flag.Parse()

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "nnue-infer: -model is required")
		os.Exit(1)
	}

	nn, err := network.LoadFile(*modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading network: %v\n", err)
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if *dataPath != "" {
		f, err := os.Open(*dataPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input data: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	inputSize := nn.LayerSizes[0]
	outputSize := nn.LayerSizes[nn.Layers]

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	if !*csvOut {
		fmt.Printf("Network: %s\n", nn.SizeReport())
		fmt.Println()
	} else {
		header := make([]string, 0, outputSize)
		for i := 0; i < outputSize; i++ {
			header = append(header, fmt.Sprintf("out_%d", i))
		}
		fmt.Println(strings.Join(header, ","))
	}

	inputs := make([]weight.Weight, inputSize)
	outputs := make([]weight.Weight, outputSize)

	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input row %d: %v\n", row, err)
			os.Exit(1)
		}
		row++

		if len(record) != inputSize {
			fmt.Fprintf(os.Stderr, "Error: row %d has %d fields, network expects %d inputs\n", row, len(record), inputSize)
			os.Exit(1)
		}

		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing row %d field %d: %v\n", row, i, err)
				os.Exit(1)
			}
			inputs[i] = weight.Denormalize(v)
		}

		nn.Compute(inputs, outputs)

		if *csvOut {
			fields := make([]string, outputSize)
			for i, o := range outputs {
				fields[i] = strconv.FormatFloat(weight.Normalize(o), 'f', 6, 64)
			}
			fmt.Println(strings.Join(fields, ","))
		} else {
			parts := make([]string, outputSize)
			for i, o := range outputs {
				parts[i] = strconv.FormatFloat(weight.Normalize(o), 'f', 6, 64)
			}
			fmt.Printf("row %4d: %s\n", row, strings.Join(parts, "  "))
		}
	}
}
