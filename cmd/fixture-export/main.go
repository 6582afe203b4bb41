package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/data"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/fsutil"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
)

// #region main

func main() {
	outDir := flag.String("out", "", "directory to write the fixture into")
	records := flag.Int("records", 64, "number of records in the split")
	features := flag.Int("features", 4, "features per slot")
	outputVars := flag.Int("output-vars", 4, "autoencoder output width")
	seed := flag.Int64("seed", 1, "generator seed")
	formatFlag := flag.String("format", "json", `artifact format: "json" or "proto"`)
	flag.Parse()

	if *outDir == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --out dir [--records N] [--features F] [--output-vars W] [--seed S] [--format json|proto]")
		os.Exit(2)
	}
	format, err := checkpoint.ParseFormat(*formatFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := run(*outDir, *records, *features, *outputVars, *seed, format); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

// run writes split.json, an identity autoencoder and a zero classifier sized
// for that autoencoder, so a validation pass can run without the sidecar.
func run(outDir string, records, features, outputVars int, seed int64, format checkpoint.Format) error {
	if records <= 0 {
		return fmt.Errorf("records must be positive, got %d", records)
	}
	if err := fsutil.EnsureDir(outDir); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))

	split := data.Split{
		Records: make([][][]float64, records),
		Labels:  make([]float64, records),
	}
	for i := range split.Records {
		rec := make([][]float64, tensor.NumSlots)
		for s := range rec {
			rec[s] = make([]float64, features)
			for f := range rec[s] {
				rec[s][f] = rng.NormFloat64()
			}
		}
		split.Records[i] = rec
		split.Labels[i] = float64(rng.Intn(2))
	}
	raw, err := json.Marshal(split)
	if err != nil {
		return fmt.Errorf("marshal split: %w", err)
	}
	splitPath := filepath.Join(outDir, "split.json")
	if err := fsutil.WriteFileAtomic(splitPath, raw, 0o644); err != nil {
		return fmt.Errorf("write split: %w", err)
	}

	ae, err := model.IdentityAutoencoder(features, outputVars)
	if err != nil {
		return fmt.Errorf("build autoencoder: %w", err)
	}
	// Classifier input is [reconstruction, inputs] flattened.
	clf, err := model.NewLinearClassifier(make([]float64, tensor.NumSlots*(outputVars+features)), 0)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}

	for name, m := range map[string]checkpoint.Snapshotter{"ae.artifact": ae, "clf.artifact": clf} {
		a, err := m.StateDict()
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", name, err)
		}
		if err := checkpoint.SaveArtifact(a, filepath.Join(outDir, name), format); err != nil {
			return err
		}
	}

	fmt.Printf("Wrote %d records to %s\n", records, splitPath)
	return nil
}

// #endregion export
