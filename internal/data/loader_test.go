package data

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
)

func record(v float64) [][]float64 {
	rec := make([][]float64, tensor.NumSlots)
	for s := range rec {
		rec[s] = []float64{v, v, v, v}
	}
	return rec
}

func drain(t *testing.T, l Loader) []Batch {
	t.Helper()
	var out []Batch
	for {
		b, err := l.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, b)
	}
}

func TestSliceLoaderOrderAndReset(t *testing.T) {
	a := Batch{Inputs: tensor.New(1, tensor.NumSlots, 4)}
	b := Batch{Inputs: tensor.New(2, tensor.NumSlots, 4)}
	l := NewSliceLoader(a, b)

	got := drain(t, l)
	if len(got) != 2 || got[0].Inputs.Batch != 1 || got[1].Inputs.Batch != 2 {
		t.Fatalf("unexpected batches: %+v", got)
	}
	l.Reset()
	if len(drain(t, l)) != 2 {
		t.Error("Reset did not rewind")
	}
}

func TestSliceLoaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSliceLoader(Batch{}).Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSplitBatches(t *testing.T) {
	s := Split{
		Records: [][][]float64{record(1), record(2), record(3)},
		Labels:  []float64{0, 1, 1},
	}
	l, err := s.Batches(2)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	got := drain(t, l)
	if len(got) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(got))
	}
	if got[1].Inputs.Batch != 1 || got[1].Labels[0] != 1 {
		t.Errorf("last batch = %+v", got[1])
	}
	if got[0].Inputs.At(1, 5, 3) != 2 {
		t.Errorf("record values not preserved")
	}
}

func TestSplitLabelMismatch(t *testing.T) {
	s := Split{Records: [][][]float64{record(1)}, Labels: []float64{0, 1}}
	if _, err := s.Batches(1); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestLoadSplitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "val.json")
	body := `{"records": [[[1,2,3,4],[1,2,3,4],[1,2,3,4],[1,2,3,4],[1,2,3,4],[1,2,3,4]]]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := LoadSplit(path, 8)
	if err != nil {
		t.Fatalf("LoadSplit: %v", err)
	}
	got := drain(t, l)
	if len(got) != 1 || got[0].Labels != nil {
		t.Errorf("unexpected batches: %+v", got)
	}
}

func TestLoadSplitMissing(t *testing.T) {
	if _, err := LoadSplit(filepath.Join(t.TempDir(), "none.json"), 1); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
