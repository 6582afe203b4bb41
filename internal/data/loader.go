package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
)

// #region types

// Batch is one step of a validation split. Labels is nil for autoencoder data.
type Batch struct {
	Inputs tensor.Records
	Labels []float64
}

// Loader yields batches in order and returns io.EOF once the split is exhausted.
type Loader interface {
	Next(ctx context.Context) (Batch, error)
}

// #endregion types

// #region slice-loader

// SliceLoader serves pre-built batches from memory.
type SliceLoader struct {
	batches []Batch
	pos     int
}

// NewSliceLoader wraps batches; they are served in order.
func NewSliceLoader(batches ...Batch) *SliceLoader {
	return &SliceLoader{batches: batches}
}

// Next implements Loader.
func (l *SliceLoader) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if l.pos >= len(l.batches) {
		return Batch{}, io.EOF
	}
	b := l.batches[l.pos]
	l.pos++
	return b, nil
}

// Reset rewinds the loader so the split can be iterated again.
func (l *SliceLoader) Reset() { l.pos = 0 }

// #endregion slice-loader

// #region file-split

// Split is the JSON layout of a validation split file.
type Split struct {
	Records [][][]float64 `json:"records"`
	Labels  []float64     `json:"labels,omitempty"`
}

// LoadSplit reads a split file and cuts it into batches of batchSize records.
// The last batch may be smaller.
func LoadSplit(path string, batchSize int) (*SliceLoader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read split %s: %w", path, err)
	}
	var s Split
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse split %s: %w", path, err)
	}
	return s.Batches(batchSize)
}

// Batches cuts the split into a loader of batchSize-record batches.
func (s Split) Batches(batchSize int) (*SliceLoader, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size %d must be positive", batchSize)
	}
	if s.Labels != nil && len(s.Labels) != len(s.Records) {
		return nil, fmt.Errorf("%d labels for %d records: %w", len(s.Labels), len(s.Records), tensor.ErrShapeMismatch)
	}
	var batches []Batch
	for start := 0; start < len(s.Records); start += batchSize {
		end := min(start+batchSize, len(s.Records))
		inputs, err := tensor.FromNested(s.Records[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch at record %d: %w", start, err)
		}
		b := Batch{Inputs: inputs}
		if s.Labels != nil {
			b.Labels = append([]float64(nil), s.Labels[start:end]...)
		}
		batches = append(batches, b)
	}
	return NewSliceLoader(batches...), nil
}

// #endregion file-split
