package loss

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// #region errors

var (
	// ErrUnsupportedWidth reports an output-feature width with no zero-padding rule.
	ErrUnsupportedWidth = errors.New("unsupported output width")
	// ErrEmptyPass reports a validation pass that saw no batches.
	ErrEmptyPass = errors.New("validation pass produced no batches")
)

// #endregion errors

// #region contracts

// Reconstruction scores autoencoder outputs against their targets.
// zeroPadded lists flattened feature columns that carry no signal and must not
// contribute to the loss.
type Reconstruction interface {
	ComputeLoss(outputs, targets mat.Matrix, zeroPadded []int) (float64, error)
}

// Classification scores per-record classifier outputs against labels.
type Classification interface {
	Loss(outputs, labels []float64) (float64, error)
}

// #endregion contracts

// #region zero-padded

// ZeroPaddedFor returns the zero-padded column set for an output width:
// {4} for width 3, {3, 5, 7} for width 4.
func ZeroPaddedFor(width int) ([]int, error) {
	switch width {
	case 3:
		return []int{4}, nil
	case 4:
		return []int{3, 5, 7}, nil
	default:
		return nil, fmt.Errorf("width %d: %w", width, ErrUnsupportedWidth)
	}
}

// #endregion zero-padded

// #region masked-mse

// MaskedMSE is the mean squared error over every column not listed as zero-padded.
type MaskedMSE struct{}

// ComputeLoss implements Reconstruction.
func (MaskedMSE) ComputeLoss(outputs, targets mat.Matrix, zeroPadded []int) (float64, error) {
	r, c := outputs.Dims()
	tr, tc := targets.Dims()
	if r != tr || c != tc {
		return 0, fmt.Errorf("loss over outputs (%d, %d) and targets (%d, %d): %w", r, c, tr, tc, tensor.ErrShapeMismatch)
	}
	skip := make([]bool, c)
	for _, idx := range zeroPadded {
		if idx < 0 || idx >= c {
			return 0, fmt.Errorf("zero-padded index %d outside %d columns: %w", idx, c, tensor.ErrShapeMismatch)
		}
		skip[idx] = true
	}

	var sum float64
	var n int
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if skip[j] {
				continue
			}
			d := outputs.At(i, j) - targets.At(i, j)
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("no unpadded elements in (%d, %d): %w", r, c, tensor.ErrShapeMismatch)
	}
	return sum / float64(n), nil
}

// #endregion masked-mse

// #region bce

// BCEWithLogits is binary cross-entropy applied to raw logits, averaged over the batch.
type BCEWithLogits struct{}

// Loss implements Classification.
func (BCEWithLogits) Loss(outputs, labels []float64) (float64, error) {
	if len(outputs) != len(labels) {
		return 0, fmt.Errorf("bce over %d outputs and %d labels: %w", len(outputs), len(labels), tensor.ErrShapeMismatch)
	}
	if len(outputs) == 0 {
		return 0, fmt.Errorf("bce over empty batch: %w", tensor.ErrShapeMismatch)
	}
	terms := make([]float64, len(outputs))
	for i, x := range outputs {
		y := labels[i]
		// max(x, 0) - x*y + log(1 + exp(-|x|))
		terms[i] = math.Max(x, 0) - x*y + math.Log1p(math.Exp(-math.Abs(x)))
	}
	return floats.Sum(terms) / float64(len(terms)), nil
}

// #endregion bce
