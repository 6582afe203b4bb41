package loss

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Aggregator collects per-batch losses over one validation pass.
type Aggregator struct {
	losses []float64
}

// Add records one batch loss.
func (a *Aggregator) Add(l float64) {
	a.losses = append(a.losses, l)
}

// Count returns the number of recorded batches.
func (a *Aggregator) Count() int {
	return len(a.losses)
}

// Mean returns the arithmetic mean of the recorded losses.
// A pass without batches is a precondition violation, not NaN.
func (a *Aggregator) Mean() (float64, error) {
	if len(a.losses) == 0 {
		return 0, fmt.Errorf("mean loss: %w", ErrEmptyPass)
	}
	return floats.Sum(a.losses) / float64(len(a.losses)), nil
}
