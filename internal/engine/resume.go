package engine

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/history"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/pipeline"
)

// #region resume

// History is the read side of the epoch history. *history.Store satisfies it.
type History interface {
	Resume(modelName, modelType string) (history.EpochRecord, error)
	BestLoss(modelName, modelType string) (float64, error)
}

// ResumeState seeds a RunState from recorded history. The best loss is the
// lowest recorded for the model, so a new run never overwrites a better
// artifact. Unless newRun is set, the state continues the latest run at its
// last epoch; with newRun the run ID is left empty and epochs restart at 0.
func ResumeState(h History, modelName string, kind pipeline.Kind, newRun bool) (RunState, error) {
	state := NewRunState()

	best, err := h.BestLoss(modelName, kind.String())
	switch {
	case err == nil:
		state.BestLoss = best
	case !errors.Is(err, history.ErrNoHistory):
		return RunState{}, fmt.Errorf("resume %s: %w", modelName, err)
	}
	if newRun {
		return state, nil
	}

	last, err := h.Resume(modelName, kind.String())
	switch {
	case err == nil:
		state.RunID = last.RunID
		state.ResumeEpoch = last.Epoch
	case !errors.Is(err, history.ErrNoHistory):
		return RunState{}, fmt.Errorf("resume %s: %w", modelName, err)
	}
	return state, nil
}

// NextEpoch is the epoch index that follows the state's last recorded pass.
func (s RunState) NextEpoch() int {
	return s.ResumeEpoch + 1
}

// #endregion resume
