package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/logging"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/loss"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/pipeline"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/runconfig"
	"github.com/google/uuid"
)

// Engine runs validation passes and tracks the best checkpoint of a run.
// One pass per run directory at a time.
type Engine struct {
	cfg Config
	rng *rand.Rand
}

// New creates an engine. A nil Out discards progress lines.
func New(cfg Config) *Engine {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.OutputsDir == "" {
		cfg.OutputsDir = DefaultConfig().OutputsDir
	}
	e := &Engine{cfg: cfg}
	if cfg.Seed != 0 {
		e.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	return e
}

// #region validate

// Validate evaluates req's models over one pass of req.Loader, writes the
// artifact on strict improvement over state.BestLoss and records the epoch.
// The returned state carries min(state.BestLoss, mean).
func (e *Engine) Validate(ctx context.Context, req Request, state RunState) (RunState, Outcome, error) {
	if !req.Kind.Valid() {
		return state, Outcome{}, fmt.Errorf("validate: %w", pipeline.ErrUnknownKind)
	}
	runCfg, err := runconfig.ParseModelName(req.ModelName)
	if err != nil {
		return state, Outcome{}, fmt.Errorf("validate: %w", err)
	}

	p, err := pipeline.New(req.Kind, req.Models, pipeline.Config{
		OutputVars:     req.OutputVars,
		Mask:           req.Mask,
		Rand:           e.rng,
		Reconstruction: orReconstruction(req.Reconstruction),
		Classification: orClassification(req.Classification),
	})
	if err != nil {
		return state, Outcome{}, fmt.Errorf("validate: %w", err)
	}

	tracker := checkpoint.NewTracker(checkpoint.Layout{
		OutputsDir:     e.cfg.OutputsDir,
		SaveDir:        req.SaveDir,
		ModelName:      req.ModelName,
		ConfigFile:     req.Kind.ConfigFileName(),
		ArtifactPrefix: req.Kind.ArtifactPrefix(),
	}, e.cfg.Format)
	if err := tracker.EnsureRunRecord(runCfg); err != nil {
		return state, Outcome{}, fmt.Errorf("validate: %w", err)
	}

	if state == (RunState{}) {
		state = NewRunState()
	}

	mean, err := p.RunEpoch(model.WithDevice(ctx, req.Device), req.Loader)
	if err != nil {
		return state, Outcome{}, fmt.Errorf("validate %s pass: %w", req.Kind, err)
	}
	// A run is registered only once it has a pass to record.
	if state.RunID == "" {
		if state.RunID, err = e.startRun(req); err != nil {
			return state, Outcome{}, fmt.Errorf("validate: %w", err)
		}
	}
	fmt.Fprintf(e.cfg.Out, "Epoch [%d/%d], Val Loss: %.4f\n", req.Epoch+1, req.NumEpochs, mean)

	best, improved, err := tracker.MaybeSave(mean, state.BestLoss, p.Artifact())
	if err != nil {
		return state, Outcome{}, fmt.Errorf("validate: %w", err)
	}
	if err := tracker.RecordEpoch(req.Epoch); err != nil {
		return state, Outcome{}, fmt.Errorf("validate: %w", err)
	}

	layout := tracker.Layout()
	out := Outcome{
		MeanLoss:   mean,
		Improved:   improved,
		ConfigPath: layout.ConfigPath(),
	}
	if improved {
		out.ArtifactPath = layout.ArtifactPath()
	}

	if e.cfg.Recorder != nil {
		err := e.cfg.Recorder.LogEpoch(logging.EpochEntry{
			RunID:        state.RunID,
			Epoch:        req.Epoch,
			NumEpochs:    req.NumEpochs,
			MeanLoss:     mean,
			BestLoss:     best,
			Improved:     improved,
			ArtifactPath: out.ArtifactPath,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return state, Outcome{}, fmt.Errorf("validate: %w", err)
		}
	}

	state.BestLoss = best
	state.ResumeEpoch = req.Epoch
	return state, out, nil
}

// #endregion validate

// #region helpers

func (e *Engine) startRun(req Request) (string, error) {
	if e.cfg.Recorder == nil {
		return uuid.New().String(), nil
	}
	rec, err := e.cfg.Recorder.StartRun(req.ModelName, req.Kind.String())
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return rec.RunID, nil
}

func orReconstruction(c loss.Reconstruction) loss.Reconstruction {
	if c == nil {
		return loss.MaskedMSE{}
	}
	return c
}

func orClassification(c loss.Classification) loss.Classification {
	if c == nil {
		return loss.BCEWithLogits{}
	}
	return c
}

// #endregion helpers
