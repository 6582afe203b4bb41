package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/data"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/loss"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/mask"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// #region config

// Config carries the per-run scalars and collaborators shared by all pipelines.
type Config struct {
	OutputVars     int // output-feature width, 3 or 4
	Mask           mask.Selector
	Rand           *rand.Rand          // masking randomness; nil uses the global source
	Reconstruction loss.Reconstruction // autoencoder criterion
	Classification loss.Classification // classifier criterion
}

// #endregion config

// #region pipeline

// Pipeline runs one validation pass of a model configuration.
type Pipeline interface {
	Kind() Kind
	// RunEpoch consumes loader to exhaustion and returns the mean batch loss.
	RunEpoch(ctx context.Context, loader data.Loader) (float64, error)
	// Artifact is the model whose weights are checkpointed on improvement.
	Artifact() model.Module
}

// New assembles the pipeline for kind. models are ordered autoencoder first,
// then the classifier.
func New(kind Kind, models []model.Module, cfg Config) (Pipeline, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("build pipeline: %w", ErrUnknownKind)
	}
	if len(models) != kind.ModelCount() {
		return nil, fmt.Errorf("%s pipeline needs %d models, got %d", kind, kind.ModelCount(), len(models))
	}
	zeroPadded, err := loss.ZeroPaddedFor(cfg.OutputVars)
	if err != nil {
		return nil, fmt.Errorf("%s pipeline: %w", kind, err)
	}
	ae, ok := models[0].(model.Autoencoder)
	if !ok {
		return nil, fmt.Errorf("%s pipeline: model 0 (%T) is not an autoencoder", kind, models[0])
	}

	if kind == KindAutoencoder {
		if cfg.Reconstruction == nil {
			return nil, fmt.Errorf("%s pipeline: missing reconstruction criterion", kind)
		}
		masker, err := mask.New(cfg.Mask, cfg.Rand)
		if err != nil {
			return nil, fmt.Errorf("%s pipeline: %w", kind, err)
		}
		return &autoencoderPipeline{cfg: cfg, ae: ae, masker: masker, zeroPadded: zeroPadded}, nil
	}

	clf, ok := models[1].(model.Classifier)
	if !ok {
		return nil, fmt.Errorf("%s pipeline: model 1 (%T) is not a classifier", kind, models[1])
	}
	if cfg.Classification == nil {
		return nil, fmt.Errorf("%s pipeline: missing classification criterion", kind)
	}
	if kind == KindClassifierPartial {
		masker, err := mask.New(cfg.Mask, cfg.Rand)
		if err != nil {
			return nil, fmt.Errorf("%s pipeline: %w", kind, err)
		}
		return &partialPipeline{cfg: cfg, ae: ae, clf: clf, masker: masker}, nil
	}

	maskers := make([]mask.Masker, tensor.NumSlots)
	for i := range maskers {
		if maskers[i], err = mask.ForSlot(cfg.Mask, i, cfg.Rand); err != nil {
			return nil, fmt.Errorf("%s pipeline: slot %d: %w", kind, i, err)
		}
	}
	return &fullPipeline{cfg: cfg, ae: ae, clf: clf, maskers: maskers}, nil
}

// #endregion pipeline

// #region epoch-loop

// runEpoch puts models into eval mode, then steps every batch under an
// inference-only context and averages the losses.
func runEpoch(ctx context.Context, loader data.Loader, sel mask.Selector, models []model.Module, step func(context.Context, data.Batch) (float64, error)) (float64, error) {
	for _, m := range models {
		m.SetMode(model.ModeEval)
	}
	ctx = model.WithInferenceOnly(ctx)

	var agg loss.Aggregator
	for {
		batch, err := loader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("next batch: %w", err)
		}
		if err := checkInputs(batch.Inputs, sel); err != nil {
			return 0, fmt.Errorf("batch %d: %w", agg.Count(), err)
		}
		l, err := step(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("batch %d: %w", agg.Count(), err)
		}
		agg.Add(l)
	}
	return agg.Mean()
}

func checkInputs(in tensor.Records, sel mask.Selector) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if err := sel.Fits(in.Features); err != nil {
		return err
	}
	if in.Slots != tensor.NumSlots {
		return fmt.Errorf("inputs %s carry %d slots, want %d: %w", in, in.Slots, tensor.NumSlots, tensor.ErrShapeMismatch)
	}
	return nil
}

// #endregion epoch-loop

// #region helpers

// reconstruct runs the autoencoder and checks its (batch, 6, outputVars) shape.
func reconstruct(ctx context.Context, ae model.Autoencoder, in tensor.Records, outputVars int) (tensor.Records, error) {
	out, err := ae.Reconstruct(ctx, in)
	if err != nil {
		return tensor.Records{}, fmt.Errorf("autoencoder forward: %w", err)
	}
	if out.Batch != in.Batch || out.Slots != tensor.NumSlots || out.Features != outputVars {
		return tensor.Records{}, fmt.Errorf("autoencoder output %s, want (%d, %d, %d): %w",
			out, in.Batch, tensor.NumSlots, outputVars, tensor.ErrShapeMismatch)
	}
	return out, nil
}

// classify runs the classifier on x and squeezes its (batch, 1) output.
func classify(ctx context.Context, clf model.Classifier, x mat.Matrix) ([]float64, error) {
	out, err := clf.Classify(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("classifier forward: %w", err)
	}
	xr, _ := x.Dims()
	r, c := out.Dims()
	if r != xr || c != 1 {
		return nil, fmt.Errorf("classifier output (%d, %d), want (%d, 1): %w", r, c, xr, tensor.ErrShapeMismatch)
	}
	return mat.Col(nil, 0, out), nil
}

func classificationLoss(crit loss.Classification, logits []float64, b data.Batch) (float64, error) {
	if b.Labels == nil {
		return 0, fmt.Errorf("classifier batch carries no labels: %w", tensor.ErrShapeMismatch)
	}
	return crit.Loss(logits, b.Labels)
}

// #endregion helpers
