package pipeline

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/data"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/mask"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
)

// #region autoencoder

type autoencoderPipeline struct {
	cfg        Config
	ae         model.Autoencoder
	masker     mask.Masker
	zeroPadded []int
}

func (p *autoencoderPipeline) Kind() Kind             { return KindAutoencoder }
func (p *autoencoderPipeline) Artifact() model.Module { return p.ae }

func (p *autoencoderPipeline) RunEpoch(ctx context.Context, loader data.Loader) (float64, error) {
	return runEpoch(ctx, loader, p.cfg.Mask, []model.Module{p.ae}, p.step)
}

func (p *autoencoderPipeline) step(ctx context.Context, b data.Batch) (float64, error) {
	masked := p.masker.Mask(b.Inputs)
	out, err := reconstruct(ctx, p.ae, masked, p.cfg.OutputVars)
	if err != nil {
		return 0, err
	}

	// The ground truth is the unmasked input; width 3 drops the last channel.
	target := b.Inputs
	if p.cfg.OutputVars == 3 {
		if target, err = target.DropLastFeature(); err != nil {
			return 0, err
		}
	}

	l, err := p.cfg.Reconstruction.ComputeLoss(out.Flatten(), target.Flatten(), p.zeroPadded)
	if err != nil {
		return 0, fmt.Errorf("reconstruction loss: %w", err)
	}
	return l, nil
}

// #endregion autoencoder

// #region classifier-partial

type partialPipeline struct {
	cfg    Config
	ae     model.Autoencoder
	clf    model.Classifier
	masker mask.Masker
}

func (p *partialPipeline) Kind() Kind             { return KindClassifierPartial }
func (p *partialPipeline) Artifact() model.Module { return p.clf }

func (p *partialPipeline) RunEpoch(ctx context.Context, loader data.Loader) (float64, error) {
	return runEpoch(ctx, loader, p.cfg.Mask, []model.Module{p.ae, p.clf}, p.step)
}

func (p *partialPipeline) step(ctx context.Context, b data.Batch) (float64, error) {
	masked := p.masker.Mask(b.Inputs)
	out, err := reconstruct(ctx, p.ae, masked, p.cfg.OutputVars)
	if err != nil {
		return 0, err
	}

	x, err := tensor.Concat(out.Flatten(), masked.Flatten())
	if err != nil {
		return 0, err
	}
	logits, err := classify(ctx, p.clf, x)
	if err != nil {
		return 0, err
	}
	l, err := classificationLoss(p.cfg.Classification, logits, b)
	if err != nil {
		return 0, fmt.Errorf("classification loss: %w", err)
	}
	return l, nil
}

// #endregion classifier-partial

// #region classifier-full

type fullPipeline struct {
	cfg     Config
	ae      model.Autoencoder
	clf     model.Classifier
	maskers []mask.Masker // one per slot
}

func (p *fullPipeline) Kind() Kind             { return KindClassifierFull }
func (p *fullPipeline) Artifact() model.Module { return p.clf }

func (p *fullPipeline) RunEpoch(ctx context.Context, loader data.Loader) (float64, error) {
	return runEpoch(ctx, loader, p.cfg.Mask, []model.Module{p.ae, p.clf}, p.step)
}

// aggregate runs one autoencoder pass per slot, each under that slot's mask,
// and keeps only row i of pass i.
func (p *fullPipeline) aggregate(ctx context.Context, in tensor.Records) (tensor.Records, error) {
	acc := tensor.New(in.Batch, tensor.NumSlots, p.cfg.OutputVars)
	for i, m := range p.maskers {
		out, err := reconstruct(ctx, p.ae, m.Mask(in), p.cfg.OutputVars)
		if err != nil {
			return tensor.Records{}, fmt.Errorf("slot %d: %w", i, err)
		}
		if err := tensor.CopySlot(acc, out, i); err != nil {
			return tensor.Records{}, err
		}
	}
	return acc, nil
}

func (p *fullPipeline) step(ctx context.Context, b data.Batch) (float64, error) {
	acc, err := p.aggregate(ctx, b.Inputs)
	if err != nil {
		return 0, err
	}

	x, err := tensor.Concat(acc.Flatten(), b.Inputs.Flatten())
	if err != nil {
		return 0, err
	}
	logits, err := classify(ctx, p.clf, x)
	if err != nil {
		return 0, err
	}
	l, err := classificationLoss(p.cfg.Classification, logits, b)
	if err != nil {
		return 0, fmt.Errorf("classification loss: %w", err)
	}
	return l, nil
}

// #endregion classifier-full
