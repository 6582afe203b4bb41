package model

import (
	"context"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// #region mode

// Mode is the operating state of a model handle.
type Mode int

const (
	ModeTrain Mode = iota
	ModeEval
)

func (m Mode) String() string {
	if m == ModeEval {
		return "eval"
	}
	return "train"
}

// #endregion mode

// #region contracts

// Module is the part shared by every model handle.
type Module interface {
	checkpoint.Snapshotter
	SetMode(Mode)
	Mode() Mode
}

// Autoencoder reconstructs (batch, 6, F) records into (batch, 6, W) outputs.
type Autoencoder interface {
	Module
	Reconstruct(ctx context.Context, in tensor.Records) (tensor.Records, error)
}

// Classifier maps a (batch, D) feature matrix to (batch, 1) logits.
type Classifier interface {
	Module
	Classify(ctx context.Context, x mat.Matrix) (mat.Matrix, error)
}

// #endregion contracts

// #region context

type ctxKey int

const (
	inferenceOnlyKey ctxKey = iota
	deviceKey
)

// WithInferenceOnly marks ctx so that model calls made under it track no gradients.
func WithInferenceOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, inferenceOnlyKey, true)
}

// InferenceOnly reports whether ctx was marked by WithInferenceOnly.
func InferenceOnly(ctx context.Context) bool {
	v, _ := ctx.Value(inferenceOnlyKey).(bool)
	return v
}

// WithDevice attaches the compute-device target for model calls.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey, device)
}

// Device returns the compute-device target carried by ctx, "cpu" if none.
func Device(ctx context.Context) string {
	if d, ok := ctx.Value(deviceKey).(string); ok && d != "" {
		return d
	}
	return "cpu"
}

// #endregion context
