package model

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// #region linear-autoencoder

// LinearAutoencoder maps a flattened record through one dense layer:
// out = flatten(in) · Wᵀ + b, reshaped to (batch, slots, outVars).
type LinearAutoencoder struct {
	inFeatures int
	outVars    int
	weight     *mat.Dense // (slots*outVars, slots*inFeatures)
	bias       []float64  // slots*outVars
	mode       Mode
}

// NewLinearAutoencoder builds the model from row-major weights and bias.
func NewLinearAutoencoder(inFeatures, outVars int, weight, bias []float64) (*LinearAutoencoder, error) {
	rows, cols := tensor.NumSlots*outVars, tensor.NumSlots*inFeatures
	if inFeatures <= 0 || outVars <= 0 || len(weight) != rows*cols || len(bias) != rows {
		return nil, fmt.Errorf("linear autoencoder %d->%d with %d weights, %d biases: %w",
			inFeatures, outVars, len(weight), len(bias), tensor.ErrShapeMismatch)
	}
	w := make([]float64, len(weight))
	copy(w, weight)
	b := make([]float64, len(bias))
	copy(b, bias)
	return &LinearAutoencoder{
		inFeatures: inFeatures,
		outVars:    outVars,
		weight:     mat.NewDense(rows, cols, w),
		bias:       b,
	}, nil
}

// IdentityAutoencoder returns a LinearAutoencoder that copies the first outVars
// features of every slot.
func IdentityAutoencoder(inFeatures, outVars int) (*LinearAutoencoder, error) {
	rows, cols := tensor.NumSlots*outVars, tensor.NumSlots*inFeatures
	w := make([]float64, rows*cols)
	for s := 0; s < tensor.NumSlots; s++ {
		for f := 0; f < outVars && f < inFeatures; f++ {
			w[(s*outVars+f)*cols+s*inFeatures+f] = 1
		}
	}
	return NewLinearAutoencoder(inFeatures, outVars, w, make([]float64, rows))
}

// Reconstruct implements Autoencoder.
func (m *LinearAutoencoder) Reconstruct(_ context.Context, in tensor.Records) (tensor.Records, error) {
	if err := in.Validate(); err != nil {
		return tensor.Records{}, err
	}
	if in.Slots != tensor.NumSlots || in.Features != m.inFeatures {
		return tensor.Records{}, fmt.Errorf("reconstruct %s, want (_, %d, %d): %w",
			in, tensor.NumSlots, m.inFeatures, tensor.ErrShapeMismatch)
	}
	var y mat.Dense
	y.Mul(in.Flatten(), m.weight.T())
	out := tensor.New(in.Batch, tensor.NumSlots, m.outVars)
	cols := tensor.NumSlots * m.outVars
	for b := 0; b < in.Batch; b++ {
		for j := 0; j < cols; j++ {
			out.Data[b*cols+j] = y.At(b, j) + m.bias[j]
		}
	}
	return out, nil
}

func (m *LinearAutoencoder) SetMode(mode Mode) { m.mode = mode }
func (m *LinearAutoencoder) Mode() Mode        { return m.mode }

// StateDict implements checkpoint.Snapshotter.
func (m *LinearAutoencoder) StateDict() (checkpoint.Artifact, error) {
	rows, cols := m.weight.Dims()
	return checkpoint.Artifact{
		Model: "linear_tae",
		Weights: []checkpoint.WeightTensor{
			{Name: "encoder.weight", Shape: []int{rows, cols}, Data: mat.DenseCopyOf(m.weight).RawMatrix().Data},
			{Name: "encoder.bias", Shape: []int{rows}, Data: append([]float64(nil), m.bias...)},
		},
	}, nil
}

// LinearAutoencoderFromArtifact rebuilds a model saved by StateDict.
func LinearAutoencoderFromArtifact(a checkpoint.Artifact) (*LinearAutoencoder, error) {
	w, ok := a.Lookup("encoder.weight")
	if !ok || len(w.Shape) != 2 {
		return nil, fmt.Errorf("artifact %q: missing encoder.weight", a.Model)
	}
	b, ok := a.Lookup("encoder.bias")
	if !ok {
		return nil, fmt.Errorf("artifact %q: missing encoder.bias", a.Model)
	}
	return NewLinearAutoencoder(w.Shape[1]/tensor.NumSlots, w.Shape[0]/tensor.NumSlots, w.Data, b.Data)
}

// #endregion linear-autoencoder

// #region linear-classifier

// LinearClassifier is a single logit unit over a (batch, D) input.
type LinearClassifier struct {
	weight *mat.VecDense
	bias   float64
	mode   Mode
}

// NewLinearClassifier builds the classifier from its weight vector and bias.
func NewLinearClassifier(weight []float64, bias float64) (*LinearClassifier, error) {
	if len(weight) == 0 {
		return nil, fmt.Errorf("linear classifier with no weights: %w", tensor.ErrShapeMismatch)
	}
	w := make([]float64, len(weight))
	copy(w, weight)
	return &LinearClassifier{weight: mat.NewVecDense(len(w), w), bias: bias}, nil
}

// InputDim returns the expected feature width D.
func (m *LinearClassifier) InputDim() int { return m.weight.Len() }

// Classify implements Classifier.
func (m *LinearClassifier) Classify(_ context.Context, x mat.Matrix) (mat.Matrix, error) {
	r, c := x.Dims()
	if c != m.weight.Len() {
		return nil, fmt.Errorf("classify (%d, %d), want (_, %d): %w", r, c, m.weight.Len(), tensor.ErrShapeMismatch)
	}
	var y mat.VecDense
	y.MulVec(x, m.weight)
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, y.AtVec(i)+m.bias)
	}
	return out, nil
}

func (m *LinearClassifier) SetMode(mode Mode) { m.mode = mode }
func (m *LinearClassifier) Mode() Mode        { return m.mode }

// StateDict implements checkpoint.Snapshotter.
func (m *LinearClassifier) StateDict() (checkpoint.Artifact, error) {
	w := make([]float64, m.weight.Len())
	for i := range w {
		w[i] = m.weight.AtVec(i)
	}
	return checkpoint.Artifact{
		Model: "linear_classifier",
		Weights: []checkpoint.WeightTensor{
			{Name: "fc.weight", Shape: []int{1, len(w)}, Data: w},
			{Name: "fc.bias", Shape: []int{1}, Data: []float64{m.bias}},
		},
	}, nil
}

// LinearClassifierFromArtifact rebuilds a classifier saved by StateDict.
func LinearClassifierFromArtifact(a checkpoint.Artifact) (*LinearClassifier, error) {
	w, ok := a.Lookup("fc.weight")
	if !ok {
		return nil, fmt.Errorf("artifact %q: missing fc.weight", a.Model)
	}
	b, ok := a.Lookup("fc.bias")
	if !ok || len(b.Data) != 1 {
		return nil, fmt.Errorf("artifact %q: missing fc.bias", a.Model)
	}
	return NewLinearClassifier(w.Data, b.Data[0])
}

// #endregion linear-classifier
