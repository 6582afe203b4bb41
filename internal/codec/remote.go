package codec

import (
	"context"
	"fmt"
	"time"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// snapshotTimeout bounds StateDict calls, which carry no caller context.
const snapshotTimeout = 60 * time.Second

// #region remote-autoencoder

// RemoteAutoencoder is an autoencoder served by the inference service.
type RemoteAutoencoder struct {
	client *InferenceClient
	name   string
	mode   model.Mode
}

// NewRemoteAutoencoder binds the served model called name.
func NewRemoteAutoencoder(client *InferenceClient, name string) *RemoteAutoencoder {
	return &RemoteAutoencoder{client: client, name: name}
}

// Reconstruct implements model.Autoencoder.
func (m *RemoteAutoencoder) Reconstruct(ctx context.Context, in tensor.Records) (tensor.Records, error) {
	res, err := m.client.Forward(ctx, m.name, m.mode, []int{in.Batch, in.Slots, in.Features}, in.Data)
	if err != nil {
		return tensor.Records{}, err
	}
	if len(res.Shape) != 3 {
		return tensor.Records{}, fmt.Errorf("%s returned rank-%d output: %w", m.name, len(res.Shape), tensor.ErrShapeMismatch)
	}
	out := tensor.Records{Batch: res.Shape[0], Slots: res.Shape[1], Features: res.Shape[2], Data: res.Data}
	if err := out.Validate(); err != nil {
		return tensor.Records{}, fmt.Errorf("%s output: %w", m.name, err)
	}
	return out, nil
}

func (m *RemoteAutoencoder) SetMode(mode model.Mode) { m.mode = mode }
func (m *RemoteAutoencoder) Mode() model.Mode        { return m.mode }

// StateDict implements checkpoint.Snapshotter.
func (m *RemoteAutoencoder) StateDict() (checkpoint.Artifact, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	return m.client.StateDict(ctx, m.name)
}

// #endregion remote-autoencoder

// #region remote-classifier

// RemoteClassifier is a classifier served by the inference service.
type RemoteClassifier struct {
	client *InferenceClient
	name   string
	mode   model.Mode
}

// NewRemoteClassifier binds the served model called name.
func NewRemoteClassifier(client *InferenceClient, name string) *RemoteClassifier {
	return &RemoteClassifier{client: client, name: name}
}

// Classify implements model.Classifier.
func (m *RemoteClassifier) Classify(ctx context.Context, x mat.Matrix) (mat.Matrix, error) {
	r, c := x.Dims()
	dense := mat.DenseCopyOf(x)
	res, err := m.client.Forward(ctx, m.name, m.mode, []int{r, c}, dense.RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	// Accept (r, 1) as well as an already squeezed (r).
	switch {
	case len(res.Shape) == 2 && res.Shape[0] == r && res.Shape[1] == 1 && len(res.Data) == r:
	case len(res.Shape) == 1 && res.Shape[0] == r && len(res.Data) == r:
	default:
		return nil, fmt.Errorf("%s returned shape %v for %d rows: %w", m.name, res.Shape, r, tensor.ErrShapeMismatch)
	}
	return mat.NewDense(r, 1, res.Data), nil
}

func (m *RemoteClassifier) SetMode(mode model.Mode) { m.mode = mode }
func (m *RemoteClassifier) Mode() model.Mode        { return m.mode }

// StateDict implements checkpoint.Snapshotter.
func (m *RemoteClassifier) StateDict() (checkpoint.Artifact, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	return m.client.StateDict(ctx, m.name)
}

// #endregion remote-classifier
