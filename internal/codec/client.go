package codec

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods
const (
	methodForward   = "/tae.inference.v1.Inference/Forward"
	methodStateDict = "/tae.inference.v1.Inference/StateDict"
)
// #endregion methods

// #region types
// ForwardResult is a dense tensor returned by the inference service.
type ForwardResult struct {
	Shape []int
	Data  []float64
}
// #endregion types

// #region client-struct
// InferenceClient wraps the gRPC connection to the Python model service.
// Messages are google.protobuf.Struct values, so no generated stubs are needed.
type InferenceClient struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}
// #endregion client-struct

// #region constructor
// NewInferenceClient connects to the Python inference gRPC server.
func NewInferenceClient(addr string) (*InferenceClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &InferenceClient{conn: conn, cc: conn}, nil
}

// NewInferenceClientWithConn creates a client over an injected connection.
// Used for testing without a real gRPC server.
func NewInferenceClientWithConn(cc grpc.ClientConnInterface) *InferenceClient {
	return &InferenceClient{cc: cc}
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *InferenceClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region forward
// Forward runs the named model on a dense row-major tensor.
// The mode, device and inference-only marker travel with the request.
func (c *InferenceClient) Forward(ctx context.Context, modelName string, mode model.Mode, shape []int, data []float64) (ForwardResult, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"model":   modelName,
		"mode":    mode.String(),
		"no_grad": model.InferenceOnly(ctx),
		"device":  model.Device(ctx),
		"shape":   intsToList(shape),
		"data":    floatsToList(data),
	})
	if err != nil {
		return ForwardResult{}, fmt.Errorf("encode forward request: %w", err)
	}

	var resp structpb.Struct
	if err := c.cc.Invoke(ctx, methodForward, req, &resp); err != nil {
		return ForwardResult{}, fmt.Errorf("forward rpc: %w", err)
	}

	fields := resp.GetFields()
	res := ForwardResult{}
	for _, v := range fields["shape"].GetListValue().GetValues() {
		res.Shape = append(res.Shape, int(v.GetNumberValue()))
	}
	vals := fields["data"].GetListValue().GetValues()
	res.Data = make([]float64, len(vals))
	for i, v := range vals {
		res.Data[i] = v.GetNumberValue()
	}
	return res, nil
}
// #endregion forward

// #region state-dict
// StateDict fetches the current weights of the named model.
func (c *InferenceClient) StateDict(ctx context.Context, modelName string) (checkpoint.Artifact, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"model": modelName})
	if err != nil {
		return checkpoint.Artifact{}, fmt.Errorf("encode state dict request: %w", err)
	}
	var resp structpb.Struct
	if err := c.cc.Invoke(ctx, methodStateDict, req, &resp); err != nil {
		return checkpoint.Artifact{}, fmt.Errorf("state dict rpc: %w", err)
	}
	a, err := checkpoint.ArtifactFromStruct(&resp)
	if err != nil {
		return checkpoint.Artifact{}, fmt.Errorf("decode state dict: %w", err)
	}
	if a.Model == "" {
		a.Model = modelName
	}
	return a, nil
}
// #endregion state-dict

// #region helpers
func intsToList(v []int) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func floatsToList(v []float64) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}
// #endregion helpers
