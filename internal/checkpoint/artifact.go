package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/fsutil"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region format

// Format selects how weight artifacts are serialized.
type Format int

const (
	FormatJSON Format = iota
	FormatProto
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatProto:
		return "proto"
	default:
		return "unknown"
	}
}

// ParseFormat maps "json" or "proto" to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "":
		return FormatJSON, nil
	case "proto", "pb":
		return FormatProto, nil
	default:
		return 0, fmt.Errorf("unsupported artifact format %q", s)
	}
}

// #endregion format

// #region weights

// WeightTensor is one named parameter tensor of a model.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// Artifact is the serialized form of a model's weights.
type Artifact struct {
	Model   string         `json:"model"`
	Weights []WeightTensor `json:"weights"`
}

// Snapshotter is anything that can export its weights.
type Snapshotter interface {
	StateDict() (Artifact, error)
}

// Lookup returns the tensor with the given name.
func (a Artifact) Lookup(name string) (WeightTensor, bool) {
	for _, w := range a.Weights {
		if w.Name == name {
			return w, true
		}
	}
	return WeightTensor{}, false
}

// #endregion weights

// #region save-load

// SaveArtifact writes a to path in the given format, replacing any previous file.
func SaveArtifact(a Artifact, path string, format Format) error {
	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(a, "", "  ")
	case FormatProto:
		data, err = marshalProto(a)
	default:
		return fmt.Errorf("unsupported artifact format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

// LoadArtifact reads an artifact written by SaveArtifact.
func LoadArtifact(path string, format Format) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", path, err)
	}
	var a Artifact
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &a)
	case FormatProto:
		a, err = unmarshalProto(data)
	default:
		return Artifact{}, fmt.Errorf("unsupported artifact format: %s", format)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return a, nil
}

// #endregion save-load

// #region proto

// The protobuf layout is a structpb.Struct:
// {"model": string, "weights": [{"name", "shape": [..], "data": [..]}]}.
func marshalProto(a Artifact) ([]byte, error) {
	weights := make([]any, len(a.Weights))
	for i, w := range a.Weights {
		weights[i] = map[string]any{
			"name":  w.Name,
			"shape": intsToAny(w.Shape),
			"data":  floatsToAny(w.Data),
		}
	}
	st, err := structpb.NewStruct(map[string]any{
		"model":   a.Model,
		"weights": weights,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func unmarshalProto(data []byte) (Artifact, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Artifact{}, err
	}
	return ArtifactFromStruct(&st)
}

// ArtifactFromStruct decodes the structpb layout used by the proto format
// and by the inference sidecar's StateDict reply.
func ArtifactFromStruct(st *structpb.Struct) (Artifact, error) {
	a := Artifact{Model: st.GetFields()["model"].GetStringValue()}
	for i, v := range st.GetFields()["weights"].GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return Artifact{}, fmt.Errorf("weight %d is not an object", i)
		}
		w := WeightTensor{Name: fields["name"].GetStringValue()}
		for _, d := range fields["shape"].GetListValue().GetValues() {
			w.Shape = append(w.Shape, int(d.GetNumberValue()))
		}
		for _, d := range fields["data"].GetListValue().GetValues() {
			w.Data = append(w.Data, d.GetNumberValue())
		}
		a.Weights = append(a.Weights, w)
	}
	return a, nil
}

func intsToAny(v []int) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func floatsToAny(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

// #endregion proto
