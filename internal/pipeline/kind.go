package pipeline

import (
	"errors"
	"fmt"
)

// ErrUnknownKind reports a model-type tag outside the closed set of pipelines.
var ErrUnknownKind = errors.New("unknown model type")

// #region kind

// Kind enumerates the inference pipelines.
type Kind int

const (
	KindAutoencoder Kind = iota + 1
	KindClassifierPartial
	KindClassifierFull
)

var kindTags = map[Kind]string{
	KindAutoencoder:       "autoencoder",
	KindClassifierPartial: "classifier partial",
	KindClassifierFull:    "classifier full",
}

// ParseKind maps a model-type tag ("autoencoder", "classifier partial",
// "classifier full") to its Kind.
func ParseKind(tag string) (Kind, error) {
	for k, t := range kindTags {
		if t == tag {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", tag, ErrUnknownKind)
}

func (k Kind) String() string {
	if t, ok := kindTags[k]; ok {
		return t
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is one of the defined pipelines.
func (k Kind) Valid() bool {
	_, ok := kindTags[k]
	return ok
}

// ModelCount is the number of model handles the pipeline expects.
func (k Kind) ModelCount() int {
	if k == KindAutoencoder {
		return 1
	}
	return 2
}

// ConfigFileName is the per-run checkpoint config file for this pipeline.
func (k Kind) ConfigFileName() string {
	switch k {
	case KindAutoencoder:
		return "tae_ckpt_config.json"
	case KindClassifierPartial:
		return "partial_ckpt_config.json"
	case KindClassifierFull:
		return "full_ckpt_config.json"
	}
	return ""
}

// ArtifactPrefix prefixes the best-weights file name.
func (k Kind) ArtifactPrefix() string {
	switch k {
	case KindAutoencoder:
		return "TAE_best_"
	case KindClassifierPartial:
		return "Classifier_partial_best_"
	case KindClassifierFull:
		return "Classifier_full_best_"
	}
	return ""
}

// #endregion kind
