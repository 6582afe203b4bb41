package engine

import (
	"io"
	"math"
	"os"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/checkpoint"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/data"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/history"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/logging"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/loss"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/mask"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/model"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/pipeline"
)

// #region config

// Config holds the process-wide settings of the engine.
type Config struct {
	OutputsDir string            // root of the per-run config records
	Format     checkpoint.Format // artifact encoding
	Seed       int64             // masking seed; 0 draws from the global source
	Out        io.Writer         // progress lines
	Recorder   Recorder          // optional epoch history
}

// DefaultConfig returns the settings of a plain command-line run.
func DefaultConfig() Config {
	return Config{
		OutputsDir: "./outputs",
		Format:     checkpoint.FormatJSON,
		Out:        os.Stdout,
	}
}

// #endregion config

// #region recorder

// Recorder persists epoch results across process restarts.
// *history.Store satisfies it.
type Recorder interface {
	StartRun(modelName, modelType string) (history.RunRecord, error)
	LogEpoch(entry logging.EpochEntry) error
}

// #endregion recorder

// #region request

// Request describes one validation pass.
type Request struct {
	Loader     data.Loader
	Models     []model.Module // autoencoder first, then the classifier if any
	Device     string
	Kind       pipeline.Kind
	OutputVars int
	Mask       mask.Selector
	Epoch      int // 0-based
	NumEpochs  int
	SaveDir    string
	ModelName  string

	// Criteria default to MaskedMSE and BCEWithLogits.
	Reconstruction loss.Reconstruction
	Classification loss.Classification
}

// #endregion request

// #region state

// RunState is threaded by the caller from one epoch to the next.
// The zero value is read as NewRunState: no run, no epoch, no best loss yet.
type RunState struct {
	RunID       string
	BestLoss    float64
	ResumeEpoch int
}

// NewRunState returns the state of a run with no recorded pass.
func NewRunState() RunState {
	return RunState{BestLoss: math.Inf(1), ResumeEpoch: -1}
}

// Outcome reports what a single pass did.
type Outcome struct {
	MeanLoss     float64
	Improved     bool
	ArtifactPath string
	ConfigPath   string
}

// #endregion state
