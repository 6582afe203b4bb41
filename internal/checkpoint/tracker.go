package checkpoint

import (
	"fmt"
	"path/filepath"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/fsutil"
	"github.com/danielpatrickdp/masked-tae/go-validator/internal/runconfig"
)

// #region layout

// Layout names the files a run writes:
// <OutputsDir>/<ModelName>/<ConfigFile> and <SaveDir>/<ArtifactPrefix><ModelName>.
type Layout struct {
	OutputsDir     string
	SaveDir        string
	ModelName      string
	ConfigFile     string
	ArtifactPrefix string
}

// RunDir is the per-run output directory.
func (l Layout) RunDir() string {
	return filepath.Join(l.OutputsDir, l.ModelName)
}

// ConfigPath is the run configuration record.
func (l Layout) ConfigPath() string {
	return filepath.Join(l.RunDir(), l.ConfigFile)
}

// ArtifactPath is where the best weights are written.
func (l Layout) ArtifactPath() string {
	return filepath.Join(l.SaveDir, l.ArtifactPrefix+l.ModelName)
}

// #endregion layout

// #region tracker

// Tracker owns the run configuration record and the best-weights artifact of
// one run. It is not safe for concurrent use; one pass per run at a time.
type Tracker struct {
	layout Layout
	format Format
	cfg    *runconfig.RunConfig
}

// NewTracker returns a tracker writing artifacts in format.
func NewTracker(layout Layout, format Format) *Tracker {
	return &Tracker{layout: layout, format: format}
}

// Layout returns the file layout of the run.
func (t *Tracker) Layout() Layout { return t.layout }

// EnsureRunRecord creates the run directory if needed and overwrites the
// config file with cfg. Calling it again with the same cfg leaves the same file.
func (t *Tracker) EnsureRunRecord(cfg runconfig.RunConfig) error {
	if err := fsutil.EnsureDir(t.layout.RunDir()); err != nil {
		return fmt.Errorf("ensure run record: %w", err)
	}
	c := cfg.Clone()
	if err := runconfig.Save(t.layout.ConfigPath(), c); err != nil {
		return fmt.Errorf("ensure run record: %w", err)
	}
	t.cfg = &c
	return nil
}

// MaybeSave persists artifact when current is strictly below best and returns
// the new best loss together with whether a save happened.
func (t *Tracker) MaybeSave(current, best float64, artifact Snapshotter) (float64, bool, error) {
	if !(current < best) {
		return best, false, nil
	}
	a, err := artifact.StateDict()
	if err != nil {
		return best, false, fmt.Errorf("snapshot weights: %w", err)
	}
	if err := SaveArtifact(a, t.layout.ArtifactPath(), t.format); err != nil {
		return best, false, err
	}
	return current, true, nil
}

// RecordEpoch sets resume_epoch on the run configuration and writes it once.
// Without a prior EnsureRunRecord the record is read back from disk first.
func (t *Tracker) RecordEpoch(epoch int) error {
	if t.cfg == nil {
		cfg, err := runconfig.Load(t.layout.ConfigPath())
		if err != nil {
			return fmt.Errorf("record epoch %d: %w", epoch, err)
		}
		t.cfg = &cfg
	}
	t.cfg.SetResumeEpoch(epoch)
	if err := runconfig.Save(t.layout.ConfigPath(), *t.cfg); err != nil {
		return fmt.Errorf("record epoch %d: %w", epoch, err)
	}
	return nil
}

// Config returns a copy of the in-memory run configuration, if any.
func (t *Tracker) Config() (runconfig.RunConfig, bool) {
	if t.cfg == nil {
		return runconfig.RunConfig{}, false
	}
	return t.cfg.Clone(), true
}

// #endregion tracker
