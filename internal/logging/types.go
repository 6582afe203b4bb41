package logging

import "time"

// #region epoch-entry
// EpochEntry is a single row in the validation_epochs table.
type EpochEntry struct {
	RunID        string
	Epoch        int
	NumEpochs    int
	MeanLoss     float64
	BestLoss     float64 // best loss after this epoch; +Inf is stored as NULL
	Improved     bool    // whether this epoch wrote a new artifact
	ArtifactPath string
	CreatedAt    time.Time
}
// #endregion epoch-entry
