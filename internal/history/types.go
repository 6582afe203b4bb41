package history

import "time"

// #region run-record
// RunRecord identifies one validation session of a named model.
type RunRecord struct {
	RunID     string
	ModelName string
	ModelType string
	CreatedAt time.Time
}
// #endregion run-record

// #region epoch-record
// EpochRecord is one stored validation pass.
type EpochRecord struct {
	RunID        string
	ModelName    string
	ModelType    string
	Epoch        int
	NumEpochs    int
	MeanLoss     *float64 // nil when the pass produced a non-finite mean
	BestLoss     *float64 // nil while no finite best exists
	Improved     bool
	ArtifactPath string
	CreatedAt    time.Time
}
// #endregion epoch-record
