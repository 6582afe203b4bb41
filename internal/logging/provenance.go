package logging

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// #region log-epoch
// LogEpoch writes one validation pass to the validation_epochs table.
func LogEpoch(db *sql.DB, entry EpochEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO validation_epochs (run_id, epoch, num_epochs, mean_loss, best_loss, improved, artifact_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Epoch,
		entry.NumEpochs,
		nullIfNonFinite(entry.MeanLoss),
		nullIfNonFinite(entry.BestLoss),
		entry.Improved,
		nullIfEmpty(entry.ArtifactPath),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log epoch: %w", err)
	}
	return nil
}
// #endregion log-epoch

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNonFinite(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
// #endregion helpers
