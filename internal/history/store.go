package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/masked-tae/go-validator/internal/logging"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNoHistory is returned when a model has no recorded validation passes.
var ErrNoHistory = errors.New("no validation history")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS validation_runs (
	run_id      TEXT PRIMARY KEY,
	model_name  TEXT NOT NULL,
	model_type  TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS validation_epochs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	num_epochs    INTEGER NOT NULL,
	mean_loss     REAL,
	best_loss     REAL,
	improved      INTEGER NOT NULL,
	artifact_path TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES validation_runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_validation_runs_model ON validation_runs(model_name, model_type);
`
// #endregion schema

// #region store-struct
// Store keeps the validation history of every run in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection and writes are single-writer anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region start-run
// StartRun registers a new validation session and returns its generated ID.
func (s *Store) StartRun(modelName, modelType string) (RunRecord, error) {
	rec := RunRecord{
		RunID:     uuid.New().String(),
		ModelName: modelName,
		ModelType: modelType,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO validation_runs (run_id, model_name, model_type, created_at) VALUES (?, ?, ?, ?)`,
		rec.RunID, rec.ModelName, rec.ModelType, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}
	return rec, nil
}
// #endregion start-run

// #region get-run
// GetRun retrieves a run by ID.
func (s *Store) GetRun(runID string) (RunRecord, error) {
	var rec RunRecord
	var createdStr string
	err := s.db.QueryRow(
		`SELECT run_id, model_name, model_type, created_at FROM validation_runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &rec.ModelName, &rec.ModelType, &createdStr)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}
// #endregion get-run

// #region log-epoch
// LogEpoch appends one validation pass. The run must have been started.
func (s *Store) LogEpoch(entry logging.EpochEntry) error {
	return logging.LogEpoch(s.db, entry)
}
// #endregion log-epoch

// #region resume
// Resume returns the most recent epoch recorded for a model, across runs.
// It returns ErrNoHistory when nothing was recorded yet.
func (s *Store) Resume(modelName, modelType string) (EpochRecord, error) {
	recs, err := s.listEpochs(
		`WHERE r.model_name = ? AND r.model_type = ? ORDER BY e.id DESC LIMIT 1`,
		modelName, modelType,
	)
	if err != nil {
		return EpochRecord{}, err
	}
	if len(recs) == 0 {
		return EpochRecord{}, fmt.Errorf("%s (%s): %w", modelName, modelType, ErrNoHistory)
	}
	return recs[0], nil
}

// BestLoss returns the lowest finite mean loss recorded for a model.
func (s *Store) BestLoss(modelName, modelType string) (float64, error) {
	var best sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT MIN(e.mean_loss) FROM validation_epochs e
		 JOIN validation_runs r ON r.run_id = e.run_id
		 WHERE r.model_name = ? AND r.model_type = ?`,
		modelName, modelType,
	).Scan(&best)
	if err != nil {
		return 0, fmt.Errorf("best loss: %w", err)
	}
	if !best.Valid {
		return 0, fmt.Errorf("%s (%s): %w", modelName, modelType, ErrNoHistory)
	}
	return best.Float64, nil
}
// #endregion resume

// #region list-epochs
// ListEpochs returns the most recent passes of a model, newest first.
// An empty modelName lists every model.
func (s *Store) ListEpochs(modelName string, limit int) ([]EpochRecord, error) {
	if modelName == "" {
		return s.listEpochs(`ORDER BY e.id DESC LIMIT ?`, limit)
	}
	return s.listEpochs(`WHERE r.model_name = ? ORDER BY e.id DESC LIMIT ?`, modelName, limit)
}

// RunEpochs returns every pass of one run in epoch order.
func (s *Store) RunEpochs(runID string) ([]EpochRecord, error) {
	return s.listEpochs(`WHERE e.run_id = ? ORDER BY e.epoch ASC, e.id ASC`, runID)
}

func (s *Store) listEpochs(tail string, args ...interface{}) ([]EpochRecord, error) {
	rows, err := s.db.Query(
		`SELECT e.run_id, r.model_name, r.model_type, e.epoch, e.num_epochs, e.mean_loss,
		        e.best_loss, e.improved, e.artifact_path, e.created_at
		 FROM validation_epochs e
		 JOIN validation_runs r ON r.run_id = e.run_id `+tail, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list epochs: %w", err)
	}
	defer rows.Close()

	var records []EpochRecord
	for rows.Next() {
		var rec EpochRecord
		var mean, best sql.NullFloat64
		var artifact sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.RunID, &rec.ModelName, &rec.ModelType, &rec.Epoch, &rec.NumEpochs,
			&mean, &best, &rec.Improved, &artifact, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if mean.Valid {
			v := mean.Float64
			rec.MeanLoss = &v
		}
		if best.Valid {
			v := best.Float64
			rec.BestLoss = &v
		}
		if artifact.Valid {
			rec.ArtifactPath = artifact.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion list-epochs
