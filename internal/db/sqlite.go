package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/argus-v/argus-ml/internal/analytics/evaluate"
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS training_runs (
    id                  TEXT PRIMARY KEY,
    dataset             TEXT NOT NULL,
    status              TEXT NOT NULL,
    error               TEXT NOT NULL DEFAULT '',
    started_at          TEXT NOT NULL,
    finished_at         TEXT NOT NULL,
    contamination       REAL NOT NULL DEFAULT 0.0,
    ensemble_size       INTEGER NOT NULL DEFAULT 0,
    seed                INTEGER NOT NULL DEFAULT 0,
    validation_metrics  TEXT NOT NULL DEFAULT '{}',
    test_metrics        TEXT NOT NULL DEFAULT '',
    artifact_path       TEXT NOT NULL DEFAULT '',
    artifact_digest     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON training_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS tuning_trials (
    run_id          TEXT NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
    idx             INTEGER NOT NULL,
    contamination   REAL NOT NULL,
    ensemble_size   INTEGER NOT NULL,
    precision       REAL NOT NULL DEFAULT 0.0,
    recall          REAL NOT NULL DEFAULT 0.0,
    f1              REAL NOT NULL DEFAULT 0.0,
    fpr             REAL NOT NULL DEFAULT 0.0,
    duration_ms     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, idx)
);
`,
	},
	// Migration 2: artifact size and digest lookup
	{
		version: 2,
		sql: `
ALTER TABLE training_runs ADD COLUMN artifact_size INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_runs_artifact_digest ON training_runs(artifact_digest);
`,
	},
}

// SQLiteStore is the SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.Get(&count, `SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Training runs ────────────────────────────────────────────────────────────

type runRow struct {
	ID             string  `db:"id"`
	Dataset        string  `db:"dataset"`
	Status         string  `db:"status"`
	Error          string  `db:"error"`
	StartedAt      string  `db:"started_at"`
	FinishedAt     string  `db:"finished_at"`
	Contamination  float64 `db:"contamination"`
	EnsembleSize   int     `db:"ensemble_size"`
	Seed           int64   `db:"seed"`
	Validation     string  `db:"validation_metrics"`
	Test           string  `db:"test_metrics"`
	ArtifactPath   string  `db:"artifact_path"`
	ArtifactDigest string  `db:"artifact_digest"`
	ArtifactSize   int64   `db:"artifact_size"`
}

type trialRow struct {
	RunID         string  `db:"run_id"`
	Index         int     `db:"idx"`
	Contamination float64 `db:"contamination"`
	EnsembleSize  int     `db:"ensemble_size"`
	Precision     float64 `db:"precision"`
	Recall        float64 `db:"recall"`
	F1            float64 `db:"f1"`
	FPR           float64 `db:"fpr"`
	DurationMS    int64   `db:"duration_ms"`
}

const runColumns = `id, dataset, status, error, started_at, finished_at, contamination,
	ensemble_size, seed, validation_metrics, test_metrics, artifact_path, artifact_digest, artifact_size`

func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	row, err := toRunRow(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO training_runs (`+runColumns+`)
		VALUES (:id, :dataset, :status, :error, :started_at, :finished_at, :contamination,
			:ensemble_size, :seed, :validation_metrics, :test_metrics, :artifact_path, :artifact_digest, :artifact_size)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			finished_at = excluded.finished_at,
			contamination = excluded.contamination,
			ensemble_size = excluded.ensemble_size,
			seed = excluded.seed,
			validation_metrics = excluded.validation_metrics,
			test_metrics = excluded.test_metrics`, row)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tuning_trials WHERE run_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("clear trials for %s: %w", rec.ID, err)
	}
	for _, tr := range rec.Trials {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO tuning_trials (run_id, idx, contamination, ensemble_size, precision, recall, f1, fpr, duration_ms)
			VALUES (:run_id, :idx, :contamination, :ensemble_size, :precision, :recall, :f1, :fpr, :duration_ms)`,
			trialRow{
				RunID:         rec.ID,
				Index:         tr.Index,
				Contamination: tr.Contamination,
				EnsembleSize:  tr.EnsembleSize,
				Precision:     tr.Precision,
				Recall:        tr.Recall,
				F1:            tr.F1,
				FPR:           tr.FPR,
				DurationMS:    tr.Duration.Milliseconds(),
			})
		if err != nil {
			return fmt.Errorf("save trial %d of %s: %w", tr.Index, rec.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AttachArtifact(ctx context.Context, runID, path, digest string, size int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE training_runs SET artifact_path = ?, artifact_digest = ?, artifact_size = ? WHERE id = ?`,
		path, digest, size, runID)
	if err != nil {
		return fmt.Errorf("attach artifact to %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	rec, err := fromRunRow(row)
	if err != nil {
		return nil, err
	}

	var trials []trialRow
	if err := s.db.SelectContext(ctx, &trials,
		`SELECT run_id, idx, contamination, ensemble_size, precision, recall, f1, fpr, duration_ms
		 FROM tuning_trials WHERE run_id = ? ORDER BY idx ASC`, id); err != nil {
		return nil, fmt.Errorf("get trials for %s: %w", id, err)
	}
	for _, tr := range trials {
		rec.Trials = append(rec.Trials, TrialRecord{
			Index:         tr.Index,
			Contamination: tr.Contamination,
			EnsembleSize:  tr.EnsembleSize,
			Precision:     tr.Precision,
			Recall:        tr.Recall,
			F1:            tr.F1,
			FPR:           tr.FPR,
			Duration:      time.Duration(tr.DurationMS) * time.Millisecond,
		})
	}
	return rec, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+runColumns+` FROM training_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]*RunRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := fromRunRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLiteStore) FindByDigest(ctx context.Context, digest string) (*RunRecord, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		`SELECT id FROM training_runs WHERE artifact_digest = ? ORDER BY started_at DESC LIMIT 1`, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find run by digest: %w", err)
	}
	return s.GetRun(ctx, id)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func toRunRow(rec *RunRecord) (runRow, error) {
	val, err := json.Marshal(rec.Validation)
	if err != nil {
		return runRow{}, err
	}
	var test []byte
	if rec.Test != nil {
		if test, err = json.Marshal(rec.Test); err != nil {
			return runRow{}, err
		}
	}
	return runRow{
		ID:             rec.ID,
		Dataset:        rec.Dataset,
		Status:         rec.Status,
		Error:          rec.Error,
		StartedAt:      rec.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:     rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		Contamination:  rec.Contamination,
		EnsembleSize:   rec.EnsembleSize,
		Seed:           rec.Seed,
		Validation:     string(val),
		Test:           string(test),
		ArtifactPath:   rec.ArtifactPath,
		ArtifactDigest: rec.ArtifactDigest,
		ArtifactSize:   rec.ArtifactSize,
	}, nil
}

func fromRunRow(r runRow) (*RunRecord, error) {
	rec := &RunRecord{
		ID:             r.ID,
		Dataset:        r.Dataset,
		Status:         r.Status,
		Error:          r.Error,
		Contamination:  r.Contamination,
		EnsembleSize:   r.EnsembleSize,
		Seed:           r.Seed,
		ArtifactPath:   r.ArtifactPath,
		ArtifactDigest: r.ArtifactDigest,
		ArtifactSize:   r.ArtifactSize,
	}
	var err error
	if rec.StartedAt, err = parseTime(r.StartedAt); err != nil {
		return nil, err
	}
	if rec.FinishedAt, err = parseTime(r.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Validation), &rec.Validation); err != nil {
		return nil, fmt.Errorf("decode validation metrics of %s: %w", r.ID, err)
	}
	if r.Test != "" {
		var m evaluate.Metrics
		if err := json.Unmarshal([]byte(r.Test), &m); err != nil {
			return nil, fmt.Errorf("decode test metrics of %s: %w", r.ID, err)
		}
		rec.Test = &m
	}
	return rec, nil
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
