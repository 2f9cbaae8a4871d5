// Package db persists the training-run registry.
package db

import (
	"context"
	"time"

	"github.com/argus-v/argus-ml/internal/analytics/evaluate"
)

// Store is the persistence interface for the run registry.
type Store interface {
	RunStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Training runs ────────────────────────────────────────────────────────────

// RunRecord is one training run and, when loaded with GetRun, its trials.
type RunRecord struct {
	ID             string            `json:"id"`
	Dataset        string            `json:"dataset"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Contamination  float64           `json:"contamination"`
	EnsembleSize   int               `json:"ensemble_size"`
	Seed           int64             `json:"seed"`
	Validation     evaluate.Metrics  `json:"validation_metrics"`
	Test           *evaluate.Metrics `json:"test_metrics,omitempty"`
	ArtifactPath   string            `json:"artifact_path,omitempty"`
	ArtifactDigest string            `json:"artifact_digest,omitempty"` // BLAKE3-256, hex
	ArtifactSize   int64             `json:"artifact_size,omitempty"`
	Trials         []TrialRecord     `json:"trials,omitempty"`
}

// TrialRecord is one evaluated grid point of a run.
type TrialRecord struct {
	Index         int           `json:"index"`
	Contamination float64       `json:"contamination"`
	EnsembleSize  int           `json:"ensemble_size"`
	Precision     float64       `json:"precision"`
	Recall        float64       `json:"recall"`
	F1            float64       `json:"f1"`
	FPR           float64       `json:"fpr"`
	Duration      time.Duration `json:"duration"`
}

// RunStore persists training runs.
type RunStore interface {
	// SaveRun inserts or replaces a run and its trials.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// AttachArtifact records where a run's artifact was written.
	AttachArtifact(ctx context.Context, runID, path, digest string, size int64) error

	// GetRun returns a run with its trials, or nil, nil if absent.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns runs newest first, without trials.
	ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error)

	// FindByDigest returns the newest run whose artifact has digest.
	FindByDigest(ctx context.Context, digest string) (*RunRecord, error)
}
