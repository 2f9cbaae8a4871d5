package db

import (
	"context"

	"github.com/argus-v/argus-ml/internal/analytics/tuning"
)

// RunRecorder stores tuning runs in a RunStore.
type RunRecorder struct {
	store RunStore
}

// NewRunRecorder adapts store to tuning.RunRecorder.
func NewRunRecorder(store RunStore) *RunRecorder {
	return &RunRecorder{store: store}
}

// RecordRun implements tuning.RunRecorder.
func (r *RunRecorder) RecordRun(ctx context.Context, run tuning.RunRecord) error {
	rec := &RunRecord{
		ID:            run.ID,
		Dataset:       run.Dataset,
		Status:        run.Status,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Contamination: run.Hyperparameters.Contamination,
		EnsembleSize:  run.Hyperparameters.EnsembleSize,
		Seed:          run.Hyperparameters.Seed,
		Validation:    run.Validation,
		Test:          run.Test,
	}
	for _, tr := range run.Trials {
		rec.Trials = append(rec.Trials, TrialRecord{
			Index:         tr.Index,
			Contamination: tr.Hyperparameters.Contamination,
			EnsembleSize:  tr.Hyperparameters.EnsembleSize,
			Precision:     tr.Metrics.Precision,
			Recall:        tr.Metrics.Recall,
			F1:            tr.Metrics.F1,
			FPR:           tr.Metrics.FPR,
			Duration:      tr.Duration,
		})
	}
	return r.store.SaveRun(ctx, rec)
}

var _ tuning.RunRecorder = (*RunRecorder)(nil)
