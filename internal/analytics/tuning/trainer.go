package tuning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/evaluate"
	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/dataset"
	"github.com/argus-v/argus-ml/internal/errs"
	"github.com/argus-v/argus-ml/internal/metrics"
)

// Run statuses recorded for a training run.
const (
	StatusSuccess          = "success"
	StatusInsufficientData = "insufficient_data"
	StatusError            = "error"
)

// RunRecord summarizes a finished training run for a RunRecorder.
type RunRecord struct {
	ID              string
	Dataset         string
	Status          string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Hyperparameters artifact.Hyperparameters
	Validation      evaluate.Metrics
	Test            *evaluate.Metrics
	Trials          []Trial
}

// RunRecorder persists training runs. It is called once per Train, after
// the outcome is known.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// TrainReport describes a successful run.
type TrainReport struct {
	RunID string      `json:"run_id"`
	Tune  *TuneResult `json:"tune"`
	// Validation is the selected trial's score on the held-out validation
	// rows, measured before the refit.
	Validation evaluate.Metrics `json:"validation_metrics"`
	// ValidationRefit scores the refit model on the same rows. The baseline
	// contains the validation normals, so this is not a held-out number.
	ValidationRefit evaluate.Metrics  `json:"validation_refit_metrics"`
	Test            *evaluate.Metrics `json:"test_metrics,omitempty"`
	Duration        time.Duration     `json:"duration"`
	Warnings        []string          `json:"warnings,omitempty"`
}

// Train tunes on split.Train and split.Validation, refits the winning
// configuration on the full baseline and evaluates it. Nothing is written
// to disk; the caller persists the returned artifact.
func (t *Trainer) Train(ctx context.Context, split *dataset.Split) (*artifact.ModelArtifact, *TrainReport, error) {
	start := time.Now()
	run := RunRecord{ID: uuid.New().String(), Dataset: t.cfg.Dataset, StartedAt: start.UTC()}

	art, report, err := t.train(ctx, split, &run)

	run.FinishedAt = time.Now().UTC()
	run.Status = StatusSuccess
	var insufficient *errs.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		run.Status = StatusInsufficientData
	case err != nil:
		run.Status = StatusError
	}
	if err != nil {
		run.Error = err.Error()
	}
	metrics.TrainingRunsTotal.WithLabelValues(run.Status).Inc()
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())

	if t.recorder != nil {
		if rerr := t.recorder.RecordRun(ctx, run); rerr != nil {
			t.logger.Warn("failed to record training run", zap.String("run_id", run.ID), zap.Error(rerr))
		}
	}
	if err != nil {
		t.logger.Error("training failed", zap.String("run_id", run.ID), zap.Error(err))
		return nil, nil, err
	}
	report.RunID = run.ID
	report.Duration = time.Since(start)
	return art, report, nil
}

func (t *Trainer) train(ctx context.Context, split *dataset.Split, run *RunRecord) (*artifact.ModelArtifact, *TrainReport, error) {
	if split == nil {
		return nil, nil, &errs.InsufficientDataError{Reason: "no split"}
	}
	baseline, err := t.matrix(split.Baseline, "baseline")
	if err != nil {
		return nil, nil, err
	}

	tuned, err := t.Tune(ctx, split.Train, split.Validation, split.ValidationLabels)
	if err != nil {
		return nil, nil, err
	}
	run.Trials = tuned.Trials
	best := tuned.Best.Hyperparameters
	run.Hyperparameters = best

	scaler, scorer, err := t.fit(baseline, best)
	if err != nil {
		return nil, nil, fmt.Errorf("final fit: %w", err)
	}

	report := &TrainReport{Tune: tuned, Validation: tuned.Best.Metrics}
	valRows, err := t.cfg.Spec.Apply(split.Validation)
	if err != nil {
		return nil, nil, err
	}
	if report.ValidationRefit, err = evaluateWith(scaler, scorer, valRows, split.ValidationLabels); err != nil {
		return nil, nil, fmt.Errorf("evaluate validation: %w", err)
	}
	run.Validation = report.Validation
	setSelected("validation", report.Validation)

	if split.Test != nil {
		testRows, err := t.cfg.Spec.Apply(split.Test)
		if err != nil {
			return nil, nil, fmt.Errorf("test set: %w", err)
		}
		m, err := evaluateWith(scaler, scorer, testRows, split.TestLabels)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate test: %w", err)
		}
		report.Test = &m
		run.Test = &m
		setSelected("test", m)
		if m.Precision < t.cfg.MinTestPrecision {
			msg := fmt.Sprintf("test precision %.3f is below %.2f", m.Precision, t.cfg.MinTestPrecision)
			report.Warnings = append(report.Warnings, msg)
			t.logger.Warn("selected model underperforms on test set",
				zap.Float64("precision", m.Precision),
				zap.Float64("min_precision", t.cfg.MinTestPrecision),
			)
		}
	}

	art := &artifact.ModelArtifact{
		TrainedAt:         time.Now().UTC(),
		Dataset:           t.cfg.Dataset,
		FeatureSpec:       t.cfg.Spec.Clone(),
		FeatureColumns:    t.cfg.Spec.Columns(),
		Transform:         describeTransform(t.cfg.Spec, scaler.Kind()),
		Hyperparameters:   best,
		ValidationMetrics: report.Validation,
		TestMetrics:       report.Test,
		Scorer:            scorer,
		Scaler:            scaler,
	}
	t.logger.Info("training completed",
		zap.String("dataset", art.Dataset),
		zap.String("features", t.cfg.Spec.Describe()),
		zap.Float64("contamination", best.Contamination),
		zap.Int("ensemble_size", best.EnsembleSize),
		zap.Float64("validation_precision", report.Validation.Precision),
		zap.Float64("validation_f1", report.Validation.F1),
		zap.Float64("validation_refit_recall", report.ValidationRefit.Recall),
	)
	return art, report, nil
}

func setSelected(split string, m evaluate.Metrics) {
	for k, v := range m.AsMap() {
		metrics.SelectedModelMetric.WithLabelValues(split, k).Set(v)
	}
}

var scalerNames = map[string]string{
	ml.KindStandardScaler: "StandardScaler",
	ml.KindRobustScaler:   "RobustScaler",
}

// describeTransform renders e.g. "log1p + StandardScaler".
func describeTransform(spec frame.FeatureSpec, scalerKind string) string {
	var parts []string
	seen := map[frame.Transform]bool{}
	for _, f := range spec.Features {
		if f.Transform == frame.TransformPassthrough || seen[f.Transform] {
			continue
		}
		seen[f.Transform] = true
		parts = append(parts, string(f.Transform))
	}
	name, ok := scalerNames[scalerKind]
	if !ok {
		name = scalerKind
	}
	return strings.Join(append(parts, name), " + ")
}
