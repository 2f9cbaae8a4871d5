package tuning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/argus-v/argus-ml/internal/analytics/evaluate"
	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/errs"
	"github.com/argus-v/argus-ml/internal/metrics"
)

// Trial is the outcome of one grid point.
type Trial struct {
	Index           int                      `json:"index"`
	Hyperparameters artifact.Hyperparameters `json:"hyperparameters"`
	Metrics         evaluate.Metrics         `json:"metrics"`
	Duration        time.Duration            `json:"duration"`
}

// TuneResult holds every trial in grid order and the selected one.
type TuneResult struct {
	Trials []Trial `json:"trials"`
	Best   Trial   `json:"best"`
}

// Trainer runs grid search and builds the final artifact.
type Trainer struct {
	cfg       Config
	logger    *zap.Logger
	recorder  RunRecorder
	newScorer ScorerFactory
	newScaler ScalerFactory
}

// NewTrainer creates a Trainer. The feature spec and grids are copied, so
// later changes by the caller do not affect a run.
func NewTrainer(cfg Config, opts ...Option) *Trainer {
	cfg.Spec = cfg.Spec.Clone()
	cfg.ContaminationGrid = sortedFloats(cfg.ContaminationGrid)
	cfg.EnsembleSizes = sortedInts(cfg.EnsembleSizes)
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}

	t := &Trainer{cfg: cfg, logger: zap.NewNop()}
	t.newScorer = func(h artifact.Hyperparameters) ml.AnomalyScorer {
		return ml.NewIsolationForest(
			ml.WithTrees(h.EnsembleSize),
			ml.WithContamination(h.Contamination),
			ml.WithSeed(h.Seed),
			ml.WithSubSampleSize(t.cfg.SubSampleSize),
			ml.WithMaxDepth(t.cfg.MaxDepth),
		)
	}
	t.newScaler = func() (ml.Scaler, error) { return ml.NewScaler(t.cfg.Normalization) }
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("trainer")
	return t
}

// Config returns the effective configuration.
func (t *Trainer) Config() Config { return t.cfg }

// Grid returns the hyperparameter pairs in evaluation order: contamination
// ascending, then ensemble size ascending.
func (t *Trainer) Grid() []artifact.Hyperparameters {
	grid := make([]artifact.Hyperparameters, 0, len(t.cfg.ContaminationGrid)*len(t.cfg.EnsembleSizes))
	for _, c := range t.cfg.ContaminationGrid {
		for _, n := range t.cfg.EnsembleSizes {
			grid = append(grid, artifact.Hyperparameters{Contamination: c, EnsembleSize: n, Seed: t.cfg.Seed})
		}
	}
	return grid
}

// Tune evaluates every grid point on validation and selects the one with
// the greatest (precision, F1). Trials may run in parallel but selection
// walks them in grid order, so earlier points win ties.
func (t *Trainer) Tune(ctx context.Context, train, validation *frame.Frame, labels []int) (*TuneResult, error) {
	trainRows, err := t.matrix(train, "train")
	if err != nil {
		return nil, err
	}
	valRows, err := t.cfg.Spec.Apply(validation)
	if err != nil {
		return nil, err
	}
	if len(valRows) != len(labels) {
		return nil, fmt.Errorf("validation has %d rows but %d labels", len(valRows), len(labels))
	}
	grid := t.Grid()
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty hyperparameter grid")
	}

	trials := make([]Trial, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Parallelism)
	for i, h := range grid {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			m, err := t.trial(trainRows, valRows, labels, h)
			if err != nil {
				return fmt.Errorf("trial contamination=%g ensemble_size=%d: %w", h.Contamination, h.EnsembleSize, err)
			}
			trials[i] = Trial{Index: i, Hyperparameters: h, Metrics: m, Duration: time.Since(start)}
			metrics.TuningTrialsTotal.Inc()
			t.logger.Debug("trial finished",
				zap.Float64("contamination", h.Contamination),
				zap.Int("ensemble_size", h.EnsembleSize),
				zap.Float64("precision", m.Precision),
				zap.Float64("f1", m.F1),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := trials[0]
	for _, tr := range trials[1:] {
		if tr.Metrics.Better(best.Metrics) {
			best = tr
		}
	}
	t.logger.Info("tuning completed",
		zap.Int("trials", len(trials)),
		zap.Float64("contamination", best.Hyperparameters.Contamination),
		zap.Int("ensemble_size", best.Hyperparameters.EnsembleSize),
		zap.Float64("precision", best.Metrics.Precision),
		zap.Float64("f1", best.Metrics.F1),
	)
	return &TuneResult{Trials: trials, Best: best}, nil
}

func (t *Trainer) trial(trainRows, valRows [][]float64, labels []int, h artifact.Hyperparameters) (evaluate.Metrics, error) {
	scaler, scorer, err := t.fit(trainRows, h)
	if err != nil {
		return evaluate.Metrics{}, err
	}
	return evaluateWith(scaler, scorer, valRows, labels)
}

// fit trains a fresh scaler and scorer on rows.
func (t *Trainer) fit(rows [][]float64, h artifact.Hyperparameters) (ml.Scaler, ml.AnomalyScorer, error) {
	scaler, err := t.newScaler()
	if err != nil {
		return nil, nil, err
	}
	if err := scaler.Fit(rows, t.cfg.Spec.Columns()); err != nil {
		return nil, nil, fmt.Errorf("fit scaler: %w", err)
	}
	scaled, err := scaler.Transform(rows)
	if err != nil {
		return nil, nil, err
	}
	scorer := t.newScorer(h)
	if err := scorer.Fit(scaled); err != nil {
		return nil, nil, fmt.Errorf("fit scorer: %w", err)
	}
	return scaler, scorer, nil
}

func evaluateWith(scaler ml.Scaler, scorer ml.AnomalyScorer, rows [][]float64, labels []int) (evaluate.Metrics, error) {
	if len(rows) == 0 {
		return evaluate.Evaluate(labels, []int{})
	}
	scaled, err := scaler.Transform(rows)
	if err != nil {
		return evaluate.Metrics{}, err
	}
	pred, err := ml.Predict(scorer, scaled)
	if err != nil {
		return evaluate.Metrics{}, err
	}
	return evaluate.Evaluate(labels, pred)
}

// matrix applies the feature spec and rejects empty or degenerate data.
func (t *Trainer) matrix(f *frame.Frame, name string) ([][]float64, error) {
	if f == nil || f.Rows() == 0 {
		return nil, &errs.InsufficientDataError{Reason: name + " set is empty"}
	}
	rows, err := t.cfg.Spec.Apply(f)
	if err != nil {
		return nil, err
	}
	if degenerate(rows) {
		return nil, &errs.InsufficientDataError{Reason: name + " set has a single unique row"}
	}
	return rows, nil
}

func degenerate(rows [][]float64) bool {
	for _, r := range rows[1:] {
		for j, v := range r {
			if v != rows[0][j] {
				return false
			}
		}
	}
	return true
}

func sortedFloats(in []float64) []float64 {
	out := append([]float64(nil), in...)
	sort.Float64s(out)
	return out
}

func sortedInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}
