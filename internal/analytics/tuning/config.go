package tuning

import (
	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/artifact"
)

// Config controls a training run.
type Config struct {
	Dataset           string
	Spec              frame.FeatureSpec
	ContaminationGrid []float64
	EnsembleSizes     []int
	Seed              int64
	Parallelism       int
	SubSampleSize     int
	MaxDepth          int
	Normalization     string
	MinTestPrecision  float64
}

// DefaultConfig returns the grid used for NSL-KDD training.
func DefaultConfig() Config {
	return Config{
		Dataset:           "NSL-KDD",
		Spec:              frame.RetinaSpec(),
		ContaminationGrid: []float64{0.001, 0.002, 0.005, 0.01, 0.02},
		EnsembleSizes:     []int{100, 200, 400},
		Seed:              42,
		Parallelism:       4,
		SubSampleSize:     256,
		Normalization:     ml.KindStandardScaler,
		MinTestPrecision:  0.85,
	}
}

// ScorerFactory builds an unfitted scorer for one hyperparameter pair.
type ScorerFactory func(h artifact.Hyperparameters) ml.AnomalyScorer

// ScalerFactory builds an unfitted scaler.
type ScalerFactory func() (ml.Scaler, error)

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRecorder records every run and its trials.
func WithRecorder(r RunRecorder) Option { return func(t *Trainer) { t.recorder = r } }

// WithScorerFactory replaces the isolation forest.
func WithScorerFactory(f ScorerFactory) Option { return func(t *Trainer) { t.newScorer = f } }

// WithScalerFactory replaces the scaler chosen by Config.Normalization.
func WithScalerFactory(f ScalerFactory) Option { return func(t *Trainer) { t.newScaler = f } }
