// Package artifact defines the persisted model bundle and its store.
package artifact

import (
	"time"

	"github.com/argus-v/argus-ml/internal/analytics/evaluate"
	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
)

// Hyperparameters are the values selected by tuning.
type Hyperparameters struct {
	Contamination float64 `msgpack:"contamination" json:"contamination"`
	EnsembleSize  int     `msgpack:"ensemble_size" json:"ensemble_size"`
	Seed          int64   `msgpack:"seed" json:"seed"`
}

// ModelArtifact is everything inference needs: the feature spec, the fitted
// scaler and scorer, and the metrics that justified selecting them. It is
// never modified after a training run returns it.
type ModelArtifact struct {
	TrainedAt         time.Time
	Dataset           string
	FeatureSpec       frame.FeatureSpec
	FeatureColumns    []string
	Transform         string
	Hyperparameters   Hyperparameters
	ValidationMetrics evaluate.Metrics
	TestMetrics       *evaluate.Metrics
	Scorer            ml.AnomalyScorer
	Scaler            ml.Scaler
}

// blob is the on-disk layout.
type blob struct {
	TrainedAt         time.Time         `msgpack:"trained_at"`
	Dataset           string            `msgpack:"dataset"`
	FeatureSpec       frame.FeatureSpec `msgpack:"feature_spec"`
	FeatureColumns    []string          `msgpack:"feature_columns"`
	Transform         string            `msgpack:"transform"`
	Hyperparameters   Hyperparameters   `msgpack:"hyperparameters"`
	ValidationMetrics evaluate.Metrics  `msgpack:"validation_metrics"`
	TestMetrics       *evaluate.Metrics `msgpack:"test_metrics"`
	Scorer            ml.Envelope       `msgpack:"scorer"`
	Scaler            ml.Envelope       `msgpack:"scaler"`
}
