// Package inference scores flow records against a trained artifact and
// explains the results.
package inference

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/metrics"
)

// Prediction is the verdict for one row. Score is the signed decision value
// (negative means anomalous); AnomalyScore is the scorer's raw score in [0, 1].
type Prediction struct {
	IsAnomaly    bool        `json:"is_anomaly"`
	Score        float64     `json:"score"`
	AnomalyScore float64     `json:"anomaly_score"`
	Severity     ml.Severity `json:"severity"`
}

// Engine scores frames with a loaded artifact. It never refits the scaler
// and is safe for concurrent use.
type Engine struct {
	art       *artifact.ModelArtifact
	explainer *Explainer
	logger    *zap.Logger
}

// NewEngine wraps art. A nil logger disables logging.
func NewEngine(art *artifact.ModelArtifact, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		art:       art,
		explainer: NewExplainer(art.Scaler),
		logger:    logger.Named("inference"),
	}
}

// Artifact returns the artifact backing the engine.
func (e *Engine) Artifact() *artifact.ModelArtifact { return e.art }

// PredictFlows validates f against the artifact's feature spec, applies the
// spec transforms and the stored scaler, and scores every row.
func (e *Engine) PredictFlows(f *frame.Frame) ([]Prediction, error) {
	start := time.Now()
	defer func() { metrics.InferenceDuration.Observe(time.Since(start).Seconds()) }()

	scaled, err := e.features(f)
	if err != nil {
		return nil, err
	}
	decision, err := e.art.Scorer.Decision(scaled)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	raw, err := e.art.Scorer.Score(scaled)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	out := make([]Prediction, len(decision))
	anomalies := 0
	for i, d := range decision {
		out[i] = Prediction{
			IsAnomaly:    d < 0,
			Score:        d,
			AnomalyScore: raw[i],
			Severity:     ml.ScoreSeverity(raw[i]),
		}
		if out[i].IsAnomaly {
			anomalies++
		}
	}
	metrics.PredictionsTotal.WithLabelValues("anomaly").Add(float64(anomalies))
	metrics.PredictionsTotal.WithLabelValues("normal").Add(float64(len(out) - anomalies))
	e.logger.Debug("scored flows", zap.Int("rows", len(out)), zap.Int("anomalies", anomalies))
	return out, nil
}

// Explain ranks the deviations of an already transformed record.
func (e *Engine) Explain(record map[string]float64, topK int) []string {
	return e.explainer.Explain(record, topK)
}

// ExplainRow transforms row i of f through the feature spec and explains
// it against the scaler statistics.
func (e *Engine) ExplainRow(f *frame.Frame, i, topK int) ([]string, error) {
	if i < 0 || i >= f.Rows() {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, f.Rows())
	}
	m, err := e.art.FeatureSpec.Apply(f.Take([]int{i}))
	if err != nil {
		return nil, err
	}
	names := e.art.FeatureSpec.Columns()
	record := make(map[string]float64, len(names))
	for j, name := range names {
		record[name] = m[0][j]
	}
	return e.explainer.Explain(record, topK), nil
}

func (e *Engine) features(f *frame.Frame) ([][]float64, error) {
	m, err := e.art.FeatureSpec.Apply(f)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return m, nil
	}
	return e.art.Scaler.Transform(m)
}
