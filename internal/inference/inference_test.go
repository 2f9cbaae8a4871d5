package inference

import (
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/errs"
)

func fitScaler(t *testing.T, names []string, rows [][]float64) ml.Scaler {
	t.Helper()
	s, err := ml.NewScaler(ml.KindStandardScaler)
	require.NoError(t, err)
	require.NoError(t, s.Fit(rows, names))
	return s
}

func TestExplainOrdersByAbsoluteDeviation(t *testing.T) {
	// mean 0, scale 1 for every feature
	s := fitScaler(t, []string{"F1", "F2", "F3"}, [][]float64{{-1, -1, -1}, {1, 1, 1}})
	x := NewExplainer(s)

	got := x.Explain(map[string]float64{"F1": 10, "F2": -20, "F3": 5}, 3)
	assert.Equal(t, []string{"F2 (-20.0σ)", "F1 (+10.0σ)", "F3 (+5.0σ)"}, got)

	assert.Equal(t, []string{"F2 (-20.0σ)"}, x.Explain(map[string]float64{"F1": 10, "F2": -20, "F3": 5}, 1))
	assert.Len(t, x.Explain(map[string]float64{"F1": 10, "F2": -20, "F3": 5}, 0), 3)
}

func TestExplainFormatting(t *testing.T) {
	x := NewExplainer(fitScaler(t, []string{"feature"}, [][]float64{{8}, {12}}))

	assert.Equal(t, []string{"feature (+2.0σ)"}, x.Explain(map[string]float64{"feature": 14}, 1))
	assert.Equal(t, []string{"feature (-3.0σ)"}, x.Explain(map[string]float64{"feature": 4}, 1))
	assert.Equal(t, []string{"feature (+0.0σ)"}, x.Explain(map[string]float64{"feature": 10}, 1))
}

func TestExplainSoftFailures(t *testing.T) {
	assert.Equal(t, []string{ExplanationUnavailable}, NewExplainer(nil).Explain(map[string]float64{"a": 1}, 3))

	x := NewExplainer(fitScaler(t, []string{"a"}, [][]float64{{1}, {3}}))
	got := x.Explain(map[string]float64{"b": 1}, 3)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExplainTiesKeepScalerOrder(t *testing.T) {
	x := NewExplainer(fitScaler(t, []string{"b", "a"}, [][]float64{{-1, -1}, {1, 1}}))
	assert.Equal(t, []string{"b (+2.0σ)", "a (-2.0σ)"}, x.Explain(map[string]float64{"a": -2, "b": 2}, 0))
}

func retinaFrame(rows [][]float64) *frame.Frame {
	f, err := frame.FromMatrix(frame.RetinaSpec().Columns(), rows)
	if err != nil {
		panic(err)
	}
	return f
}

func trainedArtifact(t *testing.T) *artifact.ModelArtifact {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	rows := make([][]float64, 300)
	for i := range rows {
		rows[i] = []float64{
			10 + float64(rng.Intn(10)),
			1000 + rng.Float64()*200,
			1 + rng.Float64(),
			500 + rng.Float64()*100,
		}
	}
	spec := frame.RetinaSpec()
	m, err := spec.Apply(retinaFrame(rows))
	require.NoError(t, err)

	scaler := fitScaler(t, spec.Columns(), m)
	scaled, err := scaler.Transform(m)
	require.NoError(t, err)
	forest := ml.NewIsolationForest(ml.WithTrees(100), ml.WithContamination(0.02), ml.WithSeed(42))
	require.NoError(t, forest.Fit(scaled))

	return &artifact.ModelArtifact{
		TrainedAt:       time.Now().UTC(),
		Dataset:         "test",
		FeatureSpec:     spec,
		FeatureColumns:  spec.Columns(),
		Transform:       "log1p + StandardScaler",
		Hyperparameters: artifact.Hyperparameters{Contamination: 0.02, EnsembleSize: 100, Seed: 42},
		Scorer:          forest,
		Scaler:          scaler,
	}
}

func TestPredictFlows(t *testing.T) {
	e := NewEngine(trainedArtifact(t), nil)

	preds, err := e.PredictFlows(retinaFrame([][]float64{
		{14, 1100, 1.5, 550},
		{90000, 5e9, 0.001, 5e12},
	}))
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.False(t, preds[0].IsAnomaly)
	assert.Greater(t, preds[0].Score, 0.0)
	assert.True(t, preds[1].IsAnomaly)
	assert.Less(t, preds[1].Score, 0.0)
	assert.Greater(t, preds[1].AnomalyScore, preds[0].AnomalyScore)
	for _, p := range preds {
		assert.Equal(t, ml.ScoreSeverity(p.AnomalyScore), p.Severity)
	}

	_, err = e.PredictFlows(frame.MustNew(frame.NumericColumn("packet_count", []float64{1})))
	var schemaErr *errs.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"byte_count", "duration_seconds", "rate_bps"}, schemaErr.Missing)
}

func TestExplainRowUsesTransformedFeatures(t *testing.T) {
	e := NewEngine(trainedArtifact(t), nil)

	got, err := e.ExplainRow(retinaFrame([][]float64{{14, 1100, 1.5, 5e12}}), 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "rate_bps (+")

	_, err = e.ExplainRow(retinaFrame([][]float64{{1, 1, 1, 1}}), 3, 1)
	assert.Error(t, err)
}

func TestLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.msgpack")
	store := artifact.NewStore(nil)
	l := NewLoader(path, store, nil)

	_, err := l.Engine()
	require.Error(t, err)
	assert.False(t, l.Loaded(), "failed loads are not cached")

	_, err = store.Save(path, trainedArtifact(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	engines := make([]*Engine, 8)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engines[i], _ = l.Engine()
		}(i)
	}
	wg.Wait()
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}

	reloaded, err := l.Reload()
	require.NoError(t, err)
	assert.NotSame(t, engines[0], reloaded)
	current, err := l.Engine()
	require.NoError(t, err)
	assert.Same(t, reloaded, current)
}
