package tuning

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/dataset"
	"github.com/argus-v/argus-ml/internal/errs"
)

// flows builds a retina frame with normal rows followed by attack rows.
func flows(normal, attacks int, seed int64) *frame.Frame {
	rng := rand.New(rand.NewSource(seed))
	n := normal + attacks
	cols := [5][]float64{}
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if i < normal {
			cols[0][i] = 10 + float64(rng.Intn(10))
			cols[1][i] = 1000 + rng.Float64()*200
			cols[2][i] = 1 + rng.Float64()
			cols[3][i] = 500 + rng.Float64()*100
		} else {
			cols[0][i] = 400 + float64(rng.Intn(100))
			cols[1][i] = 1e7 + rng.Float64()*1e6
			cols[2][i] = 0.001
			cols[3][i] = 1e10 + rng.Float64()*1e9
			cols[4][i] = 1
		}
	}
	return frame.MustNew(
		frame.NumericColumn("packet_count", cols[0]),
		frame.NumericColumn("byte_count", cols[1]),
		frame.NumericColumn("duration_seconds", cols[2]),
		frame.NumericColumn("rate_bps", cols[3]),
		frame.NumericColumn(dataset.LabelColumn, cols[4]),
	)
}

func smallConfig(parallelism int) Config {
	cfg := DefaultConfig()
	cfg.ContaminationGrid = []float64{0.05, 0.01}
	cfg.EnsembleSizes = []int{20, 10}
	cfg.Parallelism = parallelism
	cfg.SubSampleSize = 64
	return cfg
}

func testSplit(t *testing.T) *dataset.Split {
	t.Helper()
	split, err := dataset.BuildSplit(flows(300, 60, 1), flows(50, 10, 2), 0.2, 42)
	require.NoError(t, err)
	return split
}

type memRecorder struct {
	mu   sync.Mutex
	runs []RunRecord
}

func (r *memRecorder) RecordRun(_ context.Context, run RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func TestGridOrder(t *testing.T) {
	tr := NewTrainer(smallConfig(1))
	grid := tr.Grid()
	require.Len(t, grid, 4)
	assert.Equal(t, artifact.Hyperparameters{Contamination: 0.01, EnsembleSize: 10, Seed: 42}, grid[0])
	assert.Equal(t, artifact.Hyperparameters{Contamination: 0.01, EnsembleSize: 20, Seed: 42}, grid[1])
	assert.Equal(t, artifact.Hyperparameters{Contamination: 0.05, EnsembleSize: 10, Seed: 42}, grid[2])
	assert.Equal(t, artifact.Hyperparameters{Contamination: 0.05, EnsembleSize: 20, Seed: 42}, grid[3])
}

func TestTrain(t *testing.T) {
	rec := &memRecorder{}
	tr := NewTrainer(smallConfig(4), WithRecorder(rec))
	split := testSplit(t)

	art, report, err := tr.Train(context.Background(), split)
	require.NoError(t, err)

	assert.Equal(t, "NSL-KDD", art.Dataset)
	assert.Equal(t, "log1p + StandardScaler", art.Transform)
	assert.Equal(t, frame.RetinaSpec().Columns(), art.FeatureColumns)
	assert.Equal(t, report.Tune.Best.Hyperparameters, art.Hyperparameters)
	assert.Len(t, report.Tune.Trials, 4)
	require.NotNil(t, art.TestMetrics)

	// Validation numbers come from the selected trial, which never saw the
	// validation normals. The refit model did, so its score is kept apart.
	assert.Equal(t, report.Tune.Best.Metrics, art.ValidationMetrics)
	assert.Equal(t, report.Tune.Best.Metrics, report.Validation)
	assert.Greater(t, art.ValidationMetrics.Recall, 0.5, "attacks are far from the baseline")
	assert.Equal(t, report.ValidationRefit.TP+report.ValidationRefit.FN, art.ValidationMetrics.TP+art.ValidationMetrics.FN)

	for _, tr := range report.Tune.Trials {
		assert.False(t, tr.Metrics.Better(report.Tune.Best.Metrics), "best must not be beaten by any trial")
	}

	// The final scaler is fit on the full baseline, not the tuning subset.
	baseline, err := frame.RetinaSpec().Apply(split.Baseline)
	require.NoError(t, err)
	want, err := ml.NewScaler(ml.KindStandardScaler)
	require.NoError(t, err)
	require.NoError(t, want.Fit(baseline, frame.RetinaSpec().Columns()))
	assert.Equal(t, want.Mean(), art.Scaler.Mean())

	require.Len(t, rec.runs, 1)
	assert.Equal(t, StatusSuccess, rec.runs[0].Status)
	assert.Equal(t, report.RunID, rec.runs[0].ID)
	assert.Len(t, rec.runs[0].Trials, 4)
	assert.Equal(t, art.ValidationMetrics, rec.runs[0].Validation)
}

func TestTrainedModelDetectsHeldOutAttacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContaminationGrid = []float64{0.1}
	cfg.EnsembleSizes = []int{100}
	cfg.SubSampleSize = 128
	cfg.Parallelism = 2
	split := testSplit(t)

	art, _, err := NewTrainer(cfg).Train(context.Background(), split)
	require.NoError(t, err)
	require.NotNil(t, art.TestMetrics)
	assert.Greater(t, art.TestMetrics.Recall, 0.5)

	rows, err := art.FeatureSpec.Apply(split.Test)
	require.NoError(t, err)
	scaled, err := art.Scaler.Transform(rows)
	require.NoError(t, err)
	scores, err := art.Scorer.Score(scaled)
	require.NoError(t, err)

	var attackSum, normalSum float64
	var attacks, normals int
	for i, s := range scores {
		if split.TestLabels[i] == 1 {
			attackSum += s
			attacks++
		} else {
			normalSum += s
			normals++
		}
	}
	require.NotZero(t, attacks)
	require.NotZero(t, normals)
	assert.Greater(t, attackSum/float64(attacks), normalSum/float64(normals))
}

func TestTuneIsDeterministicAcrossParallelism(t *testing.T) {
	split := testSplit(t)
	serial, err := NewTrainer(smallConfig(1)).Tune(context.Background(), split.Train, split.Validation, split.ValidationLabels)
	require.NoError(t, err)
	parallel, err := NewTrainer(smallConfig(8)).Tune(context.Background(), split.Train, split.Validation, split.ValidationLabels)
	require.NoError(t, err)

	assert.Equal(t, serial.Best.Hyperparameters, parallel.Best.Hyperparameters)
	for i := range serial.Trials {
		assert.Equal(t, serial.Trials[i].Metrics, parallel.Trials[i].Metrics)
	}
}

type constScorer struct{}

func (constScorer) Kind() string          { return "const" }
func (constScorer) Fit([][]float64) error { return nil }
func (constScorer) Score(rows [][]float64) ([]float64, error) {
	return make([]float64, len(rows)), nil
}
func (constScorer) Decision(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i := range out {
		out[i] = 1
	}
	return out, nil
}

func TestTuneTiesKeepFirstGridPoint(t *testing.T) {
	split := testSplit(t)
	tr := NewTrainer(smallConfig(4), WithScorerFactory(func(artifact.Hyperparameters) ml.AnomalyScorer {
		return constScorer{}
	}))
	res, err := tr.Tune(context.Background(), split.Train, split.Validation, split.ValidationLabels)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Best.Index)
	assert.Equal(t, tr.Grid()[0], res.Best.Hyperparameters)
}

func TestTrainInsufficientData(t *testing.T) {
	rec := &memRecorder{}
	tr := NewTrainer(smallConfig(2), WithRecorder(rec))

	same := make([][]float64, 10)
	for i := range same {
		same[i] = []float64{5, 5, 5, 5, 0}
	}
	flat, err := frame.FromMatrix(append(frame.RetinaSpec().Columns(), dataset.LabelColumn), same)
	require.NoError(t, err)
	split, err := dataset.BuildSplit(flat, nil, 0.2, 1)
	require.NoError(t, err)

	_, _, err = tr.Train(context.Background(), split)
	var insufficient *errs.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	require.Len(t, rec.runs, 1)
	assert.Equal(t, StatusInsufficientData, rec.runs[0].Status)

	_, err = tr.Tune(context.Background(), split.Train.Take(nil), split.Validation, split.ValidationLabels)
	assert.True(t, errors.As(err, &insufficient))
}

func TestTuneHonorsCancellation(t *testing.T) {
	split := testSplit(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTrainer(smallConfig(1)).Tune(ctx, split.Train, split.Validation, split.ValidationLabels)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDescribeTransform(t *testing.T) {
	assert.Equal(t, "log1p + StandardScaler", describeTransform(frame.RetinaSpec(), ml.KindStandardScaler))
	assert.Equal(t, "log1p + abs + categorical + RobustScaler", describeTransform(frame.FlowSpec(), ml.KindRobustScaler))
}

func TestSmokeCheck(t *testing.T) {
	tr := NewTrainer(smallConfig(2))
	split := testSplit(t)
	art, _, err := tr.Train(context.Background(), split)
	require.NoError(t, err)

	store := artifact.NewStore(nil)
	path := filepath.Join(t.TempDir(), "model.msgpack")
	_, err = store.Save(path, art)
	require.NoError(t, err)

	res := SmokeCheck(store, path, split.Test, nil)
	assert.True(t, res.OK)
	assert.Equal(t, 5, res.Rows)

	res = SmokeCheck(store, filepath.Join(t.TempDir(), "missing"), split.Test, nil)
	assert.False(t, res.OK)
	assert.Error(t, res.Err)
}
