package ml

import (
	"math"
	"math/rand"
	"testing"
)

func gaussianCluster(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
	}
	return rows
}

func TestIsolationForest_Basic(t *testing.T) {
	forest := NewIsolationForest(WithTrees(100), WithContamination(0.05), WithSeed(7))
	if err := forest.Fit(gaussianCluster(256, 1)); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	decision, err := forest.Decision([][]float64{{0, 0}, {10, 20}})
	if err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if decision[0] < 0 {
		t.Errorf("Normal point classified as anomaly. Decision: %f", decision[0])
	}
	if decision[1] >= 0 {
		t.Errorf("Anomalous point not detected. Decision: %f", decision[1])
	}

	scores, _ := forest.Score([][]float64{{0, 0}, {10, 20}})
	if scores[1] <= scores[0] {
		t.Errorf("Anomaly score (%f) should be higher than normal score (%f)", scores[1], scores[0])
	}
}

func TestIsolationForest_SingleDimension(t *testing.T) {
	data := [][]float64{{1.0}, {2.0}, {1.5}, {2.5}, {1.8}}

	forest := NewIsolationForest(WithTrees(10), WithSubSampleSize(3), WithMaxDepth(5))
	if err := forest.Fit(data); err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	scores, err := forest.Score([][]float64{{2.0}, {100.0}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores[1] <= scores[0] {
		t.Errorf("Outlier score (%f) should be higher than normal score (%f)", scores[1], scores[0])
	}
}

func TestIsolationForest_DeterministicForSeed(t *testing.T) {
	data := gaussianCluster(300, 3)
	probe := [][]float64{{0.1, -0.2}, {3, 3}, {-4, 1}}

	a := NewIsolationForest(WithTrees(50), WithSeed(42), WithContamination(0.01))
	b := NewIsolationForest(WithTrees(50), WithSeed(42), WithContamination(0.01))
	if err := a.Fit(data); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(data); err != nil {
		t.Fatal(err)
	}

	sa, _ := a.Score(probe)
	sb, _ := b.Score(probe)
	for i := range sa {
		if sa[i] != sb[i] {
			t.Errorf("row %d: scores differ for the same seed: %f vs %f", i, sa[i], sb[i])
		}
	}
	if a.Threshold() != b.Threshold() {
		t.Errorf("thresholds differ: %f vs %f", a.Threshold(), b.Threshold())
	}
}

func TestIsolationForest_ContaminationBoundsTrainingOutliers(t *testing.T) {
	data := gaussianCluster(200, 5)
	forest := NewIsolationForest(WithTrees(50), WithContamination(0.1))
	if err := forest.Fit(data); err != nil {
		t.Fatal(err)
	}
	labels, err := Predict(forest, data)
	if err != nil {
		t.Fatal(err)
	}
	outliers := 0
	for _, l := range labels {
		outliers += l
	}
	if outliers == 0 || outliers > 20 {
		t.Errorf("expected between 1 and 20 training outliers at contamination 0.1, got %d", outliers)
	}
}

func TestIsolationForest_RejectsBadInput(t *testing.T) {
	if err := NewIsolationForest().Fit(nil); err == nil {
		t.Error("expected error for empty data")
	}
	if err := NewIsolationForest(WithContamination(1)).Fit([][]float64{{1}}); err == nil {
		t.Error("expected error for contamination 1")
	}
	if err := NewIsolationForest().Fit([][]float64{{1, 2}, {1}}); err == nil {
		t.Error("expected error for ragged rows")
	}
	if _, err := NewIsolationForest().Score([][]float64{{1}}); err == nil {
		t.Error("expected error scoring an untrained model")
	}
}

func TestIsolationForest_IdenticalPoints(t *testing.T) {
	data := make([][]float64, 10)
	for i := range data {
		data[i] = []float64{1.0, 1.0}
	}
	forest := NewIsolationForest(WithTrees(10), WithSubSampleSize(5))
	if err := forest.Fit(data); err != nil {
		t.Fatalf("Failed to fit identical data: %v", err)
	}
	scores, err := forest.Score([][]float64{{1.0, 1.0}})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(scores[0]) {
		t.Error("score should not be NaN")
	}
}

func TestIsolationForest_AveragePathLength(t *testing.T) {
	if averagePathLength(1) != 0 {
		t.Errorf("c(1) should be 0")
	}
	if averagePathLength(2) != 1 {
		t.Errorf("c(2) should be 1")
	}
	// c(256) ≈ 10.24
	if got := averagePathLength(256); math.Abs(got-10.24) > 0.05 {
		t.Errorf("c(256) = %f, expected about 10.24", got)
	}
}

func TestIsolationForest_BinaryRoundTrip(t *testing.T) {
	data := gaussianCluster(100, 11)
	forest := NewIsolationForest(WithTrees(20), WithContamination(0.02))
	if err := forest.Fit(data); err != nil {
		t.Fatal(err)
	}
	env, err := EncodeScorer(forest)
	if err != nil {
		t.Fatalf("EncodeScorer: %v", err)
	}
	restored, err := DecodeScorer(env)
	if err != nil {
		t.Fatalf("DecodeScorer: %v", err)
	}

	probe := [][]float64{{0, 0}, {5, 5}}
	want, _ := forest.Decision(probe)
	got, err := restored.Decision(probe)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("row %d: decision %f after round trip, want %f", i, got[i], want[i])
		}
	}
}

func BenchmarkIsolationForest_Fit(b *testing.B) {
	data := gaussianCluster(1000, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		forest := NewIsolationForest(WithTrees(100))
		_ = forest.Fit(data)
	}
}

func BenchmarkIsolationForest_Score(b *testing.B) {
	data := gaussianCluster(1000, 1)
	forest := NewIsolationForest(WithTrees(100))
	_ = forest.Fit(data)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = forest.Score(data[:100])
	}
}
