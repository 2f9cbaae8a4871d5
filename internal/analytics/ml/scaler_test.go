package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScaler(t *testing.T) {
	s := &StandardScaler{}
	require.NoError(t, s.Fit([][]float64{{8, 1}, {12, 1}}, []string{"bytes", "flag"}))

	assert.Equal(t, []float64{10, 1}, s.Mean())
	assert.Equal(t, []float64{2, 1}, s.Scale(), "population std, constant feature keeps scale 1")
	assert.Equal(t, []string{"bytes", "flag"}, s.FeatureNames())

	out, err := s.Transform([][]float64{{14, 1}, {4, 3}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 0}, {-3, 2}}, out)

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestRobustScaler(t *testing.T) {
	s := &RobustScaler{}
	require.NoError(t, s.Fit([][]float64{{1}, {2}, {3}, {4}, {100}}, []string{"x"}))

	// median 3, Q1 2, Q3 4
	assert.Equal(t, []float64{3}, s.Mean())
	assert.Equal(t, []float64{2}, s.Scale())
}

func TestScalerRejectsBadFit(t *testing.T) {
	assert.Error(t, (&StandardScaler{}).Fit(nil, nil))
	assert.Error(t, (&StandardScaler{}).Fit([][]float64{{1, 2}}, []string{"a"}))
	_, err := (&RobustScaler{}).Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestNewScaler(t *testing.T) {
	s, err := NewScaler("robust")
	require.NoError(t, err)
	assert.Equal(t, KindRobustScaler, s.Kind())

	_, err = NewScaler("minmax")
	assert.Error(t, err)
}

func TestScalerEnvelopeRoundTrip(t *testing.T) {
	s := &StandardScaler{}
	require.NoError(t, s.Fit([][]float64{{1, 10}, {3, 30}}, []string{"a", "b"}))

	env, err := EncodeScaler(s)
	require.NoError(t, err)
	assert.False(t, env.Empty())

	restored, err := DecodeScaler(env)
	require.NoError(t, err)
	assert.Equal(t, s.Mean(), restored.Mean())
	assert.Equal(t, s.Scale(), restored.Scale())
	assert.Equal(t, s.FeatureNames(), restored.FeatureNames())

	_, err = DecodeScaler(Envelope{Kind: "standard", Payload: []byte{0xc0}})
	assert.Error(t, err)
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.75, Quantile(sorted, 0.25))
	assert.Equal(t, 2.5, Quantile(sorted, 0.5))
	assert.Equal(t, 4.0, Quantile(sorted, 1))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestLinspace(t *testing.T) {
	got := Linspace(0.01, 0.1, 10)
	require.Len(t, got, 10)
	assert.InDelta(t, 0.01, got[0], 1e-12)
	assert.InDelta(t, 0.02, got[1], 1e-12)
	assert.InDelta(t, 0.1, got[9], 1e-12)
}
