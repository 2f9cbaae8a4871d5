package inference

import (
	"fmt"
	"math"
	"sort"

	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/metrics"
)

// ExplanationUnavailable is returned in place of explanations when no
// scaler statistics are loaded.
const ExplanationUnavailable = "Explanation unavailable (no scaler stats)"

// Explainer ranks the features of a record by their standardized
// deviation from the scaler's baseline statistics.
type Explainer struct {
	scaler ml.Scaler
}

// NewExplainer creates an Explainer. A nil scaler is allowed; Explain then
// returns the unavailable sentinel.
func NewExplainer(scaler ml.Scaler) *Explainer {
	return &Explainer{scaler: scaler}
}

type deviation struct {
	name string
	z    float64
}

// Explain returns up to topK strings such as "rate_bps (+2.0σ)", most
// deviant first. Features absent from the scaler are ignored and equal
// deviations keep the scaler's feature order. topK <= 0 returns all.
// Explain never fails: without a scaler it returns the sentinel and with
// no shared features it returns an empty slice.
func (x *Explainer) Explain(record map[string]float64, topK int) []string {
	if x == nil || x.scaler == nil {
		metrics.ExplanationsUnavailable.Inc()
		return []string{ExplanationUnavailable}
	}
	names, mean, scale := x.scaler.FeatureNames(), x.scaler.Mean(), x.scaler.Scale()

	devs := make([]deviation, 0, len(names))
	for i, name := range names {
		v, ok := record[name]
		if !ok {
			continue
		}
		s := scale[i]
		if s == 0 {
			s = 1
		}
		devs = append(devs, deviation{name: name, z: (v - mean[i]) / s})
	}
	sort.SliceStable(devs, func(i, j int) bool {
		return math.Abs(devs[i].z) > math.Abs(devs[j].z)
	})
	if topK > 0 && topK < len(devs) {
		devs = devs[:topK]
	}

	out := make([]string, len(devs))
	for i, d := range devs {
		sign := "+"
		if d.z < 0 {
			sign = "-"
		}
		out[i] = fmt.Sprintf("%s (%s%.1fσ)", d.name, sign, math.Abs(d.z))
	}
	return out
}
