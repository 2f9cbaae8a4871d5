package preprocess

import (
	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
	"github.com/argus-v/argus-ml/internal/metrics"
)

// RemovalThreshold is the smallest IQR multiplier at which flagged rows are
// dropped rather than only counted.
const RemovalThreshold = 3.0

// FeatureOutliers counts out-of-bound rows for one column.
type FeatureOutliers struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Lower      float64 `json:"lower_bound"`
	Upper      float64 `json:"upper_bound"`
}

// OutlierStats summarizes an outlier pass.
type OutlierStats struct {
	Threshold         float64                    `json:"threshold"`
	InitialRows       int                        `json:"initial_rows"`
	FinalRows         int                        `json:"final_rows"`
	TotalOutliers     int                        `json:"total_outliers"`
	OutliersByFeature map[string]FeatureOutliers `json:"outliers_by_feature"`
	RemovalPercentage float64                    `json:"removal_percentage"`
}

// DetectFeatureOutliers flags values outside [Q1 - t*IQR, Q3 + t*IQR] for
// each numeric column in order. When t >= RemovalThreshold flagged rows are
// removed column by column, so later bounds come from the cleaned frame;
// otherwise the frame is returned unchanged. TotalOutliers counts removed rows.
func (p *Preprocessor) DetectFeatureOutliers(f *frame.Frame, threshold float64) (*frame.Frame, OutlierStats) {
	stats := OutlierStats{
		Threshold:         threshold,
		InitialRows:       f.Rows(),
		OutliersByFeature: make(map[string]FeatureOutliers),
	}
	remove := threshold >= RemovalThreshold

	cleaned := f
	for _, name := range f.NumericNames() {
		values, _ := cleaned.Floats(name)
		if len(values) == 0 {
			stats.OutliersByFeature[name] = FeatureOutliers{}
			continue
		}
		q1, _, q3 := ml.Quartiles(values)
		iqr := q3 - q1
		lower, upper := q1-threshold*iqr, q3+threshold*iqr

		keep := make([]bool, len(values))
		count := 0
		for i, v := range values {
			keep[i] = !(v < lower || v > upper)
			if !keep[i] {
				count++
			}
		}
		stats.OutliersByFeature[name] = FeatureOutliers{
			Count:      count,
			Percentage: float64(count) / float64(len(values)) * 100,
			Lower:      lower,
			Upper:      upper,
		}
		if remove && count > 0 {
			cleaned = cleaned.Filter(keep)
		}
	}

	stats.FinalRows = cleaned.Rows()
	stats.TotalOutliers = stats.InitialRows - stats.FinalRows
	if stats.InitialRows > 0 {
		stats.RemovalPercentage = float64(stats.TotalOutliers) / float64(stats.InitialRows) * 100
	}
	metrics.OutlierRowsRemoved.Add(float64(stats.TotalOutliers))

	p.logger.Info("outlier detection completed",
		zap.Float64("threshold", threshold),
		zap.Int("initial_rows", stats.InitialRows),
		zap.Int("final_rows", stats.FinalRows),
		zap.Float64("removal_percentage", stats.RemovalPercentage),
	)
	return cleaned, stats
}
