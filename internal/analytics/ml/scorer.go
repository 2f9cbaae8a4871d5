package ml

// AnomalyScorer is a fitted unsupervised outlier model.
//
// Score returns a continuous anomaly score per row where higher means more
// anomalous. Decision returns the signed distance to the contamination
// threshold: negative values are outliers. Implementations must be safe for
// concurrent Score and Decision calls once Fit has returned.
type AnomalyScorer interface {
	Kind() string
	Fit(rows [][]float64) error
	Score(rows [][]float64) ([]float64, error)
	Decision(rows [][]float64) ([]float64, error)
}

// Scaler standardizes feature vectors with statistics learned once by Fit.
// For a standard scaler Mean/Scale are mean and standard deviation; for a
// robust scaler they are median and interquartile range.
type Scaler interface {
	Kind() string
	Fit(rows [][]float64, names []string) error
	Transform(rows [][]float64) ([][]float64, error)
	FeatureNames() []string
	Mean() []float64
	Scale() []float64
}

// Severity represents the severity level of a scored record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ScoreSeverity maps an anomaly score in [0, 1] to a severity level.
func ScoreSeverity(score float64) Severity {
	if score > 0.85 {
		return SeverityCritical
	} else if score > 0.75 {
		return SeverityHigh
	} else if score > 0.65 {
		return SeverityMedium
	}
	return SeverityLow
}

// Predict converts decision values to 1 (attack) / 0 (normal) labels.
func Predict(s AnomalyScorer, rows [][]float64) ([]int, error) {
	decision, err := s.Decision(rows)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(decision))
	for i, d := range decision {
		if d < 0 {
			labels[i] = 1
		}
	}
	return labels, nil
}
