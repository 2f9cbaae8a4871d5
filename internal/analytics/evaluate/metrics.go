// Package evaluate computes binary detection metrics from paired ground-truth
// and predicted labels, where 1 marks an attack and 0 marks normal traffic.
package evaluate

import "fmt"

// Metrics holds confusion counts and the ratios derived from them. A ratio
// whose denominator is zero is reported as 0.
type Metrics struct {
	TP        int     `json:"tp" msgpack:"tp"`
	FP        int     `json:"fp" msgpack:"fp"`
	TN        int     `json:"tn" msgpack:"tn"`
	FN        int     `json:"fn" msgpack:"fn"`
	Precision float64 `json:"precision" msgpack:"precision"`
	Recall    float64 `json:"recall" msgpack:"recall"`
	F1        float64 `json:"f1" msgpack:"f1"`
	TPR       float64 `json:"tpr" msgpack:"tpr"`
	FPR       float64 `json:"fpr" msgpack:"fpr"`
}

// Evaluate compares truth and pred element-wise.
func Evaluate(truth, pred []int) (Metrics, error) {
	if len(truth) != len(pred) {
		return Metrics{}, fmt.Errorf("label length mismatch: %d truth vs %d predicted", len(truth), len(pred))
	}
	var m Metrics
	for i := range truth {
		t, p := truth[i], pred[i]
		if (t != 0 && t != 1) || (p != 0 && p != 1) {
			return Metrics{}, fmt.Errorf("row %d: labels must be 0 or 1, got truth=%d pred=%d", i, t, p)
		}
		switch {
		case t == 1 && p == 1:
			m.TP++
		case t == 0 && p == 1:
			m.FP++
		case t == 0 && p == 0:
			m.TN++
		default:
			m.FN++
		}
	}
	m.Precision = ratio(m.TP, m.TP+m.FP)
	m.Recall = ratio(m.TP, m.TP+m.FN)
	m.TPR = m.Recall
	m.FPR = ratio(m.FP, m.FP+m.TN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// AsMap flattens the metrics into the map form stored with artifacts.
func (m Metrics) AsMap() map[string]float64 {
	return map[string]float64{
		"tp":        float64(m.TP),
		"fp":        float64(m.FP),
		"tn":        float64(m.TN),
		"fn":        float64(m.FN),
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
		"tpr":       m.TPR,
		"fpr":       m.FPR,
	}
}

// Better reports whether m beats other under the model-selection rule:
// greater precision, then greater F1. Equal tuples are not better.
func (m Metrics) Better(other Metrics) bool {
	if m.Precision != other.Precision {
		return m.Precision > other.Precision
	}
	return m.F1 > other.F1
}
