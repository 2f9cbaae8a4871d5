package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Quantile returns the q-quantile (0 <= q <= 1) of ascending-sorted values
// using linear interpolation between closest ranks, the convention of
// pandas and numpy. It returns NaN for empty input.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Quartiles returns Q1, the median and Q3 of values. values is not modified.
func Quartiles(values []float64) (q1, median, q3 float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Quantile(sorted, 0.25), Quantile(sorted, 0.5), Quantile(sorted, 0.75)
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// column extracts column j of row-major data.
func column(rows [][]float64, j int) []float64 {
	col := make([]float64, len(rows))
	for i, r := range rows {
		col[i] = r[j]
	}
	return col
}
