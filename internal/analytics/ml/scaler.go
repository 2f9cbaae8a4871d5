package ml

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/stat"
)

const (
	KindStandardScaler = "standard"
	KindRobustScaler   = "robust"
)

// NewScaler returns an unfitted scaler of the given kind.
func NewScaler(kind string) (Scaler, error) {
	switch kind {
	case KindStandardScaler, "":
		return &StandardScaler{}, nil
	case KindRobustScaler:
		return &RobustScaler{}, nil
	default:
		return nil, fmt.Errorf("unknown scaler kind %q", kind)
	}
}

// scalerState is shared by both scalers: centre and scale per feature.
type scalerState struct {
	Names  []string  `msgpack:"names"`
	Center []float64 `msgpack:"center"`
	Spread []float64 `msgpack:"spread"`
}

func (s *scalerState) fit(rows [][]float64, names []string, stats func(col []float64) (float64, float64)) error {
	if len(rows) == 0 {
		return fmt.Errorf("scaler: no rows to fit")
	}
	dims := len(rows[0])
	if len(names) != dims {
		return fmt.Errorf("scaler: %d names for %d features", len(names), dims)
	}
	for i, r := range rows {
		if len(r) != dims {
			return fmt.Errorf("scaler: row %d has %d features, expected %d", i, len(r), dims)
		}
	}
	s.Names = append([]string(nil), names...)
	s.Center = make([]float64, dims)
	s.Spread = make([]float64, dims)
	for j := 0; j < dims; j++ {
		c, sp := stats(column(rows, j))
		// Constant features are centred but left unscaled.
		if sp == 0 {
			sp = 1
		}
		s.Center[j], s.Spread[j] = c, sp
	}
	return nil
}

func (s *scalerState) transform(rows [][]float64) ([][]float64, error) {
	if s.Center == nil {
		return nil, fmt.Errorf("scaler: not fitted")
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		if len(r) != len(s.Center) {
			return nil, fmt.Errorf("scaler: row %d has %d features, expected %d", i, len(r), len(s.Center))
		}
		o := make([]float64, len(r))
		for j, v := range r {
			o[j] = (v - s.Center[j]) / s.Spread[j]
		}
		out[i] = o
	}
	return out, nil
}

// StandardScaler centres on the mean and divides by the population
// standard deviation.
type StandardScaler struct {
	st scalerState
}

func (s *StandardScaler) Kind() string { return KindStandardScaler }

func (s *StandardScaler) Fit(rows [][]float64, names []string) error {
	return s.st.fit(rows, names, func(col []float64) (float64, float64) {
		return stat.PopMeanStdDev(col, nil)
	})
}

func (s *StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	return s.st.transform(rows)
}

func (s *StandardScaler) FeatureNames() []string { return append([]string(nil), s.st.Names...) }
func (s *StandardScaler) Mean() []float64        { return append([]float64(nil), s.st.Center...) }
func (s *StandardScaler) Scale() []float64       { return append([]float64(nil), s.st.Spread...) }

func (s *StandardScaler) MarshalBinary() ([]byte, error) { return msgpack.Marshal(s.st) }

func (s *StandardScaler) UnmarshalBinary(data []byte) error {
	return unmarshalScaler(data, &s.st)
}

// RobustScaler centres on the median and divides by the interquartile range.
type RobustScaler struct {
	st scalerState
}

func (s *RobustScaler) Kind() string { return KindRobustScaler }

func (s *RobustScaler) Fit(rows [][]float64, names []string) error {
	return s.st.fit(rows, names, func(col []float64) (float64, float64) {
		q1, median, q3 := Quartiles(col)
		return median, q3 - q1
	})
}

func (s *RobustScaler) Transform(rows [][]float64) ([][]float64, error) {
	return s.st.transform(rows)
}

func (s *RobustScaler) FeatureNames() []string { return append([]string(nil), s.st.Names...) }
func (s *RobustScaler) Mean() []float64        { return append([]float64(nil), s.st.Center...) }
func (s *RobustScaler) Scale() []float64       { return append([]float64(nil), s.st.Spread...) }

func (s *RobustScaler) MarshalBinary() ([]byte, error) { return msgpack.Marshal(s.st) }

func (s *RobustScaler) UnmarshalBinary(data []byte) error {
	return unmarshalScaler(data, &s.st)
}

func unmarshalScaler(data []byte, st *scalerState) error {
	if err := msgpack.Unmarshal(data, st); err != nil {
		return fmt.Errorf("decode scaler: %w", err)
	}
	if len(st.Center) == 0 || len(st.Center) != len(st.Spread) || len(st.Center) != len(st.Names) {
		return fmt.Errorf("decode scaler: inconsistent statistics")
	}
	return nil
}
