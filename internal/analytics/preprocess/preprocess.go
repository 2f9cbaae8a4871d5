// Package preprocess turns raw flow frames into scaled, log-transformed and
// outlier-filtered feature frames ready for anomaly scoring.
//
// The pipeline order is fixed: prepare, log-transform, outlier filtering,
// normalization, contamination tuning. The scaler is fitted exactly once, on
// the frame handed to NormalizeFeatures, and reused by Transform afterwards.
package preprocess

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/ml"
)

// Config controls the preprocessing steps.
type Config struct {
	RequiredFeatures      []string
	LogTransformFeatures  []string
	Normalization         string // standard | robust
	OutlierThreshold      float64
	ContaminationMin      float64
	ContaminationMax      float64
	AutoTune              bool
	MinSamplesForTraining int
	CrossValidationFolds  int
	TuneEnsembleSize      int
	Seed                  int64
}

// DefaultConfig returns the defaults for the full per-flow schema.
func DefaultConfig() Config {
	return Config{
		RequiredFeatures: []string{
			"bytes_in", "bytes_out", "packets_in", "packets_out", "duration",
			"src_port", "dst_port", "protocol",
		},
		LogTransformFeatures:  []string{"bytes_in", "bytes_out", "packets_in", "packets_out", "duration"},
		Normalization:         ml.KindStandardScaler,
		OutlierThreshold:      3.0,
		ContaminationMin:      0.01,
		ContaminationMax:      0.1,
		AutoTune:              true,
		MinSamplesForTraining: 1000,
		CrossValidationFolds:  5,
		TuneEnsembleSize:      50,
		Seed:                  42,
	}
}

// Preprocessor runs the preprocessing steps. It is not safe for concurrent use.
type Preprocessor struct {
	cfg    Config
	logger *zap.Logger
	scaler ml.Scaler
}

// New creates a Preprocessor. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Preprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{cfg: cfg, logger: logger.Named("preprocess")}
}

// Scaler returns the scaler fitted by NormalizeFeatures, or nil.
func (p *Preprocessor) Scaler() ml.Scaler { return p.scaler }

// PrepareFeatures selects the required columns, encodes protocol names and
// takes the absolute value of port numbers.
func (p *Preprocessor) PrepareFeatures(f *frame.Frame) (*frame.Frame, error) {
	out, err := f.Select(p.cfg.RequiredFeatures...)
	if err != nil {
		return nil, err
	}

	if col, ok := out.Column("protocol"); ok {
		codes := make([]float64, col.Len())
		if col.Kind == frame.Categorical {
			for i, raw := range col.Strings {
				codes[i] = frame.EncodeProtocol(raw)
			}
		} else {
			for i, v := range col.Floats {
				// Already-encoded input keeps valid codes.
				if v >= 1 && v <= frame.ProtocolOther && v == math.Trunc(v) {
					codes[i] = v
				} else {
					codes[i] = frame.ProtocolOther
				}
			}
		}
		if out, err = out.With(frame.NumericColumn("protocol", codes)); err != nil {
			return nil, err
		}
	}

	for _, port := range []string{"src_port", "dst_port"} {
		if !out.Has(port) {
			continue
		}
		values, err := out.Floats(port)
		if err != nil {
			return nil, err
		}
		abs := make([]float64, len(values))
		for i, v := range values {
			abs[i] = math.Abs(v)
		}
		if out, err = out.With(frame.NumericColumn(port, abs)); err != nil {
			return nil, err
		}
	}

	p.logger.Info("features prepared",
		zap.Int("original_rows", f.Rows()),
		zap.Strings("feature_columns", out.Names()),
	)
	return out, nil
}

// ApplyLogTransform replaces each configured feature present in f with
// <feature>_log = log1p(value). The raw column is dropped. Negative values
// are clamped to zero first.
func (p *Preprocessor) ApplyLogTransform(f *frame.Frame) (*frame.Frame, error) {
	out := f
	for _, name := range p.cfg.LogTransformFeatures {
		if !out.Has(name) {
			continue
		}
		values, err := out.Floats(name)
		if err != nil {
			return nil, err
		}
		logged := make([]float64, len(values))
		for i, v := range values {
			logged[i] = math.Log1p(math.Max(v, 0))
		}
		if out, err = out.With(frame.NumericColumn(name+"_log", logged)); err != nil {
			return nil, err
		}
		out = out.Drop(name)
	}
	p.logger.Info("log transform applied",
		zap.Strings("log_features", p.cfg.LogTransformFeatures),
		zap.Strings("remaining_features", out.Names()),
	)
	return out, nil
}

// NormalizeFeatures fits the configured scaler on every numeric column of f
// and returns the scaled frame. The fitted scaler replaces any previous one.
func (p *Preprocessor) NormalizeFeatures(f *frame.Frame) (*frame.Frame, ml.Scaler, error) {
	scaler, err := ml.NewScaler(p.cfg.Normalization)
	if err != nil {
		return nil, nil, err
	}
	names := f.NumericNames()
	rows, err := f.Matrix(names...)
	if err != nil {
		return nil, nil, err
	}
	if err := scaler.Fit(rows, names); err != nil {
		return nil, nil, fmt.Errorf("fit %s scaler: %w", scaler.Kind(), err)
	}
	p.scaler = scaler

	out, err := p.Transform(f)
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("features normalized",
		zap.String("normalization_method", scaler.Kind()),
		zap.Int("feature_count", len(names)),
		zap.Int("sample_count", f.Rows()),
	)
	return out, scaler, nil
}

// Transform applies the already-fitted scaler to f without refitting.
func (p *Preprocessor) Transform(f *frame.Frame) (*frame.Frame, error) {
	if p.scaler == nil {
		return nil, fmt.Errorf("preprocess: scaler has not been fitted")
	}
	names := p.scaler.FeatureNames()
	rows, err := f.Matrix(names...)
	if err != nil {
		return nil, err
	}
	scaled, err := p.scaler.Transform(rows)
	if err != nil {
		return nil, err
	}
	out := f
	for j, name := range names {
		col := make([]float64, len(scaled))
		for i := range scaled {
			col[i] = scaled[i][j]
		}
		if out, err = out.With(frame.NumericColumn(name, col)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
