package preprocess

import (
	"context"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
)

// Reasons recorded when contamination tuning does not run.
const (
	ReasonAutoTuneDisabled    = "auto_tune_disabled"
	ReasonInsufficientSamples = "insufficient_samples"
)

// Report records every intermediate statistic of a pipeline run.
type Report struct {
	InitialRows        int `json:"initial_rows"`
	FeaturePreparation struct {
		FeatureCount   int      `json:"feature_count"`
		FeatureColumns []string `json:"feature_columns"`
	} `json:"feature_preparation"`
	LogTransform struct {
		LogFeatures   []string `json:"log_features"`
		FinalFeatures []string `json:"final_features"`
	} `json:"log_transform"`
	Outliers      OutlierStats `json:"outlier_detection"`
	Normalization struct {
		Method     string   `json:"method"`
		ScalerKind string   `json:"scaler_type"`
		Features   []string `json:"features"`
	} `json:"normalization"`
	Contamination        ContaminationStats `json:"contamination_tuning"`
	FinalRows            int                `json:"final_rows"`
	FinalFeatures        int                `json:"final_features"`
	OptimalContamination float64            `json:"optimal_contamination"`
}

// Pipeline runs prepare, log-transform, outlier filtering, normalization and
// contamination tuning in that order. Tuning only runs when enabled and the
// cleaned frame has at least MinSamplesForTraining rows; otherwise the
// contamination is the midpoint of the configured range.
func (p *Preprocessor) Pipeline(ctx context.Context, f *frame.Frame) (*frame.Frame, *Report, error) {
	report := &Report{InitialRows: f.Rows()}

	prepared, err := p.PrepareFeatures(f)
	if err != nil {
		return nil, nil, err
	}
	report.FeaturePreparation.FeatureCount = len(prepared.Names())
	report.FeaturePreparation.FeatureColumns = prepared.Names()

	logged, err := p.ApplyLogTransform(prepared)
	if err != nil {
		return nil, nil, err
	}
	report.LogTransform.LogFeatures = p.cfg.LogTransformFeatures
	report.LogTransform.FinalFeatures = logged.Names()

	cleaned, outlierStats := p.DetectFeatureOutliers(logged, p.cfg.OutlierThreshold)
	report.Outliers = outlierStats

	normalized, scaler, err := p.NormalizeFeatures(cleaned)
	if err != nil {
		return nil, nil, err
	}
	report.Normalization.Method = p.cfg.Normalization
	report.Normalization.ScalerKind = scaler.Kind()
	report.Normalization.Features = scaler.FeatureNames()

	var contamination float64
	if p.cfg.AutoTune && normalized.Rows() >= p.cfg.MinSamplesForTraining {
		contamination, report.Contamination = p.TuneContamination(ctx, normalized)
	} else {
		contamination = (p.cfg.ContaminationMin + p.cfg.ContaminationMax) / 2
		reason := ReasonAutoTuneDisabled
		if normalized.Rows() < p.cfg.MinSamplesForTraining {
			reason = ReasonInsufficientSamples
		}
		report.Contamination = ContaminationStats{
			Range:             [2]float64{p.cfg.ContaminationMin, p.cfg.ContaminationMax},
			Reason:            reason,
			BestContamination: contamination,
		}
	}

	report.FinalRows = normalized.Rows()
	report.FinalFeatures = len(normalized.Names())
	report.OptimalContamination = contamination

	p.logger.Info("preprocessing pipeline completed",
		zap.Int("initial_rows", report.InitialRows),
		zap.Int("final_rows", report.FinalRows),
		zap.Float64("optimal_contamination", contamination),
	)
	return normalized, report, nil
}
