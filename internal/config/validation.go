package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/argus-v/argus-ml/internal/analytics/ml"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

func unitOpen(v float64) bool { return v > 0 && v < 1 }

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Preprocessing
	switch c.Preprocessing.Normalization {
	case ml.KindStandardScaler, ml.KindRobustScaler:
	default:
		add("preprocessing.normalization", "invalid normalization %q (must be standard or robust)", c.Preprocessing.Normalization)
	}
	if len(c.Preprocessing.RequiredFeatures) == 0 {
		add("preprocessing.required_features", "at least one feature is required")
	}
	if !unitOpen(c.Preprocessing.ContaminationMin) || !unitOpen(c.Preprocessing.ContaminationMax) {
		add("preprocessing.contamination_range", "contamination bounds must be in (0, 1), got [%g, %g]",
			c.Preprocessing.ContaminationMin, c.Preprocessing.ContaminationMax)
	} else if c.Preprocessing.ContaminationMin > c.Preprocessing.ContaminationMax {
		add("preprocessing.contamination_range", "contamination_min %g exceeds contamination_max %g",
			c.Preprocessing.ContaminationMin, c.Preprocessing.ContaminationMax)
	}
	if c.Preprocessing.OutlierThreshold <= 0 {
		add("preprocessing.outlier_threshold", "outlier threshold must be positive, got %g", c.Preprocessing.OutlierThreshold)
	}

	// Training
	if len(c.Training.ContaminationGrid) == 0 {
		add("training.contamination_grid", "contamination grid must not be empty")
	}
	for _, v := range c.Training.ContaminationGrid {
		if !unitOpen(v) {
			add("training.contamination_grid", "contamination must be in (0, 1), got %g", v)
		}
	}
	if len(c.Training.EnsembleSizes) == 0 {
		add("training.ensemble_sizes", "ensemble grid must not be empty")
	}
	for _, n := range c.Training.EnsembleSizes {
		if n < 1 {
			add("training.ensemble_sizes", "ensemble size must be positive, got %d", n)
		}
	}
	if !unitOpen(c.Training.ValidationFraction) {
		add("training.validation_fraction", "validation fraction must be in (0, 1), got %g", c.Training.ValidationFraction)
	}
	if c.Training.Parallelism < 1 {
		add("training.parallelism", "parallelism must be at least 1, got %d", c.Training.Parallelism)
	}

	// Artifact
	if c.Artifact.Path == "" {
		add("artifact.path", "artifact path is required")
	}

	// Feedback
	if c.Feedback.Dir == "" {
		add("feedback.dir", "feedback directory is required")
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.FeedbackRateLimit <= 0 {
		add("server.feedback_rate_limit", "rate limit must be positive, got %g", c.Server.FeedbackRateLimit)
	}

	// Logging
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "invalid level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format", "invalid format %q (must be json or console)", c.Logging.Format)
	}

	return errs
}
