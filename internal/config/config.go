// Package config provides configuration management for argus-ml.
//
// Configuration sources (priority order, high to low):
//  1. CLI flags bound by the caller
//  2. Environment variables (ARGUS_* prefix, "." replaced by "_")
//  3. YAML config file (default: /etc/argus/argus-ml.yaml)
//  4. Built-in defaults
//
// Sections: preprocessing, training, artifact, feedback, database, server
// and logging.
package config

import (
	"context"
	"fmt"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/preprocess"
	"github.com/argus-v/argus-ml/internal/analytics/tuning"
	"github.com/argus-v/argus-ml/internal/logging"
)

// Config contains all configuration fields.
type Config struct {
	// Preprocessing configuration
	Preprocessing struct {
		RequiredFeatures      []string
		LogTransformFeatures  []string
		Normalization         string // standard | robust
		OutlierThreshold      float64
		ContaminationMin      float64
		ContaminationMax      float64
		AutoTune              bool
		MinSamplesForTraining int
		CrossValidationFolds  int
		Seed                  int64
	}

	// Training configuration
	Training struct {
		Dataset            string
		ContaminationGrid  []float64
		EnsembleSizes      []int
		Seed               int64
		Parallelism        int
		ValidationFraction float64
		SubSampleSize      int
		MaxDepth           int // 0 derives ceil(log2(subsample))
		MinTestPrecision   float64
		FeatureSpecFile    string // empty uses the built-in retina spec
		TrainPath          string
		TestPath           string
		ExportRetinaCSV    string // optional copy of the converted training set
	}

	// Artifact configuration
	Artifact struct {
		Path string
	}

	// Feedback configuration
	Feedback struct {
		Dir       string
		MarkerDir string
		Watch     bool
	}

	// Database configuration
	Database struct {
		SQLitePath string
	}

	// Server configuration
	Server struct {
		Port              int
		FeedbackRateLimit float64 // requests per second
		FeedbackBurst     int
	}

	// Logging configuration
	Logging struct {
		Level      string
		Format     string // json | console
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload re-reads configuration from its sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager(DefaultConfigPath)
}

// PreprocessConfig maps the preprocessing section onto preprocess.Config.
func (c *Config) PreprocessConfig() preprocess.Config {
	p := preprocess.DefaultConfig()
	p.RequiredFeatures = append([]string(nil), c.Preprocessing.RequiredFeatures...)
	p.LogTransformFeatures = append([]string(nil), c.Preprocessing.LogTransformFeatures...)
	p.Normalization = c.Preprocessing.Normalization
	p.OutlierThreshold = c.Preprocessing.OutlierThreshold
	p.ContaminationMin = c.Preprocessing.ContaminationMin
	p.ContaminationMax = c.Preprocessing.ContaminationMax
	p.AutoTune = c.Preprocessing.AutoTune
	p.MinSamplesForTraining = c.Preprocessing.MinSamplesForTraining
	p.CrossValidationFolds = c.Preprocessing.CrossValidationFolds
	p.Seed = c.Preprocessing.Seed
	return p
}

// TrainingConfig maps the training section onto tuning.Config, loading the
// feature spec file when one is configured.
func (c *Config) TrainingConfig() (tuning.Config, error) {
	t := tuning.DefaultConfig()
	t.Dataset = c.Training.Dataset
	t.ContaminationGrid = append([]float64(nil), c.Training.ContaminationGrid...)
	t.EnsembleSizes = append([]int(nil), c.Training.EnsembleSizes...)
	t.Seed = c.Training.Seed
	t.Parallelism = c.Training.Parallelism
	t.SubSampleSize = c.Training.SubSampleSize
	t.MaxDepth = c.Training.MaxDepth
	t.MinTestPrecision = c.Training.MinTestPrecision
	t.Normalization = c.Preprocessing.Normalization
	if c.Training.FeatureSpecFile != "" {
		spec, err := frame.LoadFeatureSpec(c.Training.FeatureSpecFile)
		if err != nil {
			return tuning.Config{}, fmt.Errorf("feature spec: %w", err)
		}
		t.Spec = spec
	}
	return t, nil
}

// LoggingConfig maps the logging section onto logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSize:    c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}
