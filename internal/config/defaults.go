package config

import (
	"github.com/argus-v/argus-ml/internal/analytics/preprocess"
	"github.com/argus-v/argus-ml/internal/analytics/tuning"
	"github.com/argus-v/argus-ml/internal/dataset"
)

// DefaultConfigPath is where NewConfigManagerWithDefaults looks.
const DefaultConfigPath = "/etc/argus/argus-ml.yaml"

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Preprocessing defaults
	p := preprocess.DefaultConfig()
	cfg.Preprocessing.RequiredFeatures = p.RequiredFeatures
	cfg.Preprocessing.LogTransformFeatures = p.LogTransformFeatures
	cfg.Preprocessing.Normalization = p.Normalization
	cfg.Preprocessing.OutlierThreshold = p.OutlierThreshold
	cfg.Preprocessing.ContaminationMin = p.ContaminationMin
	cfg.Preprocessing.ContaminationMax = p.ContaminationMax
	cfg.Preprocessing.AutoTune = p.AutoTune
	cfg.Preprocessing.MinSamplesForTraining = p.MinSamplesForTraining
	cfg.Preprocessing.CrossValidationFolds = p.CrossValidationFolds
	cfg.Preprocessing.Seed = p.Seed

	// Training defaults
	t := tuning.DefaultConfig()
	cfg.Training.Dataset = t.Dataset
	cfg.Training.ContaminationGrid = t.ContaminationGrid
	cfg.Training.EnsembleSizes = t.EnsembleSizes
	cfg.Training.Seed = t.Seed
	cfg.Training.Parallelism = t.Parallelism
	cfg.Training.ValidationFraction = dataset.DefaultValidationFraction
	cfg.Training.SubSampleSize = t.SubSampleSize
	cfg.Training.MaxDepth = t.MaxDepth
	cfg.Training.MinTestPrecision = t.MinTestPrecision
	cfg.Training.TrainPath = "datasets/nsl-kdd/KDDTrain+.txt"
	cfg.Training.TestPath = "datasets/nsl-kdd/KDDTest+.txt"

	// Artifact defaults
	cfg.Artifact.Path = "models/argus_iforest.msgpack"

	// Feedback defaults
	cfg.Feedback.Dir = "/var/lib/argus/feedback"
	cfg.Feedback.MarkerDir = "/var/lib/argus"
	cfg.Feedback.Watch = true

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/argus/argus-ml.db"

	// Server defaults
	cfg.Server.Port = 8090
	cfg.Server.FeedbackRateLimit = 5
	cfg.Server.FeedbackBurst = 10

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}
