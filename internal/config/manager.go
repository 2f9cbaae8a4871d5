package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	viper      *viper.Viper
	watchChan  chan Config

	mu     sync.RWMutex
	config *Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
	}
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("ARGUS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.readConfigFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// readConfigFile reads the YAML file. A missing file is not an error:
// defaults and environment variables still apply.
func (m *viperConfigManager) readConfigFile() error {
	if m.configPath == "" {
		return nil
	}
	err := m.viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || errors.As(err, &notFound) || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("error reading config file: %w", err)
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.Get(ctx).Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and sends each successfully parsed
// revision on the returned channel. Updates are dropped while the
// previous one is unread.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.Get(ctx):
		default:
		}
	})
	m.viper.WatchConfig()
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.readConfigFile(); err != nil {
		return err
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Preprocessing defaults
	m.viper.SetDefault("preprocessing.required_features", defaults.Preprocessing.RequiredFeatures)
	m.viper.SetDefault("preprocessing.log_transform_features", defaults.Preprocessing.LogTransformFeatures)
	m.viper.SetDefault("preprocessing.normalization", defaults.Preprocessing.Normalization)
	m.viper.SetDefault("preprocessing.outlier_threshold", defaults.Preprocessing.OutlierThreshold)
	m.viper.SetDefault("preprocessing.contamination_min", defaults.Preprocessing.ContaminationMin)
	m.viper.SetDefault("preprocessing.contamination_max", defaults.Preprocessing.ContaminationMax)
	m.viper.SetDefault("preprocessing.auto_tune", defaults.Preprocessing.AutoTune)
	m.viper.SetDefault("preprocessing.min_samples_for_training", defaults.Preprocessing.MinSamplesForTraining)
	m.viper.SetDefault("preprocessing.cross_validation_folds", defaults.Preprocessing.CrossValidationFolds)
	m.viper.SetDefault("preprocessing.seed", defaults.Preprocessing.Seed)

	// Training defaults
	m.viper.SetDefault("training.dataset", defaults.Training.Dataset)
	m.viper.SetDefault("training.contamination_grid", defaults.Training.ContaminationGrid)
	m.viper.SetDefault("training.ensemble_sizes", defaults.Training.EnsembleSizes)
	m.viper.SetDefault("training.seed", defaults.Training.Seed)
	m.viper.SetDefault("training.parallelism", defaults.Training.Parallelism)
	m.viper.SetDefault("training.validation_fraction", defaults.Training.ValidationFraction)
	m.viper.SetDefault("training.subsample_size", defaults.Training.SubSampleSize)
	m.viper.SetDefault("training.max_depth", defaults.Training.MaxDepth)
	m.viper.SetDefault("training.min_test_precision", defaults.Training.MinTestPrecision)
	m.viper.SetDefault("training.feature_spec_file", defaults.Training.FeatureSpecFile)
	m.viper.SetDefault("training.train_path", defaults.Training.TrainPath)
	m.viper.SetDefault("training.test_path", defaults.Training.TestPath)
	m.viper.SetDefault("training.export_retina_csv", defaults.Training.ExportRetinaCSV)

	// Artifact defaults
	m.viper.SetDefault("artifact.path", defaults.Artifact.Path)

	// Feedback defaults
	m.viper.SetDefault("feedback.dir", defaults.Feedback.Dir)
	m.viper.SetDefault("feedback.marker_dir", defaults.Feedback.MarkerDir)
	m.viper.SetDefault("feedback.watch", defaults.Feedback.Watch)

	// Database defaults
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.feedback_rate_limit", defaults.Server.FeedbackRateLimit)
	m.viper.SetDefault("server.feedback_burst", defaults.Server.FeedbackBurst)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}
	var err error

	// Preprocessing
	cfg.Preprocessing.RequiredFeatures = stringList(m.viper.Get("preprocessing.required_features"))
	cfg.Preprocessing.LogTransformFeatures = stringList(m.viper.Get("preprocessing.log_transform_features"))
	cfg.Preprocessing.Normalization = m.viper.GetString("preprocessing.normalization")
	cfg.Preprocessing.OutlierThreshold = m.viper.GetFloat64("preprocessing.outlier_threshold")
	cfg.Preprocessing.ContaminationMin = m.viper.GetFloat64("preprocessing.contamination_min")
	cfg.Preprocessing.ContaminationMax = m.viper.GetFloat64("preprocessing.contamination_max")
	cfg.Preprocessing.AutoTune = m.viper.GetBool("preprocessing.auto_tune")
	cfg.Preprocessing.MinSamplesForTraining = m.viper.GetInt("preprocessing.min_samples_for_training")
	cfg.Preprocessing.CrossValidationFolds = m.viper.GetInt("preprocessing.cross_validation_folds")
	cfg.Preprocessing.Seed = m.viper.GetInt64("preprocessing.seed")

	// Training
	cfg.Training.Dataset = m.viper.GetString("training.dataset")
	if cfg.Training.ContaminationGrid, err = floatList(m.viper.Get("training.contamination_grid")); err != nil {
		return fmt.Errorf("training.contamination_grid: %w", err)
	}
	if cfg.Training.EnsembleSizes, err = intList(m.viper.Get("training.ensemble_sizes")); err != nil {
		return fmt.Errorf("training.ensemble_sizes: %w", err)
	}
	cfg.Training.Seed = m.viper.GetInt64("training.seed")
	cfg.Training.Parallelism = m.viper.GetInt("training.parallelism")
	cfg.Training.ValidationFraction = m.viper.GetFloat64("training.validation_fraction")
	cfg.Training.SubSampleSize = m.viper.GetInt("training.subsample_size")
	cfg.Training.MaxDepth = m.viper.GetInt("training.max_depth")
	cfg.Training.MinTestPrecision = m.viper.GetFloat64("training.min_test_precision")
	cfg.Training.FeatureSpecFile = m.viper.GetString("training.feature_spec_file")
	cfg.Training.TrainPath = m.viper.GetString("training.train_path")
	cfg.Training.TestPath = m.viper.GetString("training.test_path")
	cfg.Training.ExportRetinaCSV = m.viper.GetString("training.export_retina_csv")

	// Artifact
	cfg.Artifact.Path = m.viper.GetString("artifact.path")

	// Feedback
	cfg.Feedback.Dir = m.viper.GetString("feedback.dir")
	cfg.Feedback.MarkerDir = m.viper.GetString("feedback.marker_dir")
	cfg.Feedback.Watch = m.viper.GetBool("feedback.watch")

	// Database
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.FeedbackRateLimit = m.viper.GetFloat64("server.feedback_rate_limit")
	cfg.Server.FeedbackBurst = m.viper.GetInt("server.feedback_burst")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// listItems normalizes a YAML sequence or a comma-separated env value.
func listItems(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		var out []any
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	default:
		return []any{t}
	}
}

func stringList(v any) []string {
	items := listItems(v)
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, strings.TrimSpace(cast.ToString(it)))
	}
	return out
}

func floatList(v any) ([]float64, error) {
	items := listItems(v)
	out := make([]float64, 0, len(items))
	for _, it := range items {
		f, err := cast.ToFloat64E(it)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func intList(v any) ([]int, error) {
	items := listItems(v)
	out := make([]int, 0, len(items))
	for _, it := range items {
		n, err := cast.ToIntE(it)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
