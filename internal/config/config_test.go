package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Training defaults
	assert.Equal(t, "NSL-KDD", cfg.Training.Dataset)
	assert.Equal(t, []float64{0.001, 0.002, 0.005, 0.01, 0.02}, cfg.Training.ContaminationGrid)
	assert.Equal(t, []int{100, 200, 400}, cfg.Training.EnsembleSizes)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, 0.2, cfg.Training.ValidationFraction)
	assert.Equal(t, 0.85, cfg.Training.MinTestPrecision)

	// Preprocessing defaults
	assert.Equal(t, "standard", cfg.Preprocessing.Normalization)
	assert.Equal(t, 3.0, cfg.Preprocessing.OutlierThreshold)
	assert.True(t, cfg.Preprocessing.AutoTune)

	// Server and logging defaults
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Empty(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name:      "invalid port - too high",
			modifyFn:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantError: true,
			errorMsg:  "port must be between 1 and 65535",
		},
		{
			name:      "contamination out of range",
			modifyFn:  func(cfg *Config) { cfg.Training.ContaminationGrid = []float64{0.01, 1.5} },
			wantError: true,
			errorMsg:  "contamination must be in (0, 1)",
		},
		{
			name:      "non-positive ensemble size",
			modifyFn:  func(cfg *Config) { cfg.Training.EnsembleSizes = []int{0} },
			wantError: true,
			errorMsg:  "ensemble size must be positive",
		},
		{
			name:      "invalid normalization",
			modifyFn:  func(cfg *Config) { cfg.Preprocessing.Normalization = "minmax" },
			wantError: true,
			errorMsg:  "invalid normalization",
		},
		{
			name: "inverted contamination range",
			modifyFn: func(cfg *Config) {
				cfg.Preprocessing.ContaminationMin = 0.2
				cfg.Preprocessing.ContaminationMax = 0.1
			},
			wantError: true,
			errorMsg:  "exceeds contamination_max",
		},
		{
			name:      "invalid validation fraction",
			modifyFn:  func(cfg *Config) { cfg.Training.ValidationFraction = 1 },
			wantError: true,
			errorMsg:  "validation fraction",
		},
		{
			name:      "invalid log level",
			modifyFn:  func(cfg *Config) { cfg.Logging.Level = "loud" },
			wantError: true,
			errorMsg:  "invalid level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)
			errs := cfg.Validate()

			if tt.wantError {
				require.NotEmpty(t, errs)
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected error containing %q, got %v", tt.errorMsg, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "argus-ml.yaml")

	configContent := `
training:
  dataset: custom
  contamination_grid: [0.01, 0.05]
  ensemble_sizes: [50]
server:
  port: 9191
feedback:
  dir: /tmp/argus-feedback
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, "custom", cfg.Training.Dataset)
	assert.Equal(t, []float64{0.01, 0.05}, cfg.Training.ContaminationGrid)
	assert.Equal(t, []int{50}, cfg.Training.EnsembleSizes)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/tmp/argus-feedback", cfg.Feedback.Dir)

	// Untouched keys keep their defaults.
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, mgr.Validate(ctx))
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARGUS_SERVER_PORT", "7070")
	t.Setenv("ARGUS_TRAINING_CONTAMINATION_GRID", "0.003, 0.004")
	t.Setenv("ARGUS_TRAINING_ENSEMBLE_SIZES", "10,20")
	t.Setenv("ARGUS_PREPROCESSING_REQUIRED_FEATURES", "bytes_in,protocol")

	mgr, err := NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []float64{0.003, 0.004}, cfg.Training.ContaminationGrid)
	assert.Equal(t, []int{10, 20}, cfg.Training.EnsembleSizes)
	assert.Equal(t, []string{"bytes_in", "protocol"}, cfg.Preprocessing.RequiredFeatures)
}

func TestConfigManagerBadGrid(t *testing.T) {
	t.Setenv("ARGUS_TRAINING_CONTAMINATION_GRID", "0.01,lots")

	mgr, err := NewConfigManager("")
	require.NoError(t, err)
	assert.ErrorContains(t, mgr.Load(context.Background()), "training.contamination_grid")
}

func TestConfigManagerValidation(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "argus-ml.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\npreprocessing:\n  normalization: minmax\n"), 0644))

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	err = mgr.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "preprocessing.normalization")
}

func TestTrainingConfig(t *testing.T) {
	cfg := DefaultConfig()
	tc, err := cfg.TrainingConfig()
	require.NoError(t, err)
	assert.Equal(t, "retina", tc.Spec.Name)
	assert.Equal(t, cfg.Training.EnsembleSizes, tc.EnsembleSizes)

	specPath := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte("name: two\nfeatures:\n  - name: a\n  - name: b\n    transform: abs\n"), 0644))
	cfg.Training.FeatureSpecFile = specPath
	tc, err = cfg.TrainingConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tc.Spec.Columns())

	cfg.Training.FeatureSpecFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = cfg.TrainingConfig()
	assert.Error(t, err)

	pc := cfg.PreprocessConfig()
	assert.Equal(t, cfg.Preprocessing.RequiredFeatures, pc.RequiredFeatures)
}
