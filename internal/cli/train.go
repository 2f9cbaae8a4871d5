package cli

// train.go: argus-ml train.
//
// Loads the NSL-KDD training (and optional test) file, converts it to
// retina features, runs the grid search, saves the artifact, registers the
// run and smoke-checks the saved model.

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/tuning"
	"github.com/argus-v/argus-ml/internal/dataset"
	"github.com/argus-v/argus-ml/internal/db"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		trainPath    string
		testPath     string
		artifactPath string
		exportCSV    string
		noRegistry   bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Tune and train the flow anomaly model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("train") {
				a.cfg.Training.TrainPath = trainPath
			}
			if cmd.Flags().Changed("test") {
				a.cfg.Training.TestPath = testPath
			}
			if cmd.Flags().Changed("artifact") {
				a.cfg.Artifact.Path = artifactPath
			}
			if cmd.Flags().Changed("export-retina") {
				a.cfg.Training.ExportRetinaCSV = exportCSV
			}
			return a.runTrain(cmd, !noRegistry)
		},
	}
	cmd.Flags().StringVar(&trainPath, "train", "", "NSL-KDD training file (overrides training.train_path)")
	cmd.Flags().StringVar(&testPath, "test", "", "NSL-KDD test file (overrides training.test_path; empty skips testing)")
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact output path (overrides artifact.path)")
	cmd.Flags().StringVar(&exportCSV, "export-retina", "", "also write the converted training set as CSV")
	cmd.Flags().BoolVar(&noRegistry, "no-registry", false, "do not record the run in the SQLite registry")
	return cmd
}

func (a *app) runTrain(cmd *cobra.Command, useRegistry bool) error {
	ctx := cmd.Context()
	cfg := a.cfg

	train, err := dataset.LoadRetina(cfg.Training.TrainPath)
	if err != nil {
		return fmt.Errorf("load training data: %w", err)
	}
	var test *frame.Frame
	if cfg.Training.TestPath != "" {
		if test, err = dataset.LoadRetina(cfg.Training.TestPath); err != nil {
			return fmt.Errorf("load test data: %w", err)
		}
	}
	if cfg.Training.ExportRetinaCSV != "" {
		if err := frame.WriteCSVFile(cfg.Training.ExportRetinaCSV, train); err != nil {
			return err
		}
		a.logger.Info("exported retina features", zap.String("path", cfg.Training.ExportRetinaCSV))
	}

	split, err := dataset.BuildSplit(train, test, cfg.Training.ValidationFraction, cfg.Training.Seed)
	if err != nil {
		return err
	}

	tcfg, err := cfg.TrainingConfig()
	if err != nil {
		return err
	}
	opts := []tuning.Option{tuning.WithLogger(a.logger)}

	var registry *db.SQLiteStore
	if useRegistry && cfg.Database.SQLitePath != "" {
		registry, err = db.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			a.logger.Warn("run registry unavailable, continuing without it",
				zap.String("path", cfg.Database.SQLitePath), zap.Error(err))
			registry = nil
		} else {
			defer registry.Close()
			opts = append(opts, tuning.WithRecorder(db.NewRunRecorder(registry)))
		}
	}

	art, report, err := tuning.NewTrainer(tcfg, opts...).Train(ctx, split)
	if err != nil {
		return err
	}

	store := a.artifactStore()
	info, err := store.Save(cfg.Artifact.Path, art)
	if err != nil {
		return err
	}
	if registry != nil {
		if err := registry.AttachArtifact(ctx, report.RunID, info.Path, info.Digest, info.Size); err != nil {
			a.logger.Warn("failed to attach artifact to run", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	sample := split.Test
	if sample == nil {
		sample = split.Validation
	}
	smoke := tuning.SmokeCheck(store, info.Path, sample, a.logger)

	return a.printJSON(map[string]any{
		"run_id":                   report.RunID,
		"hyperparameters":          art.Hyperparameters,
		"validation_metrics":       report.Validation.AsMap(),
		"validation_refit_metrics": report.ValidationRefit.AsMap(),
		"test_metrics":             testMap(report),
		"warnings":                 report.Warnings,
		"artifact":                 info,
		"smoke_check_ok":           smoke.OK,
	})
}

func testMap(report *tuning.TrainReport) map[string]float64 {
	if report.Test == nil {
		return nil
	}
	return report.Test.AsMap()
}
