package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/config"
	"github.com/argus-v/argus-ml/internal/feedback"
	"github.com/argus-v/argus-ml/internal/logging"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

type app struct {
	configPath string
	logLevel   string
	mgr        config.ConfigManager
	cfg        *config.Config
	logger     *zap.Logger
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{
		stdin:  in,
		stdout: out,
		stderr: errOut,
		logger: zap.NewNop(),
	}

	cmd := &cobra.Command{
		Use:           "argus-ml",
		Short:         "Network flow anomaly detection for Argus",
		Long:          "argus-ml trains isolation forest models on labelled flow data, scores and explains flows, and manages analyst feedback.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultConfigPath, "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(
		newTrainCmd(a),
		newPreprocessCmd(a),
		newPredictCmd(a),
		newExplainCmd(a),
		newFeedbackCmd(a),
		newServeCmd(a),
		newRunsCmd(a),
	)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.setup(cmd.Context())
	}
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		_ = a.logger.Sync()
	}
	return cmd
}

// setup loads and validates configuration, then builds the logger.
func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := config.NewConfigManager(a.configPath)
	if err != nil {
		return err
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	cfg := mgr.Get(ctx)
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}
	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	a.mgr, a.cfg, a.logger = mgr, cfg, logger
	return nil
}

func (a *app) artifactStore() *artifact.Store {
	return artifact.NewStore(a.logger)
}

func (a *app) feedbackManager() *feedback.Manager {
	return feedback.NewManager(feedback.Config{
		Dir:       a.cfg.Feedback.Dir,
		MarkerDir: a.cfg.Feedback.MarkerDir,
	}, feedback.WithLogger(a.logger))
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
