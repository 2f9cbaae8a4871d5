package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/argus-v/argus-ml/internal/config"
	"github.com/argus-v/argus-ml/internal/feedback"
	"github.com/argus-v/argus-ml/internal/inference"
	"github.com/argus-v/argus-ml/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inference and feedback HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	loader := inference.NewLoader(cfg.Artifact.Path, a.artifactStore(), a.logger)
	if _, err := loader.Engine(); err != nil {
		// Served requests retry the load, so a model trained later is picked up.
		a.logger.Warn("model not loaded at startup", zap.Error(err))
	}
	fb := a.feedbackManager()

	srv := server.New(server.Config{
		Port:              cfg.Server.Port,
		FeedbackRateLimit: cfg.Server.FeedbackRateLimit,
		FeedbackBurst:     cfg.Server.FeedbackBurst,
	}, loader, fb, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if cfg.Feedback.Watch {
		g.Go(func() error { return feedback.WatchLedger(ctx, fb) })
	}
	if _, err := os.Stat(a.configPath); err == nil {
		changes := a.mgr.Watch(ctx)
		g.Go(func() error {
			watchConfig(ctx, changes, loader, a.logger)
			return nil
		})
	}
	return g.Wait()
}

// watchConfig reloads the model whenever the config file changes. Settings
// other than the artifact contents take effect on restart.
func watchConfig(ctx context.Context, changes <-chan config.Config, loader *inference.Loader, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-changes:
			logger.Info("configuration changed", zap.String("artifact", c.Artifact.Path))
			if c.Artifact.Path != loader.Path() {
				logger.Warn("artifact path changes require a restart", zap.String("current", loader.Path()))
				continue
			}
			if _, err := loader.Reload(); err != nil {
				logger.Warn("model reload after config change failed", zap.Error(err))
			}
		}
	}
}
