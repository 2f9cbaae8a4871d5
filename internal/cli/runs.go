package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/argus-v/argus-ml/internal/artifact"
	"github.com/argus-v/argus-ml/internal/db"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := db.NewSQLiteStore(a.cfg.Database.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(a.stdout, "No training runs recorded.")
				return nil
			}
			fmt.Fprintf(a.stdout, "%-36s  %-20s  %-18s  %-8s  %-6s  %-6s  %-6s  %s\n",
				"RUN", "STARTED", "STATUS", "CONTAM", "TREES", "PREC", "RECALL", "DIGEST")
			for _, r := range runs {
				digest := r.ArtifactDigest
				if len(digest) > 12 {
					digest = digest[:12]
				}
				fmt.Fprintf(a.stdout, "%-36s  %-20s  %-18s  %-8g  %-6d  %-6.3f  %-6.3f  %s\n",
					r.ID, r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"), r.Status,
					r.Contamination, r.EnsembleSize, r.Validation.Precision, r.Validation.Recall, digest)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "runs to skip")

	verify := &cobra.Command{
		Use:   "verify <artifact>",
		Short: "Match an artifact file to the run that produced it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := artifact.Digest(args[0])
			if err != nil {
				return err
			}
			store, err := db.NewSQLiteStore(a.cfg.Database.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.FindByDigest(cmd.Context(), digest)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("no recorded run produced %s (blake3 %s)", args[0], digest)
			}
			return a.printJSON(run)
		},
	}
	cmd.AddCommand(verify)
	return cmd
}
