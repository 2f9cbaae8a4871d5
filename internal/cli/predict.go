package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/analytics/preprocess"
	"github.com/argus-v/argus-ml/internal/inference"
)

func (a *app) loadEngine(path string) (*inference.Engine, error) {
	if path == "" {
		path = a.cfg.Artifact.Path
	}
	return inference.NewLoader(path, a.artifactStore(), a.logger).Engine()
}

func newPredictCmd(a *app) *cobra.Command {
	var artifactPath string
	cmd := &cobra.Command{
		Use:   "predict <flows.csv>",
		Short: "Score flow rows from a CSV file with a header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := frame.ReadCSVFile(args[0])
			if err != nil {
				return err
			}
			engine, err := a.loadEngine(artifactPath)
			if err != nil {
				return err
			}
			preds, err := engine.PredictFlows(f)
			if err != nil {
				return err
			}
			anomalies := 0
			for _, p := range preds {
				if p.IsAnomaly {
					anomalies++
				}
			}
			return a.printJSON(map[string]any{
				"rows":        len(preds),
				"anomalies":   anomalies,
				"predictions": preds,
			})
		},
	}
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact path (overrides artifact.path)")
	return cmd
}

func newExplainCmd(a *app) *cobra.Command {
	var (
		artifactPath string
		row          int
		topK         int
	)
	cmd := &cobra.Command{
		Use:   "explain <flows.csv>",
		Short: "Show the most deviating features of a flow row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := frame.ReadCSVFile(args[0])
			if err != nil {
				return err
			}
			engine, err := a.loadEngine(artifactPath)
			if err != nil {
				return err
			}
			lines, err := engine.ExplainRow(f, row, topK)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(a.stdout, l)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact path (overrides artifact.path)")
	cmd.Flags().IntVar(&row, "row", 0, "zero-based row index")
	cmd.Flags().IntVar(&topK, "top-k", 3, "number of features to show (0 shows all)")
	return cmd
}

func newPreprocessCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "preprocess <flows.csv>",
		Short: "Run the preprocessing pipeline over per-flow records and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := frame.ReadCSVFile(args[0])
			if err != nil {
				return err
			}
			out, report, err := preprocess.New(a.cfg.PreprocessConfig(), a.logger).Pipeline(cmd.Context(), f)
			if err != nil {
				return err
			}
			if output != "" {
				if err := frame.WriteCSVFile(output, out); err != nil {
					return err
				}
			}
			return a.printJSON(report)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the processed frame as CSV")
	return cmd
}
