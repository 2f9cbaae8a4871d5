package main

// Package main is the entry point for the argus-ml command.
//
// Subcommands:
//   - train:      tune, fit and save the flow anomaly model, recording the run
//   - preprocess: run the per-flow preprocessing pipeline and print its report
//   - predict:    score a CSV of flows with the saved model
//   - explain:    list the most deviating features of one flow
//   - feedback:   manage the trusted-ip ledger and retrain marker
//   - serve:      HTTP API for inference and feedback
//   - runs:       list recorded training runs

import (
	"context"
	"fmt"
	"os"

	"github.com/argus-v/argus-ml/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
