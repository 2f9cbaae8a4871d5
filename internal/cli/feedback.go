package cli

// feedback.go: argus-ml feedback command group.
//
// Commands:
//   argus-ml feedback report <ip> [--reason <text>]
//   argus-ml feedback revoke <ip>
//   argus-ml feedback list
//   argus-ml feedback retrain

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFeedbackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Manage the trusted-ip ledger and retrain requests",
	}

	var reason string
	report := &cobra.Command{
		Use:   "report <ip>",
		Short: "Mark an ip as a false positive source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.feedbackManager().ReportFalsePositive(args[0], reason); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s trusted\n", args[0])
			return nil
		},
	}
	report.Flags().StringVar(&reason, "reason", "", "why the alert was a false positive")

	revoke := &cobra.Command{
		Use:   "revoke <ip>",
		Short: "Revoke trust for an ip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.feedbackManager().Revoke(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s revoked\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the trust ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.feedbackManager().TrustedIPs()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "No trusted ips.")
				return nil
			}
			fmt.Fprintf(a.stdout, "%-40s  %-8s  %-20s  %s\n", "IP", "STATUS", "LAST SEEN", "REASON")
			for _, e := range entries {
				fmt.Fprintf(a.stdout, "%-40s  %-8s  %-20s  %s\n",
					e.IP, e.Status, e.LastSeen.UTC().Format("2006-01-02T15:04:05Z"), e.Reason)
			}
			return nil
		},
	}

	retrain := &cobra.Command{
		Use:   "retrain",
		Short: "Request a retrain by setting the marker file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := a.feedbackManager()
			if err := m.TriggerRetrain(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "retrain requested (%s)\n", m.MarkerPath())
			return nil
		},
	}

	cmd.AddCommand(report, revoke, list, retrain)
	return cmd
}
