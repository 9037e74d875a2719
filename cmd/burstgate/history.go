package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/burstgate/internal/history"
)

// newHistoryCmd lists runs recorded with --history.
func newHistoryCmd() *cobra.Command {
	var (
		path  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded by "burstgate run --history FILE", most recent first.

Example:
  burstgate history --history runs.db
  burstgate history --history runs.db --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, path, limit)
		},
	}

	cmd.Flags().StringVar(&path, "history", "", "SQLite file runs were recorded in (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list (0 lists all)")
	_ = cmd.MarkFlagRequired("history")

	return cmd
}

func runHistory(cmd *cobra.Command, path string, limit int) error {
	if limit < 0 {
		return errors.New("limit cannot be negative")
	}

	ledger, err := history.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	runs, err := ledger.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tURL\tCOUNT\tAUTHORIZED\tSUCCEEDED\tFAILED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%d\t%d\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.URL,
			r.Count,
			r.Authorized,
			r.Succeeded,
			r.Failed,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		)
	}
	return tw.Flush()
}
