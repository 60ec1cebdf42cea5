package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/zarchive/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit     int
		failed    bool
		operation string
		prune     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded archive and unarchive runs",
		Long: `Show runs recorded in the history database, newest first. Use --failed to
show only failed runs and --operation to show only archive or unarchive runs.
--prune deletes runs older than the given age before listing.`,
		Example: `  zarchive history
  zarchive history --limit 5 --failed
  zarchive history --operation unarchive
  zarchive history --prune 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalStore == nil {
				return fmt.Errorf("run history is disabled")
			}
			if prune > 0 {
				n, err := globalStore.PruneRuns(time.Now().UTC().Add(-prune))
				if err != nil {
					return err
				}
				logger.Info("pruned run history", "deleted", n)
			}
			filter := store.RunFilter{Operation: operation, Limit: limit}
			if failed {
				filter.Status = "failed"
			}
			runs, err := globalStore.ListRuns(filter)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&failed, "failed", false, "show only failed runs")
	cmd.Flags().StringVar(&operation, "operation", "", "show only archive or unarchive runs")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this age first")

	return cmd
}

func printHistory(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintf(w, "%-8s %-9s %-6s %-8s %-32s %10s %8s %s\n",
		"ID", "Operation", "Format", "Status", "Destination", "Size", "Duration", "Started")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, r := range runs {
		size := "-"
		if r.DestBytes > 0 {
			size = humanize.IBytes(uint64(r.DestBytes))
		}
		duration := "-"
		if !r.EndTime.IsZero() && r.EndTime.After(r.StartTime) {
			duration = r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String()
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%-8s %-9s %-6s %-8s %-32s %10s %8s %s\n",
			id, r.Operation, r.Format, r.Status, truncate(r.Dest, 32), size, duration, humanize.Time(r.StartTime))
		if r.ErrorMessage != "" {
			fmt.Fprintf(w, "         error: %s\n", r.ErrorMessage)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
