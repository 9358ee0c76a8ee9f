package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/fetchq/internal/journal"
	"github.com/me/fetchq/pkg/model"
)

func newReportCmd() *cobra.Command {
	var (
		journalPath string
		runID       string
		listRuns    bool
		allRuns     bool
		failedOnly  bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show journaled request outcomes",
		Long:  "Report reads the SQLite journal and prints past runs and their settled requests. Without flags it reports on the most recent run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("journal") {
				cfg.JournalPath = journalPath
			}
			if cfg.JournalPath == "" {
				return fmt.Errorf("no journal configured: pass --journal or set journal in the config file")
			}

			jnl, err := journal.Open(cfg.JournalPath, logger)
			if err != nil {
				return err
			}
			defer jnl.Close()

			ctx := context.Background()
			if err := jnl.Migrate(ctx); err != nil {
				return err
			}

			if listRuns {
				return printRuns(ctx, jnl, limit)
			}

			filter := journal.Filter{Limit: limit}
			if failedOnly {
				filter.Status = model.StatusFailed.String()
			}

			if !allRuns {
				if runID == "" {
					last, err := jnl.LastRun(ctx)
					if err != nil {
						return err
					}
					if last == nil {
						fmt.Println("No runs found.")
						return nil
					}
					runID = last.ID
				}
				filter.RunID = runID
			}

			entries, err := jnl.List(ctx, filter)
			if err != nil {
				return err
			}
			printEntries(entries)

			if filter.RunID == "" {
				return nil
			}
			return printRunSummary(ctx, jnl, filter.RunID)
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal path (overrides config)")
	cmd.Flags().StringVar(&runID, "run", "", "Report on a specific run")
	cmd.Flags().BoolVar(&listRuns, "runs", false, "List recorded runs instead of requests")
	cmd.Flags().BoolVar(&allRuns, "all", false, "Show requests across all runs")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed requests")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")

	return cmd
}

func printRuns(ctx context.Context, jnl *journal.Journal, limit int) error {
	runs, err := jnl.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-14s  %-8s  %-20s  %s\n", "RUN", "COMMAND", "STARTED", "DURATION")
	fmt.Printf("%-14s  %-8s  %-20s  %s\n", "---", "-------", "-------", "--------")
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Printf("%-14s  %-8s  %-20s  %s\n", run.ID, run.Command, humanize.Time(run.StartedAt), duration)
	}
	return nil
}

func printEntries(entries []*journal.Entry) {
	if len(entries) == 0 {
		fmt.Println("No requests found.")
		return
	}

	fmt.Printf("%-14s  %-6s  %-4s  %-8s  %-9s  %-8s  %s\n", "REQUEST", "STATUS", "HTTP", "ATTEMPTS", "SIZE", "TIME", "URL")
	fmt.Printf("%-14s  %-6s  %-4s  %-8s  %-9s  %-8s  %s\n", "-------", "------", "----", "--------", "----", "----", "---")
	for _, e := range entries {
		httpStatus := "-"
		if e.HTTPStatus != 0 {
			httpStatus = fmt.Sprintf("%d", e.HTTPStatus)
		}
		fmt.Printf("%-14s  %-6s  %-4s  %-8d  %-9s  %-8s  %s %s\n",
			e.RequestID, e.Status, httpStatus, e.Attempts,
			humanize.Bytes(uint64(e.Bytes)), e.Duration.Round(time.Millisecond),
			e.Method, e.URL)
		if e.Error != "" {
			fmt.Printf("    error (%s): %s\n", e.ErrorKind, e.Error)
		}
	}
}

func printRunSummary(ctx context.Context, jnl *journal.Journal, runID string) error {
	run, err := jnl.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	summary, err := jnl.Summarize(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun %s (%s), started %s\n", run.ID, run.Command, humanize.Time(run.StartedAt))
	fmt.Printf("  Requests:  %d total", summary.Requests)
	if summary.Succeeded > 0 {
		fmt.Printf(", %d ok", summary.Succeeded)
	}
	if summary.Failed > 0 {
		fmt.Printf(", %d failed", summary.Failed)
	}
	fmt.Println()
	fmt.Printf("  Attempts:  %d\n", summary.Attempts)
	fmt.Printf("  Received:  %s\n", humanize.Bytes(uint64(summary.Bytes)))
	if len(summary.Failures) > 0 {
		kinds := make([]string, 0, len(summary.Failures))
		for kind := range summary.Failures {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		fmt.Printf("  Failures: ")
		for i, kind := range kinds {
			if i > 0 {
				fmt.Printf(",")
			}
			fmt.Printf(" %s: %d", kind, summary.Failures[kind])
		}
		fmt.Println()
	}
	return nil
}
