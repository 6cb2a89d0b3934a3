package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/stores"
)

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Example: `  # Show the last 5 runs
  homestead history --limit 5

  # Show the actions of one run
  homestead history --run 0b6f5c1e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			store, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to open run history %s: %w", a.cfg.StatePath, err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				results, err := store.ListActions(ctx, runID)
				if err != nil {
					return err
				}
				printRun(out, run)
				printActions(out, results)
				return nil
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			for _, run := range runs {
				printRun(out, run)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show the actions of this run")

	return cmd
}

func printRun(out io.Writer, run *stores.Run) {
	status := engine.RunStatus(run.Status)
	duration := "-"
	if status.IsTerminal() {
		duration = run.Duration().Round(time.Millisecond).String()
	}
	_, _ = fmt.Fprintf(out, "%s  %s  %-7s %s  %d executed, %d failed, %d pending  %s\n",
		run.ID,
		run.StartedAt.Local().Format(time.DateTime),
		run.Mode,
		statusColor(status)("%-9s", run.Status),
		run.Executed, run.Failed, run.Pending,
		duration,
	)
	if run.Error != nil {
		_, _ = fmt.Fprintf(out, "  %s\n", color.RedString("%s", *run.Error))
	}
}

func printActions(out io.Writer, results []*stores.ActionResult) {
	for _, r := range results {
		outcome := color.GreenString("ok")
		detail := r.Message
		if r.Error != nil {
			outcome = color.RedString("FAILED")
			detail = *r.Error
		}
		_, _ = fmt.Fprintf(out, "  %s[%d] %s %s %s\n", r.Manifest, r.Index, r.Kind, outcome, detail)
	}
}
