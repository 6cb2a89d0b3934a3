package commands

import (
	"github.com/spf13/cobra"

	"github.com/openfroyo/homestead/pkg/engine"
	"github.com/openfroyo/homestead/pkg/stores"
	"github.com/openfroyo/homestead/pkg/telemetry"
)

func newApplyCommand(root *rootOptions) *cobra.Command {
	var (
		dryRun          bool
		only            []string
		continueOnError bool
		metricsFile     string
		skipPolicy      bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply manifests to this machine",
		Long: `Load the manifests, order them by their dependencies and execute
every action.

With --dry-run each action reports what it would do and nothing on the
machine is changed; dry runs are not recorded in the run history. By
default the run stops at the first failed action; --continue-on-error
attempts every action and reports all failures.

Before anything executes the manifests are checked against the built-in
and configured policies. Violations of error severity stop the run.`,
		Example: `  # Show what would change
  homestead apply --dry-run

  # Apply one manifest and its dependencies
  homestead apply --only dev.git

  # Apply manifests from a directory and export metrics
  homestead apply -m ~/dotfiles --metrics-file /var/lib/node_exporter/homestead.prom`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := root.newApp(metricsFile)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			ordered, err := a.loadManifests(ctx, only)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ordered) == 0 {
				printNoManifests(out, a.cfg.Manifests)
				return nil
			}

			if !skipPolicy {
				pe, err := a.policies(ctx)
				if err != nil {
					return err
				}
				result, err := pe.Check(ctx, ordered, a.platform)
				if result != nil {
					printViolations(out, result)
				}
				if err != nil {
					return err
				}
			}

			mode := engine.ModeApply
			if dryRun {
				mode = engine.ModeDryRun
			}

			opts := []engine.DriverOption{
				engine.WithLogger(telemetry.ComponentLogger(a.logger, "engine")),
				engine.WithTracer(a.tel.Tracer.Tracer()),
				engine.WithMetrics(a.tel.Metrics),
				engine.WithContinueOnError(continueOnError || a.cfg.ContinueOnError),
			}

			// Dry runs leave no trace, not even in the run history.
			if mode == engine.ModeApply {
				store, err := a.openStore(ctx)
				if err != nil {
					// Run history is best effort.
					a.logger.Warn().Err(err).Str("path", a.cfg.StatePath).Msg("Run history unavailable")
				} else {
					defer store.Close()
					opts = append(opts, engine.WithRecorder(stores.NewRecorder(store)))
				}
			}

			driver := engine.NewDriver(a.registry, a.runner, opts...)
			report, runErr := driver.Execute(ctx, ordered, a.variables(), mode)
			if report != nil {
				printReport(out, report)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report intended changes without applying them")
	cmd.Flags().StringSliceVar(&only, "only", nil, "apply only these manifests and their dependencies")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going after a failed action")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file when done")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "do not check manifests against policies")

	return cmd
}
