package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newPoliciesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the policies manifests are checked against",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			pe, err := a.policies(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range pe.ListPolicies() {
				state := color.GreenString("enabled")
				if !p.Enabled {
					state = color.YellowString("disabled")
				}
				source := p.Source
				if source == "" {
					source = "built-in"
				}
				_, _ = fmt.Fprintf(out, "%-22s %-8s %s  %s\n", p.Name, p.Severity, state, source)
				if p.Description != "" {
					_, _ = fmt.Fprintf(out, "  %s\n", p.Description)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(newPoliciesCheckCommand(root))
	return cmd
}

func newPoliciesCheckCommand(root *rootOptions) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check manifests against policies without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := root.newApp("")
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

			pe, err := a.policies(ctx)
			if err != nil {
				return err
			}

			result, err := pe.Check(ctx, ordered, a.platform)
			if result != nil {
				printViolations(out, result)
				if len(result.Violations) == 0 {
					_, _ = fmt.Fprintln(out, color.GreenString("No policy violations in %d manifest(s)", len(ordered)))
				}
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "check only these manifests and their dependencies")
	return cmd
}
