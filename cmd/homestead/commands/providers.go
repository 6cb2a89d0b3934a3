package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newProvidersCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List package providers and the platform default",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := root.newApp("")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			out := cmd.OutOrStdout()
			platform := a.platform
			_, _ = fmt.Fprintf(out, "Platform: %s (%s/%s)\n", platform.Family, platform.OS, platform.Arch)

			defaultName := a.registry.DefaultName()
			for _, name := range a.registry.Names() {
				provider, err := a.registry.Get(name)
				if err != nil {
					return err
				}

				marker := " "
				if name == defaultName {
					marker = "*"
				}

				status := color.YellowString("missing")
				if provider.Available(ctx) {
					status = color.GreenString("available")
				}

				line := fmt.Sprintf("%s %-10s %s", marker, name, status)
				if aliases := a.registry.Aliases(name); len(aliases) > 0 {
					line += fmt.Sprintf("  (aliases: %s)", strings.Join(aliases, ", "))
				}
				_, _ = fmt.Fprintln(out, line)
			}

			if defaultName == "" {
				_, _ = fmt.Fprintln(out, color.YellowString("No default provider for this platform; pin one with provider:"))
			}
			return nil
		},
	}
}
