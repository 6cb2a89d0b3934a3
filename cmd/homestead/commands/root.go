// Package commands implements the homestead command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	manifests  string
	verbose    bool
	logFormat  string

	version   string
	commit    string
	buildDate string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &rootOptions{version: version, commit: commit, buildDate: buildDate}

	rootCmd := &cobra.Command{
		Use:   "homestead",
		Short: "Homestead - declarative machine provisioning",
		Long: `Homestead provisions a machine from declarative manifests.

Manifests are YAML files listing actions: packages to install, files to
copy or link, directories to create, commands to run and repositories to
clone. Manifests can depend on each other and are executed in dependency
order, either as a dry run or for real.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (skips discovery)")
	rootCmd.PersistentFlags().StringVarP(&opts.manifests, "manifests", "m", "", "manifest file or directory (replaces the configured list)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (console or json)")

	// Add subcommands
	rootCmd.AddCommand(newApplyCommand(opts))
	rootCmd.AddCommand(newGraphCommand(opts))
	rootCmd.AddCommand(newProvidersCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newPoliciesCommand(opts))
	rootCmd.AddCommand(newVersionCommand(opts))

	return rootCmd
}
