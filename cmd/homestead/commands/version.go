package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "homestead %s\n  commit: %s\n  built:  %s\n  go:     %s %s/%s\n",
				root.version, root.commit, root.buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
