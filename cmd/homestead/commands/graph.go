package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/homestead/pkg/engine"
)

func newGraphCommand(root *rootOptions) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the manifest dependency graph in DOT format",
		Example: `  # Render the graph with graphviz
  homestead graph | dot -Tsvg > manifests.svg`,
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

			builder := engine.NewDAGBuilder()
			if _, err := builder.Resolve(ordered); err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), builder.ToDOT())
			return err
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "graph only these manifests and their dependencies")

	return cmd
}
