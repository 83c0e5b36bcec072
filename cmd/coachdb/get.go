// Get command for the coachdb CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/report"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Print a document as JSON",
		Example: `  coachdb get clients c1
  coachdb get clients/c1/workouts w1`,
		Args: userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			doc, err := store.Get(ctx, args[0], args[1])
			if err != nil {
				if isNotFound(err) {
					return cli.UserError(fmt.Errorf("document %q not found in %q", args[1], args[0]))
				}
				return err
			}
			return report.PrintJSON(cmd.OutOrStdout(), doc)
		},
	}
}
