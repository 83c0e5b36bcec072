// Set command for the coachdb CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/report"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <collection> <id> <json>",
		Short: "Create or replace a document",
		Long: `Set writes the JSON object as the whole content of the document,
creating it if needed, and prints the stored document.`,
		Example: `  coachdb set clients c1 '{"name":"Ana","status":"active"}'`,
		Args:    userArgs(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := types.DecodeData([]byte(args[2]))
			if err != nil {
				return cli.UserError(fmt.Errorf("parse JSON: %w", err))
			}
			op := types.SetOp(types.Document{Collection: args[0], ID: args[1], Data: data})
			if err := op.Validate(); err != nil {
				return cli.UserError(err)
			}

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			if err := store.Commit(ctx, []types.WriteOp{op}); err != nil {
				return cli.SystemError(fmt.Errorf("set %s: %w", op.Path(), err))
			}
			saved, err := store.Get(ctx, op.Collection, op.ID)
			if err != nil {
				return cli.SystemError(fmt.Errorf("get saved document: %w", err))
			}
			return report.PrintJSON(cmd.OutOrStdout(), saved)
		},
	}
}
