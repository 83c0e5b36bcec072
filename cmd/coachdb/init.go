// Init command for the coachdb CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration, plan file and local database",
		Long: `Init writes config.yaml and the default reconciliation plan into the
configuration directory when they are missing, then opens the configured
store once to check it is reachable. For the sqlite backend this creates the
local database.`,
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			// config.yaml was created by PersistentPreRunE.
			planPath := a.planPath()
			if _, err := os.Stat(planPath); os.IsNotExist(err) {
				if err := os.WriteFile(planPath, plan.DefaultYAML(), 0o644); err != nil {
					return cli.SystemError(fmt.Errorf("write plan: %w", err))
				}
			}
			if _, err := a.loadPlan(planPath); err != nil {
				return err
			}

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "coachdb initialized successfully")
			fmt.Fprintln(out, "  config: ", a.configDir)
			fmt.Fprintln(out, "  plan:   ", planPath)
			if a.cfg.Backend == types.BackendSQLite {
				fmt.Fprintln(out, "  data:   ", a.dataDir)
			} else {
				fmt.Fprintln(out, "  project:", a.cfg.ProjectID)
			}
			return nil
		},
	}
}
