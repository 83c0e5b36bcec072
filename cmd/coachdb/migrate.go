// Migrate command for the coachdb CLI.
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/migrate"
	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/internal/report"
	"github.com/mesh-intelligence/coachdb/internal/scan"
)

func newMigrateCmd(a *app) *cobra.Command {
	var (
		planFile string
		dryRun   bool
		yes      bool
		force    bool
		noBackup bool
	)
	cmd := &cobra.Command{
		Use:   "migrate [rule...]",
		Short: "Move nested arrays into subcollections",
		Long: `Migrate runs the plan's migration rules (all of them when none are
named). Each array element becomes a document in a subcollection of its
parent, then the parent is rewritten without the array. Completed rules are
recorded in the _migrations collection and skipped on later runs unless
--force is given.`,
		Example: `  coachdb migrate --dry-run
  coachdb migrate workouts-to-subcollections --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadPlan(planFile)
			if err != nil {
				return err
			}
			rules, err := selectRules(p, args)
			if err != nil {
				return cli.UserError(err)
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No migration rules in plan")
				return nil
			}

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			if !dryRun {
				label := fmt.Sprintf("Run %d migration rules", len(rules))
				if err := confirm(cmd, yes, label); err != nil {
					return err
				}
			}

			m := &migrate.Migrator{Mutator: a.mutator(store, dryRun), Force: force, Logger: a.logger}
			results := make([]migrate.Result, 0, len(rules))
			for _, rule := range rules {
				if !dryRun && !noBackup {
					done, err := migrate.Completed(ctx, store, rule.Name)
					if err != nil {
						return cli.SystemError(err)
					}
					if !done || force {
						targets := []scan.Target{scan.Collection(rule.Collection)}
						if err := a.autoBackup(ctx, cmd, store, "migrate-"+rule.Name, targets, false); err != nil {
							return err
						}
					}
				}
				res, err := m.Run(ctx, rule)
				results = append(results, res)
				if err != nil {
					return cli.SystemError(fmt.Errorf("migration %s: %w", rule.Name, err))
				}
			}

			return a.output(cmd, results, func(w io.Writer) error {
				for i, res := range results {
					if i > 0 {
						fmt.Fprintln(w)
					}
					if err := report.Migration(res).Write(w); err != nil {
						return err
					}
					if len(res.Planned.Problems) > 0 {
						fmt.Fprintln(w)
						if err := report.Problems(res.Planned.Problems).Write(w); err != nil {
							return err
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "", "plan file (default: plan from config.yaml, else the built-in plan)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned writes without applying them")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&force, "force", false, "rerun rules already marked complete")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the automatic backup")
	return cmd
}

// selectRules returns the named rules, or every rule when names is empty.
func selectRules(p *plan.Plan, names []string) ([]plan.Migration, error) {
	if len(names) == 0 {
		return p.Migrations, nil
	}
	out := make([]plan.Migration, 0, len(names))
	for _, n := range names {
		m, err := p.Migration(n)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
