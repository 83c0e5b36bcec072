// Orphans commands for the coachdb CLI: find and clean documents whose
// parents no longer exist.
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/reconcile"
	"github.com/mesh-intelligence/coachdb/internal/report"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// cleanOutput is the --json form of "orphans clean".
type cleanOutput struct {
	Report  *reconcile.Report `json:"report"`
	Ops     []types.WriteOp   `json:"ops"`
	Changes []mutate.Change   `json:"changes,omitempty"`
	Result  mutate.Result     `json:"result"`
}

func newOrphansCmd(a *app) *cobra.Command {
	var planFile string
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Find and clean orphaned documents",
		Long: `Orphan commands sweep the collections named by the reconciliation plan.
A document is orphaned when the parent its foreign key names is missing or
excluded (for example an archived client), directly or through another
orphaned document.`,
	}
	cmd.PersistentFlags().StringVar(&planFile, "plan", "", "plan file (default: plan from config.yaml, else the built-in plan)")
	cmd.AddCommand(newOrphansCheckCmd(a, &planFile), newOrphansCleanCmd(a, &planFile))
	return cmd
}

// findOrphans loads the plan and runs the sweep.
func (a *app) findOrphans(ctx context.Context, store types.Store, planFile string) (*reconcile.Report, error) {
	p, err := a.loadPlan(planFile)
	if err != nil {
		return nil, err
	}
	r := &reconcile.Reconciler{Scanner: a.scanner(store), Logger: a.logger}
	rep, err := r.Find(ctx, p)
	if err != nil {
		return nil, cli.SystemError(err)
	}
	return rep, nil
}

func newOrphansCheckCmd(a *app, planFile *string) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report orphaned documents without changing anything",
		Args:  userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			rep, err := a.findOrphans(ctx, store, *planFile)
			if err != nil {
				return err
			}
			err = a.output(cmd, rep, func(w io.Writer) error {
				return printOrphanReport(w, rep)
			})
			if err != nil {
				return err
			}
			if strict && rep.OrphanCount() > 0 {
				return cli.UserError(fmt.Errorf("%d orphaned documents found", rep.OrphanCount()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with status 1 when orphans are found")
	return cmd
}

func newOrphansCleanCmd(a *app, planFile *string) *cobra.Command {
	var (
		dryRun   bool
		yes      bool
		noBackup bool
		diff     bool
	)
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete or unlink orphaned documents",
		Long: `Clean applies the plan's orphan actions: delete the document (and its
subcollections for cascading relations) or remove the dangling references.
The documents of every affected collection are backed up first unless
--no-backup is given. Writes are committed in batches; if a batch fails,
re-running the command resumes where it stopped.`,
		Args: userArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			rep, err := a.findOrphans(ctx, store, *planFile)
			if err != nil {
				return err
			}
			ops, err := reconcile.Fix(ctx, store, rep)
			if err != nil {
				return cli.SystemError(err)
			}
			out := cleanOutput{Report: rep, Ops: ops}

			if len(ops) == 0 {
				return a.output(cmd, out, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "No orphaned documents found")
					return err
				})
			}

			if diff {
				out.Changes, err = mutate.Preview(ctx, store, ops)
				if err != nil {
					return cli.SystemError(err)
				}
			}

			if dryRun {
				out.Result, err = a.mutator(store, true).Apply(ctx, ops)
				if err != nil {
					return cli.SystemError(err)
				}
				return a.output(cmd, out, func(w io.Writer) error {
					if err := printOrphanReport(w, rep); err != nil {
						return err
					}
					fmt.Fprintln(w)
					if diff {
						return report.PrintChanges(w, out.Changes)
					}
					return report.Ops(ops).Write(w)
				})
			}

			if diff && !a.flagJSON {
				if err := report.PrintChanges(cmd.OutOrStdout(), out.Changes); err != nil {
					return err
				}
			}
			label := fmt.Sprintf("Apply %d writes for %d orphaned documents", len(ops), rep.OrphanCount())
			if err := confirm(cmd, yes, label); err != nil {
				return err
			}
			if !noBackup {
				targets, err := parseTargets(rep.Touched())
				if err != nil {
					return err
				}
				if err := a.autoBackup(ctx, cmd, store, "orphans-clean", targets, true); err != nil {
					return err
				}
			}

			out.Result, err = a.mutator(store, false).Apply(ctx, ops)
			if err != nil {
				return cli.SystemError(fmt.Errorf("%w (committed %d of %d; re-run to resume)", err, out.Result.Committed, out.Result.Planned))
			}
			return a.output(cmd, out, func(w io.Writer) error {
				return report.Mutation(out.Result).Write(w)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the planned writes without applying them")
	cmd.Flags().BoolVar(&diff, "diff", false, "show a per-document diff of the planned writes")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the automatic backup")
	return cmd
}

func printOrphanReport(w io.Writer, rep *reconcile.Report) error {
	if err := report.Relations(rep).Write(w); err != nil {
		return err
	}
	if rep.OrphanCount() == 0 {
		_, err := fmt.Fprintln(w, "\nNo orphaned documents found")
		return err
	}
	fmt.Fprintln(w)
	return report.Orphans(rep).Write(w)
}

