// Delete command for the coachdb CLI.
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/report"
	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

func newDeleteCmd(a *app) *cobra.Command {
	var (
		recursive bool
		yes       bool
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "delete <collection> <id>",
		Short: "Remove a document",
		Long: `Delete removes one document. With --recursive every document in its
subcollections is removed too, after confirmation. Subcollections are
removed even when the document itself no longer exists.`,
		Args: userArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, id := args[0], args[1]

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			docPath := types.JoinPath(collection, id)
			if err := types.ValidateDocumentPath(docPath); err != nil {
				return cli.UserError(err)
			}
			missing := false
			if _, err := store.Get(ctx, collection, id); err != nil {
				if !isNotFound(err) {
					return cli.SystemError(err)
				}
				missing = true
			}

			if !recursive && missing {
				return cli.UserError(fmt.Errorf("document %q not found in %q", id, collection))
			}

			ops := []types.WriteOp{types.DeleteOp(collection, id)}
			if recursive {
				children, err := scan.Descendants(ctx, store, docPath)
				if err != nil {
					return cli.SystemError(err)
				}
				if missing && len(children) == 0 {
					return cli.UserError(fmt.Errorf("document %q not found in %q", id, collection))
				}
				for _, c := range children {
					ops = append(ops, types.DeleteOp(c.Collection, c.ID))
				}
				if !dryRun && len(children) > 0 {
					label := fmt.Sprintf("Delete %s and %d nested documents", docPath, len(children))
					if err := confirm(cmd, yes, label); err != nil {
						return err
					}
				}
			}

			res, err := a.mutator(store, dryRun).Apply(ctx, ops)
			if err != nil {
				return cli.SystemError(err)
			}
			if dryRun {
				return a.output(cmd, ops, func(w io.Writer) error {
					return report.Ops(ops).Write(w)
				})
			}
			return a.output(cmd, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %s (%d documents)\n", docPath, res.Committed)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "also delete every nested subcollection document")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without deleting")
	return cmd
}
