// Backup and restore commands for the coachdb CLI.
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/backup"
	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/report"
)

func newBackupCmd(a *app) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "backup <file> [collection|group:id...]",
		Short: "Write collections to a JSONL backup file",
		Long: `Backup writes one JSON record per document to file. Without collection
arguments it saves backup_collections from config.yaml, or every root
collection when that is empty. Subcollections are included unless
--recursive=false.`,
		Args: userArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args[1:]
			if len(names) == 0 {
				names = a.cfg.BackupCollections
			}
			targets, err := parseTargets(names)
			if err != nil {
				return err
			}

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			if len(targets) == 0 {
				if targets, err = rootTargets(ctx, store); err != nil {
					return err
				}
			}
			sum, err := backup.Write(ctx, a.scanner(store), args[0], targets, recursive)
			if err != nil {
				return cli.SystemError(err)
			}
			return a.output(cmd, sum, func(w io.Writer) error {
				if err := report.Backup(sum).Write(w); err != nil {
					return err
				}
				_, err := fmt.Fprintf(w, "\nWrote %d documents to %s\n", sum.Documents, sum.Path)
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "include subcollections")
	return cmd
}

// restoreOutput is the --json form of "restore".
type restoreOutput struct {
	Backup backup.Summary `json:"backup"`
	Result mutate.Result  `json:"result"`
}

func newRestoreCmd(a *app) *cobra.Command {
	var (
		only   []string
		dryRun bool
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Write the documents of a JSONL backup back to the store",
		Long: `Restore replays every record of a backup file as a whole-document set.
Documents created after the backup are left alone. --only limits the restore
to the named collections and the subcollections beneath them. Malformed
lines are skipped and counted.`,
		Args: userArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			if !dryRun {
				if err := confirm(cmd, yes, "Restore "+args[0]); err != nil {
					return err
				}
			}
			sum, res, err := backup.Restore(ctx, a.mutator(store, dryRun), args[0], only)
			if err != nil {
				if isNotExist(err) {
					return cli.UserError(err)
				}
				return cli.SystemError(err)
			}
			out := restoreOutput{Backup: sum, Result: res}
			return a.output(cmd, out, func(w io.Writer) error {
				if err := report.Backup(sum).Write(w); err != nil {
					return err
				}
				fmt.Fprintln(w)
				if sum.Skipped > 0 {
					fmt.Fprintf(w, "Skipped %d malformed records\n", sum.Skipped)
				}
				return report.Mutation(res).Write(w)
			})
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil, "restore only these collections (comma separated)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be restored without writing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
