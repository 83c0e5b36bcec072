// Analyze command for the coachdb CLI.
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/analyze"
	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/report"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var subcollections bool
	cmd := &cobra.Command{
		Use:   "analyze [collection|group:id...]",
		Short: "Profile collections: counts, fields, types and array sizes",
		Long: `Analyze reads the named collections (every root collection when none
are named) and reports, per field, how many documents have it, the value
types seen, and array lengths. --subcollections also lists the
subcollections found under each collection's documents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args)
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

			an := &analyze.Analyzer{Scanner: a.scanner(store), Subcollections: subcollections}
			stats, err := an.Analyze(ctx, targets...)
			if err != nil {
				return cli.SystemError(err)
			}
			return a.output(cmd, stats, func(w io.Writer) error {
				if err := report.Analysis(stats).Write(w); err != nil {
					return err
				}
				if !subcollections {
					return nil
				}
				fmt.Fprintln(w)
				return report.Subcollections(stats).Write(w)
			})
		},
	}
	cmd.Flags().BoolVar(&subcollections, "subcollections", false, "list subcollections under each document")
	return cmd
}
