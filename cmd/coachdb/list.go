// List command for the coachdb CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/internal/report"
	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection|group:id> [field=value...]",
		Short: "List documents with optional filters",
		Long: `List prints the documents of a collection, or of every collection with
the given ID when the argument is group:<id>.

Filters are field=value pairs and are ANDed together. Values are parsed as
JSON when possible (clientId="c1", order=3, deleted=true, coach=null),
otherwise used as strings.`,
		Example: `  coachdb list clients
  coachdb list workouts clientId=c1
  coachdb list group:workouts --json`,
		Args: userArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scan.ParseTarget(args[0])
			if err != nil {
				return cli.UserError(err)
			}
			filters, err := parseFilters(args[1:])
			if err != nil {
				return cli.UserError(err)
			}

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Detach()

			snap, err := a.scanner(store).Scan(ctx, target)
			if err != nil {
				return cli.SystemError(err)
			}
			docs := make([]types.Document, 0)
			for _, d := range snap.Get(target) {
				if matchesAll(d, filters) {
					docs = append(docs, d)
				}
			}
			return a.output(cmd, docs, func(w io.Writer) error {
				return report.Documents(docs).Write(w)
			})
		},
	}
}

// parseFilters turns field=value arguments into predicates.
func parseFilters(args []string) ([]plan.Predicate, error) {
	out := make([]plan.Predicate, 0, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q (expected field=value)", arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		if parsed == nil {
			out = append(out, plan.Predicate{Field: field, Null: true})
			continue
		}
		out = append(out, plan.Predicate{Field: field, Equals: types.NormalizeNumbers(parsed)})
	}
	return out, nil
}

func matchesAll(doc types.Document, filters []plan.Predicate) bool {
	for _, f := range filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}
