package reconcile

import (
	"context"
	"sort"

	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Fix turns the report's findings into write operations. Delete orphans
// become deletes (plus their descendants when the relation cascades);
// unset orphans become a rewrite of the document with dangling references
// removed. A document both deleted and rewritten is only deleted. Deletes
// come first, each group ordered by path.
func Fix(ctx context.Context, store types.Store, report *Report) ([]types.WriteOp, error) {
	deletes := make(map[string]types.WriteOp)
	cascaded := make(map[string]bool)
	rewrites := make(map[string]types.Document)

	for _, o := range report.Orphans() {
		if o.Action != plan.ActionDelete {
			continue
		}
		path := o.Document.Path()
		deletes[path] = types.DeleteOp(o.Document.Collection, o.Document.ID)
		if !o.Cascade || cascaded[path] {
			continue
		}
		cascaded[path] = true
		children, err := scan.Descendants(ctx, store, path)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			deletes[c.Path()] = types.DeleteOp(c.Collection, c.ID)
		}
	}

	for _, o := range report.Orphans() {
		if o.Action != plan.ActionUnset {
			continue
		}
		path := o.Document.Path()
		if _, gone := deletes[path]; gone {
			continue
		}
		doc, ok := rewrites[path]
		if !ok {
			doc = o.Document.Clone()
		}
		unset(doc.Data, o.ForeignKey, o.Dangling)
		rewrites[path] = doc
	}

	ops := make([]types.WriteOp, 0, len(deletes)+len(rewrites))
	for _, path := range sortedKeys(deletes) {
		ops = append(ops, deletes[path])
	}
	for _, path := range sortedKeys(rewrites) {
		if _, gone := deletes[path]; gone {
			continue
		}
		ops = append(ops, types.SetOp(rewrites[path]))
	}
	return ops, nil
}

// unset removes dangling IDs from an array field, or the whole field when it
// is not an array.
func unset(data map[string]any, field string, dangling []string) {
	drop := make(map[string]bool, len(dangling))
	for _, d := range dangling {
		drop[d] = true
	}

	switch v := data[field].(type) {
	case []any:
		kept := make([]any, 0, len(v))
		for _, e := range v {
			if !drop[keyString(e)] {
				kept = append(kept, e)
			}
		}
		data[field] = kept
	case []string:
		kept := make([]string, 0, len(v))
		for _, e := range v {
			if !drop[e] {
				kept = append(kept, e)
			}
		}
		data[field] = kept
	default:
		delete(data, field)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
