// Package reconcile finds documents whose foreign keys point at parents that
// no longer exist, and plans the writes that clean them up.
//
// The sweep starts from the reachable set of each authority collection and
// walks the plan's relations in reference order. A relation's surviving
// documents become the reachable set for relations that reference it, so a
// workout deleted for a missing client also orphans that workout's
// assignments.
package reconcile

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Orphan is a dependent document with at least one dangling reference.
type Orphan struct {
	Document types.Document `json:"document"`
	Relation string         `json:"relation"`
	Action   string         `json:"action"`
	Cascade  bool           `json:"cascade,omitempty"`
	// ForeignKey is the field holding the reference; empty for
	// parent-keyed relations.
	ForeignKey string `json:"foreign_key,omitempty"`
	// Dangling lists the referenced IDs that are not reachable.
	Dangling []string `json:"dangling,omitempty"`
	// Missing is set when the foreign key is absent or empty.
	Missing bool `json:"missing,omitempty"`
}

// AuthorityReport summarizes an authority collection.
type AuthorityReport struct {
	Collection string `json:"collection"`
	Documents  int    `json:"documents"`
	Excluded   int    `json:"excluded"`
	Reachable  int    `json:"reachable"`
}

// RelationReport summarizes one relation.
type RelationReport struct {
	Relation   string   `json:"relation"`
	Target     string   `json:"target"`
	References string   `json:"references"`
	Scanned    int      `json:"scanned"`
	Unlinked   int      `json:"unlinked"`
	Orphans    []Orphan `json:"orphans"`
}

// Report is the result of an orphan sweep.
type Report struct {
	Authorities []AuthorityReport `json:"authorities"`
	Relations   []RelationReport  `json:"relations"`
}

// OrphanCount returns the number of orphan findings across all relations.
func (r *Report) OrphanCount() int {
	n := 0
	for _, rel := range r.Relations {
		n += len(rel.Orphans)
	}
	return n
}

// Orphans returns every finding, ordered by relation then document path.
func (r *Report) Orphans() []Orphan {
	var out []Orphan
	for _, rel := range r.Relations {
		out = append(out, rel.Orphans...)
	}
	return out
}

// Touched returns the scan targets holding orphans, for backups.
func (r *Report) Touched() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rel := range r.Relations {
		if len(rel.Orphans) > 0 && !seen[rel.Target] {
			seen[rel.Target] = true
			out = append(out, rel.Target)
		}
	}
	return out
}

// Reconciler scans the collections named by a plan and evaluates it.
type Reconciler struct {
	Scanner *scan.Scanner
	Logger  *zap.Logger
}

// Find scans every collection the plan names and returns the orphan report.
func (r *Reconciler) Find(ctx context.Context, p *plan.Plan) (*Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	snap, err := r.Scanner.Scan(ctx, p.Targets()...)
	if err != nil {
		return nil, err
	}
	report, err := Evaluate(snap, p)
	if err != nil {
		return nil, err
	}
	logger.Info("orphan sweep complete",
		zap.Int("documents", snap.Count()),
		zap.Int("orphans", report.OrphanCount()))
	return report, nil
}

// Reachable returns the docs that are valid parents under a.
func Reachable(docs []types.Document, a plan.Authority) []types.Document {
	out := make([]types.Document, 0, len(docs))
	for _, d := range docs {
		if !a.Excluded(d) {
			out = append(out, d)
		}
	}
	return out
}

// reachSet is the reachable documents of an authority or relation. Foreign
// keys hold bare IDs and are matched against ids; parent-keyed children are
// matched against the full path of their owning document, since IDs in a
// collection group are only unique per parent.
type reachSet struct {
	ids    map[string]bool
	paths  map[string]bool
	target scan.Target
}

func newReachSet(target scan.Target, size int) reachSet {
	return reachSet{
		ids:    make(map[string]bool, size),
		paths:  make(map[string]bool, size),
		target: target,
	}
}

func (s reachSet) add(doc types.Document) {
	s.ids[doc.ID] = true
	s.paths[doc.Path()] = true
}

// owns reports whether a document in parentCollection belongs to s.
func (s reachSet) owns(parentCollection string) bool {
	if s.target.Group {
		return types.CollectionID(parentCollection) == s.target.Path
	}
	return parentCollection == s.target.Path
}

// Evaluate runs the reachability sweep over an already scanned snapshot.
func Evaluate(snap *scan.Snapshot, p *plan.Plan) (*Report, error) {
	order, err := p.Order()
	if err != nil {
		return nil, err
	}

	sets := make(map[string]reachSet)
	report := &Report{}

	for _, a := range p.Authorities {
		t := scan.Collection(a.Collection)
		docs := snap.Get(t)
		reachable := Reachable(docs, a)
		set := newReachSet(t, len(reachable))
		for _, d := range reachable {
			set.add(d)
		}
		sets[a.Collection] = set
		report.Authorities = append(report.Authorities, AuthorityReport{
			Collection: a.Collection,
			Documents:  len(docs),
			Excluded:   len(docs) - len(reachable),
			Reachable:  len(reachable),
		})
	}

	for _, rel := range order {
		parent, ok := sets[rel.References]
		if !ok {
			return nil, fmt.Errorf("%w: relation %q references unknown %q", types.ErrInvalidPlan, rel.Name, rel.References)
		}
		rr, survivors := evaluateRelation(rel, snap.Get(rel.Target()), parent)
		sets[rel.Name] = survivors
		report.Relations = append(report.Relations, rr)
	}
	return report, nil
}

func evaluateRelation(rel plan.Relation, docs []types.Document, parent reachSet) (RelationReport, reachSet) {
	rr := RelationReport{
		Relation:   rel.Name,
		Target:     rel.Target().String(),
		References: rel.References,
		Orphans:    []Orphan{},
	}
	survivors := newReachSet(rel.Target(), len(docs))

	for _, doc := range docs {
		var keys []string
		parentKeyed := rel.ParentKeyed()
		if parentKeyed {
			parentCollection, parentID, err := types.SplitDocumentPath(doc.ParentPath())
			if err != nil || !parent.owns(parentCollection) {
				continue
			}
			keys = []string{parentID}
		} else {
			keys = foreignKeys(doc, rel.ForeignKey)
		}
		rr.Scanned++

		orphan := Orphan{
			Document:   doc,
			Relation:   rel.Name,
			Action:     rel.Action(),
			Cascade:    rel.Cascade,
			ForeignKey: rel.ForeignKey,
		}

		if len(keys) == 0 {
			rr.Unlinked++
			if rel.MissingIsOrphan {
				orphan.Missing = true
				rr.Orphans = append(rr.Orphans, orphan)
				if orphan.Action != plan.ActionDelete {
					survivors.add(doc)
				}
			} else {
				survivors.add(doc)
			}
			continue
		}

		if parentKeyed {
			if !parent.paths[doc.ParentPath()] {
				orphan.Dangling = keys
			}
		} else {
			for _, k := range keys {
				if !parent.ids[k] {
					orphan.Dangling = append(orphan.Dangling, k)
				}
			}
		}
		switch {
		case len(orphan.Dangling) == 0:
			survivors.add(doc)
		case orphan.Action == plan.ActionUnset:
			rr.Orphans = append(rr.Orphans, orphan)
			survivors.add(doc)
		case len(orphan.Dangling) == len(keys):
			rr.Orphans = append(rr.Orphans, orphan)
		default:
			// Delete relations keep documents with at least one live reference.
			survivors.add(doc)
		}
	}

	sort.Slice(rr.Orphans, func(i, j int) bool {
		return rr.Orphans[i].Document.Path() < rr.Orphans[j].Document.Path()
	})
	return rr, survivors
}

// foreignKeys returns the non-empty IDs held in field. Strings yield one key,
// arrays one key per non-empty element; other scalars are formatted.
func foreignKeys(doc types.Document, field string) []string {
	v, ok := doc.Field(field)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		keys := make([]string, 0, len(t))
		for _, e := range t {
			if s := keyString(e); s != "" && !slices.Contains(keys, s) {
				keys = append(keys, s)
			}
		}
		return keys
	case []string:
		keys := make([]string, 0, len(t))
		for _, s := range t {
			if s != "" && !slices.Contains(keys, s) {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return []string{keyString(t)}
	}
}

func keyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
