// Package migrate moves nested array fields into subcollections.
//
// Each element of the array becomes a child document beneath its parent.
// Children are written before the parent is rewritten without the field, and
// child IDs are deterministic, so an interrupted run can simply be repeated.
// Progress is recorded in a ledger document per rule.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// LedgerCollection holds one document per migration rule.
const LedgerCollection = "_migrations"

// Ledger status values.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
)

// Ledger field names.
const (
	fieldRunID       = "run_id"
	fieldStatus      = "status"
	fieldParents     = "parents"
	fieldChildren    = "children"
	fieldProblems    = "problems"
	fieldStartedAt   = "started_at"
	fieldCompletedAt = "completed_at"
)

// Problem is an element that could not be migrated. The parent holding it is
// left untouched.
type Problem struct {
	Path   string `json:"path"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Planned is the set of writes a rule needs.
type Planned struct {
	Ops      []types.WriteOp `json:"-"`
	Scanned  int             `json:"scanned"`
	Parents  int             `json:"parents"`
	Children int             `json:"children"`
	Skipped  int             `json:"skipped"`
	Problems []Problem       `json:"problems,omitempty"`
}

// Build plans rule over docs. Documents without the field are skipped.
// For each migrated parent the child sets precede the parent rewrite.
func Build(rule plan.Migration, docs []types.Document) Planned {
	sorted := append([]types.Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path() < sorted[j].Path() })

	p := Planned{Scanned: len(sorted)}
	for _, parent := range sorted {
		raw, ok := parent.Field(rule.Field)
		if !ok || raw == nil {
			p.Skipped++
			continue
		}
		children, problems := childrenOf(rule, parent, raw)
		if len(problems) > 0 {
			p.Problems = append(p.Problems, problems...)
			continue
		}
		for _, c := range children {
			p.Ops = append(p.Ops, types.SetOp(c))
		}
		p.Children += len(children)
		p.Parents++
		if !rule.KeepSource {
			rewritten := parent.Clone()
			delete(rewritten.Data, rule.Field)
			p.Ops = append(p.Ops, types.SetOp(rewritten))
		}
	}
	return p
}

func childrenOf(rule plan.Migration, parent types.Document, raw any) ([]types.Document, []Problem) {
	elems, ok := raw.([]any)
	if !ok {
		return nil, []Problem{{Path: parent.Path(), Index: -1, Reason: fmt.Sprintf("field %q is %T, not an array", rule.Field, raw)}}
	}
	coll := types.JoinPath(parent.Path(), rule.Subcollection)
	seen := make(map[string]int, len(elems))

	var (
		children []types.Document
		problems []Problem
	)
	for i, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok {
			problems = append(problems, Problem{Path: parent.Path(), Index: i, Reason: fmt.Sprintf("element is %T, not an object", e)})
			continue
		}
		id := ChildID(parent.Path(), i, obj[rule.IDField])
		if first, dup := seen[id]; dup {
			problems = append(problems, Problem{Path: parent.Path(), Index: i, Reason: fmt.Sprintf("id %q already used by element %d", id, first)})
			continue
		}
		seen[id] = i

		data := maps.Clone(obj)
		if rule.ParentField != "" {
			data[rule.ParentField] = parent.ID
		}
		if rule.OrderField != "" {
			data[rule.OrderField] = int64(i)
		}
		children = append(children, types.Document{Collection: coll, ID: id, Data: data})
	}
	return children, problems
}

// ChildID returns the element's own ID when it is a usable non-empty string,
// otherwise a UUIDv5 derived from the parent path and the element index.
func ChildID(parentPath string, index int, own any) string {
	if s, ok := own.(string); ok && s != "" && !strings.Contains(s, "/") {
		return s
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s#%d", parentPath, index)).String()
}

// Result reports a migration run.
type Result struct {
	Rule            string        `json:"rule"`
	RunID           string        `json:"run_id,omitempty"`
	AlreadyComplete bool          `json:"already_complete,omitempty"`
	Planned         Planned       `json:"planned"`
	Writes          mutate.Result `json:"writes"`
}

// Migrator runs migration rules through a Mutator.
type Migrator struct {
	Mutator *mutate.Mutator
	// Force reruns rules whose ledger says they are complete.
	Force  bool
	Logger *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run applies rule. A rule whose ledger is complete is skipped unless Force
// is set. In dry-run mode the ledger is neither read for skipping nor
// written.
func (m *Migrator) Run(ctx context.Context, rule plan.Migration) (Result, error) {
	store := m.Mutator.Store
	logger := m.logger().With(zap.String("rule", rule.Name))
	res := Result{Rule: rule.Name}

	if !m.Force && !m.Mutator.DryRun {
		done, err := Completed(ctx, store, rule.Name)
		if err != nil {
			return res, err
		}
		if done {
			logger.Info("migration already complete")
			res.AlreadyComplete = true
			return res, nil
		}
	}

	docs, err := store.Documents(ctx, rule.Collection)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", rule.Collection, err)
	}
	res.Planned = Build(rule, docs)
	for _, p := range res.Planned.Problems {
		logger.Warn("element not migrated",
			zap.String("path", p.Path), zap.Int("index", p.Index), zap.String("reason", p.Reason))
	}

	if m.Mutator.DryRun {
		res.Writes, err = m.Mutator.Apply(ctx, res.Planned.Ops)
		return res, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return res, fmt.Errorf("generating run id: %w", err)
	}
	res.RunID = runID.String()
	started := m.now()

	if err := m.record(ctx, rule.Name, res, StatusRunning, started, time.Time{}); err != nil {
		return res, err
	}
	res.Writes, err = m.Mutator.Apply(ctx, res.Planned.Ops)
	if err != nil {
		return res, err
	}
	if err := m.record(ctx, rule.Name, res, StatusComplete, started, m.now()); err != nil {
		return res, err
	}
	logger.Info("migration complete",
		zap.String("run_id", res.RunID),
		zap.Int("parents", res.Planned.Parents),
		zap.Int("children", res.Planned.Children))
	return res, nil
}

// Completed reports whether the ledger marks rule as complete.
func Completed(ctx context.Context, store types.Store, rule string) (bool, error) {
	doc, err := store.Get(ctx, LedgerCollection, rule)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read ledger %s: %w", rule, err)
	}
	status, _ := doc.Field(fieldStatus)
	return status == StatusComplete, nil
}

func (m *Migrator) record(ctx context.Context, rule string, res Result, status string, started, completed time.Time) error {
	data := map[string]any{
		fieldRunID:     res.RunID,
		fieldStatus:    status,
		fieldParents:   int64(res.Planned.Parents),
		fieldChildren:  int64(res.Planned.Children),
		fieldProblems:  int64(len(res.Planned.Problems)),
		fieldStartedAt: started.UTC().Format(time.RFC3339),
	}
	if !completed.IsZero() {
		data[fieldCompletedAt] = completed.UTC().Format(time.RFC3339)
	}
	op := types.SetOp(types.Document{Collection: LedgerCollection, ID: rule, Data: data})
	if err := m.Mutator.Store.Commit(ctx, []types.WriteOp{op}); err != nil {
		return fmt.Errorf("write ledger %s: %w", rule, err)
	}
	return nil
}

func (m *Migrator) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Migrator) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}
