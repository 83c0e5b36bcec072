package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/internal/storetest"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

var doc = storetest.Doc

func rule() plan.Migration {
	return plan.Migration{
		Name:          "workouts-to-subcollections",
		Collection:    "clients",
		Field:         "workouts",
		Subcollection: "workouts",
		IDField:       "id",
		ParentField:   "clientId",
		OrderField:    "order",
	}
}

func roster() []types.Document {
	return []types.Document{
		doc("clients", "c1", "name", "Ana", "workouts", []any{
			map[string]any{"id": "w1", "title": "Legs"},
			map[string]any{"title": "Arms"},
		}),
		doc("clients", "c2", "name", "Bea"),
		doc("clients", "c3", "name", "Cy", "workouts", []any{
			map[string]any{"id": "w9"},
			"not an object",
		}),
	}
}

func TestChildID(t *testing.T) {
	assert.Equal(t, "w1", ChildID("clients/c1", 0, "w1"))

	generated := ChildID("clients/c1", 1, nil)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
	assert.Equal(t, generated, ChildID("clients/c1", 1, ""), "same parent and index give the same id")
	assert.Equal(t, generated, ChildID("clients/c1", 1, "a/b"))
	assert.NotEqual(t, generated, ChildID("clients/c1", 2, nil))
	assert.NotEqual(t, generated, ChildID("clients/c2", 1, nil))
}

func TestBuild(t *testing.T) {
	p := Build(rule(), roster())

	assert.Equal(t, 3, p.Scanned)
	assert.Equal(t, 1, p.Parents)
	assert.Equal(t, 2, p.Children)
	assert.Equal(t, 1, p.Skipped)
	require.Len(t, p.Problems, 1)
	assert.Equal(t, Problem{Path: "clients/c3", Index: 1, Reason: "element is string, not an object"}, p.Problems[0])

	generated := ChildID("clients/c1", 1, nil)
	require.Len(t, p.Ops, 3)
	assert.Equal(t, types.SetOp(doc("clients/c1/workouts", "w1", "id", "w1", "title", "Legs", "clientId", "c1", "order", int64(0))), p.Ops[0])
	assert.Equal(t, types.SetOp(doc("clients/c1/workouts", generated, "title", "Arms", "clientId", "c1", "order", int64(1))), p.Ops[1])
	assert.Equal(t, types.SetOp(doc("clients", "c1", "name", "Ana")), p.Ops[2])
}

func TestBuildKeepSourceAndBadShapes(t *testing.T) {
	r := rule()
	r.KeepSource = true
	r.ParentField = ""
	r.OrderField = ""

	docs := []types.Document{
		doc("clients", "c1", "workouts", []any{map[string]any{"id": "w1"}}),
		doc("clients", "c2", "workouts", "legs"),
		doc("clients", "c3", "workouts", []any{map[string]any{"id": "w1"}, map[string]any{"id": "w1"}}),
	}
	p := Build(r, docs)
	assert.Equal(t, 1, p.Parents)
	require.Len(t, p.Ops, 1, "no parent rewrite with keep_source")
	assert.Equal(t, map[string]any{"id": "w1"}, p.Ops[0].Data)
	require.Len(t, p.Problems, 2)
	assert.Equal(t, "clients/c2", p.Problems[0].Path)
	assert.Equal(t, -1, p.Problems[0].Index)
	assert.Equal(t, "clients/c3", p.Problems[1].Path)
	assert.Equal(t, 1, p.Problems[1].Index)
}

func TestBuildDoesNotModifyInput(t *testing.T) {
	docs := roster()
	Build(rule(), docs)
	_, ok := docs[0].Field("workouts")
	assert.True(t, ok)
	elem := docs[0].Data["workouts"].([]any)[0].(map[string]any)
	assert.NotContains(t, elem, "clientId")
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := storetest.New(t)
	storetest.Seed(t, store, roster()...)
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	m := &Migrator{Mutator: &mutate.Mutator{Store: store}, Now: func() time.Time { return at }}

	res, err := m.Run(ctx, rule())
	require.NoError(t, err)
	assert.False(t, res.AlreadyComplete)
	assert.Equal(t, 3, res.Writes.Committed)
	runID, err := uuid.Parse(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), runID.Version())

	children, err := store.Documents(ctx, "clients/c1/workouts")
	require.NoError(t, err)
	assert.Len(t, children, 2)

	parent, err := store.Get(ctx, "clients", "c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ana"}, parent.Data)

	untouched, err := store.Get(ctx, "clients", "c3")
	require.NoError(t, err)
	assert.Contains(t, untouched.Data, "workouts")

	ledger, err := store.Get(ctx, LedgerCollection, "workouts-to-subcollections")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, ledger.Data["status"])
	assert.Equal(t, res.RunID, ledger.Data["run_id"])
	assert.Equal(t, int64(2), ledger.Data["children"])
	assert.Equal(t, "2026-10-19T12:00:00Z", ledger.Data["completed_at"])

	again, err := m.Run(ctx, rule())
	require.NoError(t, err)
	assert.True(t, again.AlreadyComplete)

	m.Force = true
	forced, err := m.Run(ctx, rule())
	require.NoError(t, err)
	assert.Zero(t, forced.Planned.Parents, "migrated parents no longer hold the field")
	assert.Equal(t, 2, forced.Planned.Skipped)
	assert.NotEqual(t, res.RunID, forced.RunID)
}

func TestRunDryRun(t *testing.T) {
	ctx := context.Background()
	store := storetest.New(t)
	storetest.Seed(t, store, roster()...)
	m := &Migrator{Mutator: &mutate.Mutator{Store: store, DryRun: true}}

	res, err := m.Run(ctx, rule())
	require.NoError(t, err)
	assert.True(t, res.Writes.DryRun)
	assert.Equal(t, 3, res.Writes.Planned)
	assert.Empty(t, res.RunID)

	children, err := store.Documents(ctx, "clients/c1/workouts")
	require.NoError(t, err)
	assert.Empty(t, children)

	done, err := Completed(ctx, store, "workouts-to-subcollections")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRunResumesAfterInterruptedWrite(t *testing.T) {
	ctx := context.Background()
	store := storetest.New(t)
	storetest.Seed(t, store, roster()...)

	// Children landed but the parent rewrite did not.
	p := Build(rule(), roster())
	require.NoError(t, store.Commit(ctx, p.Ops[:2]))

	m := &Migrator{Mutator: &mutate.Mutator{Store: store}}
	res, err := m.Run(ctx, rule())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Planned.Children)

	children, err := store.Documents(ctx, "clients/c1/workouts")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}
