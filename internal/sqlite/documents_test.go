package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// setupBackend attaches a Backend in a temp dir and detaches it on cleanup.
func setupBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func set(collection, id string, data map[string]any) types.WriteOp {
	return types.WriteOp{Kind: types.OpSet, Collection: collection, ID: id, Data: data}
}

func TestAttachLifecycle(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	require.NoError(t, b.Attach(cfg))
	assert.ErrorIs(t, b.Attach(cfg), types.ErrAlreadyAttached)
	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")

	_, err := b.Documents(context.Background(), "clients")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	assert.ErrorIs(t, b.Commit(context.Background(), []types.WriteOp{set("clients", "c1", map[string]any{})}), types.ErrStoreDetached)
}

func TestAttachRejectsInvalidConfig(t *testing.T) {
	b := NewBackend()
	assert.ErrorIs(t, b.Attach(types.Config{}), types.ErrBackendEmpty)
}

func TestDataSurvivesReattach(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	require.NoError(t, b.Commit(ctx, []types.WriteOp{set("clients", "c1", map[string]any{"name": "Ana"})}))
	require.NoError(t, b.Detach())

	b2 := NewBackend()
	require.NoError(t, b2.Attach(cfg))
	defer b2.Detach()
	doc, err := b2.Get(ctx, "clients", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc.Data["name"])
}

func TestCommitSetGetDelete(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	require.NoError(t, b.Commit(ctx, []types.WriteOp{
		set("clients", "c1", map[string]any{"name": "Ana", "age": 31}),
		set("clients", "c2", map[string]any{"name": "Bea"}),
	}))

	doc, err := b.Get(ctx, "clients", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", doc.ID)
	assert.Equal(t, "Ana", doc.Data["name"])
	assert.Equal(t, int64(31), doc.Data["age"])

	// A set replaces the whole document.
	require.NoError(t, b.Commit(ctx, []types.WriteOp{set("clients", "c1", map[string]any{"name": "Ana M."})}))
	doc, err = b.Get(ctx, "clients", "c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ana M."}, doc.Data)

	require.NoError(t, b.Commit(ctx, []types.WriteOp{types.DeleteOp("clients", "c1")}))
	_, err = b.Get(ctx, "clients", "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Deleting a missing document is not an error.
	require.NoError(t, b.Commit(ctx, []types.WriteOp{types.DeleteOp("clients", "nope")}))
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	err := b.Commit(ctx, []types.WriteOp{
		set("clients", "c1", map[string]any{"name": "Ana"}),
		{Kind: types.OpSet, Collection: "clients/c1", ID: "x", Data: map[string]any{}},
	})
	assert.ErrorIs(t, err, types.ErrInvalidPath)

	_, err = b.Get(ctx, "clients", "c1")
	assert.ErrorIs(t, err, types.ErrNotFound, "no op of a rejected batch is applied")
}

func TestCommitRejectsOversizedBatch(t *testing.T) {
	b := setupBackend(t)
	ops := make([]types.WriteOp, types.MaxBatchOps+1)
	for i := range ops {
		ops[i] = types.DeleteOp("clients", "c")
	}
	assert.ErrorIs(t, b.Commit(context.Background(), ops), types.ErrBatchTooLarge)
}

func TestCollectionsAndGroups(t *testing.T) {
	ctx := context.Background()
	b := setupBackend(t)

	require.NoError(t, b.Commit(ctx, []types.WriteOp{
		set("clients", "c1", map[string]any{}),
		set("clients", "c2", map[string]any{}),
		set("exercises", "e1", map[string]any{}),
		set("clients/c1/workouts", "w1", map[string]any{}),
		set("clients/c1/history", "h1", map[string]any{}),
		set("clients/c2/workouts", "w2", map[string]any{}),
		set("workouts", "w9", map[string]any{}),
	}))

	root, err := b.Collections(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"clients", "exercises", "workouts"}, root)

	sub, err := b.Collections(ctx, "clients/c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"history", "workouts"}, sub)

	none, err := b.Collections(ctx, "clients/c9")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = b.Collections(ctx, "clients")
	assert.ErrorIs(t, err, types.ErrInvalidPath)

	docs, err := b.Documents(ctx, "clients/c1/workouts")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "clients/c1/workouts/w1", docs[0].Path())
	assert.Equal(t, "c1", docs[0].ParentID())

	group, err := b.CollectionGroup(ctx, "workouts")
	require.NoError(t, err)
	var paths []string
	for _, d := range group {
		paths = append(paths, d.Path())
	}
	assert.Equal(t, []string{"clients/c1/workouts/w1", "clients/c2/workouts/w2", "workouts/w9"}, paths)

	empty, err := b.Documents(ctx, "programs")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
