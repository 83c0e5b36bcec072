// Package storetest provides helpers for tests that need a populated
// document store.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/coachdb/internal/sqlite"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// New attaches a SQLite backend in a temporary directory and detaches it when
// the test ends.
func New(t testing.TB) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}))
	t.Cleanup(func() { b.Detach() })
	return b
}

// Seed writes docs to store, chunking to respect MaxBatchOps.
func Seed(t testing.TB, store types.Store, docs ...types.Document) {
	t.Helper()
	ops := make([]types.WriteOp, 0, len(docs))
	for _, d := range docs {
		if d.Data == nil {
			d.Data = map[string]any{}
		}
		ops = append(ops, types.SetOp(d))
	}
	for len(ops) > 0 {
		n := min(len(ops), types.MaxBatchOps)
		require.NoError(t, store.Commit(context.Background(), ops[:n]))
		ops = ops[n:]
	}
}

// Doc is shorthand for building a document in tests.
func Doc(collection, id string, kv ...any) types.Document {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		data[kv[i].(string)] = kv[i+1]
	}
	return types.Document{Collection: collection, ID: id, Data: data}
}

// Paths returns the paths of docs, in order.
func Paths(docs []types.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Path()
	}
	return out
}
