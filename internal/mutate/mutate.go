// Package mutate applies planned document writes in chunks that respect the
// store's write-batch limit, with a dry-run mode that only reports them.
package mutate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Mutator commits write operations to a Store.
type Mutator struct {
	Store types.Store
	// ChunkSize is the number of ops per commit; zero means MaxBatchOps.
	ChunkSize int
	DryRun    bool
	Logger    *zap.Logger
}

// Result reports what Apply did.
type Result struct {
	Planned   int  `json:"planned"`
	Sets      int  `json:"sets"`
	Deletes   int  `json:"deletes"`
	Committed int  `json:"committed"`
	Chunks    int  `json:"chunks"`
	DryRun    bool `json:"dry_run"`
}

// Apply validates ops and commits them chunk by chunk, in order. It stops at
// the first failing chunk; Result.Committed counts the ops applied before
// it. Every op is a whole-document set or a delete, so re-running the same
// ops after a failure converges on the same state.
func (m *Mutator) Apply(ctx context.Context, ops []types.WriteOp) (Result, error) {
	res := Result{Planned: len(ops), DryRun: m.DryRun}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return res, err
		}
		if op.Kind == types.OpSet {
			res.Sets++
		} else {
			res.Deletes++
		}
	}

	size := m.ChunkSize
	if size == 0 {
		size = types.MaxBatchOps
	}
	if err := types.ValidateBatchSize(size); err != nil {
		return res, err
	}

	logger := m.logger()
	if m.DryRun {
		logger.Info("dry run: no writes applied",
			zap.Int("sets", res.Sets), zap.Int("deletes", res.Deletes))
		return res, nil
	}

	chunks := Chunk(ops, size)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := m.Store.Commit(ctx, chunk); err != nil {
			logger.Error("chunk failed",
				zap.Int("chunk", i+1), zap.Int("of", len(chunks)),
				zap.Int("committed", res.Committed), zap.Error(err))
			return res, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		res.Committed += len(chunk)
		res.Chunks++
		logger.Debug("chunk committed",
			zap.Int("chunk", i+1), zap.Int("of", len(chunks)), zap.Int("ops", len(chunk)))
	}
	logger.Info("writes applied",
		zap.Int("committed", res.Committed), zap.Int("chunks", res.Chunks))
	return res, nil
}

func (m *Mutator) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

// Chunk splits ops into consecutive slices of at most size elements.
func Chunk(ops []types.WriteOp, size int) [][]types.WriteOp {
	if size <= 0 || len(ops) == 0 {
		return nil
	}
	out := make([][]types.WriteOp, 0, (len(ops)+size-1)/size)
	for len(ops) > 0 {
		n := min(size, len(ops))
		out = append(out, ops[:n:n])
		ops = ops[n:]
	}
	return out
}

// Change is one op with the document state before and after it.
type Change struct {
	Op     types.WriteOp  `json:"op"`
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
	// Diff is a human-readable diff of Before against After; empty when the
	// op would not change the document.
	Diff string `json:"diff,omitempty"`
}

// Preview reads the current version of each op's document and reports how
// the op would change it. Later ops see the effect of earlier ones.
func Preview(ctx context.Context, store types.Store, ops []types.WriteOp) ([]Change, error) {
	pending := make(map[string]map[string]any)
	changes := make([]Change, 0, len(ops))

	for _, op := range ops {
		path := op.Path()
		before, seen := pending[path]
		if !seen {
			doc, err := store.Get(ctx, op.Collection, op.ID)
			switch {
			case err == nil:
				before = doc.Data
			case errors.Is(err, types.ErrNotFound):
				before = nil
			default:
				return nil, fmt.Errorf("preview %s: %w", path, err)
			}
		}

		var after map[string]any
		if op.Kind == types.OpSet {
			after = op.Data
		}
		pending[path] = after

		changes = append(changes, Change{
			Op:     op,
			Before: before,
			After:  after,
			Diff:   cmp.Diff(before, after),
		})
	}
	return changes, nil
}
