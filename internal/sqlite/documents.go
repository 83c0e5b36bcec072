package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

var _ types.Store = (*Backend)(nil)

// Documents returns every document in the collection, ordered by ID.
func (b *Backend) Documents(ctx context.Context, collection string) ([]types.Document, error) {
	if err := types.ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	return b.queryDocuments(ctx,
		"SELECT collection, doc_id, data FROM documents WHERE collection = ? ORDER BY doc_id",
		collection)
}

// CollectionGroup returns the documents of every collection named id at any
// depth, ordered by collection path then ID.
func (b *Backend) CollectionGroup(ctx context.Context, id string) ([]types.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty collection ID", types.ErrInvalidPath)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	return b.queryDocuments(ctx,
		"SELECT collection, doc_id, data FROM documents WHERE collection_id = ? ORDER BY collection, doc_id",
		id)
}

// Collections lists the collection IDs under parentPath ("" for root).
func (b *Backend) Collections(ctx context.Context, parentPath string) ([]string, error) {
	if parentPath != "" {
		if err := types.ValidateDocumentPath(parentPath); err != nil {
			return nil, err
		}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT DISTINCT collection_id FROM documents WHERE parent = ? ORDER BY collection_id",
		parentPath)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning collection id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get returns the document at collection/id, or ErrNotFound.
func (b *Backend) Get(ctx context.Context, collection, id string) (types.Document, error) {
	if err := types.ValidateCollectionPath(collection); err != nil {
		return types.Document{}, err
	}
	if id == "" {
		return types.Document{}, types.ErrInvalidID
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.Document{}, types.ErrStoreDetached
	}

	var raw string
	err := b.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND doc_id = ?",
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Document{}, types.ErrNotFound
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	data, err := types.DecodeData([]byte(raw))
	if err != nil {
		return types.Document{}, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
	}
	return types.Document{Collection: collection, ID: id, Data: data}, nil
}

// Commit applies ops in a single transaction.
func (b *Backend) Commit(ctx context.Context, ops []types.WriteOp) error {
	if len(ops) > types.MaxBatchOps {
		return fmt.Errorf("%w: %d ops", types.ErrBatchTooLarge, len(ops))
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	if len(ops) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning commit: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, op := range ops {
		switch op.Kind {
		case types.OpSet:
			raw, err := json.Marshal(op.Data)
			if err != nil {
				return fmt.Errorf("%w: encoding %s: %v", types.ErrInvalidData, op.Path(), err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO documents (collection, doc_id, collection_id, parent, data, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(collection, doc_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
				op.Collection, op.ID, types.CollectionID(op.Collection), types.ParentPath(op.Collection), string(raw), now)
			if err != nil {
				return fmt.Errorf("writing %s: %w", op.Path(), err)
			}
		case types.OpDelete:
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND doc_id = ?",
				op.Collection, op.ID); err != nil {
				return fmt.Errorf("deleting %s: %w", op.Path(), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	b.logger.Debug("batch committed", zap.Int("ops", len(ops)))
	return nil
}

// queryDocuments runs a query returning (collection, doc_id, data) rows.
// The caller must hold b.mu.
func (b *Backend) queryDocuments(ctx context.Context, query string, args ...any) ([]types.Document, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []types.Document{}
	for rows.Next() {
		var collection, id, raw string
		if err := rows.Scan(&collection, &id, &raw); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		data, err := types.DecodeData([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", collection, id, err)
		}
		docs = append(docs, types.Document{Collection: collection, ID: id, Data: data})
	}
	return docs, rows.Err()
}
