// Package firestore implements types.Store over Google Cloud Firestore, the
// managed document database the workout application runs on.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Backend wraps a Firestore client.
type Backend struct {
	client *firestore.Client
	logger *zap.Logger
}

var _ types.Store = (*Backend)(nil)

// Open connects to the Firestore database named by cfg. When the
// FIRESTORE_EMULATOR_HOST environment variable is set the client library
// talks to the emulator instead.
func Open(ctx context.Context, cfg types.Config, logger *zap.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend != types.BackendFirestore {
		return nil, fmt.Errorf("%w: %q is not firestore", types.ErrBackendUnknown, cfg.Backend)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var (
		client *firestore.Client
		err    error
	)
	if cfg.DatabaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID, opts...)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to firestore project %s: %w", cfg.ProjectID, err)
	}

	logger.Debug("firestore store attached",
		zap.String("project", cfg.ProjectID),
		zap.String("database", cfg.DatabaseID))
	return &Backend{client: client, logger: logger}, nil
}

// Documents returns every document in the collection.
func (b *Backend) Documents(ctx context.Context, collection string) ([]types.Document, error) {
	if err := types.ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	return b.collect(b.client.Collection(collection).Documents(ctx))
}

// CollectionGroup returns every document of every collection named id.
func (b *Backend) CollectionGroup(ctx context.Context, id string) ([]types.Document, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("%w: bad collection ID %q", types.ErrInvalidPath, id)
	}
	return b.collect(b.client.CollectionGroup(id).Documents(ctx))
}

// Collections lists the collection IDs under parentPath ("" for root).
func (b *Backend) Collections(ctx context.Context, parentPath string) ([]string, error) {
	var it *firestore.CollectionIterator
	if parentPath == "" {
		it = b.client.Collections(ctx)
	} else {
		if err := types.ValidateDocumentPath(parentPath); err != nil {
			return nil, err
		}
		it = b.client.Doc(parentPath).Collections(ctx)
	}

	var ids []string
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing collections under %q: %w", parentPath, err)
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// Get returns the document at collection/id, or ErrNotFound.
func (b *Backend) Get(ctx context.Context, collection, id string) (types.Document, error) {
	if err := types.ValidateCollectionPath(collection); err != nil {
		return types.Document{}, err
	}
	if id == "" {
		return types.Document{}, types.ErrInvalidID
	}
	snap, err := b.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return types.Document{}, types.ErrNotFound
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("reading %s/%s: %w", collection, id, err)
	}
	return toDocument(snap), nil
}

// Commit applies ops in one atomic write batch.
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

	batch := b.client.Batch()
	for _, op := range ops {
		ref := b.client.Collection(op.Collection).Doc(op.ID)
		switch op.Kind {
		case types.OpSet:
			batch.Set(ref, op.Data)
		case types.OpDelete:
			batch.Delete(ref)
		}
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch of %d: %w", len(ops), err)
	}
	b.logger.Debug("batch committed", zap.Int("ops", len(ops)))
	return nil
}

// Detach closes the client. Idempotent.
func (b *Backend) Detach() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *Backend) collect(it *firestore.DocumentIterator) ([]types.Document, error) {
	defer it.Stop()
	docs := []types.Document{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating documents: %w", err)
		}
		docs = append(docs, toDocument(snap))
	}
	return docs, nil
}

// toDocument converts a snapshot to a Document with a database-relative
// collection path.
func toDocument(snap *firestore.DocumentSnapshot) types.Document {
	data := snap.Data()
	for k, v := range data {
		data[k] = normalize(v)
	}
	return types.Document{
		Collection: relativePath(snap.Ref.Parent.Path),
		ID:         snap.Ref.ID,
		Data:       data,
	}
}

// normalize replaces document references with their relative paths so data
// can be serialized to JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case *firestore.DocumentRef:
		if t == nil {
			return nil
		}
		return relativePath(t.Path)
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}

// relativePath strips the "projects/<p>/databases/<d>/documents/" prefix
// from a fully qualified resource path.
func relativePath(full string) string {
	const marker = "/documents/"
	if i := strings.Index(full, marker); i >= 0 {
		return full[i+len(marker):]
	}
	return full
}
