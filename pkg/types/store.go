package types

import (
	"context"
	"errors"
	"fmt"
)

// MaxBatchOps is the largest number of writes a single Commit may carry.
// It matches the managed backend's write-batch limit.
const MaxBatchOps = 500

// Write operation kinds.
const (
	OpSet    = "set"
	OpDelete = "delete"
)

// WriteOp is a single document mutation. A set replaces the whole document
// with Data; a delete ignores Data.
type WriteOp struct {
	Kind       string         `json:"kind"`
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data,omitempty"`
}

// Path returns the target document path.
func (op WriteOp) Path() string {
	return JoinPath(op.Collection, op.ID)
}

// Validate checks the op's kind and target path.
func (op WriteOp) Validate() error {
	switch op.Kind {
	case OpSet:
		if op.Data == nil {
			return fmt.Errorf("%w: set %s without data", ErrInvalidData, op.Path())
		}
	case OpDelete:
	default:
		return fmt.Errorf("%w: unknown op kind %q", ErrInvalidData, op.Kind)
	}
	if op.ID == "" {
		return fmt.Errorf("%w: empty document ID in %s", ErrInvalidID, op.Collection)
	}
	return ValidateCollectionPath(op.Collection)
}

// SetOp builds a set operation for doc.
func SetOp(doc Document) WriteOp {
	return WriteOp{Kind: OpSet, Collection: doc.Collection, ID: doc.ID, Data: doc.Data}
}

// DeleteOp builds a delete operation for the document at collection/id.
func DeleteOp(collection, id string) WriteOp {
	return WriteOp{Kind: OpDelete, Collection: collection, ID: id}
}

// Store is the document database client. Implementations must be safe for
// concurrent use.
type Store interface {
	// Documents returns every document in the collection at path.
	// A collection with no documents yields an empty slice.
	Documents(ctx context.Context, collection string) ([]Document, error)

	// CollectionGroup returns every document in any collection whose last
	// path segment equals id, at any depth.
	CollectionGroup(ctx context.Context, id string) ([]Document, error)

	// Collections returns the IDs of the collections directly under the
	// document at parentPath, or the root collection IDs when parentPath is
	// empty.
	Collections(ctx context.Context, parentPath string) ([]string, error)

	// Get returns a single document. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Commit applies ops atomically. Returns ErrBatchTooLarge when len(ops)
	// exceeds MaxBatchOps.
	Commit(ctx context.Context, ops []WriteOp) error

	// Detach releases backend resources. Idempotent.
	Detach() error
}

// Document and store errors.
var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidID       = errors.New("invalid document ID")
	ErrInvalidPath     = errors.New("invalid path")
	ErrInvalidData     = errors.New("invalid document data")
	ErrBatchTooLarge   = errors.New("write batch exceeds limit")
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// Plan and run errors.
var (
	ErrInvalidPlan = errors.New("invalid plan")
	ErrUnknownRule = errors.New("unknown migration rule")
	ErrAborted     = errors.New("aborted by user")
)
