// Package docstore provides the public factory for coachdb document stores.
// It keeps backend implementations internal and selects one from
// types.Config.Backend.
//
// Example:
//
//	store, err := docstore.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".coachdb-db",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Detach()
package docstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/internal/firestore"
	"github.com/mesh-intelligence/coachdb/internal/sqlite"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Open validates cfg and returns an attached Store for its backend.
// The caller must Detach the store when done.
func Open(ctx context.Context, cfg types.Config, logger *zap.Logger) (types.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case types.BackendSQLite:
		b := sqlite.NewBackend(sqlite.WithLogger(logger))
		if err := b.Attach(cfg); err != nil {
			return nil, err
		}
		return b, nil
	case types.BackendFirestore:
		b, err := firestore.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, cfg.Backend)
	}
}
