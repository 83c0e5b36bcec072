// Package scan enumerates document collections into memory.
// A Scanner reads several collections concurrently and returns a Snapshot
// keyed by target; Descendants walks the subcollections under a document.
package scan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// groupPrefix marks a collection-group target in its string form.
const groupPrefix = "group:"

// DefaultConcurrency bounds concurrent collection reads when Scanner leaves
// Concurrency unset.
const DefaultConcurrency = 4

// Target names what to scan: a collection path, or every collection with a
// given ID at any depth.
type Target struct {
	Path  string
	Group bool
}

// Collection returns a target for one collection path.
func Collection(path string) Target { return Target{Path: path} }

// Group returns a collection-group target.
func Group(id string) Target { return Target{Path: id, Group: true} }

// ParseTarget parses "clients", "clients/c1/workouts" or "group:workouts".
func ParseTarget(s string) (Target, error) {
	if id, ok := strings.CutPrefix(s, groupPrefix); ok {
		if id == "" || strings.Contains(id, "/") {
			return Target{}, fmt.Errorf("%w: bad collection group %q", types.ErrInvalidPath, s)
		}
		return Group(id), nil
	}
	if err := types.ValidateCollectionPath(s); err != nil {
		return Target{}, err
	}
	return Collection(strings.Trim(s, "/")), nil
}

// String returns the target in ParseTarget form.
func (t Target) String() string {
	if t.Group {
		return groupPrefix + t.Path
	}
	return t.Path
}

// Snapshot holds the documents read for each target.
type Snapshot struct {
	mu   sync.RWMutex
	docs map[Target][]types.Document
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{docs: make(map[Target][]types.Document)}
}

// Put stores the documents for t, replacing any previous value.
func (s *Snapshot) Put(t Target, docs []types.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[t] = docs
}

// Get returns the documents for t, or nil if t was not scanned.
func (s *Snapshot) Get(t Target) []types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[t]
}

// Targets returns the scanned targets sorted by their string form.
func (s *Snapshot) Targets() []Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Target, 0, len(s.docs))
	for t := range s.docs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Count returns the total number of documents in the snapshot.
func (s *Snapshot) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, docs := range s.docs {
		n += len(docs)
	}
	return n
}

// Scanner reads collections from a Store.
type Scanner struct {
	Store       types.Store
	Concurrency int
	Logger      *zap.Logger
}

// Scan reads every target concurrently. Duplicate targets are read once.
// The first read error cancels the remaining reads and is returned.
func (s *Scanner) Scan(ctx context.Context, targets ...Target) (*Snapshot, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	snap := NewSnapshot()
	seen := make(map[Target]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, t := range targets {
		t := t
		if seen[t] {
			continue
		}
		seen[t] = true
		g.Go(func() error {
			var (
				docs []types.Document
				err  error
			)
			if t.Group {
				docs, err = s.Store.CollectionGroup(gctx, t.Path)
			} else {
				docs, err = s.Store.Documents(gctx, t.Path)
			}
			if err != nil {
				return fmt.Errorf("scan %s: %w", t, err)
			}
			logger.Debug("collection scanned", zap.Stringer("target", t), zap.Int("documents", len(docs)))
			snap.Put(t, docs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Descendants returns every document in every subcollection beneath the
// document at docPath, recursively, ordered by path. The document itself is
// not included.
func Descendants(ctx context.Context, store types.Store, docPath string) ([]types.Document, error) {
	if err := types.ValidateDocumentPath(docPath); err != nil {
		return nil, err
	}
	var out []types.Document
	if err := walk(ctx, store, docPath, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out, nil
}

func walk(ctx context.Context, store types.Store, docPath string, out *[]types.Document) error {
	ids, err := store.Collections(ctx, docPath)
	if err != nil {
		return fmt.Errorf("list collections under %s: %w", docPath, err)
	}
	for _, id := range ids {
		coll := types.JoinPath(docPath, id)
		docs, err := store.Documents(ctx, coll)
		if err != nil {
			return fmt.Errorf("read %s: %w", coll, err)
		}
		for _, d := range docs {
			*out = append(*out, d)
			if err := walk(ctx, store, d.Path(), out); err != nil {
				return err
			}
		}
	}
	return nil
}
