// Package analyze profiles collections: document counts, field presence and
// value types, array sizes, and the subcollections found under documents.
package analyze

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Value type names reported in FieldStats.Types.
const (
	TypeString    = "string"
	TypeInteger   = "integer"
	TypeNumber    = "number"
	TypeBoolean   = "boolean"
	TypeNull      = "null"
	TypeArray     = "array"
	TypeMap       = "map"
	TypeTimestamp = "timestamp"
	TypeBytes     = "bytes"
	TypeOther     = "other"
)

// FieldStats describes one top-level field across a collection.
type FieldStats struct {
	Name    string   `json:"name"`
	Present int      `json:"present"`
	Types   []string `json:"types"`
	// ArrayMax and ArrayTotal are the largest and summed lengths of the
	// field's array values.
	ArrayMax   int `json:"array_max,omitempty"`
	ArrayTotal int `json:"array_total,omitempty"`
}

// CollectionStats profiles one scanned target.
type CollectionStats struct {
	Target    string       `json:"target"`
	Documents int          `json:"documents"`
	Fields    []FieldStats `json:"fields"`
	// Subcollections maps a subcollection ID to the number of documents
	// that have it.
	Subcollections map[string]int `json:"subcollections,omitempty"`
}

// Analyzer profiles collections read through Scanner.
type Analyzer struct {
	Scanner *scan.Scanner
	// Subcollections enables listing the subcollections of every document,
	// one call per document.
	Subcollections bool
}

// Analyze profiles targets. With no targets, every root collection is
// analyzed.
func (a *Analyzer) Analyze(ctx context.Context, targets ...scan.Target) ([]CollectionStats, error) {
	store := a.Scanner.Store
	if len(targets) == 0 {
		ids, err := store.Collections(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list root collections: %w", err)
		}
		for _, id := range ids {
			targets = append(targets, scan.Collection(id))
		}
	}

	snap, err := a.Scanner.Scan(ctx, targets...)
	if err != nil {
		return nil, err
	}

	var out []CollectionStats
	for _, t := range snap.Targets() {
		docs := snap.Get(t)
		stats := Profile(t.String(), docs)
		if a.Subcollections {
			subs, err := a.subcollections(ctx, docs)
			if err != nil {
				return nil, err
			}
			stats.Subcollections = subs
		}
		out = append(out, stats)
	}
	return out, nil
}

func (a *Analyzer) subcollections(ctx context.Context, docs []types.Document) (map[string]int, error) {
	limit := a.Scanner.Concurrency
	if limit <= 0 {
		limit = scan.DefaultConcurrency
	}
	var (
		mu     sync.Mutex
		counts = make(map[string]int)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, d := range docs {
		d := d
		g.Go(func() error {
			ids, err := a.Scanner.Store.Collections(gctx, d.Path())
			if err != nil {
				return fmt.Errorf("list collections under %s: %w", d.Path(), err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				counts[id]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, nil
	}
	return counts, nil
}

// Profile computes field statistics for docs. Fields are sorted by name.
func Profile(target string, docs []types.Document) CollectionStats {
	fields := make(map[string]*FieldStats)
	kinds := make(map[string]map[string]bool)

	for _, d := range docs {
		for name, v := range d.Data {
			fs, ok := fields[name]
			if !ok {
				fs = &FieldStats{Name: name}
				fields[name] = fs
				kinds[name] = make(map[string]bool)
			}
			fs.Present++
			kinds[name][TypeOf(v)] = true
			if arr, ok := v.([]any); ok {
				fs.ArrayMax = max(fs.ArrayMax, len(arr))
				fs.ArrayTotal += len(arr)
			}
		}
	}

	stats := CollectionStats{Target: target, Documents: len(docs), Fields: make([]FieldStats, 0, len(fields))}
	for name, fs := range fields {
		for k := range kinds[name] {
			fs.Types = append(fs.Types, k)
		}
		sort.Strings(fs.Types)
		stats.Fields = append(stats.Fields, *fs)
	}
	sort.Slice(stats.Fields, func(i, j int) bool { return stats.Fields[i].Name < stats.Fields[j].Name })
	return stats
}

// TypeOf names the type of a decoded document value.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case int, int32, int64:
		return TypeInteger
	case float32, float64:
		return TypeNumber
	case bool:
		return TypeBoolean
	case []any:
		return TypeArray
	case map[string]any:
		return TypeMap
	case time.Time:
		return TypeTimestamp
	case []byte:
		return TypeBytes
	default:
		return TypeOther
	}
}
