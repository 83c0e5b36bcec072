package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// Summary describes a written or restored backup file.
type Summary struct {
	Path        string         `json:"path"`
	Documents   int            `json:"documents"`
	Collections map[string]int `json:"collections"`
	Skipped     int            `json:"skipped,omitempty"`
}

// Collect reads the targets and, when recursive is set, every document in
// the subcollections beneath them. Documents are deduplicated by path and
// ordered by path.
func Collect(ctx context.Context, scanner *scan.Scanner, targets []scan.Target, recursive bool) ([]types.Document, error) {
	snap, err := scanner.Scan(ctx, targets...)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]types.Document)
	for _, t := range snap.Targets() {
		for _, d := range snap.Get(t) {
			byPath[d.Path()] = d
		}
	}
	if recursive {
		roots := make([]string, 0, len(byPath))
		for p := range byPath {
			roots = append(roots, p)
		}
		for _, p := range roots {
			desc, err := scan.Descendants(ctx, scanner.Store, p)
			if err != nil {
				return nil, err
			}
			for _, d := range desc {
				byPath[d.Path()] = d
			}
		}
	}

	docs := make([]types.Document, 0, len(byPath))
	for _, d := range byPath {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path() < docs[j].Path() })
	return docs, nil
}

// Write collects the targets and writes them to path.
func Write(ctx context.Context, scanner *scan.Scanner, path string, targets []scan.Target, recursive bool) (Summary, error) {
	docs, err := Collect(ctx, scanner, targets, recursive)
	if err != nil {
		return Summary{}, err
	}
	if err := WriteFile(path, docs); err != nil {
		return Summary{}, err
	}
	sum := summarize(path, docs)
	logger(scanner.Logger).Info("backup written",
		zap.String("path", path), zap.Int("documents", sum.Documents))
	return sum, nil
}

// Restore replays the records in path as set operations through m, so
// chunking and dry-run apply. When only is non-empty, just the records whose
// collection equals one of its entries, or lies beneath one, are restored.
func Restore(ctx context.Context, m *mutate.Mutator, path string, only []string) (Summary, mutate.Result, error) {
	docs, skipped, err := ReadFile(path)
	if err != nil {
		return Summary{}, mutate.Result{}, err
	}
	docs = Filter(docs, only)

	ops := make([]types.WriteOp, 0, len(docs))
	for _, d := range docs {
		ops = append(ops, types.SetOp(d))
	}
	sum := summarize(path, docs)
	sum.Skipped = skipped
	if skipped > 0 {
		logger(m.Logger).Warn("skipped malformed backup records",
			zap.String("path", path), zap.Int("skipped", skipped))
	}

	res, err := m.Apply(ctx, ops)
	if err != nil {
		return sum, res, fmt.Errorf("restore %s: %w", path, err)
	}
	return sum, res, nil
}

// Filter keeps the documents whose collection is one of only or nested
// beneath one of them. An empty filter keeps everything.
func Filter(docs []types.Document, only []string) []types.Document {
	if len(only) == 0 {
		return docs
	}
	out := docs[:0:0]
	for _, d := range docs {
		for _, c := range only {
			c = strings.Trim(c, "/")
			if d.Collection == c || strings.HasPrefix(d.Collection, c+"/") {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// AutoPath names a timestamped backup file in dir for an operation label,
// e.g. backups/orphans-clean-20261019T141500Z.jsonl.
func AutoPath(dir, label string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl", label, now.UTC().Format("20060102T150405Z")))
}

func summarize(path string, docs []types.Document) Summary {
	sum := Summary{Path: path, Documents: len(docs), Collections: make(map[string]int)}
	for _, d := range docs {
		sum.Collections[d.Collection]++
	}
	return sum
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
