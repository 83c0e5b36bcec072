// Package backup serializes collections to JSONL files before destructive
// operations and restores them by replaying the records.
// This file provides the JSONL read/write helpers with atomic persistence.
package backup

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// maxLineBytes bounds a single record; Firestore documents are at most 1 MiB,
// JSON encoding can grow them.
const maxLineBytes = 8 << 20

// record is one line of a backup file.
type record struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
}

// ReadFile reads a backup file. Blank lines, malformed lines and records
// with an invalid path or non-object data are skipped; the number skipped is
// returned alongside the documents.
func ReadFile(path string) ([]types.Document, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var (
		docs    []types.Document
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		if rec.ID == "" || types.ValidateCollectionPath(rec.Collection) != nil {
			skipped++
			continue
		}
		data, err := types.DecodeData(rec.Data)
		if err != nil {
			skipped++
			continue
		}
		docs = append(docs, types.Document{Collection: rec.Collection, ID: rec.ID, Data: data})
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scanning %s: %w", path, err)
	}
	return docs, skipped, nil
}

// WriteFile atomically writes docs to path using the temp-file, fsync,
// rename pattern, one record per line.
func WriteFile(path string, docs []types.Document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating backup dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".backup-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, d := range docs {
		data, err := json.Marshal(d.Data)
		if err != nil {
			return fail(fmt.Errorf("encoding %s: %w", d.Path(), err))
		}
		// Encode appends the newline.
		if err := enc.Encode(record{Collection: d.Collection, ID: d.ID, Data: data}); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
