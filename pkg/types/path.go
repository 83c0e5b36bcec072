package types

import (
	"fmt"
	"strings"
)

// JoinPath joins path segments with "/", skipping empty segments.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// splitPath splits a slash-separated path into its segments.
// An empty path yields no segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// ValidateCollectionPath checks that path names a collection: an odd number
// of non-empty segments.
func ValidateCollectionPath(path string) error {
	segs := splitPath(path)
	if len(segs) == 0 || len(segs)%2 == 0 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// ValidateDocumentPath checks that path names a document: an even, non-zero
// number of non-empty segments.
func ValidateDocumentPath(path string) error {
	segs := splitPath(path)
	if len(segs) == 0 || len(segs)%2 != 0 {
		return fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// SplitDocumentPath splits a document path into its collection path and ID.
func SplitDocumentPath(path string) (collection, id string, err error) {
	if err := ValidateDocumentPath(path); err != nil {
		return "", "", err
	}
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}

// CollectionID returns the last segment of a collection path.
func CollectionID(collection string) string {
	segs := splitPath(collection)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// ParentPath returns the document path owning a collection, or "" for a root
// collection.
func ParentPath(collection string) string {
	segs := splitPath(collection)
	if len(segs) < 3 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], "/")
}
