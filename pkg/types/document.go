package types

import (
	"fmt"
	"maps"
	"strings"
)

// Document is a single record in a collection. Data holds the document's
// fields as decoded by the backend (strings, numbers, bools, nested maps and
// slices, timestamps).
type Document struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
}

// Path returns the full document path, e.g. "clients/c1/workouts/w1".
func (d Document) Path() string {
	return JoinPath(d.Collection, d.ID)
}

// CollectionID returns the last segment of the collection path.
func (d Document) CollectionID() string {
	return CollectionID(d.Collection)
}

// ParentPath returns the path of the document owning this document's
// collection, or "" for documents in root collections.
func (d Document) ParentPath() string {
	return ParentPath(d.Collection)
}

// ParentID returns the ID of the owning document, or "" for root documents.
func (d Document) ParentID() string {
	p := d.ParentPath()
	if p == "" {
		return ""
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// Field returns the value of a top-level field and whether it is present.
func (d Document) Field(name string) (any, bool) {
	if d.Data == nil {
		return nil, false
	}
	v, ok := d.Data[name]
	return v, ok
}

// Clone returns a copy of the document whose top-level Data map may be
// modified without affecting the original. Nested values are shared.
func (d Document) Clone() Document {
	return Document{
		Collection: d.Collection,
		ID:         d.ID,
		Data:       maps.Clone(d.Data),
	}
}

// String implements fmt.Stringer.
func (d Document) String() string {
	return fmt.Sprintf("Document(%s)", d.Path())
}
