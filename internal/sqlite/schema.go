// Package sqlite implements the SQLite document store for coachdb.
// This file holds the schema DDL.
package sqlite

// Schema DDL. Every document lives in one table keyed by its collection path
// and ID; collection_id and parent are denormalized so collection-group
// queries and subcollection listing stay index lookups.
const (
	createDocuments = `CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    collection_id TEXT NOT NULL,
    parent TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, doc_id)
);`

	idxDocumentsCollectionID = `CREATE INDEX IF NOT EXISTS idx_documents_collection_id ON documents(collection_id);`
	idxDocumentsParent       = `CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent);`
)

// schemaDDL lists all statements run on Attach, in order.
var schemaDDL = []string{
	createDocuments,
	idxDocumentsCollectionID,
	idxDocumentsParent,
}
