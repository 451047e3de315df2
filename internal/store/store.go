// Package store holds the documents a generation is built from. Stores are
// append-only: a document, once added, is never modified or removed.
package store

import (
	"context"
	"iter"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/document"
)

// Store is the document store contract shared by the in-memory and
// persistent implementations.
type Store interface {
	// Add validates and stores doc and returns its ID. Duplicate IDs and
	// invalid documents fail with an error matching ErrInvalidDocument.
	Add(ctx context.Context, doc document.Document) (string, error)
	// Get returns a copy of the stored document or ErrDocumentNotFound.
	Get(ctx context.Context, id string) (document.Document, error)
	// Iterate yields every document in ascending ID order. Each call
	// starts a fresh pass.
	Iterate(ctx context.Context) iter.Seq2[document.Document, error]
	// Len reports the number of stored documents.
	Len() int
}

func duplicateID(id string) error {
	return &document.ValidationError{
		ID:     id,
		Fields: map[string]string{"id": "id already exists"},
	}
}
