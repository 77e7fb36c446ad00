// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a document or preference does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for shared document persistence.
// This abstraction allows swapping storage backends (SQLite, Redis)
// without changing the tree service.
type Store interface {
	// LoadDocument returns the JSON body of a document.
	// Returns ErrNotFound if the document was never saved or was deleted.
	LoadDocument(ctx context.Context, documentID string) (json.RawMessage, error)

	// SaveDocument replaces the stored body of a document.
	SaveDocument(ctx context.Context, documentID string, body json.RawMessage) error

	// DeleteDocument removes a document. Deleting a missing document is not an error.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases any resources held by the store.
	Close() error
}
