package docstore

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read and Delete when no document is stored under
// the requested key.
var ErrNotExist = errors.New("document does not exist")

// DocumentStore stores one opaque document per key. The ledger uses it with
// "YYYY-MM" partition keys; the reconciliation report store uses it with card
// ids. Write must replace the document atomically: a reader never observes a
// partially written document, even if the writer crashes mid-write.
type DocumentStore interface {
	// Read returns the document stored under key, or ErrNotExist.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write atomically replaces the document stored under key.
	Write(ctx context.Context, key string, data []byte) error

	// List enumerates all keys that currently hold a document, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes the document stored under key, or returns ErrNotExist.
	Delete(ctx context.Context, key string) error
}
