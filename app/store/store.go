// Package store is the durable document-store boundary: key/value-shaped
// records grouped into collections, with get/put/delete/query-by-field
// semantics. Writes are assumed eventually consistent; no caller may
// expect a put to be immediately observable elsewhere.
package store

import (
	"context"
	"errors"
)

const (
	CollectionSources      = "sources"
	CollectionDestinations = "destinations"
	CollectionBilling      = "billing"
)

// ErrNotFound is returned by Get when a document is absent.
var ErrNotFound = errors.New("document not found")

type Store interface {
	// Put creates or replaces a document.
	Put(ctx context.Context, collection, id string, doc any) error
	// Get unmarshals the document into out, or returns ErrNotFound.
	Get(ctx context.Context, collection, id string, out any) error
	// Delete removes a document; deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Query unmarshals into out (a pointer to a slice) every document in
	// the collection whose top-level field equals value.
	Query(ctx context.Context, collection, field, value string, out any) error
	// All unmarshals every document in the collection into out.
	All(ctx context.Context, collection string, out any) error
	Close() error
}
