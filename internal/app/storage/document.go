// Package storage defines the document-store contract the core depends on:
// every subsystem persists through this interface rather than a
// collection-specific API, so the in-memory and Postgres/JSONB adapters can
// be swapped without touching business logic.
package storage

import "context"

// Filter selects documents by field equality; nested dotted paths (e.g.
// "payload.game_id") are matched against the document's JSON representation.
// A nil or empty Filter matches every document in the collection.
type Filter map[string]any

// Update describes the atomic mutations applied by UpdateOne/UpdateMany,
// mirroring the $set/$inc/$push/$addToSet operators the core relies on.
type Update struct {
	Set      map[string]any
	Inc      map[string]int64
	Push     map[string]any
	AddToSet map[string]any
}

// Sort orders results by Field, ascending unless Desc is set.
type Sort struct {
	Field string
	Desc  bool
}

// Store is a single document collection, keyed by string IDs, offering the
// subset of document-store semantics the core needs (§6 of the design: find,
// find_one, insert_one, update_one/many, delete_one, count_documents,
// distinct).
type Store interface {
	// InsertOne stores doc, which must have an "id"-shaped primary key field
	// already set by the caller; collections are free to pick their own key
	// field name via their typed wrapper.
	InsertOne(ctx context.Context, id string, doc any) error

	// FindOne returns the first document matching filter, decoded into out
	// (a pointer). Returns ErrNotFound if nothing matches.
	FindOne(ctx context.Context, filter Filter, out any) error

	// Find returns documents matching filter, sorted and limited, decoded
	// into out (a pointer to a slice).
	Find(ctx context.Context, filter Filter, sort *Sort, limit int, out any) error

	// UpdateOne applies update to the first document matching filter.
	// Returns ErrNotFound if nothing matches.
	UpdateOne(ctx context.Context, filter Filter, update Update) error

	// UpdateMany applies update to every document matching filter, returning
	// the count of documents modified.
	UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error)

	// DeleteOne removes the first document matching filter. Returns
	// ErrNotFound if nothing matches.
	DeleteOne(ctx context.Context, filter Filter) error

	// CountDocuments returns how many documents match filter.
	CountDocuments(ctx context.Context, filter Filter) (int64, error)

	// Distinct returns the distinct values of field across documents
	// matching filter.
	Distinct(ctx context.Context, field string, filter Filter) ([]any, error)
}
