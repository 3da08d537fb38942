package db

import (
	"context"

	"github.com/google/uuid"
)

// Collection names of the remote store.
const (
	CollectionItinerary = "itinerary"
	CollectionTodos     = "todos"
	CollectionShopping  = "shopping"
	CollectionJournal   = "journal"
	CollectionMembers   = "members"
)

// Subscriber delivers live snapshots of a query.
// The channel receives the initial snapshot first and is closed after DeSubscribe.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query) (uuid.UUID, <-chan Snapshot, error)
	DeSubscribe(id uuid.UUID) error
}

// EntityStore is the client contract of the remote document database.
// Writes return only failure; success is observed via the next snapshot.
type EntityStore interface {
	Subscriber
	// Create
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Set(ctx context.Context, collection, id string, fields Fields) error
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete
	Delete(ctx context.Context, collection, id string) error
}

// Fetcher reads the current ordered record set of a query.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]Document, error)
}
