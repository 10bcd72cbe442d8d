// Package store defines the document store surface the engine is written
// against. Records are addressed by (collection, id); an optional ref column
// serves as a secondary key for range queries and change subscriptions.
package store

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one stored document plus the metadata the engine relies on.
type Record struct {
	ID        string
	Ref       string
	Data      json.RawMessage
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document body into dest.
func (r *Record) Decode(dest any) error {
	return json.Unmarshal(r.Data, dest)
}

// Query selects the records of a collection, optionally narrowed by ref.
type Query struct {
	Collection string
	// Ref filters on the secondary key when non-empty.
	Ref string
}

// Reader exposes the read surface shared by the client and transactions.
type Reader interface {
	Get(ctx context.Context, collection, id string) (*Record, error)
	Query(ctx context.Context, q Query) ([]Record, error)
}

// Writer exposes the write surface shared by the client and transactions.
type Writer interface {
	// Set creates or replaces the document.
	Set(ctx context.Context, collection, id, ref string, doc any) error
	// Update replaces the body of an existing document and bumps its
	// version. Inside a transaction the write is guarded by the version
	// observed at read time; a lost update aborts the transaction.
	Update(ctx context.Context, collection, id string, doc any) error
	Delete(ctx context.Context, collection, id string) error
}

// Txn is the transaction-scoped view handed to RunTransaction callbacks.
// All reads and writes through it commit atomically or not at all.
type Txn interface {
	Reader
	Writer
}

// Client is the full store surface consumed by the engine.
type Client interface {
	Reader
	Writer

	// RunTransaction executes fn against a transaction-scoped view. A
	// version conflict surfaces as TRANSACTION_ABORTED, which callers of
	// idempotent operations retry with backoff.
	RunTransaction(ctx context.Context, fn func(txn Txn) error) error

	// Subscribe registers fn for snapshot batches of q. Each delivery is a
	// fresh query result emitted after a commit touched the collection.
	// Batches arrive in emission order on a dedicated goroutine per
	// subscription.
	Subscribe(q Query, fn func(batch []Record, err error)) (token string)

	// Unsubscribe stops future deliveries for the token. Unknown tokens
	// are ignored. A delivery already in flight may still land.
	Unsubscribe(token string)

	Ping(ctx context.Context) error
	Close() error
}
