// Package docstore defines the contract the sync engine needs from a remote
// document store: collection-scoped CRUD, atomic numeric increments, filtered
// queries, snapshot subscriptions and size-limited atomic batches.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("document not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrBatchTooLarge      = errors.New("batch exceeds provider limit")
)

// Ref addresses a single document.
type Ref struct {
	Collection string
	ID         string
}

// Document is a document body together with its location.
type Document struct {
	Ref
	Data Data
}

// SnapshotFunc receives the full result set of a subscribed query every time
// it changes, or the error that ended the subscription.
type SnapshotFunc func(docs []Document, err error)

//go:generate mockgen -source=docstore.go -destination=docstore_mock.go -package=docstore
type Subscription interface {
	// Unsubscribe stops delivery. Calling it more than once is a no-op.
	Unsubscribe()
}

// Batch collects writes that commit atomically.
type Batch interface {
	Set(ref Ref, data Data)
	Delete(ref Ref)
	Len() int
	Commit(ctx context.Context) error
}

type Client interface {
	Get(ctx context.Context, ref Ref) (Document, error)
	// Set creates or fully replaces a document.
	Set(ctx context.Context, ref Ref, data Data) error
	// Update merges fields into an existing document and fails with
	// ErrNotFound when it does not exist.
	Update(ctx context.Context, ref Ref, data Data) error
	// Merge merges fields into a document, creating it if needed. Values
	// built with Increment are applied server-side.
	Merge(ctx context.Context, ref Ref, data Data) error
	// Delete removes a document. Deleting an absent document succeeds.
	Delete(ctx context.Context, ref Ref) error
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error)
	Batch() Batch
	// MaxBatchSize is the provider ceiling for a single atomic batch.
	MaxBatchSize() int
	Close(ctx context.Context) error
}
