// Package batch splits bulk writes into provider-safe atomic batches.
package batch

import (
	"context"
	"fmt"

	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
)

// DefaultSize leaves a margin under the usual 500-write provider ceiling.
const DefaultSize = 450

// SafeSize returns size if it is positive and strictly below limit.
// Otherwise it falls back to DefaultSize, or to ninety percent of limit when
// even that does not fit.
func SafeSize(size, limit int) int {
	if size > 0 && (limit <= 0 || size < limit) {
		return size
	}

	if limit <= 0 || DefaultSize < limit {
		return DefaultSize
	}

	return max(1, limit-limit/10)
}

// Chunks splits items into consecutive slices of at most size elements.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultSize
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}

	return chunks
}

type Deleter struct {
	client docstore.Client
	size   int
}

func NewDeleter(client docstore.Client, size int) *Deleter {
	return &Deleter{client: client, size: SafeSize(size, client.MaxBatchSize())}
}

// Size is the effective chunk size.
func (d *Deleter) Size() int { return d.size }

// DeleteAll deletes refs one atomic batch per chunk, strictly in sequence,
// and returns how many were deleted. When a chunk fails it stops and returns
// a KindPartialBatch error; earlier chunks stay committed but no partial
// count is reported. Deleting absent documents is a no-op, so the caller can
// retry the whole set.
//
// A Deleter must not run twice at once over overlapping refs.
func (d *Deleter) DeleteAll(ctx context.Context, refs []docstore.Ref) (int, error) {
	deleted := 0

	for i, chunk := range Chunks(refs, d.size) {
		b := d.client.Batch()
		for _, ref := range chunk {
			b.Delete(ref)
		}

		if err := b.Commit(ctx); err != nil {
			return 0, syncerr.New(syncerr.KindPartialBatch, "bulk delete",
				fmt.Errorf("committing chunk %d: %w", i+1, err))
		}

		deleted += len(chunk)
	}

	return deleted, nil
}

// Refs extracts the references of docs.
func Refs(docs []docstore.Document) []docstore.Ref {
	refs := make([]docstore.Ref, len(docs))
	for i, d := range docs {
		refs[i] = d.Ref
	}

	return refs
}
