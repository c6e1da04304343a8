// Package memstore is an in-process docstore.Client. It backs the test suites
// and the demo mode of the binaries.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

// DefaultMaxBatchSize mirrors the ceiling of hosted document stores.
const DefaultMaxBatchSize = 500

// CommitHook observes every batch commit before it is applied. A non-nil
// error aborts the commit.
type CommitHook func(size int) error

type Option func(*Store)

func WithMaxBatchSize(n int) Option {
	return func(s *Store) { s.maxBatch = n }
}

func WithCommitHook(h CommitHook) Option {
	return func(s *Store) { s.commitHook = h }
}

// WithWriteHook intercepts single-document writes (Set, Update, Merge,
// Delete). Tests use it to delay or fail remote calls.
func WithWriteHook(h func(ctx context.Context, ref docstore.Ref) error) Option {
	return func(s *Store) { s.writeHook = h }
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Data
	subs        map[*subscription]struct{}

	maxBatch   int
	commitHook CommitHook
	writeHook  func(ctx context.Context, ref docstore.Ref) error
}

func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]docstore.Data),
		subs:        make(map[*subscription]struct{}),
		maxBatch:    DefaultMaxBatchSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) MaxBatchSize() int { return s.maxBatch }

func (s *Store) Get(_ context.Context, ref docstore.Ref) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.collections[ref.Collection][ref.ID]
	if !ok {
		return docstore.Document{}, fmt.Errorf("getting %s/%s: %w", ref.Collection, ref.ID, docstore.ErrNotFound)
	}

	return docstore.Document{Ref: ref, Data: d.Clone()}, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	if err := s.hook(ctx, ref); err != nil {
		return err
	}

	s.mu.Lock()
	s.put(ref, resolveIncrements(nil, data))
	s.mu.Unlock()

	s.notify(ref.Collection)

	return nil
}

func (s *Store) Update(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	if err := s.hook(ctx, ref); err != nil {
		return err
	}

	s.mu.Lock()

	existing, ok := s.collections[ref.Collection][ref.ID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("updating %s/%s: %w", ref.Collection, ref.ID, docstore.ErrNotFound)
	}

	s.put(ref, resolveIncrements(existing, data))
	s.mu.Unlock()

	s.notify(ref.Collection)

	return nil
}

func (s *Store) Merge(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	if err := s.hook(ctx, ref); err != nil {
		return err
	}

	s.mu.Lock()
	s.put(ref, resolveIncrements(s.collections[ref.Collection][ref.ID], data))
	s.mu.Unlock()

	s.notify(ref.Collection)

	return nil
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	if err := s.hook(ctx, ref); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.collections[ref.Collection], ref.ID)
	s.mu.Unlock()

	s.notify(ref.Collection)

	return nil
}

func (s *Store) Query(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.query(q), nil
}

func (s *Store) Batch() docstore.Batch {
	return &batch{store: s}
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	subs := slices.Collect(maps.Keys(s.subs))
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	return nil
}

// Count returns the number of documents stored in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[collection])
}

func (s *Store) hook(ctx context.Context, ref docstore.Ref) error {
	if s.writeHook == nil {
		return nil
	}

	return s.writeHook(ctx, ref)
}

// put must be called with mu held.
func (s *Store) put(ref docstore.Ref, data docstore.Data) {
	coll, ok := s.collections[ref.Collection]
	if !ok {
		coll = make(map[string]docstore.Data)
		s.collections[ref.Collection] = coll
	}

	coll[ref.ID] = data
}

// query must be called with mu held.
func (s *Store) query(q docstore.Query) []docstore.Document {
	var docs []docstore.Document

	for id, d := range s.collections[q.Collection] {
		if !q.Matches(d) {
			continue
		}

		docs = append(docs, docstore.Document{
			Ref:  docstore.Ref{Collection: q.Collection, ID: id},
			Data: d.Clone(),
		})
	}

	return q.Sort(docs)
}

// resolveIncrements merges data over base, applying increments against the
// current stored values. The result never aliases either argument.
func resolveIncrements(base, data docstore.Data) docstore.Data {
	out := base.Clone()
	if out == nil {
		out = make(docstore.Data, len(data))
	}

	for k, v := range data {
		if delta, ok := docstore.IncrementDelta(v); ok {
			out[k] = docstore.AsFloat(out[k]) + delta
			continue
		}

		out[k] = docstore.CloneValue(v)
	}

	return out
}

type batch struct {
	store *Store
	ops   []batchOp
}

type batchOp struct {
	ref    docstore.Ref
	data   docstore.Data
	delete bool
}

func (b *batch) Set(ref docstore.Ref, data docstore.Data) {
	b.ops = append(b.ops, batchOp{ref: ref, data: data.Clone()})
}

func (b *batch) Delete(ref docstore.Ref) {
	b.ops = append(b.ops, batchOp{ref: ref, delete: true})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := b.store
	if len(b.ops) > s.maxBatch {
		return fmt.Errorf("committing %d writes: %w", len(b.ops), docstore.ErrBatchTooLarge)
	}

	if s.commitHook != nil {
		if err := s.commitHook(len(b.ops)); err != nil {
			return err
		}
	}

	touched := make(map[string]struct{})

	s.mu.Lock()

	for _, op := range b.ops {
		touched[op.ref.Collection] = struct{}{}

		if op.delete {
			delete(s.collections[op.ref.Collection], op.ref.ID)
			continue
		}

		s.put(op.ref, resolveIncrements(nil, op.data))
	}

	s.mu.Unlock()

	for coll := range touched {
		s.notify(coll)
	}

	b.ops = nil

	return nil
}
