// Package migrate copies a tenant's documents out of the flat legacy
// collections into its hierarchical collections.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MrJamesThe3rd/till/internal/batch"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/tenant"
)

// Result is the outcome of one run. Moved counts documents copied in
// committed chunks, including those committed before a failure.
type Result struct {
	Moved int
	Err   error
}

func (r Result) OK() bool { return r.Err == nil }

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("migration failed after %d documents: %v", r.Moved, r.Err)
	}

	return fmt.Sprintf("migrated %d documents", r.Moved)
}

type Option func(*Migrator)

func WithResolver(r tenant.Resolver) Option {
	return func(m *Migrator) { m.resolver = r }
}

func WithBatchSize(n int) Option {
	return func(m *Migrator) { m.size = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.logger = l }
}

// Cached is in-memory state read from the documents being moved.
type Cached interface {
	Flush()
	Reload(ctx context.Context, tenantID string) error
}

// WithCached flushes c before a run and reloads the tenant after it, so
// writes made through c follow the documents to their new layout.
func WithCached(c Cached) Option {
	return func(m *Migrator) { m.cached = c }
}

type Migrator struct {
	client   docstore.Client
	resolver tenant.Resolver
	size     int
	logger   *slog.Logger
	cached   Cached
}

func New(client docstore.Client, opts ...Option) *Migrator {
	m := &Migrator{
		client:   client,
		resolver: tenant.NewResolver(""),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.size = batch.SafeSize(m.size, client.MaxBatchSize())

	return m
}

// Migrate copies every legacy document owned by tenantID into the tenant's
// hierarchical collections under the same id. Sources are never deleted.
// A document already present in the hierarchical collection is left as it
// is: it wins over its legacy copy on reads and may hold newer writes. So
// running it again copies nothing that was copied before.
func (m *Migrator) Migrate(ctx context.Context, tenantID string) Result {
	dests := make(map[tenant.Collection]string, len(tenant.All))

	for _, c := range tenant.All {
		dest, err := m.resolver.Resolve(tenantID, c)
		if err != nil {
			return Result{Err: err}
		}

		dests[c] = dest
	}

	if m.cached != nil {
		m.cached.Flush()
	}

	res := m.run(ctx, tenantID, dests)

	if m.cached != nil && res.Moved > 0 {
		if err := m.cached.Reload(ctx, tenantID); err != nil {
			m.logger.Error("failed to reload after migration", "tenant", tenantID, "error", err)
		}
	}

	return res
}

func (m *Migrator) run(ctx context.Context, tenantID string, dests map[tenant.Collection]string) Result {
	var moved int

	for _, c := range tenant.All {
		n, err := m.copy(ctx, tenantID, c, dests[c])
		moved += n

		if err != nil {
			m.logger.Error("migration failed", "tenant", tenantID, "collection", c, "moved", moved, "error", err)
			return Result{Moved: moved, Err: err}
		}
	}

	m.logger.Info("migration finished", "tenant", tenantID, "moved", moved)

	return Result{Moved: moved}
}

func (m *Migrator) copy(ctx context.Context, tenantID string, c tenant.Collection, dest string) (int, error) {
	op := "migrating " + string(c)

	q := docstore.Query{Collection: m.resolver.ResolveLegacy(c)}.Where(tenant.Field, docstore.OpEqual, tenantID)

	docs, err := m.client.Query(ctx, q)
	if err != nil {
		return 0, syncerr.Translate(op, err, false)
	}

	existing, err := m.client.Query(ctx, docstore.Query{Collection: dest})
	if err != nil {
		return 0, syncerr.Translate(op, err, false)
	}

	present := make(map[string]bool, len(existing))
	for _, doc := range existing {
		present[doc.ID] = true
	}

	docs = slices.DeleteFunc(docs, func(doc docstore.Document) bool { return present[doc.ID] })

	moved := 0

	for i, chunk := range batch.Chunks(docs, m.size) {
		b := m.client.Batch()
		for _, doc := range chunk {
			b.Set(docstore.Ref{Collection: dest, ID: doc.ID}, doc.Data)
		}

		if err := b.Commit(ctx); err != nil {
			return moved, syncerr.New(syncerr.KindPartialBatch, op, fmt.Errorf("committing chunk %d: %w", i+1, err))
		}

		moved += len(chunk)
	}

	return moved, nil
}
