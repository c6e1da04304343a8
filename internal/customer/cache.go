package customer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrJamesThe3rd/till/internal/batch"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/notify"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/tenant"
)

type Option func(*Cache)

func WithResolver(r tenant.Resolver) Option {
	return func(c *Cache) { c.resolver = r }
}

func WithBatchSize(n int) Option {
	return func(c *Cache) { c.batchSize = n }
}

// WithLegacyReads makes Load also read the tenant's documents from the flat
// customers collection. Hierarchical documents win.
func WithLegacyReads(enabled bool) Option {
	return func(c *Cache) { c.legacyReads = enabled }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Cache) { c.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache holds one tenant's customer aggregates keyed by phone. Reads never
// touch the store. Upsert updates memory at once and the store in the
// background with server-side increments.
type Cache struct {
	client      docstore.Client
	resolver    tenant.Resolver
	deleter     *batch.Deleter
	batchSize   int
	legacyReads bool
	logger      *slog.Logger
	notifier    notify.Notifier
	now         func() time.Time

	mu        sync.RWMutex
	tenantID  string
	customers map[string]Customer
	sources   map[string]docstore.Ref
	loading   bool

	inflight sync.WaitGroup
	busy     atomic.Bool
}

func NewCache(client docstore.Client, opts ...Option) *Cache {
	c := &Cache{
		client:    client,
		resolver:  tenant.NewResolver(""),
		logger:    slog.Default(),
		notifier:  notify.Discard,
		now:       time.Now,
		customers: make(map[string]Customer),
		sources:   make(map[string]docstore.Ref),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.deleter = batch.NewDeleter(client, c.batchSize)

	return c
}

// Load replaces the map with a full scan of tenantID's customers and binds
// the cache to that tenant. Each customer remembers the document it was read
// from so later increments land on the same one.
func (c *Cache) Load(ctx context.Context, tenantID string) error {
	path, err := c.resolver.Resolve(tenantID, tenant.Customers)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tenantID = tenantID
	c.loading = true
	c.mu.Unlock()

	queries := []docstore.Query{{Collection: path}}
	if c.legacyReads {
		legacy := docstore.Query{Collection: c.resolver.ResolveLegacy(tenant.Customers)}
		queries = append(queries, legacy.Where(tenant.Field, docstore.OpEqual, tenantID))
	}

	customers := make(map[string]Customer)
	sources := make(map[string]docstore.Ref)

	for _, q := range queries {
		docs, err := c.client.Query(ctx, q)
		if err != nil {
			c.mu.Lock()
			c.loading = false
			c.mu.Unlock()

			err = syncerr.Translate("loading customers", err, false)
			c.logger.Error("failed to load customers", "tenant", tenantID, "error", err)
			c.notifier.Notify(notify.Error("Could not load customers", err))

			return err
		}

		for _, doc := range docs {
			cust := decode(doc)
			if _, seen := customers[cust.Phone]; seen {
				continue
			}

			customers[cust.Phone] = cust
			sources[cust.Phone] = doc.Ref
		}
	}

	c.mu.Lock()
	c.customers = customers
	c.sources = sources
	c.loading = false
	c.mu.Unlock()

	c.logger.Info("loaded customers", "tenant", tenantID, "count", len(customers))

	return nil
}

// Loading is true while Load runs. Lookups may miss until it is false.
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loading
}

func (c *Cache) TenantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tenantID
}

func (c *Cache) Lookup(phone string) (Customer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cust, ok := c.customers[phone]

	return cust, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.customers)
}

// Upsert records a visit. A phone that is not exactly PhoneLength long is
// ignored without error. A customer read from the legacy layout keeps being
// incremented there; new customers go to the tenant's collection.
//
// The local aggregate changes before Upsert returns. The remote write
// finishes later and its failure is only logged and notified. The local
// value then stays optimistic until the next Load.
func (c *Cache) Upsert(ctx context.Context, v Visit) error {
	if len(v.Phone) != PhoneLength {
		return nil
	}

	c.mu.Lock()

	tenantID := c.tenantID

	path, err := c.resolver.Resolve(tenantID, tenant.Customers)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	now := c.now().UTC()

	cust := c.customers[v.Phone]
	cust.Phone = v.Phone
	cust.Name = v.Name
	cust.VisitCount++
	cust.TotalSpent = cust.TotalSpent.Add(v.Amount)
	cust.LastVisit = now

	if v.Note != "" {
		cust.LastNote = v.Note
	}

	c.customers[v.Phone] = cust

	ref, ok := c.sources[v.Phone]
	if !ok {
		ref = docstore.Ref{Collection: path, ID: v.Phone}
		c.sources[v.Phone] = ref
	}

	c.mu.Unlock()

	data := docstore.Data{
		"phone":      v.Phone,
		"name":       v.Name,
		"visitCount": docstore.Increment(1),
		"totalSpent": docstore.Increment(v.Amount.InexactFloat64()),
		"lastVisit":  now,
		tenant.Field: tenantID,
	}

	if v.Note != "" {
		data["lastNote"] = v.Note
	}

	c.inflight.Add(1)

	go func() {
		defer c.inflight.Done()

		if err := c.client.Merge(context.WithoutCancel(ctx), ref, data); err != nil {
			err = syncerr.Translate("updating customer", err, true)
			c.logger.Error("failed to update customer", "tenant", tenantID, "phone", v.Phone, "error", err)
			c.notifier.Notify(notify.Error("Could not update customer "+v.Name, err))
		}
	}()

	return nil
}

// Flush waits for every remote write started by Upsert.
func (c *Cache) Flush() {
	c.inflight.Wait()
}

// ClearAll deletes every customer of tenantID from both layouts and, when
// the cache is bound to that tenant, empties the map.
func (c *Cache) ClearAll(ctx context.Context, tenantID string) (int, error) {
	path, err := c.resolver.Resolve(tenantID, tenant.Customers)
	if err != nil {
		return 0, err
	}

	if !c.busy.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("clearing customers: %w", syncerr.ErrBusy)
	}
	defer c.busy.Store(false)

	c.Flush()

	legacy := docstore.Query{Collection: c.resolver.ResolveLegacy(tenant.Customers)}
	queries := []docstore.Query{
		{Collection: path},
		legacy.Where(tenant.Field, docstore.OpEqual, tenantID),
	}

	deleted := 0

	for _, q := range queries {
		docs, err := c.client.Query(ctx, q)
		if err != nil {
			return 0, c.clearFailed(syncerr.Translate("clearing customers", err, false))
		}

		n, err := c.deleter.DeleteAll(ctx, batch.Refs(docs))
		if err != nil {
			return 0, c.clearFailed(err)
		}

		deleted += n
	}

	c.mu.Lock()
	if c.tenantID == tenantID {
		c.customers = make(map[string]Customer)
		c.sources = make(map[string]docstore.Ref)
	}
	c.mu.Unlock()

	c.logger.Info("cleared customers", "tenant", tenantID, "deleted", deleted)
	c.notifier.Notify(notify.Success(fmt.Sprintf("Deleted %d customers", deleted)))

	return deleted, nil
}

func (c *Cache) clearFailed(err error) error {
	c.logger.Error("failed to clear customers", "error", err)
	c.notifier.Notify(notify.Error("Could not delete customers", err))

	return err
}

// Caches hands out one loaded Cache per tenant. Loading one tenant does not
// hold up lookups of the others.
type Caches struct {
	client docstore.Client
	opts   []Option

	mu      sync.Mutex
	caches  map[string]*Cache
	pending map[string]*load
}

type load struct {
	done  chan struct{}
	cache *Cache
	err   error
}

func NewCaches(client docstore.Client, opts ...Option) *Caches {
	return &Caches{
		client:  client,
		opts:    opts,
		caches:  make(map[string]*Cache),
		pending: make(map[string]*load),
	}
}

// Get returns tenantID's cache, loading it on first use. Concurrent callers
// for the same tenant share one load. A failed load is not remembered.
func (cs *Caches) Get(ctx context.Context, tenantID string) (*Cache, error) {
	cs.mu.Lock()

	if c, ok := cs.caches[tenantID]; ok {
		cs.mu.Unlock()
		return c, nil
	}

	if l, ok := cs.pending[tenantID]; ok {
		cs.mu.Unlock()

		select {
		case <-l.done:
			return l.cache, l.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l := &load{done: make(chan struct{})}
	cs.pending[tenantID] = l
	cs.mu.Unlock()

	c := NewCache(cs.client, cs.opts...)
	if err := c.Load(ctx, tenantID); err != nil {
		l.err = err
	} else {
		l.cache = c
	}

	cs.mu.Lock()
	delete(cs.pending, tenantID)

	if l.err == nil {
		cs.caches[tenantID] = c
	}
	cs.mu.Unlock()

	close(l.done)

	return l.cache, l.err
}

// Reload rescans tenantID's customers into its cache, if one is loaded.
// It runs after documents move between layouts.
func (cs *Caches) Reload(ctx context.Context, tenantID string) error {
	cs.mu.Lock()
	c, ok := cs.caches[tenantID]
	cs.mu.Unlock()

	if !ok {
		return nil
	}

	c.Flush()

	return c.Load(ctx, tenantID)
}

// Flush waits for the remote writes of every cache.
func (cs *Caches) Flush() {
	cs.mu.Lock()
	caches := make([]*Cache, 0, len(cs.caches))
	for _, c := range cs.caches {
		caches = append(caches, c)
	}
	cs.mu.Unlock()

	for _, c := range caches {
		c.Flush()
	}
}
