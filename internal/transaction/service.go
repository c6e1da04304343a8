package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/till/internal/batch"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/notify"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/tenant"
)

// Listener receives every snapshot of the live window, or the error that
// ended the subscription.
type Listener func(txs []Transaction, err error)

type Option func(*Service)

func WithResolver(r tenant.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

func WithBatchSize(n int) Option {
	return func(s *Service) { s.batchSize = n }
}

// WithLegacyReads makes subscriptions and range queries also read the flat
// pre-migration collection.
func WithLegacyReads(enabled bool) Option {
	return func(s *Service) { s.legacyReads = enabled }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithListener(l Listener) Option {
	return func(s *Service) { s.listener = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service keeps an in-memory copy of one tenant's transactions inside a date
// window in step with the store, and writes changes back.
type Service struct {
	client      docstore.Client
	resolver    tenant.Resolver
	deleter     *batch.Deleter
	batchSize   int
	legacyReads bool
	logger      *slog.Logger
	notifier    notify.Notifier
	listener    Listener
	now         func() time.Time

	mu       sync.Mutex
	txs      []Transaction
	sources  map[string]docstore.Ref
	window   Window
	tenantID string
	loading  bool
	gen      uint64
	seq      uint64
	feed     *feed

	emitMu  sync.Mutex
	emitted uint64

	busy atomic.Bool
}

func NewService(client docstore.Client, opts ...Option) *Service {
	s := &Service{
		client:   client,
		resolver: tenant.NewResolver(""),
		logger:   slog.Default(),
		notifier: notify.Discard,
		now:      time.Now,
		sources:  make(map[string]docstore.Ref),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.deleter = batch.NewDeleter(client, s.batchSize)
	s.window = CurrentMonth(s.now())

	return s
}

// Session returns a Service sharing this one's store and settings but with
// its own subscription state. Each concurrent watcher needs its own.
func (s *Service) Session(opts ...Option) *Service {
	base := []Option{
		WithResolver(s.resolver),
		WithBatchSize(s.batchSize),
		WithLegacyReads(s.legacyReads),
		WithLogger(s.logger),
		WithNotifier(s.notifier),
		WithClock(s.now),
	}

	return NewService(s.client, append(base, opts...)...)
}

// Transactions returns a copy of the last observed snapshot, newest first.
func (s *Service) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.txs)
}

func (s *Service) Window() Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.window
}

// Loading is true from Subscribe until the first complete snapshot.
func (s *Service) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loading
}

// Subscribe replaces the live subscription with one over w for tenantID.
// The subscription lives until Unsubscribe, the next Subscribe or the end
// of ctx.
func (s *Service) Subscribe(ctx context.Context, tenantID string, w Window) error {
	queries, err := s.readQueries(tenantID, w)
	if err != nil {
		return err
	}

	f := &feed{
		layers: make([][]docstore.Document, len(queries)),
		ready:  make([]bool, len(queries)),
	}

	s.mu.Lock()
	old := s.feed
	s.gen++
	gen := s.gen
	s.feed = f
	s.window = w
	s.tenantID = tenantID
	s.txs = nil
	s.sources = make(map[string]docstore.Ref)
	s.loading = true
	s.mu.Unlock()

	old.stop()

	for i, q := range queries {
		layer := i

		sub, err := s.client.Subscribe(ctx, q, func(docs []docstore.Document, err error) {
			s.onSnapshot(gen, layer, docs, err)
		})
		if err != nil {
			f.stop()

			s.mu.Lock()
			if s.gen == gen {
				s.feed = nil
				s.loading = false
			}
			s.mu.Unlock()

			err = syncerr.Translate("subscribing to transactions", err, false)
			s.reportRead(err)

			return err
		}

		if !f.add(sub) {
			// Replaced while subscribing.
			sub.Unsubscribe()
			return nil
		}
	}

	return nil
}

// Unsubscribe stops the live subscription. It is safe to call repeatedly.
func (s *Service) Unsubscribe() {
	s.mu.Lock()
	f := s.feed
	s.feed = nil
	s.gen++
	s.loading = false
	s.mu.Unlock()

	f.stop()
}

// SetWindow re-subscribes the current tenant over [start, end] widened to
// whole days. Snapshots of the previous window arriving afterwards are
// dropped.
func (s *Service) SetWindow(ctx context.Context, start, end time.Time) error {
	s.mu.Lock()
	tenantID := s.tenantID
	s.mu.Unlock()

	if tenantID == "" {
		return syncerr.Configuration("setting window")
	}

	return s.Subscribe(ctx, tenantID, NewWindow(start, end))
}

func (s *Service) onSnapshot(gen uint64, layer int, docs []docstore.Document, err error) {
	s.mu.Lock()

	if gen != s.gen || s.feed == nil {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.loading = false
		s.seq++
		seq := s.seq
		s.mu.Unlock()

		err = syncerr.Translate("watching transactions", err, false)
		s.reportRead(err)
		s.emit(seq, nil, err)

		return
	}

	f := s.feed
	f.layers[layer] = docs
	f.ready[layer] = true

	if slices.Contains(f.ready, false) {
		s.mu.Unlock()
		return
	}

	s.txs, s.sources = s.merge(f.layers)
	s.loading = false
	s.seq++
	seq := s.seq
	snapshot := slices.Clone(s.txs)
	s.mu.Unlock()

	s.emit(seq, snapshot, nil)
}

// emit hands a snapshot to the listener unless a newer one already went
// out. Backends deliver layers on separate goroutines.
func (s *Service) emit(seq uint64, txs []Transaction, err error) {
	if s.listener == nil {
		return
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if seq <= s.emitted {
		return
	}

	s.emitted = seq
	s.listener(txs, err)
}

// merge decodes every layer, letting earlier layers win on id collisions,
// and orders the result newest first.
func (s *Service) merge(layers [][]docstore.Document) ([]Transaction, map[string]docstore.Ref) {
	var txs []Transaction

	sources := make(map[string]docstore.Ref)

	for _, docs := range layers {
		for _, doc := range docs {
			if _, seen := sources[doc.ID]; seen {
				continue
			}

			tx, err := decode(doc)
			if err != nil {
				s.logger.Warn("skipping undecodable transaction", "collection", doc.Collection, "error", err)
				continue
			}

			sources[doc.ID] = doc.Ref
			txs = append(txs, tx)
		}
	}

	slices.SortStableFunc(txs, byDateDesc)

	return txs, sources
}

// QueryRange fetches [start, end] once without touching the live window.
func (s *Service) QueryRange(ctx context.Context, tenantID string, start, end time.Time) ([]Transaction, error) {
	queries, err := s.readQueries(tenantID, NewWindow(start, end))
	if err != nil {
		return nil, err
	}

	layers := make([][]docstore.Document, len(queries))

	for i, q := range queries {
		docs, err := s.client.Query(ctx, q)
		if err != nil {
			return nil, syncerr.Translate("querying transactions", err, false)
		}

		layers[i] = docs
	}

	txs, _ := s.merge(layers)

	return txs, nil
}

// Add validates and writes tx under a fresh id and returns it. Date
// defaults to now; CreatedAt is always now. The live window picks the new
// document up from the store.
func (s *Service) Add(ctx context.Context, tenantID string, tx Transaction) (string, error) {
	path, err := s.resolver.Resolve(tenantID, tenant.Transactions)
	if err != nil {
		return "", err
	}

	if err := validateTransaction(tx); err != nil {
		return "", err
	}

	now := s.now().UTC()

	tx.ID = uuid.NewString()
	tx.CreatedAt = now
	tx.BusinessID = tenantID

	if tx.Date.IsZero() {
		tx.Date = now
	}

	if err := s.client.Set(ctx, docstore.Ref{Collection: path, ID: tx.ID}, encode(tx)); err != nil {
		return "", s.writeFailed("adding transaction", "Could not save the transaction", err)
	}

	return tx.ID, nil
}

// Update merges u into the stored transaction.
func (s *Service) Update(ctx context.Context, tenantID, id string, u Update) error {
	ref, err := s.locate(tenantID, id)
	if err != nil {
		return err
	}

	if err := validateUpdate(u); err != nil {
		return err
	}

	data := u.data()
	if len(data) == 0 {
		return nil
	}

	if err := s.client.Update(ctx, ref, data); err != nil {
		return s.writeFailed("updating transaction", "Could not update the transaction", err)
	}

	return nil
}

// Get returns one transaction, from the live snapshot when it is there.
func (s *Service) Get(ctx context.Context, tenantID, id string) (Transaction, error) {
	tx, _, err := s.capture(ctx, tenantID, id)
	return tx, err
}

// Undo carries what Restore needs to bring a deleted transaction back.
type Undo struct {
	DeletedID   string
	Transaction Transaction
}

// Delete removes a transaction and returns the body it had so the caller
// can offer an undo.
func (s *Service) Delete(ctx context.Context, tenantID, id string) (Undo, error) {
	tx, ref, err := s.capture(ctx, tenantID, id)
	if err != nil {
		return Undo{}, err
	}

	if err := s.client.Delete(ctx, ref); err != nil {
		return Undo{}, s.writeFailed("deleting transaction", "Could not delete the transaction", err)
	}

	return Undo{DeletedID: id, Transaction: tx}, nil
}

// Restore writes the captured body back under a new id. The original id is
// gone for good: anything that referenced it keeps pointing nowhere.
func (s *Service) Restore(ctx context.Context, tenantID string, u Undo) (string, error) {
	path, err := s.resolver.Resolve(tenantID, tenant.Transactions)
	if err != nil {
		return "", err
	}

	tx := u.Transaction
	tx.ID = uuid.NewString()
	tx.BusinessID = tenantID

	if err := s.client.Set(ctx, docstore.Ref{Collection: path, ID: tx.ID}, encode(tx)); err != nil {
		return "", s.writeFailed("restoring transaction", "Could not restore the transaction", err)
	}

	return tx.ID, nil
}

// capture finds a transaction in the live snapshot, falling back to reading
// it from each layer in turn.
func (s *Service) capture(ctx context.Context, tenantID, id string) (Transaction, docstore.Ref, error) {
	path, err := s.resolver.Resolve(tenantID, tenant.Transactions)
	if err != nil {
		return Transaction{}, docstore.Ref{}, err
	}

	s.mu.Lock()
	if s.tenantID == tenantID {
		if ref, ok := s.sources[id]; ok {
			i := slices.IndexFunc(s.txs, func(t Transaction) bool { return t.ID == id })
			if i >= 0 {
				tx := s.txs[i]
				s.mu.Unlock()

				return tx, ref, nil
			}
		}
	}
	s.mu.Unlock()

	refs := []docstore.Ref{{Collection: path, ID: id}}
	if s.legacyReads {
		refs = append(refs, docstore.Ref{Collection: s.resolver.ResolveLegacy(tenant.Transactions), ID: id})
	}

	for _, ref := range refs {
		doc, err := s.client.Get(ctx, ref)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}

		if err != nil {
			return Transaction{}, docstore.Ref{}, syncerr.Translate("reading transaction", err, false)
		}

		if ref.Collection != path && docstore.AsString(doc.Data[tenant.Field]) != tenantID {
			continue
		}

		tx, err := decode(doc)
		if err != nil {
			return Transaction{}, docstore.Ref{}, err
		}

		return tx, ref, nil
	}

	return Transaction{}, docstore.Ref{}, fmt.Errorf("reading transaction %s: %w", id, ErrNotFound)
}

// locate returns where id lives without reading it when the snapshot knows.
func (s *Service) locate(tenantID, id string) (docstore.Ref, error) {
	path, err := s.resolver.Resolve(tenantID, tenant.Transactions)
	if err != nil {
		return docstore.Ref{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.sources[id]; ok && s.tenantID == tenantID {
		return ref, nil
	}

	return docstore.Ref{Collection: path, ID: id}, nil
}

// readQueries builds the window query for every layer being read.
func (s *Service) readQueries(tenantID string, w Window) ([]docstore.Query, error) {
	path, err := s.resolver.Resolve(tenantID, tenant.Transactions)
	if err != nil {
		return nil, err
	}

	q := docstore.Query{Collection: path}.
		Where("date", docstore.OpGreaterEqual, w.Start).
		Where("date", docstore.OpLessEqual, w.End).
		Order("date", true)

	queries := []docstore.Query{q}

	if s.legacyReads {
		legacy := q
		legacy.Collection = s.resolver.ResolveLegacy(tenant.Transactions)
		queries = append(queries, legacy.Where(tenant.Field, docstore.OpEqual, tenantID))
	}

	return queries, nil
}

func (s *Service) writeFailed(op, message string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		err = fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	} else {
		err = syncerr.Translate(op, err, true)
	}

	s.logger.Error("transaction write failed", "op", op, "error", err)
	s.notifier.Notify(notify.Error(message, err))

	return err
}

func (s *Service) reportRead(err error) {
	var message string

	switch syncerr.KindOf(err) {
	case syncerr.KindAccessDenied:
		message = "You do not have access to this business's transactions"
	case syncerr.KindIndexMissing:
		message = "Transactions cannot be listed until the store index is created"
	case syncerr.KindConfiguration:
		message = "No business is selected"
	default:
		message = "Could not load transactions"
	}

	s.logger.Error("transaction subscription failed", "kind", syncerr.KindOf(err).String(), "error", err)
	s.notifier.Notify(notify.Error(message, err))
}

// feed is the set of store subscriptions behind one logical subscription.
// layers and ready are guarded by Service.mu.
type feed struct {
	layers [][]docstore.Document
	ready  []bool

	mu      sync.Mutex
	subs    []docstore.Subscription
	stopped bool
}

func (f *feed) add(sub docstore.Subscription) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return false
	}

	f.subs = append(f.subs, sub)

	return true
}

func (f *feed) stop() {
	if f == nil {
		return
	}

	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.stopped = true
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
