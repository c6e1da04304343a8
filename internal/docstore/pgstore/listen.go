package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

type subscription struct {
	store *Store
	query docstore.Query
	fn    docstore.SnapshotFunc

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscribe delivers the query result now and again after every change
// notification for the collection. Notifications that arrive while a query
// is running coalesce into one re-run.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	if err := s.ensureListener(); err != nil {
		return nil, fmt.Errorf("listening on %s: %w", notifyChannel, translate(err))
	}

	sub := &subscription{
		store: s,
		query: q,
		fn:    fn,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.wake <- struct{}{}

	go sub.run(ctx)

	return sub, nil
}

func (sub *subscription) run(ctx context.Context) {
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		case <-sub.wake:
		}

		docs, err := sub.store.Query(ctx, sub.query)

		select {
		case <-sub.done:
			return
		default:
		}

		if err != nil {
			sub.fail(err)
			return
		}

		sub.fn(docs, nil)
	}
}

func (sub *subscription) fail(err error) {
	select {
	case <-sub.done:
		return
	default:
	}

	sub.fn(nil, err)
	sub.Unsubscribe()
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.done)

		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
	})
}

func (s *Store) ensureListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopListen != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	conn, err := s.db.Conn(ctx)
	if err != nil {
		cancel()
		return err
	}

	s.stopListen = cancel

	go s.listen(ctx, conn)

	return nil
}

// listen holds one dedicated connection in LISTEN mode for the lifetime of
// the store. If it dies every subscription is failed and the next Subscribe
// starts a new listener.
func (s *Store) listen(ctx context.Context, conn *sql.Conn) {
	defer conn.Close()

	err := conn.Raw(func(driverConn any) error {
		pc := driverConn.(*stdlib.Conn).Conn()

		if _, err := pc.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
			return err
		}

		for {
			n, err := pc.WaitForNotification(ctx)
			if err != nil {
				return err
			}

			s.notify(n.Payload)
		}
	})

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.stopListen = nil

	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(fmt.Errorf("listening on %s: %w", notifyChannel, translate(err)))
	}
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		if sub.query.Collection != collection {
			continue
		}

		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

type batch struct {
	store *Store
	ops   []op
}

type op struct {
	ref    docstore.Ref
	data   docstore.Data
	delete bool
}

func (s *Store) Batch() docstore.Batch {
	return &batch{store: s}
}

func (b *batch) Set(ref docstore.Ref, data docstore.Data) {
	b.ops = append(b.ops, op{ref: ref, data: data.Clone()})
}

func (b *batch) Delete(ref docstore.Ref) {
	b.ops = append(b.ops, op{ref: ref, delete: true})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) > MaxBatchSize {
		return fmt.Errorf("committing %d writes: %w", len(b.ops), docstore.ErrBatchTooLarge)
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch: %w", translate(err))
	}
	defer tx.Rollback()

	for _, o := range b.ops {
		if o.delete {
			err = remove(ctx, tx, o.ref)
		} else {
			err = set(ctx, tx, o.ref, o.data)
		}

		if err != nil {
			return fmt.Errorf("writing %s/%s: %w", o.ref.Collection, o.ref.ID, translate(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", translate(err))
	}

	b.ops = nil

	return nil
}
