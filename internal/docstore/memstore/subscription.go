package memstore

import (
	"context"
	"sync"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

// subscription re-runs its query on its own goroutine whenever the watched
// collection changes. Wake-ups coalesce, so a slow consumer only ever sees
// the latest state.
type subscription struct {
	store *Store
	query docstore.Query
	fn    docstore.SnapshotFunc

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
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

	go sub.run()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
			case <-sub.done:
			}
		}()
	}

	return sub, nil
}

func (sub *subscription) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}

		sub.store.mu.RLock()
		docs := sub.store.query(sub.query)
		sub.store.mu.RUnlock()

		select {
		case <-sub.done:
			return
		default:
		}

		sub.fn(docs, nil)
	}
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.done)

		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
	})
}

func (s *Store) notify(collection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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
