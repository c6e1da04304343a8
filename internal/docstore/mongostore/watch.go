package mongostore

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

type subscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Subscribe opens a change stream on the collection before running the
// initial query, so no write between the two is missed. Every change event
// triggers a fresh query; queued events are drained first.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	stream, err := s.collection(q.Collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watching %s: %w", q.Collection, translate(err))
	}

	go func() {
		defer stream.Close(context.Background())

		deliver := func() bool {
			docs, err := s.Query(ctx, q)
			if ctx.Err() != nil {
				return false
			}

			if err != nil {
				fn(nil, err)
				return false
			}

			fn(docs, nil)

			return true
		}

		if !deliver() {
			return
		}

		for stream.Next(ctx) {
			for stream.TryNext(ctx) {
			}

			if !deliver() {
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			fn(nil, fmt.Errorf("watching %s: %w", q.Collection, translate(err)))
		}
	}()

	return &subscription{cancel: cancel}, nil
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

// Commit applies the batch inside a multi-document transaction, one ordered
// bulk write per collection.
func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) > MaxBatchSize {
		return fmt.Errorf("committing %d writes: %w", len(b.ops), docstore.ErrBatchTooLarge)
	}

	if len(b.ops) == 0 {
		return nil
	}

	models := make(map[string][]mongo.WriteModel)

	var order []string

	for _, o := range b.ops {
		if _, ok := models[o.ref.Collection]; !ok {
			order = append(order, o.ref.Collection)
		}

		if o.delete {
			models[o.ref.Collection] = append(models[o.ref.Collection],
				mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": o.ref.ID}))

			continue
		}

		models[o.ref.Collection] = append(models[o.ref.Collection],
			mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": o.ref.ID}).
				SetReplacement(toBSON(o.data)).
				SetUpsert(true))
	}

	sess, err := b.store.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", translate(err))
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, coll := range order {
			if _, err := b.store.collection(coll).BulkWrite(sc, models[coll], options.BulkWrite().SetOrdered(true)); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("committing batch: %w", translate(err))
	}

	b.ops = nil

	return nil
}
