// Package mongostore implements docstore.Client on MongoDB. Collection paths
// map to collection names with "/" replaced by ".", and document ids are
// stored as string _id values.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

// MaxBatchSize keeps batches portable with hosted document stores.
const MaxBatchSize = 500

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

func (s *Store) MaxBatchSize() int { return MaxBatchSize }

func (s *Store) collection(path string) *mongo.Collection {
	return s.db.Collection(strings.ReplaceAll(path, "/", "."))
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	var raw bson.M

	err := s.collection(ref.Collection).FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, fmt.Errorf("getting %s/%s: %w", ref.Collection, ref.ID, docstore.ErrNotFound)
	}

	if err != nil {
		return docstore.Document{}, fmt.Errorf("getting %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	return toDocument(ref.Collection, raw), nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	_, err := s.collection(ref.Collection).ReplaceOne(ctx,
		bson.M{"_id": ref.ID},
		toBSON(data),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("setting %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	return nil
}

func (s *Store) Update(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	res, err := s.collection(ref.Collection).UpdateOne(ctx, bson.M{"_id": ref.ID}, updateDoc(data))
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("updating %s/%s: %w", ref.Collection, ref.ID, docstore.ErrNotFound)
	}

	return nil
}

func (s *Store) Merge(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	_, err := s.collection(ref.Collection).UpdateOne(ctx,
		bson.M{"_id": ref.ID},
		updateDoc(data),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("merging %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	if _, err := s.collection(ref.Collection).DeleteOne(ctx, bson.M{"_id": ref.ID}); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	opts := options.Find()

	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}

		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	}

	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.collection(q.Collection).Find(ctx, filterDoc(q.Filters), opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Collection, translate(err))
	}

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("reading %s: %w", q.Collection, translate(err))
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, toDocument(q.Collection, row))
	}

	return docs, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func filterDoc(filters []docstore.Filter) bson.M {
	out := bson.M{}

	for _, f := range filters {
		ops, _ := out[f.Field].(bson.M)
		if ops == nil {
			ops = bson.M{}
			out[f.Field] = ops
		}

		ops[mongoOp(f.Op)] = toBSONValue(f.Value)
	}

	return out
}

func mongoOp(op docstore.Op) string {
	switch op {
	case docstore.OpGreater:
		return "$gt"
	case docstore.OpGreaterEqual:
		return "$gte"
	case docstore.OpLess:
		return "$lt"
	case docstore.OpLessEqual:
		return "$lte"
	}

	return "$eq"
}

func updateDoc(data docstore.Data) bson.M {
	set, inc := docstore.SplitIncrements(data)
	u := bson.M{}

	if len(set) > 0 {
		u["$set"] = toBSON(set)
	}

	if len(inc) > 0 {
		incs := bson.M{}
		for k, v := range inc {
			incs[k] = v
		}

		u["$inc"] = incs
	}

	return u
}

func toBSON(d docstore.Data) bson.M {
	out := make(bson.M, len(d))
	for k, v := range d {
		out[k] = toBSONValue(v)
	}

	return out
}

func toBSONValue(v any) any {
	if m, ok := docstore.AsMap(v); ok {
		return toBSON(m)
	}

	if s, ok := v.([]any); ok {
		arr := make(bson.A, len(s))
		for i, e := range s {
			arr[i] = toBSONValue(e)
		}

		return arr
	}

	return v
}

func toDocument(collection string, raw bson.M) docstore.Document {
	id := fmt.Sprint(raw["_id"])
	delete(raw, "_id")

	return docstore.Document{
		Ref:  docstore.Ref{Collection: collection, ID: id},
		Data: fromBSON(raw),
	}
}

func fromBSON(m bson.M) docstore.Data {
	out := make(docstore.Data, len(m))
	for k, v := range m {
		out[k] = fromBSONValue(v)
	}

	return out
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return fromBSON(t)
	case bson.D:
		return fromBSON(t.Map())
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}

		return out
	case primitive.DateTime:
		return t.Time().UTC()
	}

	return v
}

// translate maps server error codes onto the docstore sentinels.
func translate(err error) error {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return err
	}

	switch {
	case se.HasErrorCode(13), se.HasErrorCode(18):
		return fmt.Errorf("%w: %w", docstore.ErrPermissionDenied, err)
	case se.HasErrorCode(40573), se.HasErrorCode(291):
		return fmt.Errorf("%w: %w", docstore.ErrFailedPrecondition, err)
	}

	return err
}
