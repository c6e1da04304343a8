// Package pgstore implements docstore.Client on a single PostgreSQL table of
// JSONB documents. Realtime subscriptions are driven by LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

// MaxBatchSize keeps batches portable with hosted document stores.
const MaxBatchSize = 500

const notifyChannel = "documents_changed"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);

CREATE OR REPLACE FUNCTION notify_documents_changed() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('documents_changed', COALESCE(NEW.collection, OLD.collection));
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_changed ON documents;

CREATE TRIGGER documents_changed AFTER INSERT OR UPDATE OR DELETE ON documents
	FOR EACH ROW EXECUTE FUNCTION notify_documents_changed();
`

// timeLayout is fixed width so that text ordering of stored dates is
// chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB

	mu         sync.Mutex
	subs       map[*subscription]struct{}
	stopListen context.CancelFunc
}

func New(db *sql.DB) *Store {
	return &Store{db: db, subs: make(map[*subscription]struct{})}
}

// Migrate creates the documents table and its change trigger.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating documents schema: %w", translate(err))
	}

	return nil
}

func (s *Store) MaxBatchSize() int { return MaxBatchSize }

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Document, error) {
	var raw []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID,
	).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return docstore.Document{}, fmt.Errorf("getting %s/%s: %w", ref.Collection, ref.ID, docstore.ErrNotFound)
		}

		return docstore.Document{}, fmt.Errorf("getting %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	data, err := decode(raw)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("decoding %s/%s: %w", ref.Collection, ref.ID, err)
	}

	return docstore.Document{Ref: ref, Data: data}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	if err := set(ctx, s.db, ref, data); err != nil {
		return fmt.Errorf("setting %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	return nil
}

func set(ctx context.Context, db execer, ref docstore.Ref, data docstore.Data) error {
	body, err := encode(data)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, ref.Collection, ref.ID, body)

	return err
}

func (s *Store) Update(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	fields, incs := docstore.SplitIncrements(data)

	body, err := encode(fields)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", ref.Collection, ref.ID, err)
	}

	args := []any{ref.Collection, ref.ID, body}
	expr := incrementExpr("documents.body || $3::jsonb", "documents.body", incs, &args)

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET body = `+expr+`, updated_at = NOW() WHERE collection = $1 AND id = $2`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", ref.Collection, ref.ID, err)
	}

	if n == 0 {
		return fmt.Errorf("updating %s/%s: %w", ref.Collection, ref.ID, docstore.ErrNotFound)
	}

	return nil
}

func (s *Store) Merge(ctx context.Context, ref docstore.Ref, data docstore.Data) error {
	fields, incs := docstore.SplitIncrements(data)

	initial := fields.Clone()
	for k, delta := range incs {
		initial[k] = delta
	}

	insertBody, err := encode(initial)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", ref.Collection, ref.ID, err)
	}

	setBody, err := encode(fields)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", ref.Collection, ref.ID, err)
	}

	args := []any{ref.Collection, ref.ID, insertBody, setBody}
	expr := incrementExpr("documents.body || $4::jsonb", "documents.body", incs, &args)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET body = `+expr+`, updated_at = NOW()
	`, args...)
	if err != nil {
		return fmt.Errorf("merging %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	return nil
}

// incrementExpr wraps base in one jsonb_set per increment. Increments read
// the stored value from current, so concurrent writers never lose an add.
func incrementExpr(base, current string, incs map[string]float64, args *[]any) string {
	expr := base

	for field, delta := range incs {
		*args = append(*args, []string{field}, field, delta)
		n := len(*args)

		expr = fmt.Sprintf("jsonb_set(%s, $%d::text[], to_jsonb(COALESCE((%s->>$%d::text)::numeric, 0) + $%d::numeric))",
			expr, n-2, current, n-1, n)
	}

	return expr
}

func (s *Store) Delete(ctx context.Context, ref docstore.Ref) error {
	if err := remove(ctx, s.db, ref); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", ref.Collection, ref.ID, translate(err))
	}

	return nil
}

func remove(ctx context.Context, db execer, ref docstore.Ref) error {
	_, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, ref.Collection, ref.ID)
	return err
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	query, args := buildQuery(q)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Collection, translate(err))
	}
	defer rows.Close()

	var docs []docstore.Document

	for rows.Next() {
		var (
			id  string
			raw []byte
		)

		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", q.Collection, err)
		}

		data, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", q.Collection, id, err)
		}

		docs = append(docs, docstore.Document{
			Ref:  docstore.Ref{Collection: q.Collection, ID: id},
			Data: data,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", q.Collection, translate(err))
	}

	return docs, nil
}

func buildQuery(q docstore.Query) (string, []any) {
	var sb strings.Builder

	args := []any{q.Collection}

	sb.WriteString(`SELECT id, body FROM documents WHERE collection = $1`)

	for _, f := range q.Filters {
		args = append(args, f.Field)
		field := len(args)

		switch v := f.Value.(type) {
		case time.Time:
			args = append(args, v.UTC())
			fmt.Fprintf(&sb, " AND (body->>$%d::text)::timestamptz %s $%d::timestamptz", field, sqlOp(f.Op), len(args))
		case int, int32, int64, float32, float64:
			args = append(args, docstore.AsFloat(v))
			fmt.Fprintf(&sb, " AND (body->>$%d::text)::numeric %s $%d::numeric", field, sqlOp(f.Op), len(args))
		default:
			args = append(args, fmt.Sprint(v))
			fmt.Fprintf(&sb, " AND body->>$%d::text %s $%d::text", field, sqlOp(f.Op), len(args))
		}
	}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		fmt.Fprintf(&sb, " ORDER BY body->$%d::text", len(args))

		if q.Descending {
			sb.WriteString(" DESC")
		}

		sb.WriteString(", id")
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	return sb.String(), args
}

func sqlOp(op docstore.Op) string {
	if op == docstore.OpEqual {
		return "="
	}

	return string(op)
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	stop := s.stopListen
	subs := make([]*subscription, 0, len(s.subs))

	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	if stop != nil {
		stop()
	}

	return s.db.Close()
}

func encode(d docstore.Data) (string, error) {
	b, err := json.Marshal(normalize(d))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// normalize rewrites times into the fixed-width layout.
func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(timeLayout)
	case docstore.Data:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}

		return out
	case map[string]any:
		return normalize(docstore.Data(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}

		return out
	}

	return v
}

func decode(raw []byte) (docstore.Data, error) {
	var d docstore.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}

	return d, nil
}

// translate maps SQLSTATE codes onto the docstore sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "42501":
		return fmt.Errorf("%w: %w", docstore.ErrPermissionDenied, err)
	case "42P01", "55000":
		return fmt.Errorf("%w: %w", docstore.ErrFailedPrecondition, err)
	}

	return err
}
