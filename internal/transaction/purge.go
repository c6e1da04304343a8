package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/till/internal/batch"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/notify"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/tenant"
)

// PurgeResult is the outcome of a bulk delete. Finding nothing to delete is
// a result, not an error.
type PurgeResult struct {
	Deleted int
}

func (r PurgeResult) NothingFound() bool { return r.Deleted == 0 }

func (r PurgeResult) String() string {
	if r.NothingFound() {
		return "no records found"
	}

	return fmt.Sprintf("deleted %d records", r.Deleted)
}

// DeleteByDateRange deletes the tenant's transactions dated inside
// [start, end], widened to whole days, from both layouts.
func (s *Service) DeleteByDateRange(ctx context.Context, tenantID string, start, end time.Time) (PurgeResult, error) {
	w := NewWindow(start, end)

	queries, err := s.purgeQueries(tenantID, func(q docstore.Query) docstore.Query {
		return q.Where("date", docstore.OpGreaterEqual, w.Start).Where("date", docstore.OpLessEqual, w.End)
	})
	if err != nil {
		return PurgeResult{}, err
	}

	return s.purge(ctx, "deleting transactions by date", queries)
}

// ClearAll deletes every transaction of the tenant from both layouts.
func (s *Service) ClearAll(ctx context.Context, tenantID string) (PurgeResult, error) {
	queries, err := s.purgeQueries(tenantID, func(q docstore.Query) docstore.Query { return q })
	if err != nil {
		return PurgeResult{}, err
	}

	return s.purge(ctx, "clearing transactions", queries)
}

// purgeQueries always covers the legacy layout, whether or not it is read.
func (s *Service) purgeQueries(tenantID string, scope func(docstore.Query) docstore.Query) ([]docstore.Query, error) {
	path, err := s.resolver.Resolve(tenantID, tenant.Transactions)
	if err != nil {
		return nil, err
	}

	legacy := docstore.Query{Collection: s.resolver.ResolveLegacy(tenant.Transactions)}

	return []docstore.Query{
		scope(docstore.Query{Collection: path}),
		scope(legacy.Where(tenant.Field, docstore.OpEqual, tenantID)),
	}, nil
}

func (s *Service) purge(ctx context.Context, op string, queries []docstore.Query) (PurgeResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return PurgeResult{}, fmt.Errorf("%s: %w", op, syncerr.ErrBusy)
	}
	defer s.busy.Store(false)

	var res PurgeResult

	for _, q := range queries {
		docs, err := s.client.Query(ctx, q)
		if err != nil {
			return PurgeResult{}, s.writeFailed(op, "Could not delete transactions", syncerr.Translate(op, err, false))
		}

		n, err := s.deleter.DeleteAll(ctx, batch.Refs(docs))
		if err != nil {
			return PurgeResult{}, s.writeFailed(op, "Deleting transactions stopped partway; run it again", err)
		}

		res.Deleted += n
	}

	s.logger.Info("purged transactions", "op", op, "deleted", res.Deleted)

	if res.NothingFound() {
		s.notifier.Notify(notify.Info("No records found"))
	} else {
		s.notifier.Notify(notify.Success(fmt.Sprintf("Deleted %d records", res.Deleted)))
	}

	return res, nil
}
