package transaction_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/docstore/memstore"
	"github.com/MrJamesThe3rd/till/internal/notify"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

const (
	hierPath   = "businesses/biz1/transactions"
	legacyPath = "transactions"
)

var fixedNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func june(day, hour int) time.Time {
	return time.Date(2024, 6, day, hour, 0, 0, 0, time.UTC)
}

func newMockClient(ctrl *gomock.Controller) *docstore.MockClient {
	client := docstore.NewMockClient(ctrl)
	client.EXPECT().MaxBatchSize().Return(500).AnyTimes()

	return client
}

func seed(t *testing.T, store *memstore.Store, collection, id, businessID string, date time.Time) {
	t.Helper()

	err := store.Set(context.Background(), docstore.Ref{Collection: collection, ID: id}, docstore.Data{
		"type":       "sale",
		"status":     "completed",
		"date":       date,
		"createdAt":  date,
		"businessId": businessID,
		"items": []any{
			docstore.Data{"name": "Chai", "price": 20.0, "quantity": 2},
		},
		"payment": docstore.Data{"method": "cash", "advance": 40.0, "balance": 0.0},
	})
	require.NoError(t, err)
}

type recorder struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recorder) Notify(n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notices = append(r.notices, n)
}

func (r *recorder) last() notify.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.notices) == 0 {
		return notify.Notice{}
	}

	return r.notices[len(r.notices)-1]
}

func waitLoaded(t *testing.T, svc *transaction.Service) {
	t.Helper()

	require.Eventually(t, func() bool { return !svc.Loading() }, time.Second, 5*time.Millisecond)
}

func TestService_Add(t *testing.T) {
	type args struct {
		tenantID string
		tx       transaction.Transaction
	}

	type testCase struct {
		name      string
		args      args
		setupMock func(m *docstore.MockClient)
		wantKind  syncerr.Kind
		wantErrIs error
		wantErr   bool
	}

	sale := transaction.Transaction{
		Type:   transaction.TypeSale,
		Status: transaction.StatusCompleted,
		Items: []transaction.Item{
			{Name: "Chai", Price: decimal.NewFromInt(20), Quantity: 2},
		},
		Payment: transaction.Payment{Method: "cash", Advance: decimal.NewFromInt(40)},
	}

	tests := []testCase{
		{
			name: "Success",
			args: args{tenantID: "biz1", tx: sale},
			setupMock: func(m *docstore.MockClient) {
				m.EXPECT().
					Set(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, ref docstore.Ref, data docstore.Data) error {
						assert.Equal(t, hierPath, ref.Collection)
						assert.NotEmpty(t, ref.ID)
						assert.Equal(t, fixedNow, data["date"])
						assert.Equal(t, fixedNow, data["createdAt"])
						assert.Equal(t, "biz1", data["businessId"])
						assert.NotContains(t, data, "delivery")
						assert.NotContains(t, data, "customer")
						assert.NotContains(t, data, "description")

						return nil
					})
			},
		},
		{
			name: "CallerDateKeptCreatedAtStamped",
			args: args{
				tenantID: "biz1",
				tx: func() transaction.Transaction {
					tx := sale
					tx.Date = june(1, 9)
					tx.CreatedAt = june(1, 9)

					return tx
				}(),
			},
			setupMock: func(m *docstore.MockClient) {
				m.EXPECT().
					Set(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ docstore.Ref, data docstore.Data) error {
						assert.Equal(t, june(1, 9), data["date"])
						assert.Equal(t, fixedNow, data["createdAt"])

						return nil
					})
			},
		},
		{
			name:     "MissingTenant",
			args:     args{tenantID: "", tx: sale},
			wantErr:  true,
			wantKind: syncerr.KindConfiguration,
		},
		{
			name:      "InvalidType",
			args:      args{tenantID: "biz1", tx: transaction.Transaction{Type: "refund"}},
			wantErr:   true,
			wantErrIs: transaction.ErrInvalid,
		},
		{
			name: "NegativePrice",
			args: args{tenantID: "biz1", tx: transaction.Transaction{
				Type:  transaction.TypeSale,
				Items: []transaction.Item{{Name: "Chai", Price: decimal.NewFromInt(-1), Quantity: 1}},
			}},
			wantErr:   true,
			wantErrIs: transaction.ErrInvalid,
		},
		{
			name: "StoreError",
			args: args{tenantID: "biz1", tx: sale},
			setupMock: func(m *docstore.MockClient) {
				m.EXPECT().
					Set(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("deadline exceeded"))
			},
			wantErr:  true,
			wantKind: syncerr.KindTransientWrite,
		},
		{
			name: "StoreDenied",
			args: args{tenantID: "biz1", tx: sale},
			setupMock: func(m *docstore.MockClient) {
				m.EXPECT().
					Set(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(docstore.ErrPermissionDenied)
			},
			wantErr:  true,
			wantKind: syncerr.KindAccessDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			client := newMockClient(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(client)
			}

			notes := &recorder{}
			svc := transaction.NewService(client, transaction.WithClock(clock), transaction.WithNotifier(notes))

			id, err := svc.Add(context.Background(), tt.args.tenantID, tt.args.tx)

			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, id)

				if tt.wantErrIs != nil {
					assert.ErrorIs(t, err, tt.wantErrIs)
				} else {
					assert.True(t, syncerr.Is(err, tt.wantKind), "got kind %s", syncerr.KindOf(err))
				}

				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, id)
			assert.Empty(t, svc.Transactions())
		})
	}
}

func TestService_Add_StoreErrorNotifies(t *testing.T) {
	store := memstore.New(memstore.WithWriteHook(func(context.Context, docstore.Ref) error {
		return errors.New("offline")
	}))

	notes := &recorder{}
	svc := transaction.NewService(store, transaction.WithNotifier(notes))

	_, err := svc.Add(context.Background(), "biz1", transaction.Transaction{Type: transaction.TypeExpense, Amount: decimal.NewFromInt(5)})
	require.Error(t, err)

	n := notes.last()
	assert.Equal(t, notify.LevelError, n.Level)
	assert.ErrorIs(t, n.Err, err)
}

func TestService_Subscribe_LegacyWindow(t *testing.T) {
	store := memstore.New()

	seed(t, store, legacyPath, "l1", "biz1", june(3, 9))
	seed(t, store, legacyPath, "l2", "biz1", june(20, 9))
	seed(t, store, legacyPath, "l3", "biz1", june(11, 9))
	seed(t, store, legacyPath, "other", "biz2", june(12, 9))
	seed(t, store, legacyPath, "may", "biz1", time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC))
	seed(t, store, legacyPath, "july", "biz1", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))

	svc := transaction.NewService(store, transaction.WithLegacyReads(true))
	t.Cleanup(svc.Unsubscribe)

	w := transaction.NewWindow(june(1, 0), june(30, 0))
	require.NoError(t, svc.Subscribe(context.Background(), "biz1", w))
	waitLoaded(t, svc)

	got := svc.Transactions()
	require.Len(t, got, 3)

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assert.Equal(t, []string{"l2", "l3", "l1"}, ids)

	for _, tx := range got {
		assert.True(t, w.Contains(tx.Date), "%s outside window", tx.ID)
		assert.Equal(t, "biz1", tx.BusinessID)
	}
}

func TestService_Subscribe_HierarchicalWinsOnCollision(t *testing.T) {
	store := memstore.New()

	seed(t, store, legacyPath, "dup", "biz1", june(3, 9))
	seed(t, store, hierPath, "dup", "biz1", june(4, 9))
	seed(t, store, hierPath, "h1", "biz1", june(5, 9))

	svc := transaction.NewService(store, transaction.WithLegacyReads(true))
	t.Cleanup(svc.Unsubscribe)

	require.NoError(t, svc.Subscribe(context.Background(), "biz1", transaction.NewWindow(june(1, 0), june(30, 0))))
	waitLoaded(t, svc)

	got := svc.Transactions()
	require.Len(t, got, 2)
	assert.Equal(t, "h1", got[0].ID)
	assert.Equal(t, "dup", got[1].ID)
	assert.Equal(t, june(4, 9), got[1].Date)
}

func TestService_Subscribe_FollowsStoreChanges(t *testing.T) {
	store := memstore.New()

	snapshots := make(chan []transaction.Transaction, 16)
	svc := transaction.NewService(store, transaction.WithClock(clock), transaction.WithListener(func(txs []transaction.Transaction, err error) {
		if err == nil {
			snapshots <- txs
		}
	}))
	t.Cleanup(svc.Unsubscribe)

	require.NoError(t, svc.Subscribe(context.Background(), "biz1", transaction.CurrentMonth(fixedNow)))
	waitLoaded(t, svc)

	id, err := svc.Add(context.Background(), "biz1", transaction.Transaction{
		Type:   transaction.TypeExpense,
		Amount: decimal.NewFromInt(120),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		txs := svc.Transactions()
		return len(txs) == 1 && txs[0].ID == id
	}, time.Second, 5*time.Millisecond)

	assert.NotEmpty(t, snapshots)
}

func TestService_SetWindow_DropsStaleSnapshots(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := newMockClient(ctrl)

	var callbacks []docstore.SnapshotFunc

	client.EXPECT().
		Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(2).
		DoAndReturn(func(_ context.Context, _ docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
			callbacks = append(callbacks, fn)

			sub := docstore.NewMockSubscription(ctrl)
			sub.EXPECT().Unsubscribe().AnyTimes()

			return sub, nil
		})

	svc := transaction.NewService(client)

	require.NoError(t, svc.Subscribe(context.Background(), "biz1", transaction.NewWindow(june(1, 0), june(30, 0))))
	require.NoError(t, svc.SetWindow(context.Background(), time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)))
	require.Len(t, callbacks, 2)

	july := time.Date(2024, 7, 2, 12, 0, 0, 0, time.UTC)
	callbacks[1]([]docstore.Document{
		{Ref: docstore.Ref{Collection: hierPath, ID: "new"}, Data: docstore.Data{"type": "sale", "date": july}},
	}, nil)

	// The June subscription answers late.
	callbacks[0]([]docstore.Document{
		{Ref: docstore.Ref{Collection: hierPath, ID: "old"}, Data: docstore.Data{"type": "sale", "date": june(2, 0)}},
	}, nil)

	got := svc.Transactions()
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
	assert.False(t, svc.Loading())
}

func TestService_SetWindow_NormalizesToWholeDays(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := newMockClient(ctrl)

	var queries []docstore.Query

	client.EXPECT().
		Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).
		AnyTimes().
		DoAndReturn(func(_ context.Context, q docstore.Query, _ docstore.SnapshotFunc) (docstore.Subscription, error) {
			queries = append(queries, q)

			sub := docstore.NewMockSubscription(ctrl)
			sub.EXPECT().Unsubscribe().AnyTimes()

			return sub, nil
		})

	svc := transaction.NewService(client)

	err := svc.SetWindow(context.Background(), june(1, 0), june(2, 0))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))

	require.NoError(t, svc.Subscribe(context.Background(), "biz1", transaction.CurrentMonth(fixedNow)))
	require.NoError(t, svc.SetWindow(context.Background(), june(5, 14), june(9, 8)))

	want := transaction.Window{
		Start: time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 9, 23, 59, 59, 999999999, time.UTC),
	}
	assert.Equal(t, want, svc.Window())

	q := queries[len(queries)-1]
	assert.Equal(t, hierPath, q.Collection)
	assert.Equal(t, "date", q.OrderBy)
	assert.True(t, q.Descending)
	assert.Equal(t, []docstore.Filter{
		{Field: "date", Op: docstore.OpGreaterEqual, Value: want.Start},
		{Field: "date", Op: docstore.OpLessEqual, Value: want.End},
	}, q.Filters)
}

func TestService_Subscribe_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind syncerr.Kind
	}{
		{name: "PermissionDenied", err: docstore.ErrPermissionDenied, wantKind: syncerr.KindAccessDenied},
		{name: "MissingIndex", err: docstore.ErrFailedPrecondition, wantKind: syncerr.KindIndexMissing},
		{name: "Other", err: errors.New("connection reset"), wantKind: syncerr.KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			client := newMockClient(ctrl)

			var fn docstore.SnapshotFunc

			client.EXPECT().
				Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, _ docstore.Query, f docstore.SnapshotFunc) (docstore.Subscription, error) {
					fn = f

					sub := docstore.NewMockSubscription(ctrl)
					sub.EXPECT().Unsubscribe().AnyTimes()

					return sub, nil
				})

			var got error

			notes := &recorder{}
			svc := transaction.NewService(client,
				transaction.WithNotifier(notes),
				transaction.WithListener(func(_ []transaction.Transaction, err error) { got = err }),
			)

			require.NoError(t, svc.Subscribe(context.Background(), "biz1", transaction.CurrentMonth(fixedNow)))
			fn(nil, tt.err)

			require.Error(t, got)
			assert.True(t, syncerr.Is(got, tt.wantKind), "got kind %s", syncerr.KindOf(got))
			assert.False(t, svc.Loading())
			assert.Equal(t, notify.LevelError, notes.last().Level)
		})
	}
}

func TestService_Subscribe_OpenFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := newMockClient(ctrl)
	client.EXPECT().
		Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, docstore.ErrFailedPrecondition)

	svc := transaction.NewService(client)

	err := svc.Subscribe(context.Background(), "biz1", transaction.CurrentMonth(fixedNow))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindIndexMissing))
	assert.False(t, svc.Loading())
}

func TestService_Unsubscribe_Idempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := newMockClient(ctrl)
	sub := docstore.NewMockSubscription(ctrl)
	sub.EXPECT().Unsubscribe().Times(1)

	client.EXPECT().Subscribe(gomock.Any(), gomock.Any(), gomock.Any()).Return(sub, nil)

	svc := transaction.NewService(client)
	svc.Unsubscribe()

	require.NoError(t, svc.Subscribe(context.Background(), "biz1", transaction.CurrentMonth(fixedNow)))

	svc.Unsubscribe()
	svc.Unsubscribe()
}

func TestService_DeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	svc := transaction.NewService(store, transaction.WithClock(clock))
	t.Cleanup(svc.Unsubscribe)

	id, err := svc.Add(ctx, "biz1", transaction.Transaction{
		Type:     transaction.TypeOrder,
		Status:   transaction.StatusPending,
		Date:     june(10, 12),
		Items:    []transaction.Item{{Name: "Cake", Price: decimal.NewFromInt(500), Quantity: 1, Note: "eggless"}},
		Customer: &transaction.Customer{Name: "Asha", Phone: "9876543210"},
		Payment:  transaction.Payment{Method: "upi", Advance: decimal.NewFromInt(200), Balance: decimal.NewFromInt(300)},
		Delivery: &transaction.Delivery{Date: "2024-06-12", Time: "17:00"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Subscribe(ctx, "biz1", transaction.CurrentMonth(fixedNow)))
	require.Eventually(t, func() bool { return len(svc.Transactions()) == 1 }, time.Second, 5*time.Millisecond)

	before := svc.Transactions()[0]

	undo, err := svc.Delete(ctx, "biz1", id)
	require.NoError(t, err)
	assert.Equal(t, id, undo.DeletedID)
	assert.Zero(t, store.Count(hierPath))

	newID, err := svc.Restore(ctx, "biz1", undo)
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)

	restored, err := svc.Get(ctx, "biz1", newID)
	require.NoError(t, err)

	before.ID = newID
	assert.Equal(t, before, restored)

	require.Eventually(t, func() bool {
		_, err := svc.Get(ctx, "biz1", id)
		return errors.Is(err, transaction.ErrNotFound)
	}, time.Second, 5*time.Millisecond)
}

func TestService_Delete_FallsBackToStoreRead(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	seed(t, store, legacyPath, "l1", "biz1", june(3, 9))
	seed(t, store, legacyPath, "x1", "biz2", june(3, 9))

	svc := transaction.NewService(store, transaction.WithLegacyReads(true))

	undo, err := svc.Delete(ctx, "biz1", "l1")
	require.NoError(t, err)
	assert.Equal(t, june(3, 9), undo.Transaction.Date)
	assert.Equal(t, 1, store.Count(legacyPath))

	_, err = svc.Delete(ctx, "biz1", "x1")
	require.ErrorIs(t, err, transaction.ErrNotFound)
	assert.Equal(t, 1, store.Count(legacyPath))
}

func TestService_Update_Settle(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	svc := transaction.NewService(store, transaction.WithClock(clock))

	id, err := svc.Add(ctx, "biz1", transaction.Transaction{
		Type:     transaction.TypeOrder,
		Status:   transaction.StatusReady,
		Items:    []transaction.Item{{Name: "Cake", Price: decimal.NewFromInt(450), Quantity: 2}},
		Customer: &transaction.Customer{Name: "Asha", Phone: "9876543210"},
		Payment:  transaction.Payment{Method: "cash", Advance: decimal.NewFromInt(300), Balance: decimal.NewFromInt(600)},
	})
	require.NoError(t, err)

	tx, err := svc.Get(ctx, "biz1", id)
	require.NoError(t, err)
	require.True(t, tx.Balanced())

	require.NoError(t, svc.Update(ctx, "biz1", id, transaction.Settle(tx, "upi", fixedNow)))

	got, err := svc.Get(ctx, "biz1", id)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusCompleted, got.Status)
	assert.True(t, got.Balanced())
	assert.True(t, got.Payment.Balance.IsZero())
	assert.Equal(t, "upi", got.Payment.BalanceMethod)
	assert.Equal(t, "cash", got.Payment.Method)
	require.NotNil(t, got.Payment.BalancePaidDate)
	assert.Equal(t, fixedNow, *got.Payment.BalancePaidDate)
	assert.Equal(t, tx.Date, got.Date)
	assert.Equal(t, tx.CreatedAt, got.CreatedAt)
}

func TestService_Update_Missing(t *testing.T) {
	svc := transaction.NewService(memstore.New())

	status := transaction.StatusReady
	err := svc.Update(context.Background(), "biz1", "nope", transaction.Update{Status: &status})
	require.ErrorIs(t, err, transaction.ErrNotFound)

	bad := transaction.Status("lost")
	err = svc.Update(context.Background(), "biz1", "nope", transaction.Update{Status: &bad})
	require.ErrorIs(t, err, transaction.ErrInvalid)
}

func TestService_Purge(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	seed(t, store, hierPath, "h1", "biz1", june(2, 9))
	seed(t, store, hierPath, "h2", "biz1", june(3, 9))
	seed(t, store, hierPath, "h3", "biz1", june(30, 22))
	seed(t, store, hierPath, "july", "biz1", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	seed(t, store, legacyPath, "l1", "biz1", june(4, 9))
	seed(t, store, legacyPath, "l2", "biz1", june(5, 9))
	seed(t, store, legacyPath, "other", "biz2", june(5, 9))

	notes := &recorder{}
	svc := transaction.NewService(store, transaction.WithNotifier(notes))

	res, err := svc.DeleteByDateRange(ctx, "biz1", june(1, 15), june(30, 8))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Deleted)
	assert.Equal(t, "deleted 5 records", res.String())
	assert.Equal(t, notify.LevelSuccess, notes.last().Level)

	res, err = svc.DeleteByDateRange(ctx, "biz1", june(1, 0), june(30, 0))
	require.NoError(t, err)
	assert.True(t, res.NothingFound())
	assert.Equal(t, "no records found", res.String())
	assert.Equal(t, notify.LevelInfo, notes.last().Level)

	res, err = svc.ClearAll(ctx, "biz1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	assert.Zero(t, store.Count(hierPath))
	assert.Equal(t, 1, store.Count(legacyPath))
}

func TestService_Purge_Busy(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	store := memstore.New(memstore.WithCommitHook(func(int) error {
		once.Do(func() { close(entered) })
		<-release

		return nil
	}))

	seed(t, store, hierPath, "h1", "biz1", june(2, 9))

	svc := transaction.NewService(store)

	done := make(chan error, 1)

	go func() {
		_, err := svc.ClearAll(ctx, "biz1")
		done <- err
	}()

	<-entered

	_, err := svc.ClearAll(ctx, "biz1")
	require.ErrorIs(t, err, syncerr.ErrBusy)

	close(release)
	require.NoError(t, <-done)

	res, err := svc.ClearAll(ctx, "biz1")
	require.NoError(t, err)
	assert.True(t, res.NothingFound())
}

func TestService_Purge_FailurePartway(t *testing.T) {
	ctx := context.Background()
	fail := true

	store := memstore.New(memstore.WithCommitHook(func(int) error {
		if fail {
			return errors.New("quota exceeded")
		}

		return nil
	}))

	seed(t, store, hierPath, "h1", "biz1", june(2, 9))

	notes := &recorder{}
	svc := transaction.NewService(store, transaction.WithNotifier(notes))

	_, err := svc.ClearAll(ctx, "biz1")
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindPartialBatch))
	assert.Equal(t, notify.LevelError, notes.last().Level)

	fail = false

	res, err := svc.ClearAll(ctx, "biz1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
}

func TestService_QueryRange(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	seed(t, store, hierPath, "h1", "biz1", june(2, 9))
	seed(t, store, legacyPath, "l1", "biz1", time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC))
	seed(t, store, legacyPath, "l2", "biz1", time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC))

	svc := transaction.NewService(store, transaction.WithLegacyReads(true))

	got, err := svc.QueryRange(ctx, "biz1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), june(30, 0))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "h1", got[0].ID)
	assert.Equal(t, "l1", got[1].ID)

	assert.Empty(t, svc.Transactions())

	_, err = svc.QueryRange(ctx, " ", june(1, 0), june(2, 0))
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
}

func TestService_LastSecondOfDayIsInRange(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	late := time.Date(2024, 6, 30, 23, 59, 59, 400_000_000, time.UTC)
	seed(t, store, hierPath, "late", "biz1", late)

	svc := transaction.NewService(store)

	got, err := svc.QueryRange(ctx, "biz1", june(1, 0), june(30, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].ID)

	res, err := svc.DeleteByDateRange(ctx, "biz1", june(1, 0), june(30, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Zero(t, store.Count(hierPath))
}
