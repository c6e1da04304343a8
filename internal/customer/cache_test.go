package customer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/till/internal/customer"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/docstore/memstore"
	"github.com/MrJamesThe3rd/till/internal/migrate"
	"github.com/MrJamesThe3rd/till/internal/notify"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

const customersPath = "businesses/biz1/customers"

var fixedNow = time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func loaded(t *testing.T, store docstore.Client, opts ...customer.Option) *customer.Cache {
	t.Helper()

	c := customer.NewCache(store, append([]customer.Option{customer.WithClock(clock)}, opts...)...)
	require.NoError(t, c.Load(context.Background(), "biz1"))

	return c
}

func TestCache_Upsert_AccumulatesVisits(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	c := loaded(t, store)

	require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9876543210", Name: "Asha", Note: "likes it spicy", Amount: decimal.NewFromInt(500)}))
	require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9876543210", Name: "Asha K", Amount: decimal.NewFromInt(300)}))

	got, ok := c.Lookup("9876543210")
	require.True(t, ok)
	assert.Equal(t, "Asha K", got.Name)
	assert.Equal(t, 2, got.VisitCount)
	assert.True(t, decimal.NewFromInt(800).Equal(got.TotalSpent))
	assert.Equal(t, "likes it spicy", got.LastNote)
	assert.Equal(t, fixedNow, got.LastVisit)

	c.Flush()

	doc, err := store.Get(ctx, docstore.Ref{Collection: customersPath, ID: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, doc.Data["visitCount"])
	assert.Equal(t, 800.0, doc.Data["totalSpent"])
	assert.Equal(t, "biz1", doc.Data["businessId"])

	reloaded := loaded(t, store)
	again, ok := reloaded.Lookup("9876543210")
	require.True(t, ok)
	assert.Equal(t, got.Name, again.Name)
	assert.Equal(t, got.VisitCount, again.VisitCount)
	assert.True(t, got.TotalSpent.Equal(again.TotalSpent))
	assert.Equal(t, got.LastVisit, again.LastVisit)
	assert.Equal(t, got.LastNote, again.LastNote)
}

func TestCache_Upsert_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	c := loaded(t, store)

	const visits = 60

	var wg sync.WaitGroup

	want := decimal.Zero

	for i := range visits {
		amount := decimal.NewFromInt(int64(10 + i))
		want = want.Add(amount)

		wg.Add(1)

		go func() {
			defer wg.Done()
			assert.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9000000001", Name: "Ravi", Amount: amount}))
		}()
	}

	wg.Wait()
	c.Flush()

	local, ok := c.Lookup("9000000001")
	require.True(t, ok)
	assert.Equal(t, visits, local.VisitCount)
	assert.True(t, want.Equal(local.TotalSpent))

	remote := loaded(t, store)
	got, ok := remote.Lookup("9000000001")
	require.True(t, ok)
	assert.Equal(t, visits, got.VisitCount)
	assert.True(t, want.Equal(got.TotalSpent))
}

func TestCache_Upsert_MalformedPhone(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	c := loaded(t, store)

	require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9876543210", Name: "Asha", Amount: decimal.NewFromInt(100)}))
	c.Flush()

	for _, phone := range []string{"", "98765", "987654321", "98765432101", "+919876543210"} {
		t.Run(fmt.Sprintf("len%d", len(phone)), func(t *testing.T) {
			require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: phone, Name: "X", Amount: decimal.NewFromInt(1)}))

			assert.Equal(t, 1, c.Len())

			_, ok := c.Lookup(phone)
			assert.False(t, ok)
		})
	}

	c.Flush()
	assert.Equal(t, 1, store.Count(customersPath))
}

func TestCache_Upsert_UsesServerIncrements(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := docstore.NewMockClient(ctrl)
	client.EXPECT().MaxBatchSize().Return(500).AnyTimes()
	client.EXPECT().Query(gomock.Any(), gomock.Any()).Return(nil, nil)
	client.EXPECT().
		Merge(gomock.Any(), docstore.Ref{Collection: customersPath, ID: "9876543210"}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ docstore.Ref, data docstore.Data) error {
			visits, ok := docstore.IncrementDelta(data["visitCount"])
			assert.True(t, ok)
			assert.Equal(t, 1.0, visits)

			spent, ok := docstore.IncrementDelta(data["totalSpent"])
			assert.True(t, ok)
			assert.Equal(t, 499.5, spent)

			assert.Equal(t, "Asha", data["name"])
			assert.Equal(t, fixedNow, data["lastVisit"])
			assert.NotContains(t, data, "lastNote")

			return nil
		})

	c := loaded(t, client)
	require.NoError(t, c.Upsert(context.Background(), customer.Visit{Phone: "9876543210", Name: "Asha", Amount: decimal.RequireFromString("499.5")}))
	c.Flush()
}

func TestCache_Upsert_RemoteFailureKeepsOptimisticValue(t *testing.T) {
	ctx := context.Background()

	store := memstore.New(memstore.WithWriteHook(func(context.Context, docstore.Ref) error {
		return errors.New("unavailable")
	}))

	notes := make(chan notify.Notice, 1)
	c := loaded(t, store, customer.WithNotifier(notify.Func(func(n notify.Notice) { notes <- n })))

	require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9876543210", Name: "Asha", Amount: decimal.NewFromInt(500)}))
	c.Flush()

	n := <-notes
	assert.Equal(t, notify.LevelError, n.Level)
	assert.True(t, syncerr.Is(n.Err, syncerr.KindTransientWrite))

	got, ok := c.Lookup("9876543210")
	require.True(t, ok)
	assert.Equal(t, 1, got.VisitCount)

	require.NoError(t, c.Load(ctx, "biz1"))

	_, ok = c.Lookup("9876543210")
	assert.False(t, ok)
}

func TestCache_Upsert_RequiresTenant(t *testing.T) {
	c := customer.NewCache(memstore.New())

	err := c.Upsert(context.Background(), customer.Visit{Phone: "9876543210", Name: "Asha"})
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
	assert.Zero(t, c.Len())
}

func TestCache_Load_MergesLegacy(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	set := func(collection, id string, data docstore.Data) {
		require.NoError(t, store.Set(ctx, docstore.Ref{Collection: collection, ID: id}, data))
	}

	set(customersPath, "9876543210", docstore.Data{"phone": "9876543210", "name": "Asha K", "visitCount": 3.0, "totalSpent": 900.0})
	set("customers", "9876543210", docstore.Data{"phone": "9876543210", "name": "Asha", "visitCount": 1.0, "businessId": "biz1"})
	set("customers", "9000000001", docstore.Data{"phone": "9000000001", "name": "Ravi", "visitCount": 2.0, "businessId": "biz1"})
	set("customers", "9000000002", docstore.Data{"phone": "9000000002", "name": "Other", "visitCount": 2.0, "businessId": "biz2"})

	c := loaded(t, store, customer.WithLegacyReads(true))
	assert.False(t, c.Loading())
	assert.Equal(t, 2, c.Len())

	asha, _ := c.Lookup("9876543210")
	assert.Equal(t, "Asha K", asha.Name)
	assert.Equal(t, 3, asha.VisitCount)

	_, ok := c.Lookup("9000000002")
	assert.False(t, ok)
}

func TestCache_Upsert_LegacyOnlyCustomerKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	legacy := docstore.Ref{Collection: "customers", ID: "9876543210"}
	require.NoError(t, store.Set(ctx, legacy, docstore.Data{
		"phone": "9876543210", "name": "Asha", "visitCount": 5.0, "totalSpent": 2000.0, "businessId": "biz1",
	}))

	caches := customer.NewCaches(store, customer.WithClock(clock), customer.WithLegacyReads(true))

	c, err := caches.Get(ctx, "biz1")
	require.NoError(t, err)

	require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9876543210", Name: "Asha", Amount: decimal.NewFromInt(300)}))
	c.Flush()

	assert.Zero(t, store.Count(customersPath))

	reloaded := loaded(t, store, customer.WithLegacyReads(true))
	got, ok := reloaded.Lookup("9876543210")
	require.True(t, ok)
	assert.Equal(t, 6, got.VisitCount)
	assert.True(t, decimal.NewFromInt(2300).Equal(got.TotalSpent))

	res := migrate.New(store, migrate.WithCached(caches)).Migrate(ctx, "biz1")
	require.True(t, res.OK(), res.String())

	// After the move the next visit lands on the hierarchical copy.
	require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9876543210", Name: "Asha", Amount: decimal.NewFromInt(100)}))
	c.Flush()

	doc, err := store.Get(ctx, docstore.Ref{Collection: customersPath, ID: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, 7.0, doc.Data["visitCount"])
	assert.Equal(t, 2400.0, doc.Data["totalSpent"])

	for _, legacyReads := range []bool{true, false} {
		got, ok := loaded(t, store, customer.WithLegacyReads(legacyReads)).Lookup("9876543210")
		require.True(t, ok)
		assert.Equal(t, 7, got.VisitCount)
		assert.True(t, decimal.NewFromInt(2400).Equal(got.TotalSpent))
	}
}

func TestCache_Upsert_HierarchicalWinsOverLegacy(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	require.NoError(t, store.Set(ctx, docstore.Ref{Collection: "customers", ID: "9876543210"},
		docstore.Data{"phone": "9876543210", "name": "Asha", "visitCount": 1.0, "totalSpent": 100.0, "businessId": "biz1"}))
	require.NoError(t, store.Set(ctx, docstore.Ref{Collection: customersPath, ID: "9876543210"},
		docstore.Data{"phone": "9876543210", "name": "Asha", "visitCount": 3.0, "totalSpent": 900.0, "businessId": "biz1"}))

	c := loaded(t, store, customer.WithLegacyReads(true))
	require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: "9876543210", Name: "Asha", Amount: decimal.NewFromInt(100)}))
	c.Flush()

	doc, err := store.Get(ctx, docstore.Ref{Collection: customersPath, ID: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, 4.0, doc.Data["visitCount"])

	old, err := store.Get(ctx, docstore.Ref{Collection: "customers", ID: "9876543210"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, old.Data["visitCount"])
}

func TestCache_ClearAll(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	c := loaded(t, store)

	for i := range 5 {
		require.NoError(t, c.Upsert(ctx, customer.Visit{Phone: fmt.Sprintf("90000000%02d", i), Name: "C", Amount: decimal.NewFromInt(1)}))
	}

	require.NoError(t, store.Set(ctx, docstore.Ref{Collection: "customers", ID: "9111111111"}, docstore.Data{"businessId": "biz1"}))
	require.NoError(t, store.Set(ctx, docstore.Ref{Collection: "customers", ID: "9222222222"}, docstore.Data{"businessId": "biz2"}))

	n, err := c.ClearAll(ctx, "biz1")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Zero(t, c.Len())
	assert.Zero(t, store.Count(customersPath))
	assert.Equal(t, 1, store.Count("customers"))
}

func TestCaches_Get(t *testing.T) {
	ctx := context.Background()
	caches := customer.NewCaches(memstore.New())

	a, err := caches.Get(ctx, "biz1")
	require.NoError(t, err)

	b, err := caches.Get(ctx, "biz1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "biz1", a.TenantID())

	other, err := caches.Get(ctx, "biz2")
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	_, err = caches.Get(ctx, "")
	assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
}

func TestCaches_Get_LoadsTenantsIndependently(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	entered := make(chan struct{})
	release := make(chan struct{})

	client := docstore.NewMockClient(ctrl)
	client.EXPECT().MaxBatchSize().Return(500).AnyTimes()
	client.EXPECT().
		Query(gomock.Any(), gomock.Any()).
		AnyTimes().
		DoAndReturn(func(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
			if q.Collection == customersPath {
				close(entered)
				<-release
			}

			return nil, nil
		})

	caches := customer.NewCaches(client)

	type got struct {
		cache *customer.Cache
		err   error
	}

	slow := make(chan got, 2)

	for range 2 {
		go func() {
			c, err := caches.Get(context.Background(), "biz1")
			slow <- got{c, err}
		}()
	}

	<-entered

	other, err := caches.Get(context.Background(), "biz2")
	require.NoError(t, err)
	assert.Equal(t, "biz2", other.TenantID())

	close(release)

	a, b := <-slow, <-slow
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Same(t, a.cache, b.cache)
}

func TestCaches_Reload(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	caches := customer.NewCaches(store)

	require.NoError(t, caches.Reload(ctx, "biz1"))

	c, err := caches.Get(ctx, "biz1")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, docstore.Ref{Collection: customersPath, ID: "9876543210"},
		docstore.Data{"phone": "9876543210", "name": "Asha", "visitCount": 2.0}))

	_, ok := c.Lookup("9876543210")
	assert.False(t, ok)

	require.NoError(t, caches.Reload(ctx, "biz1"))

	got, ok := c.Lookup("9876543210")
	require.True(t, ok)
	assert.Equal(t, 2, got.VisitCount)
}

func TestVisitFromTransaction(t *testing.T) {
	_, ok := customer.VisitFromTransaction(transaction.Transaction{Type: transaction.TypeSale})
	assert.False(t, ok)

	v, ok := customer.VisitFromTransaction(transaction.Transaction{
		Type:     transaction.TypeSale,
		Items:    []transaction.Item{{Name: "Chai", Price: decimal.NewFromInt(20), Quantity: 3}},
		Customer: &transaction.Customer{Name: "Asha", Phone: "9876543210", Note: "regular"},
	})
	require.True(t, ok)
	assert.Equal(t, "9876543210", v.Phone)
	assert.Equal(t, "regular", v.Note)
	assert.True(t, decimal.NewFromInt(60).Equal(v.Amount))
}
