package batch_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/till/internal/batch"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/docstore/memstore"
	"github.com/MrJamesThe3rd/till/internal/syncerr"
)

func refs(n int) []docstore.Ref {
	out := make([]docstore.Ref, n)
	for i := range out {
		out[i] = docstore.Ref{Collection: "transactions", ID: fmt.Sprintf("tx-%04d", i)}
	}

	return out
}

func TestSafeSize(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		limit int
		want  int
	}{
		{name: "BelowLimit", size: 100, limit: 500, want: 100},
		{name: "Default", size: 0, limit: 500, want: 450},
		{name: "AtLimit", size: 500, limit: 500, want: 450},
		{name: "AboveLimit", size: 900, limit: 500, want: 450},
		{name: "SmallProvider", size: 0, limit: 100, want: 90},
		{name: "UnknownLimit", size: 700, limit: 0, want: 700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batch.SafeSize(tt.size, tt.limit))
		})
	}
}

func TestChunks(t *testing.T) {
	for _, n := range []int{0, 1, 449, 450, 451, 900, 1200, 1351} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			items := refs(n)
			chunks := batch.Chunks(items, 450)

			assert.Len(t, chunks, (n+449)/450)

			total := 0
			for _, c := range chunks {
				assert.LessOrEqual(t, len(c), 450)
				assert.NotEmpty(t, c)
				total += len(c)
			}

			assert.Equal(t, n, total)
		})
	}
}

func TestDeleter_DeleteAll_ChunkSizes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	client := docstore.NewMockClient(ctrl)
	client.EXPECT().MaxBatchSize().Return(500)

	var sizes []int

	client.EXPECT().Batch().Times(3).DoAndReturn(func() docstore.Batch {
		b := docstore.NewMockBatch(ctrl)
		n := 0

		b.EXPECT().Delete(gomock.Any()).AnyTimes().Do(func(docstore.Ref) { n++ })
		b.EXPECT().Commit(gomock.Any()).DoAndReturn(func(context.Context) error {
			sizes = append(sizes, n)
			return nil
		})

		return b
	})

	d := batch.NewDeleter(client, 450)

	got, err := d.DeleteAll(context.Background(), refs(1200))
	require.NoError(t, err)
	assert.Equal(t, 1200, got)
	assert.Equal(t, []int{450, 450, 300}, sizes)
}

func TestDeleter_DeleteAll_Memstore(t *testing.T) {
	ctx := context.Background()

	var commits []int

	store := memstore.New(memstore.WithCommitHook(func(n int) error {
		commits = append(commits, n)
		return nil
	}))

	for _, r := range refs(1000) {
		require.NoError(t, store.Set(ctx, r, docstore.Data{"n": 1}))
	}

	d := batch.NewDeleter(store, 0)

	got, err := d.DeleteAll(ctx, refs(1000))
	require.NoError(t, err)
	assert.Equal(t, 1000, got)
	assert.Equal(t, []int{450, 450, 100}, commits)
	assert.Zero(t, store.Count("transactions"))
}

func TestDeleter_DeleteAll_FailurePartway(t *testing.T) {
	ctx := context.Background()
	calls := 0

	store := memstore.New(memstore.WithCommitHook(func(int) error {
		calls++
		if calls == 2 {
			return errors.New("quota exceeded")
		}

		return nil
	}))

	for _, r := range refs(1000) {
		require.NoError(t, store.Set(ctx, r, docstore.Data{"n": 1}))
	}

	d := batch.NewDeleter(store, 450)

	got, err := d.DeleteAll(ctx, refs(1000))
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindPartialBatch))
	assert.Zero(t, got)

	// Retrying the whole set is safe: already-deleted refs are no-ops.
	got, err = d.DeleteAll(ctx, refs(1000))
	require.NoError(t, err)
	assert.Equal(t, 1000, got)
	assert.Zero(t, store.Count("transactions"))
}

func TestDeleter_DeleteAll_Empty(t *testing.T) {
	d := batch.NewDeleter(memstore.New(), 450)

	got, err := d.DeleteAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, got)
}
