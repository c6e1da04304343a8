package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/till/internal/syncerr"
	"github.com/MrJamesThe3rd/till/internal/tenant"
)

func TestResolver_Resolve(t *testing.T) {
	type testCase struct {
		name       string
		root       string
		tenantID   string
		collection tenant.Collection
		want       string
		wantErr    bool
	}

	tests := []testCase{
		{
			name:       "Transactions",
			tenantID:   "biz1",
			collection: tenant.Transactions,
			want:       "businesses/biz1/transactions",
		},
		{
			name:       "InventoryIsRenamed",
			tenantID:   "biz1",
			collection: tenant.Inventory,
			want:       "businesses/biz1/inventory_items",
		},
		{
			name:       "CustomRoot",
			root:       "tenants",
			tenantID:   "biz2",
			collection: tenant.Customers,
			want:       "tenants/biz2/customers",
		},
		{
			name:       "UnknownPassesThrough",
			tenantID:   "biz1",
			collection: tenant.Collection("expenses_v2"),
			want:       "businesses/biz1/expenses_v2",
		},
		{
			name:       "EmptyTenant",
			tenantID:   "",
			collection: tenant.Transactions,
			wantErr:    true,
		},
		{
			name:       "BlankTenant",
			tenantID:   "   ",
			collection: tenant.Customers,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tenant.NewResolver(tt.root).Resolve(tt.tenantID, tt.collection)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, syncerr.Is(err, syncerr.KindConfiguration))
				assert.ErrorIs(t, err, syncerr.ErrMissingTenant)
				assert.Empty(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_ResolveLegacy(t *testing.T) {
	r := tenant.NewResolver("")

	assert.Equal(t, "transactions", r.ResolveLegacy(tenant.Transactions))
	assert.Equal(t, "inventory_items", r.ResolveLegacy(tenant.Inventory))
	assert.Equal(t, "customers", r.ResolveLegacy(tenant.Customers))
	assert.Equal(t, "misc", r.ResolveLegacy(tenant.Collection("misc")))
}

func TestResolver_ZeroValueUsesDefaultRoot(t *testing.T) {
	var r tenant.Resolver

	got, err := r.Resolve("biz1", tenant.Transactions)
	require.NoError(t, err)
	assert.Equal(t, "businesses/biz1/transactions", got)
}
