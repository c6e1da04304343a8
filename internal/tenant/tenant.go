// Package tenant maps logical collections onto physical, tenant-scoped paths.
package tenant

import (
	"strings"

	"github.com/MrJamesThe3rd/till/internal/syncerr"
)

// Collection is a logical collection name.
type Collection string

const (
	Transactions Collection = "transactions"
	Inventory    Collection = "inventory"
	Customers    Collection = "customers"
)

// All lists the collections that exist in both layouts, in migration order.
var All = []Collection{Transactions, Inventory, Customers}

var physical = map[Collection]string{
	Transactions: "transactions",
	Inventory:    "inventory_items",
	Customers:    "customers",
}

// Name returns the physical collection name. Names outside the table pass
// through unchanged so newer clients can address collections this build
// does not know about.
func (c Collection) Name() string {
	if name, ok := physical[c]; ok {
		return name
	}

	return string(c)
}

// DefaultRoot is the top-level collection holding one document per tenant.
const DefaultRoot = "businesses"

type Resolver struct {
	root string
}

func NewResolver(root string) Resolver {
	if root == "" {
		root = DefaultRoot
	}

	return Resolver{root: root}
}

// Resolve returns {root}/{tenantID}/{collection}. A blank tenant id is a
// configuration error: falling back to a shared path would mix tenants.
func (r Resolver) Resolve(tenantID string, c Collection) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", syncerr.Configuration("resolving " + string(c))
	}

	root := r.root
	if root == "" {
		root = DefaultRoot
	}

	return root + "/" + tenantID + "/" + c.Name(), nil
}

// ResolveLegacy returns the flat pre-migration collection. Documents there
// are told apart by their businessId field.
func (r Resolver) ResolveLegacy(c Collection) string {
	return c.Name()
}

// Field is the document field carrying the owning tenant in both layouts.
const Field = "businessId"
