package customer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

// PhoneLength is the length of a canonical phone number. Visits with any
// other phone are not aggregated.
const PhoneLength = 10

// Customer is the running aggregate of one phone number's visits.
type Customer struct {
	Phone      string
	Name       string
	VisitCount int
	TotalSpent decimal.Decimal
	LastVisit  time.Time
	LastNote   string
}

// Visit is one completed order as seen by the aggregate.
type Visit struct {
	Phone  string
	Name   string
	Note   string
	Amount decimal.Decimal
}

// VisitFromTransaction reports false when tx has no customer.
func VisitFromTransaction(tx transaction.Transaction) (Visit, bool) {
	if tx.Customer == nil {
		return Visit{}, false
	}

	return Visit{
		Phone:  tx.Customer.Phone,
		Name:   tx.Customer.Name,
		Note:   tx.Customer.Note,
		Amount: tx.Total(),
	}, true
}

func decode(doc docstore.Document) Customer {
	d := doc.Data

	phone := docstore.AsString(d["phone"])
	if phone == "" {
		phone = doc.ID
	}

	lastVisit, _ := docstore.AsTime(d["lastVisit"])

	return Customer{
		Phone:      phone,
		Name:       docstore.AsString(d["name"]),
		VisitCount: int(docstore.AsFloat(d["visitCount"])),
		TotalSpent: decimal.NewFromFloat(docstore.AsFloat(d["totalSpent"])),
		LastVisit:  lastVisit.UTC(),
		LastNote:   docstore.AsString(d["lastNote"]),
	}
}
