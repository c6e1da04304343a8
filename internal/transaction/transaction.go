package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrInvalid  = errors.New("invalid transaction")
)

// Type represents what kind of business event a transaction records.
type Type string

const (
	TypeSale       Type = "sale"
	TypeOrder      Type = "order"
	TypeExpense    Type = "expense"
	TypeSettlement Type = "settlement"
)

// Status represents the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
)

type Item struct {
	Name     string          `validate:"required"`
	Price    decimal.Decimal `validate:"gte=0"`
	Quantity int             `validate:"gte=1"`
	Note     string
}

// Customer identifies who the transaction was for. Phone is the canonical
// 10-digit key of the customer aggregate.
type Customer struct {
	Name  string
	Phone string
	Note  string
}

type Payment struct {
	Method          string
	Advance         decimal.Decimal `validate:"gte=0"`
	Balance         decimal.Decimal
	BalanceMethod   string
	BalancePaidDate *time.Time
}

type Delivery struct {
	Date string
	Time string
}

// Transaction represents a sale, order, expense or settlement.
type Transaction struct {
	ID          string
	Type        Type   `validate:"required,oneof=sale order expense settlement"`
	Status      Status `validate:"omitempty,oneof=pending ready completed"`
	Date        time.Time
	CreatedAt   time.Time
	Items       []Item `validate:"dive"`
	Customer    *Customer
	Payment     Payment
	Delivery    *Delivery
	BusinessID  string
	Description string
	Amount      decimal.Decimal `validate:"gte=0"`
}

// Total is the sum of the items, or Amount for transactions without items.
func (t Transaction) Total() decimal.Decimal {
	if len(t.Items) == 0 {
		return t.Amount
	}

	total := decimal.Zero
	for _, it := range t.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	return total
}

// Balanced reports whether balance = total - advance holds.
func (t Transaction) Balanced() bool {
	return t.Payment.Balance.Equal(t.Total().Sub(t.Payment.Advance))
}

// Update is a partial change. Nil fields are left untouched. Date and
// CreatedAt are immutable and have no field here.
type Update struct {
	Type        *Type   `validate:"omitempty,oneof=sale order expense settlement"`
	Status      *Status `validate:"omitempty,oneof=pending ready completed"`
	Items       []Item  `validate:"omitempty,dive"`
	Customer    *Customer
	Payment     *Payment
	Delivery    *Delivery
	Description *string
	Amount      *decimal.Decimal
}

// Settle builds the update that collects the outstanding balance of t with
// method at the given time: the order is completed and fully paid.
func Settle(t Transaction, method string, at time.Time) Update {
	payment := t.Payment
	payment.Advance = t.Total()
	payment.Balance = decimal.Zero
	payment.BalanceMethod = method
	payment.BalancePaidDate = &at

	status := StatusCompleted

	return Update{Status: &status, Payment: &payment}
}

// Apply returns t with u applied, the way a merge write would leave it.
func (u Update) Apply(t Transaction) Transaction {
	if u.Type != nil {
		t.Type = *u.Type
	}

	if u.Status != nil {
		t.Status = *u.Status
	}

	if u.Items != nil {
		t.Items = u.Items
	}

	if u.Customer != nil {
		t.Customer = u.Customer
	}

	if u.Payment != nil {
		t.Payment = *u.Payment
	}

	if u.Delivery != nil {
		t.Delivery = u.Delivery
	}

	if u.Description != nil {
		t.Description = *u.Description
	}

	if u.Amount != nil {
		t.Amount = *u.Amount
	}

	return t
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow floors start to the first and ceils end to the last
// nanosecond of their UTC days.
func NewWindow(start, end time.Time) Window {
	return Window{
		Start: time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		End:   time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(time.Second-1), time.UTC),
	}
}

// CurrentMonth is the calendar month containing now.
func CurrentMonth(now time.Time) Window {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return NewWindow(first, first.AddDate(0, 1, -1))
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Shift moves the window by whole months, keeping month boundaries.
func (w Window) Shift(months int) Window {
	first := time.Date(w.Start.Year(), w.Start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	return NewWindow(first, first.AddDate(0, 1, -1))
}
