package transaction

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/tenant"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}

		return nil
	}, decimal.Decimal{})

	return v
}

func validateTransaction(tx Transaction) error {
	if err := validate.Struct(tx); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

func validateUpdate(u Update) error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// optional returns nil for empty strings so Compact drops the key.
func optional(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func encode(tx Transaction) docstore.Data {
	d := docstore.Data{
		"type":        string(tx.Type),
		"status":      optional(string(tx.Status)),
		"date":        tx.Date.UTC(),
		"createdAt":   tx.CreatedAt.UTC(),
		"items":       encodeItems(tx.Items),
		"payment":     encodePayment(tx.Payment),
		tenant.Field:  tx.BusinessID,
		"description": optional(tx.Description),
	}

	if tx.Customer != nil {
		d["customer"] = encodeCustomer(*tx.Customer)
	}

	if tx.Delivery != nil {
		d["delivery"] = encodeDelivery(*tx.Delivery)
	}

	if !tx.Amount.IsZero() {
		d["amount"] = money(tx.Amount)
	}

	return d.Compact()
}

func encodeItems(items []Item) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = docstore.Data{
			"name":     it.Name,
			"price":    money(it.Price),
			"quantity": it.Quantity,
			"note":     optional(it.Note),
		}
	}

	return out
}

func encodeCustomer(c Customer) docstore.Data {
	return docstore.Data{
		"name":  c.Name,
		"phone": c.Phone,
		"note":  optional(c.Note),
	}
}

func encodePayment(p Payment) docstore.Data {
	d := docstore.Data{
		"method":        optional(p.Method),
		"advance":       money(p.Advance),
		"balance":       money(p.Balance),
		"balanceMethod": optional(p.BalanceMethod),
	}

	if p.BalancePaidDate != nil {
		d["balancePaidDate"] = p.BalancePaidDate.UTC()
	}

	return d
}

func encodeDelivery(d Delivery) docstore.Data {
	return docstore.Data{"date": optional(d.Date), "time": optional(d.Time)}
}

// data converts u into merge fields, leaving out everything unset.
func (u Update) data() docstore.Data {
	d := docstore.Data{}

	if u.Type != nil {
		d["type"] = string(*u.Type)
	}

	if u.Status != nil {
		d["status"] = string(*u.Status)
	}

	if u.Items != nil {
		d["items"] = encodeItems(u.Items)
	}

	if u.Customer != nil {
		d["customer"] = encodeCustomer(*u.Customer)
	}

	if u.Payment != nil {
		d["payment"] = encodePayment(*u.Payment)
	}

	if u.Delivery != nil {
		d["delivery"] = encodeDelivery(*u.Delivery)
	}

	if u.Description != nil {
		d["description"] = *u.Description
	}

	if u.Amount != nil {
		d["amount"] = money(*u.Amount)
	}

	return d.Compact()
}

func decode(doc docstore.Document) (Transaction, error) {
	d := doc.Data

	date, ok := docstore.AsTime(d["date"])
	if !ok {
		return Transaction{}, fmt.Errorf("decoding transaction %s: missing date", doc.ID)
	}

	createdAt, _ := docstore.AsTime(d["createdAt"])

	tx := Transaction{
		ID:          doc.ID,
		Type:        Type(docstore.AsString(d["type"])),
		Status:      Status(docstore.AsString(d["status"])),
		Date:        date.UTC(),
		CreatedAt:   createdAt.UTC(),
		BusinessID:  docstore.AsString(d[tenant.Field]),
		Description: docstore.AsString(d["description"]),
		Amount:      decimal.NewFromFloat(docstore.AsFloat(d["amount"])),
	}

	for _, v := range docstore.AsSlice(d["items"]) {
		m, ok := docstore.AsMap(v)
		if !ok {
			continue
		}

		tx.Items = append(tx.Items, Item{
			Name:     docstore.AsString(m["name"]),
			Price:    decimal.NewFromFloat(docstore.AsFloat(m["price"])),
			Quantity: int(docstore.AsFloat(m["quantity"])),
			Note:     docstore.AsString(m["note"]),
		})
	}

	if m, ok := docstore.AsMap(d["customer"]); ok {
		tx.Customer = &Customer{
			Name:  docstore.AsString(m["name"]),
			Phone: docstore.AsString(m["phone"]),
			Note:  docstore.AsString(m["note"]),
		}
	}

	if m, ok := docstore.AsMap(d["payment"]); ok {
		tx.Payment = Payment{
			Method:        docstore.AsString(m["method"]),
			Advance:       decimal.NewFromFloat(docstore.AsFloat(m["advance"])),
			Balance:       decimal.NewFromFloat(docstore.AsFloat(m["balance"])),
			BalanceMethod: docstore.AsString(m["balanceMethod"]),
		}

		if paid, ok := docstore.AsTime(m["balancePaidDate"]); ok {
			paid = paid.UTC()
			tx.Payment.BalancePaidDate = &paid
		}
	}

	if m, ok := docstore.AsMap(d["delivery"]); ok {
		tx.Delivery = &Delivery{
			Date: docstore.AsString(m["date"]),
			Time: docstore.AsString(m["time"]),
		}
	}

	return tx, nil
}

// byDateDesc orders newest first, ties by id so snapshots are stable.
func byDateDesc(a, b Transaction) int {
	if c := b.Date.Compare(a.Date); c != 0 {
		return c
	}

	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}

	return 0
}
