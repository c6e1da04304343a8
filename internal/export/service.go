package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MrJamesThe3rd/till/internal/transaction"
)

// Source is the range query the export reads from.
type Source interface {
	QueryRange(ctx context.Context, tenantID string, start, end time.Time) ([]transaction.Transaction, error)
}

type Option func(*Service)

// WithLocale sets the language used to format amounts.
func WithLocale(tag language.Tag) Option {
	return func(s *Service) { s.printer = message.NewPrinter(tag) }
}

func WithCurrency(unit currency.Unit) Option {
	return func(s *Service) { s.currency = unit }
}

// Service writes range reports of a tenant's transactions.
type Service struct {
	source   Source
	printer  *message.Printer
	currency currency.Unit
}

func NewService(source Source, opts ...Option) *Service {
	s := &Service{
		source:   source,
		printer:  message.NewPrinter(language.English),
		currency: currency.INR,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Summary totals a range by transaction type.
type Summary struct {
	Start       time.Time
	End         time.Time
	Count       int
	ByType      map[transaction.Type]decimal.Decimal
	Outstanding decimal.Decimal
}

var header = []string{
	"id", "date", "type", "status", "customer", "phone", "items", "total", "advance", "balance", "method",
}

// Export writes the transactions dated in [start, end] to w as CSV, newest
// first, and returns their summary.
func (s *Service) Export(ctx context.Context, tenantID string, start, end time.Time, w io.Writer) (Summary, error) {
	txs, err := s.source.QueryRange(ctx, tenantID, start, end)
	if err != nil {
		return Summary{}, fmt.Errorf("querying transactions: %w", err)
	}

	window := transaction.NewWindow(start, end)
	sum := Summarize(txs)
	sum.Start, sum.End = window.Start, window.End

	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return Summary{}, fmt.Errorf("writing header: %w", err)
	}

	for _, tx := range txs {
		if err := cw.Write(record(tx)); err != nil {
			return Summary{}, fmt.Errorf("writing transaction %s: %w", tx.ID, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return Summary{}, fmt.Errorf("flushing csv: %w", err)
	}

	return sum, nil
}

func Summarize(txs []transaction.Transaction) Summary {
	sum := Summary{
		Count:  len(txs),
		ByType: make(map[transaction.Type]decimal.Decimal),
	}

	for _, tx := range txs {
		sum.ByType[tx.Type] = sum.ByType[tx.Type].Add(tx.Total())
		sum.Outstanding = sum.Outstanding.Add(tx.Payment.Balance)
	}

	return sum
}

func record(tx transaction.Transaction) []string {
	var name, phone string
	if tx.Customer != nil {
		name, phone = tx.Customer.Name, tx.Customer.Phone
	}

	items := make([]string, len(tx.Items))
	for i, it := range tx.Items {
		items[i] = it.Name + " x" + strconv.Itoa(it.Quantity)
	}

	if len(items) == 0 {
		items = []string{tx.Description}
	}

	return []string{
		tx.ID,
		tx.Date.Format(time.RFC3339),
		string(tx.Type),
		string(tx.Status),
		name,
		phone,
		strings.Join(items, "; "),
		tx.Total().StringFixed(2),
		tx.Payment.Advance.StringFixed(2),
		tx.Payment.Balance.StringFixed(2),
		tx.Payment.Method,
	}
}

// Format renders sum for people, one line per type in a fixed order.
func (s *Service) Format(sum Summary) string {
	var sb strings.Builder

	sb.WriteString(s.printer.Sprintf("%s to %s: %d transactions\n",
		sum.Start.Format(time.DateOnly), sum.End.Format(time.DateOnly), sum.Count))

	types := []transaction.Type{
		transaction.TypeSale, transaction.TypeOrder, transaction.TypeExpense, transaction.TypeSettlement,
	}

	for t := range sum.ByType {
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}

	for _, t := range types {
		total, ok := sum.ByType[t]
		if !ok {
			continue
		}

		sb.WriteString(fmt.Sprintf("  %-10s %s\n", t, s.amount(total)))
	}

	sb.WriteString(fmt.Sprintf("  %-10s %s\n", "due", s.amount(sum.Outstanding)))

	return sb.String()
}

func (s *Service) amount(d decimal.Decimal) string {
	return s.currency.String() + " " + s.printer.Sprintf("%.2f", d.InexactFloat64())
}
