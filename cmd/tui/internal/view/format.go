package view

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const storeTimeout = 10 * time.Second

func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatDate formats a time.Time into YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// StoreCtx returns a context with a standard timeout for store operations.
func StoreCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}
