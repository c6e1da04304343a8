// Package checkout records orders and keeps the customer aggregate in step
// with them.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/till/internal/customer"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

//go:generate mockgen -source=checkout.go -destination=checkout_mock.go -package=checkout
type Transactions interface {
	Add(ctx context.Context, tenantID string, tx transaction.Transaction) (string, error)
	Get(ctx context.Context, tenantID, id string) (transaction.Transaction, error)
	Update(ctx context.Context, tenantID, id string, u transaction.Update) error
}

type Customers interface {
	Get(ctx context.Context, tenantID string) (*customer.Cache, error)
}

type Service struct {
	transactions Transactions
	customers    Customers
	now          func() time.Time
}

func NewService(transactions Transactions, customers Customers) *Service {
	return &Service{transactions: transactions, customers: customers, now: time.Now}
}

// Record adds tx. A completed transaction with a customer is also counted
// as a visit.
func (s *Service) Record(ctx context.Context, tenantID string, tx transaction.Transaction) (string, error) {
	id, err := s.transactions.Add(ctx, tenantID, tx)
	if err != nil {
		return "", fmt.Errorf("recording transaction: %w", err)
	}

	if tx.Status == transaction.StatusCompleted {
		if err := s.visit(ctx, tenantID, tx); err != nil {
			return id, err
		}
	}

	return id, nil
}

// Settle collects the outstanding balance of an order with method. The
// visit is counted only when the order was not completed before, since
// Record already counted completed ones. It returns the settled transaction.
func (s *Service) Settle(ctx context.Context, tenantID, id, method string) (transaction.Transaction, error) {
	tx, err := s.transactions.Get(ctx, tenantID, id)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("loading transaction: %w", err)
	}

	counted := tx.Status == transaction.StatusCompleted
	if counted && tx.Payment.Balance.IsZero() {
		return tx, nil
	}

	u := transaction.Settle(tx, method, s.now().UTC())

	if err := s.transactions.Update(ctx, tenantID, id, u); err != nil {
		return transaction.Transaction{}, fmt.Errorf("settling transaction: %w", err)
	}

	settled := u.Apply(tx)

	if counted {
		return settled, nil
	}

	if err := s.visit(ctx, tenantID, settled); err != nil {
		return settled, err
	}

	return settled, nil
}

func (s *Service) visit(ctx context.Context, tenantID string, tx transaction.Transaction) error {
	v, ok := customer.VisitFromTransaction(tx)
	if !ok {
		return nil
	}

	cache, err := s.customers.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading customers: %w", err)
	}

	if err := cache.Upsert(ctx, v); err != nil {
		return fmt.Errorf("updating customer: %w", err)
	}

	return nil
}
