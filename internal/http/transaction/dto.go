package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/till/internal/transaction"
)

type itemDTO struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Note     string          `json:"note,omitempty"`
}

type customerDTO struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Note  string `json:"note,omitempty"`
}

type paymentDTO struct {
	Method          string          `json:"method"`
	Advance         decimal.Decimal `json:"advance"`
	Balance         decimal.Decimal `json:"balance"`
	BalanceMethod   string          `json:"balance_method,omitempty"`
	BalancePaidDate *time.Time      `json:"balance_paid_date,omitempty"`
}

type deliveryDTO struct {
	Date string `json:"date"`
	Time string `json:"time,omitempty"`
}

type transactionRequest struct {
	Type        transaction.Type   `json:"type"`
	Status      transaction.Status `json:"status"`
	Date        time.Time          `json:"date"`
	Items       []itemDTO          `json:"items"`
	Customer    *customerDTO       `json:"customer,omitempty"`
	Payment     paymentDTO         `json:"payment"`
	Delivery    *deliveryDTO       `json:"delivery,omitempty"`
	Description string             `json:"description"`
	Amount      decimal.Decimal    `json:"amount"`
}

type transactionResponse struct {
	ID          string             `json:"id"`
	Type        transaction.Type   `json:"type"`
	Status      transaction.Status `json:"status,omitempty"`
	Date        time.Time          `json:"date"`
	CreatedAt   time.Time          `json:"created_at"`
	Items       []itemDTO          `json:"items"`
	Customer    *customerDTO       `json:"customer,omitempty"`
	Payment     paymentDTO         `json:"payment"`
	Delivery    *deliveryDTO       `json:"delivery,omitempty"`
	Description string             `json:"description,omitempty"`
	Amount      decimal.Decimal    `json:"amount"`
	Total       decimal.Decimal    `json:"total"`
}

type updateRequest struct {
	Type        *transaction.Type   `json:"type,omitempty"`
	Status      *transaction.Status `json:"status,omitempty"`
	Items       []itemDTO           `json:"items,omitempty"`
	Customer    *customerDTO        `json:"customer,omitempty"`
	Payment     *paymentDTO         `json:"payment,omitempty"`
	Delivery    *deliveryDTO        `json:"delivery,omitempty"`
	Description *string             `json:"description,omitempty"`
	Amount      *decimal.Decimal    `json:"amount,omitempty"`
}

type settleRequest struct {
	Method string `json:"method"`
}

type undoDTO struct {
	DeletedID   string             `json:"deleted_id"`
	Transaction transactionRequest `json:"transaction"`
	CreatedAt   time.Time          `json:"created_at"`
}

type idResponse struct {
	ID string `json:"id"`
}

type purgeResponse struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}

func fromItems(items []itemDTO) []transaction.Item {
	if items == nil {
		return nil
	}

	out := make([]transaction.Item, len(items))
	for i, it := range items {
		out[i] = transaction.Item{Name: it.Name, Price: it.Price, Quantity: it.Quantity, Note: it.Note}
	}

	return out
}

func toItems(items []transaction.Item) []itemDTO {
	out := make([]itemDTO, len(items))
	for i, it := range items {
		out[i] = itemDTO{Name: it.Name, Price: it.Price, Quantity: it.Quantity, Note: it.Note}
	}

	return out
}

func (c *customerDTO) model() *transaction.Customer {
	if c == nil {
		return nil
	}

	return &transaction.Customer{Name: c.Name, Phone: c.Phone, Note: c.Note}
}

func toCustomer(c *transaction.Customer) *customerDTO {
	if c == nil {
		return nil
	}

	return &customerDTO{Name: c.Name, Phone: c.Phone, Note: c.Note}
}

func (p paymentDTO) model() transaction.Payment {
	return transaction.Payment{
		Method:          p.Method,
		Advance:         p.Advance,
		Balance:         p.Balance,
		BalanceMethod:   p.BalanceMethod,
		BalancePaidDate: p.BalancePaidDate,
	}
}

func toPayment(p transaction.Payment) paymentDTO {
	return paymentDTO{
		Method:          p.Method,
		Advance:         p.Advance,
		Balance:         p.Balance,
		BalanceMethod:   p.BalanceMethod,
		BalancePaidDate: p.BalancePaidDate,
	}
}

func (d *deliveryDTO) model() *transaction.Delivery {
	if d == nil {
		return nil
	}

	return &transaction.Delivery{Date: d.Date, Time: d.Time}
}

func toDelivery(d *transaction.Delivery) *deliveryDTO {
	if d == nil {
		return nil
	}

	return &deliveryDTO{Date: d.Date, Time: d.Time}
}

func (req transactionRequest) model() transaction.Transaction {
	return transaction.Transaction{
		Type:        req.Type,
		Status:      req.Status,
		Date:        req.Date,
		Items:       fromItems(req.Items),
		Customer:    req.Customer.model(),
		Payment:     req.Payment.model(),
		Delivery:    req.Delivery.model(),
		Description: req.Description,
		Amount:      req.Amount,
	}
}

func toRequest(tx transaction.Transaction) transactionRequest {
	return transactionRequest{
		Type:        tx.Type,
		Status:      tx.Status,
		Date:        tx.Date,
		Items:       toItems(tx.Items),
		Customer:    toCustomer(tx.Customer),
		Payment:     toPayment(tx.Payment),
		Delivery:    toDelivery(tx.Delivery),
		Description: tx.Description,
		Amount:      tx.Amount,
	}
}

func (req updateRequest) model() transaction.Update {
	u := transaction.Update{
		Type:        req.Type,
		Status:      req.Status,
		Items:       fromItems(req.Items),
		Customer:    req.Customer.model(),
		Delivery:    req.Delivery.model(),
		Description: req.Description,
		Amount:      req.Amount,
	}

	if req.Payment != nil {
		p := req.Payment.model()
		u.Payment = &p
	}

	return u
}

func toResponse(tx transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		Type:        tx.Type,
		Status:      tx.Status,
		Date:        tx.Date,
		CreatedAt:   tx.CreatedAt,
		Items:       toItems(tx.Items),
		Customer:    toCustomer(tx.Customer),
		Payment:     toPayment(tx.Payment),
		Delivery:    toDelivery(tx.Delivery),
		Description: tx.Description,
		Amount:      tx.Amount,
		Total:       tx.Total(),
	}
}

func toResponseList(txs []transaction.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}

func toUndo(u transaction.Undo) undoDTO {
	return undoDTO{
		DeletedID:   u.DeletedID,
		Transaction: toRequest(u.Transaction),
		CreatedAt:   u.Transaction.CreatedAt,
	}
}

func (u undoDTO) model() transaction.Undo {
	tx := u.Transaction.model()
	tx.CreatedAt = u.CreatedAt

	return transaction.Undo{DeletedID: u.DeletedID, Transaction: tx}
}
