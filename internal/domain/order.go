package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers on every wire contract (checkout
	// responses, processor calls, merchant notifications).
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// Terminal reports whether no further transition out of s is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed
}

const PaymentMethodPix = "pix"

// Order is one checkout attempt. Document, phone and postal code are stored
// digits-only; PixTransactionID is the processor's id, set on processor
// success and used to resolve confirmation events.
type Order struct {
	ID               string          `json:"id"`
	Name             string          `json:"name,omitempty"`
	Document         string          `json:"document,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	PostalCode       string          `json:"postal_code,omitempty"`
	Street           string          `json:"street,omitempty"`
	Number           string          `json:"number,omitempty"`
	Complement       string          `json:"complement,omitempty"`
	City             string          `json:"city,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentMethod    string          `json:"payment_method"`
	Status           OrderStatus     `json:"status"`
	PixCode          string          `json:"pix_code,omitempty"`
	PixQRCodeURL     string          `json:"pix_qr_code_url,omitempty"`
	PixTransactionID string          `json:"pix_transaction_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
