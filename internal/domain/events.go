package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentConfirmedEvent is published when a confirmation moves an order to a
// terminal status.
type PaymentConfirmedEvent struct {
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	OldStatus     OrderStatus     `json:"old_status"`
	NewStatus     OrderStatus     `json:"new_status"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        string          `json:"paid_at,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
