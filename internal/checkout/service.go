// Package checkout holds the order/payment reconciliation core: it creates
// orders, obtains a PIX payment from the processor, and transitions order
// status when confirmations arrive by webhook or poll.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brpix/checkout/internal/cache"
	"github.com/brpix/checkout/internal/domain"
	"github.com/brpix/checkout/internal/processor"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrOrderNotFound   = errors.New("order not found")
	ErrNoMatchingOrder = errors.New("no order matches the transaction")
)

const (
	// Display deadline only; an expired order stays pending until the
	// processor reports otherwise.
	paymentExpiry = 30 * time.Minute

	// Poll reads come at a fixed client-side interval with no backoff, so
	// cached statuses only need to live a couple of seconds.
	statusCacheTTL = 3 * time.Second

	defaultPayerName     = "Cliente"
	defaultPayerDocument = "00000000000"
)

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error)
	SetPaymentDetails(ctx context.Context, id, transactionID, pixCode, qrCodeURL string, status domain.OrderStatus) (*domain.Order, error)
	UpdateStatusFrom(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type TransactionCreator interface {
	CreateTransaction(ctx context.Context, txn processor.TransactionRequest) (*processor.TransactionResult, error)
}

type Service struct {
	store       OrderStore
	processor   TransactionCreator
	statusCache cache.Cache // optional
	logger      *slog.Logger
}

func NewService(store OrderStore, proc TransactionCreator, statusCache cache.Cache, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		processor:   proc,
		statusCache: statusCache,
		logger:      logger,
	}
}

type Submission struct {
	Name       string
	Document   string
	Phone      string
	PostalCode string
	Street     string
	Number     string
	Complement string
	City       string
	Amount     decimal.Decimal
}

type PixPayment struct {
	QRCodeURL    string
	QRCodeBase64 string
	PixCode      string
	Amount       decimal.Decimal
	ExpiresAt    time.Time
}

type PaymentPayload struct {
	OrderID       string
	TransactionID string
	Pix           PixPayment
}

// SubmitCheckout creates a pending order, asks the processor for a PIX
// transaction referencing it, and records the outcome. The order row exists
// before the external call so a crash mid-call leaves something to
// reconcile; a failed call deletes the row again.
func (s *Service) SubmitCheckout(ctx context.Context, sub Submission) (*PaymentPayload, error) {
	if !sub.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	order := &domain.Order{
		Name:          sub.Name,
		Document:      digitsOnly(sub.Document),
		Phone:         digitsOnly(sub.Phone),
		PostalCode:    digitsOnly(sub.PostalCode),
		Street:        sub.Street,
		Number:        sub.Number,
		Complement:    sub.Complement,
		City:          sub.City,
		Amount:        sub.Amount,
		PaymentMethod: domain.PaymentMethodPix,
		Status:        domain.OrderStatusPending,
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	payerName := order.Name
	if payerName == "" {
		payerName = defaultPayerName
	}
	payerDocument := order.Document
	if payerDocument == "" {
		payerDocument = defaultPayerDocument
	}

	txn, err := s.processor.CreateTransaction(ctx, processor.TransactionRequest{
		Amount:        order.Amount,
		PayerName:     payerName,
		PayerDocument: payerDocument,
		Reference:     order.ID,
	})
	if err != nil {
		// Compensating delete: no order may outlive a failed processor
		// call. A delete failure is logged but never masks the
		// processor error.
		if _, delErr := s.store.Delete(ctx, order.ID); delErr != nil {
			s.logger.Error("failed to delete order after processor failure", "error", delErr, "order_id", order.ID)
		}
		return nil, fmt.Errorf("generate pix payment: %w", err)
	}

	status := domain.OrderStatusPaid
	if awaitingPayment(txn.State) {
		status = domain.OrderStatusPending
	}

	updated, err := s.store.SetPaymentDetails(ctx, order.ID, txn.TransactionID, txn.CopyPaste, txn.QRCodeURL, status)
	if err != nil {
		return nil, fmt.Errorf("store payment details: %w", err)
	}
	if updated == nil {
		return nil, ErrOrderNotFound
	}

	return &PaymentPayload{
		OrderID:       updated.ID,
		TransactionID: txn.TransactionID,
		Pix: PixPayment{
			QRCodeURL:    txn.QRCodeURL,
			QRCodeBase64: txn.QRCodeBase64,
			PixCode:      txn.CopyPaste,
			Amount:       updated.Amount,
			ExpiresAt:    time.Now().UTC().Add(paymentExpiry),
		},
	}, nil
}

// awaitingPayment reports whether the processor's create-time state means
// the payer has not paid yet. Anything else on a successful create is
// treated as already confirmed.
func awaitingPayment(state string) bool {
	switch state {
	case "PENDENTE", "PENDING", "AWAITING", "AWAITING_PAYMENT":
		return true
	}
	return false
}

type StatusResult struct {
	OrderID   string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	Amount    decimal.Decimal    `json:"amount"`
	CreatedAt time.Time          `json:"created_at"`
}

// GetStatus is a pure read. Results are cached briefly when a cache is
// configured; polling clients repeat this read at a fixed interval with no
// upper bound, and a slightly stale answer is fine.
func (s *Service) GetStatus(ctx context.Context, orderID string) (*StatusResult, error) {
	var key string
	if s.statusCache != nil {
		key = s.statusCache.Key("status", orderID)
		raw, err := s.statusCache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("status cache read failed", "error", err, "order_id", orderID)
		} else if raw != "" {
			cached := &StatusResult{}
			if err := json.Unmarshal([]byte(raw), cached); err == nil {
				return cached, nil
			}
		}
	}

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	result := &StatusResult{
		OrderID:   order.ID,
		Status:    order.Status,
		Amount:    order.Amount,
		CreatedAt: order.CreatedAt,
	}

	if s.statusCache != nil {
		if data, err := json.Marshal(result); err == nil {
			if err := s.statusCache.Set(ctx, key, string(data), statusCacheTTL); err != nil {
				s.logger.Warn("status cache write failed", "error", err, "order_id", orderID)
			}
		}
	}

	return result, nil
}

type ConfirmationEvent struct {
	TransactionID string
	Status        string // processor-reported: PENDING, PAID, FAILED, CANCELED
	Amount        decimal.Decimal
	PaidAt        string
}

type ConfirmationResult struct {
	OrderID   string
	OldStatus domain.OrderStatus
	NewStatus domain.OrderStatus
	// Changed is false for no-op applications: repeated confirmations,
	// PENDING events, or events losing a race to a concurrent one.
	Changed bool
}

// ApplyConfirmation resolves the order the event refers to by its processor
// transaction id and transitions its status. Terminal states are absorbing,
// so applying the same confirmation twice is a no-op success.
func (s *Service) ApplyConfirmation(ctx context.Context, event ConfirmationEvent) (*ConfirmationResult, error) {
	order, err := s.store.GetByTransactionID(ctx, event.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("find order for transaction %s: %w", event.TransactionID, err)
	}
	if order == nil {
		return nil, ErrNoMatchingOrder
	}

	target := statusFromProcessor(event.Status)
	result := &ConfirmationResult{OrderID: order.ID, OldStatus: order.Status, NewStatus: order.Status}

	if order.Status.Terminal() || target == order.Status {
		return result, nil
	}

	changed, err := s.store.UpdateStatusFrom(ctx, order.ID, order.Status, target)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !changed {
		// Lost a race against a concurrent confirmation; report what won.
		current, err := s.store.GetByID(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("reload order: %w", err)
		}
		if current == nil {
			return nil, ErrNoMatchingOrder
		}
		result.NewStatus = current.Status
		return result, nil
	}

	result.NewStatus = target
	result.Changed = true

	if s.statusCache != nil {
		if err := s.statusCache.Del(ctx, s.statusCache.Key("status", order.ID)); err != nil {
			s.logger.Warn("status cache invalidation failed", "error", err, "order_id", order.ID)
		}
	}

	return result, nil
}

func statusFromProcessor(status string) domain.OrderStatus {
	switch status {
	case "PAID":
		return domain.OrderStatusPaid
	case "FAILED", "CANCELED":
		return domain.OrderStatusFailed
	default:
		return domain.OrderStatusPending
	}
}
