// Package notifier forwards payment confirmations to the merchant's
// configured callback URL.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/brpix/checkout/internal/domain"
)

type Handler struct {
	notifyURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHandler(notifyURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		notifyURL:  notifyURL,
		httpClient: client,
		logger:     logger,
	}
}

type merchantNotification struct {
	OrderID       string          `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	OldStatus     string          `json:"oldStatus"`
	Status        string          `json:"status"`
	Valor         decimal.Decimal `json:"valor"`
	PaidAt        string          `json:"paidAt,omitempty"`
}

// Handle consumes one payment.confirmed event. A failed delivery returns an
// error so the consumer loop surfaces it instead of committing the offset.
func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.PaymentConfirmedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal payment confirmed event: %w", err)
	}

	h.logger.Info("processing payment confirmation", "order_id", event.OrderID, "new_status", event.NewStatus)

	body := merchantNotification{
		OrderID:       event.OrderID,
		TransactionID: event.TransactionID,
		OldStatus:     string(event.OldStatus),
		Status:        string(event.NewStatus),
		Valor:         event.Amount,
		PaidAt:        event.PaidAt,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal merchant notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.notifyURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify merchant for order %s: %w", event.OrderID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("merchant endpoint returned status %d", resp.StatusCode)
	}

	h.logger.Info("merchant notified", "order_id", event.OrderID, "status", event.NewStatus)
	return nil
}
