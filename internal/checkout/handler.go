package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/brpix/checkout/internal/domain"
	"github.com/brpix/checkout/internal/messaging"
	"github.com/brpix/checkout/internal/processor"
	"github.com/brpix/checkout/internal/telemetry"
)

type Handler struct {
	service  *Service
	producer *messaging.Producer        // optional
	metrics  *telemetry.CheckoutMetrics // optional
	logger   *slog.Logger
}

func NewHandler(service *Service, producer *messaging.Producer, metrics *telemetry.CheckoutMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		producer: producer,
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *Handler) countSubmission(r *http.Request, result string) {
	if h.metrics != nil {
		h.metrics.Submissions.Add(r.Context(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// Field names follow the checkout form contract.
type checkoutRequest struct {
	Nome        string          `json:"nome"`
	CPF         string          `json:"cpf"`
	Celular     string          `json:"celular"`
	CEP         string          `json:"cep"`
	Endereco    string          `json:"endereco"`
	Numero      string          `json:"numero"`
	Complemento string          `json:"complemento"`
	Cidade      string          `json:"cidade"`
	Valor       decimal.Decimal `json:"valor"`
}

type pixResponse struct {
	QRCode       string          `json:"qrCode"`
	QRCodeBase64 string          `json:"qrCodeBase64,omitempty"`
	PixCode      string          `json:"pixCode"`
	Valor        decimal.Decimal `json:"valor"`
	ExpiresAt    string          `json:"expiresAt"`
}

type submitResponse struct {
	Success       bool        `json:"success"`
	OrderID       string      `json:"orderId"`
	TransactionID string      `json:"transactionId"`
	Pix           pixResponse `json:"pix"`
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload, err := h.service.SubmitCheckout(r.Context(), Submission{
		Name:       req.Nome,
		Document:   req.CPF,
		Phone:      req.Celular,
		PostalCode: req.CEP,
		Street:     req.Endereco,
		Number:     req.Numero,
		Complement: req.Complemento,
		City:       req.Cidade,
		Amount:     req.Valor,
	})
	if err != nil {
		h.countSubmission(r, submitResult(err))
		h.handleSubmitError(w, err)
		return
	}

	h.countSubmission(r, "ok")
	h.logger.Info("checkout submitted", "order_id", payload.OrderID, "transaction_id", payload.TransactionID)
	h.writeJSON(w, http.StatusOK, submitResponse{
		Success:       true,
		OrderID:       payload.OrderID,
		TransactionID: payload.TransactionID,
		Pix: pixResponse{
			QRCode:       payload.Pix.QRCodeURL,
			QRCodeBase64: payload.Pix.QRCodeBase64,
			PixCode:      payload.Pix.PixCode,
			Valor:        payload.Pix.Amount,
			ExpiresAt:    payload.Pix.ExpiresAt.Format(time.RFC3339),
		},
	})
}

func submitResult(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, processor.ErrNotConfigured):
		return "not_configured"
	default:
		return "processor_error"
	}
}

func (h *Handler) handleSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "invalid amount")
	case errors.Is(err, processor.ErrNotConfigured):
		h.logger.Error("processor credentials missing", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "payment processor not configured",
			"message": "set MISTIC_CLIENT_ID and MISTIC_CLIENT_SECRET",
		})
	default:
		var apiErr *processor.APIError
		if errors.As(err, &apiErr) {
			h.logger.Error("processor rejected transaction", "status", apiErr.StatusCode, "body", apiErr.Body)
		} else {
			h.logger.Error("failed to submit checkout", "error", err)
		}
		h.writeError(w, http.StatusInternalServerError, "failed to create pix transaction")
	}
}

type orderStatusResponse struct {
	ID        string             `json:"id"`
	Status    domain.OrderStatus `json:"status"`
	Valor     decimal.Decimal    `json:"valor"`
	CreatedAt time.Time          `json:"createdAt"`
}

type statusResponse struct {
	Success bool                `json:"success"`
	Order   orderStatusResponse `json:"order"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	result, err := h.service.GetStatus(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to get order status", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, statusResponse{
		Success: true,
		Order: orderStatusResponse{
			ID:        result.OrderID,
			Status:    result.Status,
			Valor:     result.Amount,
			CreatedAt: result.CreatedAt,
		},
	})
}

type webhookPayer struct {
	Name     string `json:"name,omitempty"`
	Document string `json:"document,omitempty"`
}

type webhookPayload struct {
	TransactionID  string          `json:"transactionId"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionFee decimal.Decimal `json:"transactionFee,omitempty"`
	Payer          *webhookPayer   `json:"payer,omitempty"`
	PaidAt         string          `json:"paidAt,omitempty"`
}

type webhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	OrderID   string `json:"orderId"`
	NewStatus string `json:"newStatus"`
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.TransactionID == "" || payload.Status == "" {
		h.writeError(w, http.StatusBadRequest, "transactionId and status are required")
		return
	}

	h.logger.Info("webhook received", "transaction_id", payload.TransactionID, "status", payload.Status)

	result, err := h.service.ApplyConfirmation(r.Context(), ConfirmationEvent{
		TransactionID: payload.TransactionID,
		Status:        payload.Status,
		Amount:        payload.Amount,
		PaidAt:        payload.PaidAt,
	})
	if err != nil {
		if errors.Is(err, ErrNoMatchingOrder) {
			h.logger.Warn("webhook for unknown transaction", "transaction_id", payload.TransactionID)
			h.writeError(w, http.StatusNotFound, "no matching order")
			return
		}
		h.logger.Error("failed to apply confirmation", "error", err, "transaction_id", payload.TransactionID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if result.Changed && h.producer != nil {
		event := domain.PaymentConfirmedEvent{
			OrderID:       result.OrderID,
			TransactionID: payload.TransactionID,
			OldStatus:     result.OldStatus,
			NewStatus:     result.NewStatus,
			Amount:        payload.Amount,
			PaidAt:        payload.PaidAt,
			Timestamp:     time.Now().UTC(),
		}
		if err := h.producer.Publish(r.Context(), result.OrderID, event); err != nil {
			h.logger.Error("failed to publish payment confirmed event", "error", err, "order_id", result.OrderID)
		}
	}

	if h.metrics != nil {
		h.metrics.Confirmations.Add(r.Context(), 1, metric.WithAttributes(attribute.String("status", string(result.NewStatus))))
	}

	h.logger.Info("order status updated", "order_id", result.OrderID, "old_status", result.OldStatus, "new_status", result.NewStatus)
	h.writeJSON(w, http.StatusOK, webhookResponse{
		Success:   true,
		Message:   "status updated",
		OrderID:   result.OrderID,
		NewStatus: string(result.NewStatus),
	})
}

// HandleWebhookInfo describes the webhook contract. Processors and operators
// use it to check the endpoint is live.
func (h *Handler) HandleWebhookInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":  "pix payment confirmation webhook",
		"endpoint": "/webhooks/payment-confirmation",
		"method":   http.MethodPost,
		"expectedPayload": map[string]any{
			"transactionId":  "string",
			"status":         "PENDING | PAID | FAILED | CANCELED",
			"amount":         "number",
			"transactionFee": "number (optional)",
			"payer": map[string]string{
				"name":     "string (optional)",
				"document": "string (optional)",
			},
			"paidAt": "ISO datetime (optional)",
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
