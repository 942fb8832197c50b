//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/brpix/checkout/internal/checkout"
	"github.com/brpix/checkout/internal/domain"
	"github.com/brpix/checkout/internal/messaging"
	"github.com/brpix/checkout/internal/notifier"
	"github.com/brpix/checkout/internal/orders"
	"github.com/brpix/checkout/internal/processor"
)

// fakeMistic imitates the processor's create-transaction endpoint.
func fakeMistic(t *testing.T, transactionID, state string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("ci") == "" || r.Header.Get("cs") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"message": "ok",
			"data": {
				"transactionId": %q,
				"payer": {"name": "Maria", "document": "12345678900"},
				"transactionFee": 0.5,
				"transactionType": "DEPOSIT",
				"transactionMethod": "PIX",
				"transactionAmount": %v,
				"transactionState": %q,
				"qrCodeBase64": "aW1hZ2U=",
				"qrcodeUrl": "https://qr.example/%s",
				"copyPaste": "00020126pix"
			}
		}`, transactionID, req["amount"], state, transactionID)
	}))
}

func newCheckoutHandler(t *testing.T, db *PostgresSetup, processorURL string) (*checkout.Handler, *orders.OrderRepository) {
	t.Helper()

	conn, err := DB(db.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := orders.NewOrderRepository(conn)
	client := processor.NewClient(processor.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		BaseURL:      processorURL,
	}, http.DefaultClient)
	service := checkout.NewService(repo, client, nil, logger)

	return checkout.NewHandler(service, nil, nil, logger), repo
}

func TestCheckoutToPaidFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	mistic := fakeMistic(t, "txn-flow-1", "PENDENTE")
	defer mistic.Close()

	handler, repo := newCheckoutHandler(t, pg, mistic.URL)

	body := `{"nome": "Maria", "cpf": "123.456.789-00", "celular": "(11) 91234-5678", "cep": "01310-100", "valor": 50.00}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.HandleSubmit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var submitted struct {
		OrderID       string `json:"orderId"`
		TransactionID string `json:"transactionId"`
		Pix           struct {
			PixCode string `json:"pixCode"`
		} `json:"pix"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&submitted); err != nil {
		t.Fatalf("failed to decode submit response: %v", err)
	}
	if submitted.Pix.PixCode == "" {
		t.Fatal("expected a pix code")
	}

	order, err := repo.GetByID(ctx, submitted.OrderID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if order == nil {
		t.Fatal("order not found in database")
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.Document != "12345678900" {
		t.Fatalf("expected normalized document, got %q", order.Document)
	}
	if order.PixTransactionID != "txn-flow-1" {
		t.Fatalf("expected transaction id txn-flow-1, got %q", order.PixTransactionID)
	}
	if !order.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected amount 50, got %s", order.Amount)
	}

	// Webhook flips the order to paid; a retry is a no-op success.
	webhookBody := `{"transactionId": "txn-flow-1", "status": "PAID", "amount": 50.00}`
	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/webhooks/payment-confirmation", strings.NewReader(webhookBody))
		rec = httptest.NewRecorder()
		handler.HandleWebhook(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("webhook delivery %d: expected status 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"paid"`) {
			t.Fatalf("webhook delivery %d: expected newStatus paid: %s", i+1, rec.Body.String())
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/checkout?orderId="+submitted.OrderID, nil)
	rec = httptest.NewRecorder()
	handler.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"paid"`) {
		t.Fatalf("expected paid status: %s", rec.Body.String())
	}
}

func TestProcessorFailureLeavesNoOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	mistic := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	}))
	defer mistic.Close()

	handler, _ := newCheckoutHandler(t, pg, mistic.URL)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"valor": 50}`))
	rec := httptest.NewRecorder()
	handler.HandleSubmit(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	conn, err := DB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = conn.Close() }()

	var count int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&count); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no orders after processor failure, got %d", count)
	}
}

func TestWebhookForUnknownTransaction(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	mistic := fakeMistic(t, "txn-known", "PENDENTE")
	defer mistic.Close()

	handler, repo := newCheckoutHandler(t, pg, mistic.URL)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"valor": 50}`))
	rec := httptest.NewRecorder()
	handler.HandleSubmit(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit failed: %d", rec.Code)
	}

	var submitted struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&submitted); err != nil {
		t.Fatalf("failed to decode submit response: %v", err)
	}

	body := `{"transactionId": "txn-unknown", "status": "PAID", "amount": 50}`
	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment-confirmation", strings.NewReader(body))
	rec = httptest.NewRecorder()
	handler.HandleWebhook(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d: %s", rec.Code, rec.Body.String())
	}

	order, err := repo.GetByID(ctx, submitted.OrderID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected the existing order to stay pending, got %s", order.Status)
	}
}

func TestPaymentConfirmedEventDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	received := make(chan struct{})
	merchant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode merchant notification: %v", err)
		}
		if body["orderId"] != "order-evt-1" {
			t.Errorf("expected orderId order-evt-1, got %v", body["orderId"])
		}
		w.WriteHeader(http.StatusOK)
		close(received)
	}))
	defer merchant.Close()

	producer := messaging.NewProducer(brokers, "payment.confirmed")
	defer func() { _ = producer.Close() }()

	event := domain.PaymentConfirmedEvent{
		OrderID:       "order-evt-1",
		TransactionID: "txn-evt-1",
		OldStatus:     domain.OrderStatusPending,
		NewStatus:     domain.OrderStatusPaid,
		Amount:        decimal.NewFromInt(50),
		Timestamp:     time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.OrderID, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := notifier.NewHandler(merchant.URL, http.DefaultClient, logger)

	consumer := messaging.NewConsumer(brokers, "payment.confirmed", "merchant-notifier-test",
		messaging.WithStartOffset(kafkago.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()

	go func() {
		_ = consumer.Consume(consumeCtx, handler.Handle)
	}()

	select {
	case <-received:
	case <-time.After(90 * time.Second):
		t.Fatal("timed out waiting for the merchant notification")
	}
	stopConsuming()
}
