package processor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestClient_CreateTransaction(t *testing.T) {
	t.Run("sends credentials and order reference", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/transactions/create" {
				t.Errorf("expected /api/transactions/create, got %s", r.URL.Path)
			}
			if r.Header.Get("ci") != "client-id" || r.Header.Get("cs") != "client-secret" {
				t.Errorf("missing credential headers: ci=%q cs=%q", r.Header.Get("ci"), r.Header.Get("cs"))
			}

			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode request body: %v", err)
			}
			if body["transactionId"] != "order-1" {
				t.Errorf("expected transactionId order-1, got %v", body["transactionId"])
			}
			if body["payerName"] != "Maria" {
				t.Errorf("expected payerName Maria, got %v", body["payerName"])
			}
			if body["amount"] != 50.0 {
				t.Errorf("expected amount 50, got %v", body["amount"])
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"message": "ok",
				"data": {
					"transactionId": "txn-123",
					"payer": {"name": "Maria", "document": "12345678900"},
					"transactionFee": 0.5,
					"transactionType": "DEPOSIT",
					"transactionMethod": "PIX",
					"transactionAmount": 50,
					"transactionState": "PENDENTE",
					"qrCodeBase64": "aW1hZ2U=",
					"qrcodeUrl": "https://qr.example/txn-123",
					"copyPaste": "00020126pix"
				}
			}`))
		}))
		defer server.Close()

		client := NewClient(Config{ClientID: "client-id", ClientSecret: "client-secret", BaseURL: server.URL}, server.Client())

		result, err := client.CreateTransaction(context.Background(), TransactionRequest{
			Amount:        decimal.NewFromInt(50),
			PayerName:     "Maria",
			PayerDocument: "12345678900",
			Reference:     "order-1",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.TransactionID != "txn-123" {
			t.Errorf("expected transaction id txn-123, got %s", result.TransactionID)
		}
		if result.State != "PENDENTE" {
			t.Errorf("expected state PENDENTE, got %s", result.State)
		}
		if result.CopyPaste != "00020126pix" {
			t.Errorf("unexpected copy-paste code: %s", result.CopyPaste)
		}
		if result.QRCodeURL != "https://qr.example/txn-123" {
			t.Errorf("unexpected qr code url: %s", result.QRCodeURL)
		}
		if !result.Amount.Equal(decimal.NewFromInt(50)) {
			t.Errorf("expected amount 50, got %s", result.Amount)
		}
	})

	t.Run("missing credentials fails without calling the API", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		}))
		defer server.Close()

		client := NewClient(Config{BaseURL: server.URL}, server.Client())

		_, err := client.CreateTransaction(context.Background(), TransactionRequest{Amount: decimal.NewFromInt(10)})
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
		if calls != 0 {
			t.Errorf("expected no API calls, got %d", calls)
		}
	})

	t.Run("non-200 response becomes an APIError with status and body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"invalid document"}`))
		}))
		defer server.Close()

		client := NewClient(Config{ClientID: "id", ClientSecret: "secret", BaseURL: server.URL}, server.Client())

		_, err := client.CreateTransaction(context.Background(), TransactionRequest{Amount: decimal.NewFromInt(10)})

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", apiErr.StatusCode)
		}
		if apiErr.Body != `{"error":"invalid document"}` {
			t.Errorf("unexpected error body: %s", apiErr.Body)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(Config{ClientID: "id", ClientSecret: "secret", BaseURL: server.URL}, server.Client())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := client.CreateTransaction(ctx, TransactionRequest{Amount: decimal.NewFromInt(10)}); err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
