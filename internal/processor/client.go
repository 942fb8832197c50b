// Package processor is the client for the Mistic PIX API. It only initiates
// transactions; money moves when the payer scans or pastes the returned code.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.misticpay.com"

// ErrNotConfigured means the client id or secret is missing. This is a
// deployment problem, not a processor rejection, and callers branch on it.
var ErrNotConfigured = errors.New("processor credentials not configured")

// APIError carries the processor's HTTP status and raw body for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor returned status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a client from an explicit config. Credentials are checked
// per call so the service can run unconfigured and report it cleanly.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type TransactionRequest struct {
	Amount        decimal.Decimal
	PayerName     string
	PayerDocument string
	// Reference is the order id; the processor echoes it as the
	// transaction description reference.
	Reference string
}

type TransactionResult struct {
	TransactionID     string
	PayerName         string
	PayerDocument     string
	Fee               decimal.Decimal
	TransactionType   string
	TransactionMethod string
	Amount            decimal.Decimal
	State             string
	QRCodeBase64      string
	QRCodeURL         string
	CopyPaste         string
}

type createTransactionRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PayerName     string          `json:"payerName"`
	PayerDocument string          `json:"payerDocument"`
	TransactionID string          `json:"transactionId"`
	Description   string          `json:"description"`
}

type createTransactionResponse struct {
	Message string `json:"message"`
	Data    struct {
		TransactionID string `json:"transactionId"`
		Payer         struct {
			Name     string `json:"name"`
			Document string `json:"document"`
		} `json:"payer"`
		TransactionFee    decimal.Decimal `json:"transactionFee"`
		TransactionType   string          `json:"transactionType"`
		TransactionMethod string          `json:"transactionMethod"`
		TransactionAmount decimal.Decimal `json:"transactionAmount"`
		TransactionState  string          `json:"transactionState"`
		QRCodeBase64      string          `json:"qrCodeBase64"`
		QRCodeURL         string          `json:"qrcodeUrl"`
		CopyPaste         string          `json:"copyPaste"`
	} `json:"data"`
}

func (c *Client) CreateTransaction(ctx context.Context, txn TransactionRequest) (*TransactionResult, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}

	body := createTransactionRequest{
		Amount:        txn.Amount,
		PayerName:     txn.PayerName,
		PayerDocument: txn.PayerDocument,
		TransactionID: txn.Reference,
		Description:   fmt.Sprintf("Pagamento R$ %s - #%s", txn.Amount.StringFixed(2), txn.Reference),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/transactions/create", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create transaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ci", c.cfg.ClientID)
	req.Header.Set("cs", c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create pix transaction: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var payload createTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode transaction response: %w", err)
	}

	return &TransactionResult{
		TransactionID:     payload.Data.TransactionID,
		PayerName:         payload.Data.Payer.Name,
		PayerDocument:     payload.Data.Payer.Document,
		Fee:               payload.Data.TransactionFee,
		TransactionType:   payload.Data.TransactionType,
		TransactionMethod: payload.Data.TransactionMethod,
		Amount:            payload.Data.TransactionAmount,
		State:             payload.Data.TransactionState,
		QRCodeBase64:      payload.Data.QRCodeBase64,
		QRCodeURL:         payload.Data.QRCodeURL,
		CopyPaste:         payload.Data.CopyPaste,
	}, nil
}
