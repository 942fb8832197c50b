package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/brpix/checkout/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, name, document, phone, postal_code, street, number, complement, city,
		amount, payment_method, status, pix_code, pix_qr_code_url, pix_transaction_id, created_at, updated_at`

// Create assigns the order id and timestamps. Caller-supplied ids are
// overwritten.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	order.ID = uuid.New().String()
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, name, document, phone, postal_code, street, number, complement, city,
			amount, payment_method, status, pix_code, pix_qr_code_url, pix_transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`, order.ID, order.Name, order.Document, order.Phone, order.PostalCode, order.Street, order.Number,
		order.Complement, order.City, order.Amount, order.PaymentMethod, order.Status,
		order.PixCode, order.PixQRCodeURL, order.PixTransactionID, now)
	return err
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getWhere(ctx, "id = $1", id)
}

// GetByTransactionID resolves an order by the processor transaction id
// captured on processor success. Empty ids never match anything.
func (r *OrderRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Order, error) {
	if transactionID == "" {
		return nil, nil
	}
	return r.getWhere(ctx, "pix_transaction_id = $1", transactionID)
}

func (r *OrderRepository) getWhere(ctx context.Context, where string, arg any) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+where,
		arg,
	).Scan(&order.ID, &order.Name, &order.Document, &order.Phone, &order.PostalCode,
		&order.Street, &order.Number, &order.Complement, &order.City,
		&order.Amount, &order.PaymentMethod, &order.Status,
		&order.PixCode, &order.PixQRCodeURL, &order.PixTransactionID,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return order, nil
}

// SetPaymentDetails records the processor outcome on an order. Returns the
// updated order, or nil when the order no longer exists.
func (r *OrderRepository) SetPaymentDetails(ctx context.Context, id, transactionID, pixCode, qrCodeURL string, status domain.OrderStatus) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET pix_transaction_id = $2, pix_code = $3, pix_qr_code_url = $4, status = $5, updated_at = NOW()
		WHERE id = $1
	`, id, transactionID, pixCode, qrCodeURL, status)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

// UpdateStatusFrom transitions an order only when its current status still
// matches from. Reports whether a row changed, which makes repeated
// confirmations of a terminal status safe to apply.
func (r *OrderRepository) UpdateStatusFrom(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// Delete removes an order, reporting whether a row existed. Used as the
// compensating action when the processor call fails.
func (r *OrderRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM orders WHERE id = $1
	`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
