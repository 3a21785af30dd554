package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avolk/go_checkout/internal/payment"
	"github.com/lib/pq"
)

var ErrDuplicateOrder = errors.New("order already exists")

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateWithPayment(ctx context.Context, o *Order, p *payment.Payment) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal billing address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `INSERT INTO orders
	    (id, customer_id, status, items, shipping_address, billing_address,
	     total_items, subtotal, tax, shipping, total, created_at, updated_at)
	    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`

	if _, err := tx.ExecContext(ctx, orderQuery,
		o.ID,
		o.CustomerID,
		o.Status,
		itemsJSON,
		shippingJSON,
		billingJSON,
		o.Totals.TotalItems,
		o.Totals.Subtotal,
		o.Totals.Tax,
		o.Totals.Shipping,
		o.Totals.Total,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	paymentQuery := `INSERT INTO payments
	    (id, order_id, amount, method, status, attempts, created_at, updated_at)
	    VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, NOW(), NOW())`

	if _, err := tx.ExecContext(ctx, paymentQuery,
		p.ID,
		p.OrderID,
		p.Amount,
		p.Method,
		p.Status,
	); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order creation: %w", err)
	}
	return nil
}

const orderColumns = `id, customer_id, status, items, shipping_address, billing_address,
	total_items, subtotal, tax, shipping, total, cancellation_reason, created_at, updated_at, cancelled_at`

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, customerID)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from []Status, to Status, reason string) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	query := `UPDATE orders
	          SET status = $2,
	              cancellation_reason = CASE WHEN $3 <> '' THEN $3 ELSE cancellation_reason END,
	              cancelled_at = CASE WHEN $2 = 'cancelled' THEN NOW() ELSE cancelled_at END,
	              updated_at = NOW()
	          WHERE id = $1 AND status = ANY($4)`

	result, err := r.db.ExecContext(ctx, query, id, to, reason, pq.Array(fromStrs))
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE status = 'awaiting_payment' AND created_at < $1
	          ORDER BY created_at`
	return r.list(ctx, query, cutoff)
}

func (r *PostgresRepository) ListReservingBefore(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE status IN ('created', 'awaiting_payment') AND created_at < $1
	          ORDER BY created_at`
	return r.list(ctx, query, cutoff)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOrder(row scannable) (*Order, error) {
	var o Order
	var itemsJSON, shippingJSON, billingJSON []byte
	var reason sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.Status,
		&itemsJSON,
		&shippingJSON,
		&billingJSON,
		&o.Totals.TotalItems,
		&o.Totals.Subtotal,
		&o.Totals.Tax,
		&o.Totals.Shipping,
		&o.Totals.Total,
		&reason,
		&o.CreatedAt,
		&o.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal billing address: %w", err)
	}

	o.CancellationReason = reason.String
	if cancelledAt.Valid {
		t := cancelledAt.Time
		o.CancelledAt = &t
	}
	return &o, nil
}
