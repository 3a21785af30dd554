package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `id, order_id, amount, method, status, correlation_id, attempts, created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, orderID))
}

func (r *PostgresRepository) BeginProcessing(ctx context.Context, id, correlationID string, attempt Attempt) (bool, error) {
	attemptJSON, err := marshalAttempt(attempt)
	if err != nil {
		return false, err
	}

	query := `UPDATE payments
	          SET status = $2, correlation_id = $3, attempts = attempts || $4::jsonb, updated_at = NOW()
	          WHERE id = $1 AND status = $5`

	result, err := r.db.ExecContext(ctx, query, id, StatusProcessing, correlationID, attemptJSON, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to begin processing payment: %w", err)
	}
	return affected(result)
}

func (r *PostgresRepository) Resolve(ctx context.Context, id string, to Status, attempt Attempt) (bool, error) {
	if to != StatusSuccess && to != StatusFailed {
		return false, ErrIllegalPaymentState
	}

	attemptJSON, err := marshalAttempt(attempt)
	if err != nil {
		return false, err
	}

	query := `UPDATE payments
	          SET status = $2, attempts = attempts || $3::jsonb, updated_at = NOW()
	          WHERE id = $1 AND status IN ($4, $5)`

	result, err := r.db.ExecContext(ctx, query, id, to, attemptJSON, StatusPending, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to resolve payment: %w", err)
	}
	return affected(result)
}

func (r *PostgresRepository) Void(ctx context.Context, id string, attempt Attempt) (bool, error) {
	attemptJSON, err := marshalAttempt(attempt)
	if err != nil {
		return false, err
	}

	query := `UPDATE payments
	          SET status = $2, attempts = attempts || $3::jsonb, updated_at = NOW()
	          WHERE id = $1 AND status IN ($4, $5)`

	result, err := r.db.ExecContext(ctx, query, id, StatusCancelled, attemptJSON, StatusPending, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to void payment: %w", err)
	}
	return affected(result)
}

func (r *PostgresRepository) MarkRefunded(ctx context.Context, id string, attempt Attempt) (bool, error) {
	attemptJSON, err := marshalAttempt(attempt)
	if err != nil {
		return false, err
	}

	query := `UPDATE payments
	          SET status = $2, attempts = attempts || $3::jsonb, updated_at = NOW()
	          WHERE id = $1 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, id, StatusRefunded, attemptJSON, StatusSuccess)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	return affected(result)
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*Payment, error) {
	var p Payment
	var correlationID sql.NullString
	var attemptsJSON []byte

	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.Method,
		&p.Status,
		&correlationID,
		&attemptsJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	p.CorrelationID = correlationID.String
	if len(attemptsJSON) > 0 {
		if err := json.Unmarshal(attemptsJSON, &p.Attempts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment attempts: %w", err)
		}
	}
	return &p, nil
}

// marshalAttempt produces a one-element jsonb array so `attempts || $n`
// appends rather than merges.
func marshalAttempt(a Attempt) ([]byte, error) {
	data, err := json.Marshal([]Attempt{a})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment attempt: %w", err)
	}
	return data, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
