package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence"
)

const transactionColumns = `id, order_id, buyer_id, attempt, idempotency_key, amount_cents,
	       currency, method, status, gateway_reference, raw_response, claimed_at,
	       created_at, updated_at`

type TransactionRepository struct {
	q persistence.Executor
}

func NewTransactionRepository(db *persistence.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			id, order_id, buyer_id, attempt, idempotency_key, amount_cents,
			currency, method, status, gateway_reference, raw_response, claimed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.Exec(ctx, query,
		string(tx.ID), string(tx.OrderID), string(tx.BuyerID), tx.Attempt, tx.IdempotencyKey,
		tx.AmountCents, tx.Currency, string(tx.Method), string(tx.Status),
		tx.GatewayReference, tx.RawResponse, tx.ClaimedAt, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`
	return scanTransaction(r.q.QueryRow(ctx, query, string(id)))
}

func (r *TransactionRepository) FindByIDForUpdate(ctx context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1 FOR UPDATE`
	return scanTransaction(r.q.QueryRow(ctx, query, string(id)))
}

// FindActiveByOrderID returns the order's single non-terminal transaction.
// The state machine guarantees at most one exists.
func (r *TransactionRepository) FindActiveByOrderID(ctx context.Context, orderID domain.OrderID) (*domain.PaymentTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE order_id = $1
		  AND status NOT IN ('SETTLED', 'REFUNDED', 'CANCELLED', 'DECLINED')
		ORDER BY attempt DESC
		LIMIT 1
	`
	return scanTransaction(r.q.QueryRow(ctx, query, string(orderID)))
}

func (r *TransactionRepository) FindByGatewayReference(ctx context.Context, ref string) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE gateway_reference = $1`
	return scanTransaction(r.q.QueryRow(ctx, query, ref))
}

func (r *TransactionRepository) CountByOrderID(ctx context.Context, orderID domain.OrderID) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM payment_transactions WHERE order_id = $1`, string(orderID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions
		SET status = $1, gateway_reference = $2, raw_response = $3,
		    claimed_at = $4, updated_at = $5
		WHERE id = $6
	`

	tag, err := r.q.Exec(ctx, query,
		string(tx.Status), tx.GatewayReference, tx.RawResponse,
		tx.ClaimedAt, time.Now(), string(tx.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrTransactionNotFound
	}
	return nil
}

// FindStuck returns in-flight transactions that have not moved since the
// cutoff, oldest first, for background reconciliation.
func (r *TransactionRepository) FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE status IN ('AUTHORIZING', 'PROCESSING')
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stuck transactions: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentTransaction, error) {
		var m TransactionModel
		err := row.Scan(
			&m.ID, &m.OrderID, &m.BuyerID, &m.Attempt, &m.IdempotencyKey, &m.AmountCents,
			&m.Currency, &m.Method, &m.Status, &m.GatewayReference, &m.RawResponse, &m.ClaimedAt,
			&m.CreatedAt, &m.UpdatedAt,
		)
		return transactionToDomain(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan stuck transactions: %w", err)
	}
	return results, nil
}

func scanTransaction(row pgx.Row) (*domain.PaymentTransaction, error) {
	var m TransactionModel
	err := row.Scan(
		&m.ID, &m.OrderID, &m.BuyerID, &m.Attempt, &m.IdempotencyKey, &m.AmountCents,
		&m.Currency, &m.Method, &m.Status, &m.GatewayReference, &m.RawResponse, &m.ClaimedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
	}
	return transactionToDomain(m), nil
}
