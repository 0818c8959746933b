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

// IdempotencyRepository enforces at-most-once semantics for the charge
// endpoint via the unique constraint on key.
type IdempotencyRepository struct {
	q persistence.Executor
}

func NewIdempotencyRepository(db *persistence.DB) *IdempotencyRepository {
	return &IdempotencyRepository{q: db.Pool}
}

func (r *IdempotencyRepository) AcquireLock(ctx context.Context, key, requestHash string) error {
	query := `
		INSERT INTO idempotency_keys (key, request_hash, locked_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.q.Exec(ctx, query, key, requestHash, time.Now())
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return application.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to acquire idempotency lock: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) FindByKey(ctx context.Context, key string) (*application.IdempotencyRecord, error) {
	query := `
		SELECT key, transaction_id, request_hash, locked_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var rec application.IdempotencyRecord
	err := r.q.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.TransactionID, &rec.RequestHash, &rec.LockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find idempotency key: %w", err)
	}
	return &rec, nil
}

// ReleaseLock drops an unbound key. The transaction_id guard keeps a
// completed request's record intact even if a late caller races this.
func (r *IdempotencyRepository) ReleaseLock(ctx context.Context, key string) error {
	query := `DELETE FROM idempotency_keys WHERE key = $1 AND transaction_id IS NULL`

	if _, err := r.q.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to release idempotency lock: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) BindTransaction(ctx context.Context, key string, txID domain.TransactionID) error {
	query := `UPDATE idempotency_keys SET transaction_id = $1 WHERE key = $2`

	tag, err := r.q.Exec(ctx, query, string(txID), key)
	if err != nil {
		return fmt.Errorf("failed to bind idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency key %s not found", key)
	}
	return nil
}
