package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence"
)

// TransactionCoordinator implements application.TxManager. The function
// receives a repository set bound to one database transaction; any error
// rolls the whole unit back, audit entries included.
type TransactionCoordinator struct {
	pool *pgxpool.Pool
}

func NewTransactionCoordinator(db *persistence.DB) *TransactionCoordinator {
	return &TransactionCoordinator{pool: db.Pool}
}

func (tc *TransactionCoordinator) WithTx(ctx context.Context, fn func(ctx context.Context, repos *application.Repositories) error) error {
	tx, err := tc.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NewRepositories binds every repository to the given executor, either the
// shared pool or an open transaction.
func NewRepositories(q persistence.Executor) *application.Repositories {
	return &application.Repositories{
		Orders:          &OrderRepository{q: q},
		Transactions:    &TransactionRepository{q: q},
		Commissions:     &CommissionRepository{q: q},
		CommissionRules: &CommissionRuleRepository{q: q},
		Fraud:           &FraudRepository{q: q},
		Audit:           &AuditRepository{q: q},
		Idempotency:     &IdempotencyRepository{q: q},
	}
}
