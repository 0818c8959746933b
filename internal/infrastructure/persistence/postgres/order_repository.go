// Package postgres implements the repository ports on pgx. Every
// repository holds an Executor so the transaction coordinator can rebind
// the same code to a database transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence"
)

const orderColumns = `id, buyer_id, line_items, subtotal_cents, tax_cents, shipping_cents,
	       discount_cents, total_cents, currency, status, created_at, cancelled_at`

type OrderRepository struct {
	q persistence.Executor
}

func NewOrderRepository(db *persistence.DB) *OrderRepository {
	return &OrderRepository{q: db.Pool}
}

func (r *OrderRepository) FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.q.QueryRow(ctx, query, string(id)))
}

// FindByIDForUpdate takes the per-order row lock that serializes every
// writer touching the same order.
func (r *OrderRepository) FindByIDForUpdate(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(r.q.QueryRow(ctx, query, string(id)))
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $1, cancelled_at = $2
		WHERE id = $3
	`

	tag, err := r.q.Exec(ctx, query, string(order.Status), order.CancelledAt, string(order.ID))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrOrderNotFound
	}
	return nil
}

// AverageOrderCents averages the buyer's paid orders; 0 means no history.
func (r *OrderRepository) AverageOrderCents(ctx context.Context, buyerID domain.BuyerID) (int64, error) {
	query := `
		SELECT COALESCE(AVG(total_cents), 0)::bigint
		FROM orders
		WHERE buyer_id = $1 AND status IN ('PAID', 'REFUNDED')
	`

	var avg int64
	if err := r.q.QueryRow(ctx, query, string(buyerID)).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to average buyer orders: %w", err)
	}
	return avg, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var m OrderModel
	err := row.Scan(
		&m.ID, &m.BuyerID, &m.LineItems, &m.SubtotalCents, &m.TaxCents, &m.ShippingCents,
		&m.DiscountCents, &m.TotalCents, &m.Currency, &m.Status, &m.CreatedAt, &m.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return orderToDomain(m)
}
