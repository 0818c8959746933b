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

const commissionColumns = `id, transaction_id, vendor_id, gross_cents, platform_fee_cents,
	       vendor_payout_cents, rate_applied, rounding_adjust_cents, created_at`

type CommissionRepository struct {
	q persistence.Executor
}

func NewCommissionRepository(db *persistence.DB) *CommissionRepository {
	return &CommissionRepository{q: db.Pool}
}

// CreateAll inserts the full commission set for a transaction. The unique
// index on (transaction_id, vendor_id) is the settlement single-writer
// guard: losing the race surfaces as ErrCommissionAlreadyComputed. The
// conflict is absorbed with DO NOTHING rather than a raised violation, so
// the enclosing database transaction stays usable and the loser can still
// finish the status transition. Rows a crashed writer never got to are
// filled in; the split is deterministic, so they carry the same amounts.
func (r *CommissionRepository) CreateAll(ctx context.Context, commissions []domain.Commission) error {
	query := `
		INSERT INTO commissions (
			id, transaction_id, vendor_id, gross_cents, platform_fee_cents,
			vendor_payout_cents, rate_applied, rounding_adjust_cents, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id, vendor_id) DO NOTHING
	`

	skipped := 0
	for _, c := range commissions {
		tag, err := r.q.Exec(ctx, query,
			c.ID, string(c.TransactionID), string(c.VendorID),
			c.GrossCents, c.PlatformFeeCents, c.VendorPayoutCents,
			c.RateApplied, c.RoundingAdjustCents, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create commission: %w", err)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		}
	}
	if skipped > 0 {
		return application.ErrCommissionAlreadyComputed
	}
	return nil
}

func (r *CommissionRepository) ListByTransaction(ctx context.Context, txID domain.TransactionID) ([]domain.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE transaction_id = $1 ORDER BY vendor_id`

	rows, err := r.q.Query(ctx, query, string(txID))
	if err != nil {
		return nil, fmt.Errorf("query commissions: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Commission, error) {
		m, err := scanCommissionRow(row)
		return commissionToDomain(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan commissions: %w", err)
	}
	return results, nil
}

func (r *CommissionRepository) FindByID(ctx context.Context, id string) (*domain.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE id = $1`

	m, err := scanCommissionRow(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, application.ErrCommissionNotFound
		}
		return nil, fmt.Errorf("failed to scan commission: %w", err)
	}
	c := commissionToDomain(m)
	return &c, nil
}

// CreateAdjustment appends a correction row; the commission itself is
// never updated.
func (r *CommissionRepository) CreateAdjustment(ctx context.Context, adj domain.CommissionAdjustment) error {
	query := `
		INSERT INTO commission_adjustments (id, commission_id, delta_cents, reason, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.Exec(ctx, query, adj.ID, adj.CommissionID, adj.DeltaCents, adj.Reason, adj.ActorID, adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create commission adjustment: %w", err)
	}
	return nil
}

func scanCommissionRow(row pgx.Row) (CommissionModel, error) {
	var m CommissionModel
	err := row.Scan(
		&m.ID, &m.TransactionID, &m.VendorID, &m.GrossCents, &m.PlatformFeeCents,
		&m.VendorPayoutCents, &m.RateApplied, &m.RoundingAdjustCents, &m.CreatedAt,
	)
	return m, err
}

type CommissionRuleRepository struct {
	q persistence.Executor
}

func NewCommissionRuleRepository(db *persistence.DB) *CommissionRuleRepository {
	return &CommissionRuleRepository{q: db.Pool}
}

// ListForVendors returns every rule configured for the given vendors;
// effective-date selection happens in the commission calculator.
func (r *CommissionRuleRepository) ListForVendors(ctx context.Context, vendors []domain.VendorID) ([]domain.CommissionRule, error) {
	ids := make([]string, 0, len(vendors))
	for _, v := range vendors {
		ids = append(ids, string(v))
	}

	query := `
		SELECT vendor_id, rate, effective_from, effective_to
		FROM commission_rules
		WHERE vendor_id = ANY($1)
	`

	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query commission rules: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CommissionRule, error) {
		var m CommissionRuleModel
		err := row.Scan(&m.VendorID, &m.Rate, &m.EffectiveFrom, &m.EffectiveTo)
		return ruleToDomain(m), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan commission rules: %w", err)
	}
	return results, nil
}
