package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence"
)

type FraudRepository struct {
	q persistence.Executor
}

func NewFraudRepository(db *persistence.DB) *FraudRepository {
	return &FraudRepository{q: db.Pool}
}

func (r *FraudRepository) SaveAssessment(ctx context.Context, assessment *domain.FraudAssessment) error {
	signals, err := signalsToJSON(assessment.Signals)
	if err != nil {
		return fmt.Errorf("encode fraud signals: %w", err)
	}

	query := `
		INSERT INTO fraud_assessments (
			id, transaction_id, order_id, buyer_id, score, level, decision, signals, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.q.Exec(ctx, query,
		assessment.ID, string(assessment.TransactionID), string(assessment.OrderID),
		string(assessment.BuyerID), assessment.Score, string(assessment.Level),
		string(assessment.Decision), signals, assessment.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save fraud assessment: %w", err)
	}
	return nil
}

func (r *FraudRepository) CreateOverride(ctx context.Context, override domain.FraudOverride) error {
	query := `
		INSERT INTO fraud_overrides (id, order_id, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.Exec(ctx, query,
		override.ID, string(override.OrderID), override.ActorID, override.Reason, override.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fraud override: %w", err)
	}
	return nil
}

func (r *FraudRepository) HasActiveOverride(ctx context.Context, orderID domain.OrderID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM fraud_overrides WHERE order_id = $1)`

	var exists bool
	if err := r.q.QueryRow(ctx, query, string(orderID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check fraud override: %w", err)
	}
	return exists, nil
}

// LatestAssessmentByTransaction returns the newest assessment recorded
// for the transaction, or (nil, nil) when the attempt never reached the
// risk evaluation step.
func (r *FraudRepository) LatestAssessmentByTransaction(ctx context.Context, txID domain.TransactionID) (*domain.FraudAssessment, error) {
	query := `
		SELECT id, transaction_id, order_id, buyer_id, score, level, decision, signals, evaluated_at
		FROM fraud_assessments
		WHERE transaction_id = $1
		ORDER BY evaluated_at DESC
		LIMIT 1
	`

	var m FraudAssessmentModel
	err := r.q.QueryRow(ctx, query, string(txID)).Scan(
		&m.ID, &m.TransactionID, &m.OrderID, &m.BuyerID,
		&m.Score, &m.Level, &m.Decision, &m.Signals, &m.EvaluatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find fraud assessment: %w", err)
	}
	return assessmentToDomain(m)
}

// RecentDecisionStats reports (total, blocked) assessments in the window.
func (r *FraudRepository) RecentDecisionStats(ctx context.Context, window time.Duration) (int64, int64, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE decision = 'BLOCK')
		FROM fraud_assessments
		WHERE evaluated_at > $1
	`

	var total, blocked int64
	if err := r.q.QueryRow(ctx, query, time.Now().Add(-window)).Scan(&total, &blocked); err != nil {
		return 0, 0, fmt.Errorf("failed to read fraud decision stats: %w", err)
	}
	return total, blocked, nil
}
