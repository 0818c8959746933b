package postgres

import (
	"context"
	"fmt"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence"
)

// AuditRepository is append-only; there is no update or delete path.
type AuditRepository struct {
	q persistence.Executor
}

func NewAuditRepository(db *persistence.DB) *AuditRepository {
	return &AuditRepository{q: db.Pool}
}

func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (
			id, actor_id, action, scope, resource_ref,
			before_snapshot, after_snapshot, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.Exec(ctx, query,
		entry.ID, entry.ActorID, entry.Action, string(entry.Scope), entry.ResourceRef,
		entry.BeforeSnapshot, entry.AfterSnapshot, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
