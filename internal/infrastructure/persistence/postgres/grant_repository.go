package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/infrastructure/persistence"
)

// GrantRepository reads the permission grants synced from the auth
// collaborator. This service never issues or revokes grants.
type GrantRepository struct {
	q persistence.Executor
}

func NewGrantRepository(db *persistence.DB) *GrantRepository {
	return &GrantRepository{q: db.Pool}
}

// GrantsFor returns the actor's unexpired grants.
func (r *GrantRepository) GrantsFor(ctx context.Context, actorID string) ([]domain.PermissionGrant, error) {
	query := `
		SELECT actor_id, scope, constraint_ref, granted_by, granted_at, expires_at
		FROM permission_grants
		WHERE actor_id = $1 AND expires_at > $2
	`

	rows, err := r.q.Query(ctx, query, actorID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query permission grants: %w", err)
	}

	grants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PermissionGrant, error) {
		var g domain.PermissionGrant
		var scope string
		err := row.Scan(&g.ActorID, &scope, &g.Constraint, &g.GrantedBy, &g.GrantedAt, &g.ExpiresAt)
		g.Scope = domain.Scope(scope)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan permission grants: %w", err)
	}
	return grants, nil
}
