// Package authz implements the fail-secure permission gate in front of
// administrative overrides. A decision is Allowed only when an explicit,
// unexpired grant matches the requested scope and resource structurally;
// role names never short-circuit the check.
package authz

import (
	"log/slog"
	"strings"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

type Gate struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewGate(logger *slog.Logger) *Gate {
	return &Gate{logger: logger, now: time.Now}
}

// Authorize returns nil when the actor holds a matching grant, and
// domain.ErrPermissionDenied otherwise. Denials are logged with the
// reason; there is no path to Allowed that skips grant matching.
func (g *Gate) Authorize(actor domain.Actor, scope domain.Scope, resource domain.Resource) error {
	now := g.now()

	for _, grant := range actor.Grants {
		if grant.ActorID != actor.ID {
			continue
		}
		if grant.Scope != scope {
			continue
		}
		if !grant.ExpiresAt.IsZero() && !grant.ExpiresAt.After(now) {
			continue
		}
		if !constraintMatches(grant.Constraint, resource) {
			continue
		}

		g.logger.Info("administrative action authorized",
			"actor_id", actor.ID,
			"scope", scope,
			"resource", resourceRef(resource),
			"granted_by", grant.GrantedBy,
		)
		return nil
	}

	g.logger.Warn("administrative action denied",
		"actor_id", actor.ID,
		"role", actor.Role,
		"scope", scope,
		"resource", resourceRef(resource),
	)
	return domain.ErrPermissionDenied
}

// constraintMatches evaluates the grant's resource constraint against the
// concrete resource. Supported forms: "*", "order:<id>", "vendor:<id>".
// Unknown or empty constraints match nothing.
func constraintMatches(constraint string, resource domain.Resource) bool {
	if constraint == "*" {
		return true
	}

	kind, id, ok := strings.Cut(constraint, ":")
	if !ok || id == "" {
		return false
	}

	switch kind {
	case "order":
		return resource.OrderID != "" && string(resource.OrderID) == id
	case "vendor":
		return resource.VendorID != "" && string(resource.VendorID) == id
	default:
		return false
	}
}

func resourceRef(resource domain.Resource) string {
	switch {
	case resource.OrderID != "":
		return "order:" + string(resource.OrderID)
	case resource.VendorID != "":
		return "vendor:" + string(resource.VendorID)
	default:
		return "*"
	}
}

// ResourceRef renders the resource the way audit entries reference it.
func ResourceRef(resource domain.Resource) string {
	return resourceRef(resource)
}
