// Package handlers wires the HTTP endpoints to the application services.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/application/services"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/webhook"
)

const maxBodyBytes = 1 << 20

// GrantSource resolves an actor's permission grants at request time. The
// grants are issued by the auth collaborator; this service only reads them.
type GrantSource interface {
	GrantsFor(ctx context.Context, actorID string) ([]domain.PermissionGrant, error)
}

type Handlers struct {
	charges  *services.ChargeService
	cancels  *services.CancelService
	queries  *services.QueryService
	admin    *services.AdminService
	health   *services.HealthService
	webhooks *webhook.Reconciler
	grants   GrantSource
	logger   *slog.Logger
}

func NewHandlers(
	charges *services.ChargeService,
	cancels *services.CancelService,
	queries *services.QueryService,
	admin *services.AdminService,
	health *services.HealthService,
	webhooks *webhook.Reconciler,
	grants GrantSource,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		charges:  charges,
		cancels:  cancels,
		queries:  queries,
		admin:    admin,
		health:   health,
		webhooks: webhooks,
		grants:   grants,
		logger:   logger,
	}
}

// Register binds every route on the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/orders/{id}/charge", h.Charge)
	mux.HandleFunc("POST /api/v1/orders/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/v1/transactions/{id}", h.GetTransaction)
	mux.HandleFunc("POST /api/v1/webhooks/gateway", h.GatewayWebhook)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/admin/refunds", h.Refund)
	mux.HandleFunc("POST /api/v1/admin/commissions/adjust", h.AdjustCommission)
	mux.HandleFunc("POST /api/v1/admin/fraud/override", h.OverrideFraud)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return application.NewValidationError(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// actorFrom builds the authenticated principal for admin endpoints. The
// upstream proxy authenticates the session and forwards the identity; the
// grants themselves are loaded fresh so revocations apply immediately.
func (h *Handlers) actorFrom(r *http.Request) (domain.Actor, error) {
	actorID := r.Header.Get("X-Actor-ID")
	if actorID == "" {
		return domain.Actor{}, application.NewPermissionDeniedError(errors.New("actor identity missing"))
	}

	grants, err := h.grants.GrantsFor(r.Context(), actorID)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{
		ID:     actorID,
		Role:   r.Header.Get("X-Actor-Role"),
		Grants: grants,
	}, nil
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
