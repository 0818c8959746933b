package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/authz"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// PermissionGate decides administrative access. Implemented by authz.Gate.
type PermissionGate interface {
	Authorize(actor domain.Actor, scope domain.Scope, resource domain.Resource) error
}

// AdminService runs the three audited overrides: refunds, commission
// adjustments and fraud overrides. Every mutation commits in the same
// database transaction as its audit entry, audit write first; if the
// entry cannot be written the whole operation rolls back.
type AdminService struct {
	repos  *application.Repositories
	txm    application.TxManager
	gate   PermissionGate
	logger *slog.Logger
}

func NewAdminService(repos *application.Repositories, txm application.TxManager, gate PermissionGate, logger *slog.Logger) *AdminService {
	return &AdminService{repos: repos, txm: txm, gate: gate, logger: logger}
}

// Refund reverses a settled transaction. Requires the refund:issue scope
// constrained to the transaction's order (or a wildcard grant).
func (s *AdminService) Refund(ctx context.Context, actor domain.Actor, cmd RefundCommand) error {
	if cmd.Reason == "" {
		return application.NewValidationError(domain.NewMissingRequiredFieldError("reason"))
	}

	tx, err := s.repos.Transactions.FindByID(ctx, cmd.TransactionID)
	if err != nil {
		if errors.Is(err, application.ErrTransactionNotFound) {
			return application.NewNotFoundError("transaction")
		}
		return err
	}

	resource := domain.Resource{OrderID: tx.OrderID}
	if err := s.gate.Authorize(actor, domain.ScopeRefundIssue, resource); err != nil {
		return application.NewPermissionDeniedError(err)
	}

	return s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		order, err := repos.Orders.FindByIDForUpdate(ctx, tx.OrderID)
		if err != nil {
			return err
		}
		locked, err := repos.Transactions.FindByIDForUpdate(ctx, cmd.TransactionID)
		if err != nil {
			return err
		}

		before := snapshot(locked)
		if err := locked.Refund(); err != nil {
			return application.NewInvalidStateError(err)
		}
		if err := order.MarkRefunded(); err != nil {
			return application.NewInvalidStateError(err)
		}

		entry := &domain.AuditLogEntry{
			ID:             uuid.New().String(),
			ActorID:        actor.ID,
			Action:         "refund.issue",
			Scope:          domain.ScopeRefundIssue,
			ResourceRef:    authz.ResourceRef(resource),
			BeforeSnapshot: before,
			AfterSnapshot:  snapshot(locked),
			Reason:         cmd.Reason,
			CreatedAt:      time.Now(),
		}
		// no audit entry, no refund
		if err := repos.Audit.Append(ctx, entry); err != nil {
			return application.NewAuditPersistenceError(err)
		}

		if err := repos.Transactions.Update(ctx, locked); err != nil {
			return err
		}
		if err := repos.Orders.UpdateStatus(ctx, order); err != nil {
			return err
		}

		s.logger.Info("refund issued",
			"transaction_id", cmd.TransactionID,
			"order_id", tx.OrderID,
			"actor_id", actor.ID,
		)
		return nil
	})
}

// AdjustCommission records an append-only correction against a settled
// commission. Positive deltas move money from the platform fee to the
// vendor payout; the transaction total is untouched either way.
func (s *AdminService) AdjustCommission(ctx context.Context, actor domain.Actor, cmd AdjustCommissionCommand) error {
	if cmd.Reason == "" {
		return application.NewValidationError(domain.NewMissingRequiredFieldError("reason"))
	}
	if cmd.DeltaCents == 0 {
		return application.NewValidationError(fmt.Errorf("adjustment delta must be non-zero"))
	}

	comm, err := s.repos.Commissions.FindByID(ctx, cmd.CommissionID)
	if err != nil {
		if errors.Is(err, application.ErrCommissionNotFound) {
			return application.NewNotFoundError("commission")
		}
		return err
	}

	resource := domain.Resource{VendorID: comm.VendorID}
	if err := s.gate.Authorize(actor, domain.ScopeCommissionAdjust, resource); err != nil {
		return application.NewPermissionDeniedError(err)
	}

	if comm.VendorPayoutCents+cmd.DeltaCents < 0 || comm.PlatformFeeCents-cmd.DeltaCents < 0 {
		return application.NewValidationError(
			fmt.Errorf("delta of %d cents would drive a balance negative", cmd.DeltaCents))
	}

	return s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		adj := domain.CommissionAdjustment{
			ID:           uuid.New().String(),
			CommissionID: cmd.CommissionID,
			DeltaCents:   cmd.DeltaCents,
			Reason:       cmd.Reason,
			ActorID:      actor.ID,
			CreatedAt:    time.Now(),
		}

		entry := &domain.AuditLogEntry{
			ID:             uuid.New().String(),
			ActorID:        actor.ID,
			Action:         "commission.adjust",
			Scope:          domain.ScopeCommissionAdjust,
			ResourceRef:    authz.ResourceRef(resource),
			BeforeSnapshot: snapshot(comm),
			AfterSnapshot:  snapshot(adj),
			Reason:         cmd.Reason,
			CreatedAt:      adj.CreatedAt,
		}
		if err := repos.Audit.Append(ctx, entry); err != nil {
			return application.NewAuditPersistenceError(err)
		}

		if err := repos.Commissions.CreateAdjustment(ctx, adj); err != nil {
			return err
		}

		s.logger.Info("commission adjusted",
			"commission_id", cmd.CommissionID,
			"vendor_id", comm.VendorID,
			"delta_cents", cmd.DeltaCents,
			"actor_id", actor.ID,
		)
		return nil
	})
}

// OverrideFraud lets a blocked or challenged order proceed on its next
// charge attempt. The override is scoped to one order.
func (s *AdminService) OverrideFraud(ctx context.Context, actor domain.Actor, cmd OverrideFraudCommand) error {
	if cmd.Reason == "" {
		return application.NewValidationError(domain.NewMissingRequiredFieldError("reason"))
	}

	if _, err := s.repos.Orders.FindByID(ctx, cmd.OrderID); err != nil {
		if errors.Is(err, application.ErrOrderNotFound) {
			return application.NewNotFoundError("order")
		}
		return err
	}

	resource := domain.Resource{OrderID: cmd.OrderID}
	if err := s.gate.Authorize(actor, domain.ScopeFraudOverride, resource); err != nil {
		return application.NewPermissionDeniedError(err)
	}

	return s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		override := domain.FraudOverride{
			ID:        uuid.New().String(),
			OrderID:   cmd.OrderID,
			ActorID:   actor.ID,
			Reason:    cmd.Reason,
			CreatedAt: time.Now(),
		}

		entry := &domain.AuditLogEntry{
			ID:            uuid.New().String(),
			ActorID:       actor.ID,
			Action:        "fraud.override",
			Scope:         domain.ScopeFraudOverride,
			ResourceRef:   authz.ResourceRef(resource),
			AfterSnapshot: snapshot(override),
			Reason:        cmd.Reason,
			CreatedAt:     override.CreatedAt,
		}
		if err := repos.Audit.Append(ctx, entry); err != nil {
			return application.NewAuditPersistenceError(err)
		}

		if err := repos.Fraud.CreateOverride(ctx, override); err != nil {
			return err
		}

		s.logger.Warn("fraud override recorded",
			"order_id", cmd.OrderID,
			"actor_id", actor.ID,
			"reason", cmd.Reason,
		)
		return nil
	})
}
