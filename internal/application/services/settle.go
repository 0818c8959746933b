// Package services orchestrates the payment lifecycle: charge attempts,
// gateway outcome folding, settlement, cancellation and the audited
// administrative overrides.
package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/commission"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// SettlementService folds gateway outcomes into transactions and settles
// approved ones. The same code path serves synchronous charge responses,
// webhooks and background reconciliation, which is what makes duplicate
// notifications harmless.
type SettlementService struct {
	txm    application.TxManager
	logger *slog.Logger
}

func NewSettlementService(txm application.TxManager, logger *slog.Logger) *SettlementService {
	return &SettlementService{txm: txm, logger: logger}
}

// ApplyGatewayResult applies an asynchronous gateway outcome identified by
// gateway reference. Unknown references are an error; updates for terminal
// transactions are discarded without touching state.
func (s *SettlementService) ApplyGatewayResult(ctx context.Context, gatewayRef string, result *application.GatewayResult) error {
	return s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		tx, err := repos.Transactions.FindByGatewayReference(ctx, gatewayRef)
		if err != nil {
			return err
		}

		// lock order first, then transaction; every writer uses this order
		order, err := repos.Orders.FindByIDForUpdate(ctx, tx.OrderID)
		if err != nil {
			return err
		}
		locked, err := repos.Transactions.FindByIDForUpdate(ctx, tx.ID)
		if err != nil {
			return err
		}

		return s.applyLocked(ctx, repos, order, locked, result)
	})
}

// applyLocked folds result into a transaction already locked for update.
// Idempotent: re-delivery of a status the transaction already reached, or
// any update on top of a terminal state, is a success no-op.
func (s *SettlementService) applyLocked(ctx context.Context, repos *application.Repositories, order *domain.Order, tx *domain.PaymentTransaction, result *application.GatewayResult) error {
	if tx.IsTerminal() {
		s.logger.Info("gateway update for terminal transaction discarded",
			"transaction_id", tx.ID,
			"status", tx.Status,
			"gateway_status", result.Status,
		)
		return nil
	}

	if tx.Status == domain.StatusAuthorizing && result.GatewayReference != "" {
		// the synchronous response was lost; the webhook carries the first
		// acknowledgement we see
		if err := tx.MarkProcessing(result.GatewayReference, result.RawPayload); err != nil {
			return err
		}
	}

	changed, err := tx.ApplyGatewayStatus(transactionStatusFor(result.Status), result.RawPayload)
	if err != nil {
		return err
	}

	if changed && tx.Status == domain.StatusApproved {
		if err := s.settleLocked(ctx, repos, order, tx); err != nil {
			return err
		}
	}

	return repos.Transactions.Update(ctx, tx)
}

// settleLocked moves an APPROVED transaction to SETTLED: computes the
// commission split, records it, and marks the order paid. The unique
// constraint on (transaction_id, vendor_id) makes the commission write the
// single-writer guard; a loser of that race treats it as already done.
func (s *SettlementService) settleLocked(ctx context.Context, repos *application.Repositories, order *domain.Order, tx *domain.PaymentTransaction) error {
	vendors, _ := order.VendorSubtotals()
	rules, err := repos.CommissionRules.ListForVendors(ctx, vendors)
	if err != nil {
		return err
	}

	commissions, err := commission.Compute(commission.Input{
		TransactionID: tx.ID,
		AmountCents:   tx.AmountCents,
		Currency:      tx.Currency,
		Lines:         order.Lines,
		Rules:         rules,
		At:            tx.CreatedAt,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range commissions {
		commissions[i].ID = uuid.New().String()
		commissions[i].CreatedAt = now
	}

	err = repos.Commissions.CreateAll(ctx, commissions)
	switch {
	case err == nil:
	case errors.Is(err, application.ErrCommissionAlreadyComputed):
		s.logger.Info("commissions already recorded, continuing settlement",
			"transaction_id", tx.ID,
		)
	default:
		return err
	}

	if err := tx.Settle(); err != nil {
		return err
	}
	if order.Status == domain.OrderPendingPayment {
		if err := order.MarkPaid(); err != nil {
			return err
		}
		if err := repos.Orders.UpdateStatus(ctx, order); err != nil {
			return err
		}
	}

	s.logger.Info("transaction settled",
		"transaction_id", tx.ID,
		"order_id", order.ID,
		"amount_cents", tx.AmountCents,
		"vendors", len(commissions),
	)
	return nil
}

func transactionStatusFor(status application.GatewayStatus) domain.TransactionStatus {
	switch status {
	case application.GatewayStatusApproved:
		return domain.StatusApproved
	case application.GatewayStatusDeclined:
		return domain.StatusDeclined
	default:
		return domain.StatusProcessing
	}
}
