// Package worker runs the background reconciliation loop that resolves
// transactions whose gateway outcome never arrived.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// ResultApplier is the shared settlement entry point; duplicate results
// are no-ops there, so reconciliation never double-settles.
type ResultApplier interface {
	ApplyGatewayResult(ctx context.Context, gatewayRef string, result *application.GatewayResult) error
}

// Reconciler periodically sweeps stuck transactions: PROCESSING ones are
// resolved by querying the gateway, AUTHORIZING ones with a lapsed claim
// get the claim released so the buyer's retry can take over.
type Reconciler struct {
	repos      *application.Repositories
	txm        application.TxManager
	gateway    application.GatewayClient
	applier    ResultApplier
	interval   time.Duration
	stuckAfter time.Duration
	batchSize  int
	logger     *slog.Logger
}

func NewReconciler(
	repos *application.Repositories,
	txm application.TxManager,
	gateway application.GatewayClient,
	applier ResultApplier,
	interval time.Duration,
	stuckAfter time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		repos:      repos,
		txm:        txm,
		gateway:    gateway,
		applier:    applier,
		interval:   interval,
		stuckAfter: stuckAfter,
		batchSize:  batchSize,
		logger:     logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("starting background reconciler",
		"interval", r.interval,
		"stuck_after", r.stuckAfter,
		"batch_size", r.batchSize,
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping background reconciler")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single reconciliation sweep.
func (r *Reconciler) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.stuckAfter)
	stuck, err := r.repos.Transactions.FindStuck(ctx, cutoff, r.batchSize)
	if err != nil {
		r.logger.Error("failed to fetch stuck transactions", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	r.logger.Info("reconciling stuck transactions", "count", len(stuck))

	for _, tx := range stuck {
		switch tx.Status {
		case domain.StatusProcessing:
			r.resolveProcessing(ctx, tx)
		case domain.StatusAuthorizing:
			r.releaseLapsedClaim(ctx, tx)
		}
	}
}

// resolveProcessing asks the gateway for the authoritative status of a
// transaction whose webhook never arrived.
func (r *Reconciler) resolveProcessing(ctx context.Context, tx *domain.PaymentTransaction) {
	if tx.GatewayReference == nil {
		// should not happen: PROCESSING always has a reference
		r.logger.Error("processing transaction has no gateway reference", "transaction_id", tx.ID)
		return
	}

	result, err := r.gateway.QueryStatus(ctx, *tx.GatewayReference)
	if err != nil {
		r.logger.Warn("gateway status query failed, will retry next sweep",
			"transaction_id", tx.ID,
			"reference", *tx.GatewayReference,
			"error", err,
		)
		return
	}

	if result.Status == application.GatewayStatusPending {
		r.logger.Info("transaction still pending at the gateway",
			"transaction_id", tx.ID,
			"reference", *tx.GatewayReference,
		)
		return
	}

	if err := r.applier.ApplyGatewayResult(ctx, *tx.GatewayReference, result); err != nil {
		r.logger.Error("failed to apply reconciled status",
			"transaction_id", tx.ID,
			"status", result.Status,
			"error", err,
		)
		return
	}
	r.logger.Info("reconciled stuck transaction",
		"transaction_id", tx.ID,
		"status", result.Status,
	)
}

// releaseLapsedClaim frees an AUTHORIZING transaction whose in-flight
// gateway claim outlived any plausible call.
func (r *Reconciler) releaseLapsedClaim(ctx context.Context, tx *domain.PaymentTransaction) {
	if !tx.ClaimStale(time.Now(), r.stuckAfter) {
		return
	}

	err := r.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		locked, err := repos.Transactions.FindByIDForUpdate(ctx, tx.ID)
		if err != nil {
			return err
		}
		if locked.Status != domain.StatusAuthorizing || !locked.ClaimStale(time.Now(), r.stuckAfter) {
			return nil
		}
		locked.ReleaseClaim()
		return repos.Transactions.Update(ctx, locked)
	})
	if err != nil {
		r.logger.Error("failed to release lapsed claim", "transaction_id", tx.ID, "error", err)
		return
	}
	r.logger.Info("released lapsed gateway claim", "transaction_id", tx.ID)
}
