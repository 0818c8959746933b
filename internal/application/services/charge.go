package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/fraud"
)

// RiskAssessor scores a payment attempt. Assess never fails; evaluation
// problems surface inside the assessment itself.
type RiskAssessor interface {
	Assess(ctx context.Context, attempt fraud.AttemptContext) *domain.FraudAssessment
}

// ChargeService runs a payment attempt end to end: per-order lock, fraud
// gate, gateway call, settlement. The gateway call happens outside any
// database transaction; an in-flight claim on the transaction row keeps
// the order serialized while the row locks are released.
type ChargeService struct {
	repos    *application.Repositories
	txm      application.TxManager
	gateway  application.GatewayClient
	assessor RiskAssessor
	settler  *SettlementService
	claimTTL time.Duration
	logger   *slog.Logger
}

func NewChargeService(
	repos *application.Repositories,
	txm application.TxManager,
	gateway application.GatewayClient,
	assessor RiskAssessor,
	settler *SettlementService,
	claimTTL time.Duration,
	logger *slog.Logger,
) *ChargeService {
	return &ChargeService{
		repos:    repos,
		txm:      txm,
		gateway:  gateway,
		assessor: assessor,
		settler:  settler,
		claimTTL: claimTTL,
		logger:   logger,
	}
}

// Charge processes one payment attempt. Every return is a definitive
// outcome or a definitive "pending, retry later"; internal retry and
// circuit-breaker mechanics never leak to the caller.
func (s *ChargeService) Charge(ctx context.Context, cmd ChargeCommand, idempotencyKey string) (*ChargeResult, error) {
	if cmd.OrderID == "" {
		return nil, application.NewValidationError(domain.NewMissingRequiredFieldError("order ID"))
	}
	if !cmd.Method.Valid() {
		return nil, application.NewValidationError(domain.NewMissingRequiredFieldError("payment method"))
	}

	if idempotencyKey != "" {
		if replay, err := s.checkIdempotency(ctx, idempotencyKey, cmd); replay != nil || err != nil {
			return replay, err
		}
	}

	tx, resumed, err := s.openAttempt(ctx, cmd, idempotencyKey)
	if err != nil {
		if idempotencyKey != "" {
			// the lock acquired above never got a transaction bound to it;
			// free the key so the retry this error invites can go through
			s.releaseIdempotencyLock(ctx, idempotencyKey)
		}
		return nil, err
	}

	var assessment *domain.FraudAssessment
	if !resumed {
		assessment = s.assessAttempt(ctx, cmd, tx)

		result, err := s.applyRiskDecision(ctx, tx, assessment)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}

	// tx is AUTHORIZING with an active claim; call the gateway with no
	// database locks held
	return s.callGateway(ctx, cmd, tx, assessment)
}

// checkIdempotency replays or locks an API-level idempotency key. A known
// key with the same payload returns the original attempt; with a different
// payload it is rejected; a key whose first request is still in flight
// answers "processing".
func (s *ChargeService) checkIdempotency(ctx context.Context, key string, cmd ChargeCommand) (*ChargeResult, error) {
	hash := ComputeHash(cmd)

	rec, err := s.repos.Idempotency.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if rec.RequestHash != hash {
			return nil, application.NewIdempotencyMismatchError()
		}
		if rec.TransactionID != nil {
			tx, err := s.repos.Transactions.FindByID(ctx, domain.TransactionID(*rec.TransactionID))
			if err != nil {
				return nil, err
			}
			s.logger.Info("idempotent charge replayed",
				"idempotency_key", key,
				"transaction_id", tx.ID,
				"status", tx.Status,
			)
			return &ChargeResult{Transaction: tx, Outcome: outcomeForStatus(tx.Status)}, nil
		}
		if time.Since(rec.LockedAt) <= s.claimTTL {
			return nil, application.NewRequestProcessingError()
		}
		// locked but never bound, and the lock outlived any plausible
		// request: the original holder died before opening an attempt
		if err := s.repos.Idempotency.ReleaseLock(ctx, key); err != nil {
			return nil, err
		}
	}

	if err := s.repos.Idempotency.AcquireLock(ctx, key, hash); err != nil {
		if errors.Is(err, application.ErrDuplicateIdempotencyKey) {
			// lost the insert race to a concurrent request with the same key
			return nil, application.NewRequestProcessingError()
		}
		return nil, err
	}
	return nil, nil
}

// openAttempt creates the payment transaction under the per-order row
// lock, or takes over an AUTHORIZING attempt whose gateway claim lapsed.
func (s *ChargeService) openAttempt(ctx context.Context, cmd ChargeCommand, idempotencyKey string) (tx *domain.PaymentTransaction, resumed bool, err error) {
	err = s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		order, err := repos.Orders.FindByIDForUpdate(ctx, cmd.OrderID)
		if err != nil {
			if errors.Is(err, application.ErrOrderNotFound) {
				return application.NewNotFoundError("order")
			}
			return err
		}
		if order.Status != domain.OrderPendingPayment {
			return application.NewInvalidStateError(fmt.Errorf("order is %s", order.Status))
		}

		active, err := repos.Transactions.FindActiveByOrderID(ctx, cmd.OrderID)
		switch {
		case err == nil:
			if active.Status == domain.StatusAuthorizing &&
				(active.ClaimedAt == nil || active.ClaimStale(time.Now(), s.claimTTL)) {
				// a previous call released its claim after a gateway failure,
				// or died mid-call; retry the same attempt with the same
				// gateway idempotency key
				active.Claim(time.Now())
				tx = active
				resumed = true
				return repos.Transactions.Update(ctx, active)
			}
			if active.Status == domain.StatusRiskEvaluated {
				// parked on a fraud challenge; the new charge supersedes it
				// and runs the risk decision again, where a recorded
				// override or a completed step-up can now let it through
				if err := active.Decline(); err != nil {
					return err
				}
				if err := repos.Transactions.Update(ctx, active); err != nil {
					return err
				}
			} else {
				return application.NewConcurrencyConflictError(
					fmt.Errorf("transaction %s already %s for this order", active.ID, active.Status))
			}
		case errors.Is(err, application.ErrTransactionNotFound):
			// no active attempt; open a new one
		default:
			return err
		}

		attempts, err := repos.Transactions.CountByOrderID(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		created, err := domain.NewPaymentTransaction(domain.TransactionID(uuid.New().String()), order, attempts+1, cmd.Method)
		if err != nil {
			return application.NewValidationError(err)
		}
		if err := repos.Transactions.Create(ctx, created); err != nil {
			return err
		}
		if idempotencyKey != "" {
			if err := repos.Idempotency.BindTransaction(ctx, idempotencyKey, created.ID); err != nil {
				return err
			}
		}
		tx = created
		return nil
	})
	return tx, resumed, err
}

func (s *ChargeService) assessAttempt(ctx context.Context, cmd ChargeCommand, tx *domain.PaymentTransaction) *domain.FraudAssessment {
	assessment := s.assessor.Assess(ctx, fraud.AttemptContext{
		TransactionID:   tx.ID,
		OrderID:         tx.OrderID,
		BuyerID:         tx.BuyerID,
		AmountCents:     tx.AmountCents,
		CardFingerprint: cmd.CardFingerprint,
		ClientIP:        cmd.ClientIP,
		BillingCountry:  cmd.BillingCountry,
		ShippingCountry: cmd.ShippingCountry,
	})

	if err := s.repos.Fraud.SaveAssessment(ctx, assessment); err != nil {
		// the decision is still applied; losing the record costs analytics,
		// not safety
		s.logger.Error("failed to persist fraud assessment",
			"transaction_id", tx.ID, "error", err)
	}
	return assessment
}

// applyRiskDecision moves the transaction past the fraud gate. A non-nil
// result short-circuits the charge (blocked or challenge required); a nil
// result means the transaction is AUTHORIZING and holds the claim.
func (s *ChargeService) applyRiskDecision(ctx context.Context, tx *domain.PaymentTransaction, assessment *domain.FraudAssessment) (*ChargeResult, error) {
	decision := assessment.Decision
	if decision != domain.DecisionAllow {
		override, err := s.repos.Fraud.HasActiveOverride(ctx, tx.OrderID)
		if err != nil {
			// fail secure: unknown override state means no override
			s.logger.Error("fraud override lookup failed", "order_id", tx.OrderID, "error", err)
			override = false
		}
		if override {
			s.logger.Warn("fraud decision bypassed by active override",
				"transaction_id", tx.ID,
				"order_id", tx.OrderID,
				"decision", decision,
			)
			decision = domain.DecisionAllow
		}
	}

	err := s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		if _, err := repos.Orders.FindByIDForUpdate(ctx, tx.OrderID); err != nil {
			return err
		}
		locked, err := repos.Transactions.FindByIDForUpdate(ctx, tx.ID)
		if err != nil {
			return err
		}
		if err := locked.MarkRiskEvaluated(); err != nil {
			return err
		}
		switch decision {
		case domain.DecisionBlock:
			if err := locked.Decline(); err != nil {
				return err
			}
		case domain.DecisionChallenge:
			// parked in RISK_EVALUATED until the challenge completes
		default:
			if err := locked.MarkAuthorizing(time.Now()); err != nil {
				return err
			}
		}
		*tx = *locked
		return repos.Transactions.Update(ctx, locked)
	})
	if err != nil {
		return nil, err
	}

	switch decision {
	case domain.DecisionBlock:
		return &ChargeResult{Transaction: tx, Outcome: OutcomeBlocked, Assessment: assessment}, nil
	case domain.DecisionChallenge:
		return &ChargeResult{Transaction: tx, Outcome: OutcomeChallengeRequired, Assessment: assessment}, nil
	default:
		return nil, nil
	}
}

func (s *ChargeService) callGateway(ctx context.Context, cmd ChargeCommand, tx *domain.PaymentTransaction, assessment *domain.FraudAssessment) (*ChargeResult, error) {
	req := application.GatewayChargeRequest{
		TransactionID: string(tx.ID),
		OrderID:       string(tx.OrderID),
		AmountCents:   tx.AmountCents,
		Currency:      tx.Currency,
		Method:        tx.Method,
		CardToken:     cmd.CardToken,
		BankCode:      cmd.BankCode,
	}

	result, err := s.gateway.Charge(ctx, req, tx.IdempotencyKey)
	if err != nil {
		if gwErr, ok := application.IsGatewayError(err); ok && !gwErr.Transient() {
			// definitive gateway rejection, not an outage
			declined, derr := s.declineAttempt(ctx, tx.ID)
			if derr != nil {
				return nil, derr
			}
			return &ChargeResult{Transaction: declined, Outcome: OutcomeDeclined, Assessment: assessment}, nil
		}

		// release the claim so the buyer's retry can take the attempt over
		s.releaseClaim(ctx, tx.ID)
		if errors.Is(err, application.ErrGatewayUnavailable) {
			return nil, application.NewGatewayUnavailableError(err)
		}
		return nil, application.NewGatewayTransientError(err)
	}

	var applied *domain.PaymentTransaction
	err = s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		order, err := repos.Orders.FindByIDForUpdate(ctx, tx.OrderID)
		if err != nil {
			return err
		}
		locked, err := repos.Transactions.FindByIDForUpdate(ctx, tx.ID)
		if err != nil {
			return err
		}
		if err := s.settler.applyLocked(ctx, repos, order, locked, result); err != nil {
			return err
		}
		applied = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ChargeResult{Transaction: applied, Outcome: outcomeForStatus(applied.Status), Assessment: assessment}, nil
}

func (s *ChargeService) declineAttempt(ctx context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error) {
	var declined *domain.PaymentTransaction
	err := s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		locked, err := repos.Transactions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := locked.Decline(); err != nil {
			return err
		}
		declined = locked
		return repos.Transactions.Update(ctx, locked)
	})
	return declined, err
}

func (s *ChargeService) releaseIdempotencyLock(ctx context.Context, key string) {
	if err := s.repos.Idempotency.ReleaseLock(ctx, key); err != nil {
		s.logger.Error("failed to release idempotency lock; it expires on its own",
			"idempotency_key", key, "error", err)
	}
}

func (s *ChargeService) releaseClaim(ctx context.Context, id domain.TransactionID) {
	err := s.txm.WithTx(ctx, func(ctx context.Context, repos *application.Repositories) error {
		locked, err := repos.Transactions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		locked.ReleaseClaim()
		return repos.Transactions.Update(ctx, locked)
	})
	if err != nil {
		s.logger.Error("failed to release gateway claim; reconciler will reclaim it",
			"transaction_id", id, "error", err)
	}
}
