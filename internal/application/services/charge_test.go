package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

type chargeFixture struct {
	store    *store
	repos    *application.Repositories
	gateway  *scriptedGateway
	assessor *stubAssessor
	service  *ChargeService
}

func newChargeFixture() *chargeFixture {
	st := newStore()
	st.rules = testRules()
	st.orders["order-1"] = testOrder("order-1")

	repos := st.repositories()
	txm := &fakeTxManager{repos: repos}
	gw := &scriptedGateway{}
	assessor := &stubAssessor{}
	logger := testLogger()

	settler := NewSettlementService(txm, logger)
	svc := NewChargeService(repos, txm, gw, assessor, settler, 30*time.Second, logger)

	return &chargeFixture{store: st, repos: repos, gateway: gw, assessor: assessor, service: svc}
}

func chargeCmd() ChargeCommand {
	return ChargeCommand{
		OrderID:         "order-1",
		Method:          domain.MethodCard,
		CardToken:       "tok-1",
		BillingCountry:  "US",
		ShippingCountry: "US",
	}
}

func TestCharge_ApprovedSettlesTransaction(t *testing.T) {
	f := newChargeFixture()

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, result.Outcome)
	assert.Equal(t, domain.StatusSettled, result.Transaction.Status)
	assert.Equal(t, domain.OrderPaid, f.store.orders["order-1"].Status)

	commissions := f.store.byTx[result.Transaction.ID]
	require.Len(t, commissions, 2)
	byVendor := make(map[domain.VendorID]domain.Commission)
	for _, c := range commissions {
		byVendor[c.VendorID] = c
	}
	assert.Equal(t, int64(700), byVendor["vendor-a"].PlatformFeeCents)
	assert.Equal(t, int64(6300), byVendor["vendor-a"].VendorPayoutCents)
	assert.Equal(t, int64(450), byVendor["vendor-b"].PlatformFeeCents)
	assert.Equal(t, int64(2550), byVendor["vendor-b"].VendorPayoutCents)
	require.NoError(t, domain.CheckCommissionInvariant(10000, commissions))
}

func TestCharge_DeclinedLeavesOrderRetryable(t *testing.T) {
	f := newChargeFixture()
	f.gateway.chargeFn = func(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
		return &application.GatewayResult{
			Status:           application.GatewayStatusDeclined,
			GatewayReference: "gw-ref-1",
			RawPayload:       []byte(`{"status":"declined"}`),
		}, nil
	}

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, result.Outcome)
	assert.Equal(t, domain.StatusDeclined, result.Transaction.Status)
	// a decline ends the attempt, not the order; the buyer can retry
	assert.Equal(t, domain.OrderPendingPayment, f.store.orders["order-1"].Status)
	assert.Empty(t, f.store.byTx[result.Transaction.ID])
}

func TestCharge_PendingAwaitsWebhook(t *testing.T) {
	f := newChargeFixture()
	f.gateway.chargeFn = func(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
		return &application.GatewayResult{
			Status:           application.GatewayStatusPending,
			GatewayReference: "gw-ref-1",
		}, nil
	}

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Outcome)
	assert.Equal(t, domain.StatusProcessing, result.Transaction.Status)
	require.NotNil(t, result.Transaction.GatewayReference)
	assert.Equal(t, "gw-ref-1", *result.Transaction.GatewayReference)
}

func TestCharge_FraudBlockNeverReachesGateway(t *testing.T) {
	f := newChargeFixture()
	f.assessor.decision = domain.DecisionBlock
	f.assessor.level = domain.RiskCritical

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, result.Outcome)
	assert.Equal(t, domain.StatusDeclined, result.Transaction.Status)
	assert.Equal(t, 0, f.gateway.chargeCalls)
	require.NotNil(t, result.Assessment)
	assert.Equal(t, domain.DecisionBlock, result.Assessment.Decision)
}

func TestCharge_ChallengeParksAttempt(t *testing.T) {
	f := newChargeFixture()
	f.assessor.decision = domain.DecisionChallenge
	f.assessor.level = domain.RiskHigh

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeChallengeRequired, result.Outcome)
	assert.Equal(t, domain.StatusRiskEvaluated, result.Transaction.Status)
	assert.Equal(t, 0, f.gateway.chargeCalls)
}

func TestCharge_ActiveOverrideBypassesBlock(t *testing.T) {
	f := newChargeFixture()
	f.assessor.decision = domain.DecisionBlock
	f.assessor.level = domain.RiskCritical
	f.store.overrides = append(f.store.overrides, domain.FraudOverride{
		ID: "override-1", OrderID: "order-1", ActorID: "admin-1", Reason: "verified with buyer",
	})

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, result.Outcome)
	assert.Equal(t, 1, f.gateway.chargeCalls)
}

func TestCharge_OverrideUnblocksChallengedOrder(t *testing.T) {
	f := newChargeFixture()
	f.assessor.decision = domain.DecisionChallenge
	f.assessor.level = domain.RiskHigh

	first, err := f.service.Charge(context.Background(), chargeCmd(), "")
	require.NoError(t, err)
	require.Equal(t, OutcomeChallengeRequired, first.Outcome)

	f.store.overrides = append(f.store.overrides, domain.FraudOverride{
		ID: "override-1", OrderID: "order-1", ActorID: "admin-1", Reason: "verified with buyer",
	})

	second, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, second.Outcome)
	// the parked attempt was superseded, not resumed
	assert.NotEqual(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, 2, second.Transaction.Attempt)
	assert.Equal(t, domain.StatusDeclined, f.store.transactions[first.Transaction.ID].Status)
	assert.Equal(t, domain.OrderPaid, f.store.orders["order-1"].Status)
}

func TestCharge_RepeatChallengeSupersedesParkedAttempt(t *testing.T) {
	f := newChargeFixture()
	f.assessor.decision = domain.DecisionChallenge
	f.assessor.level = domain.RiskHigh

	first, err := f.service.Charge(context.Background(), chargeCmd(), "")
	require.NoError(t, err)

	// no override yet: the new attempt parks again instead of wedging the
	// order behind a CONCURRENCY_CONFLICT
	second, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeChallengeRequired, second.Outcome)
	assert.Equal(t, domain.StatusDeclined, f.store.transactions[first.Transaction.ID].Status)
	assert.Equal(t, domain.StatusRiskEvaluated, f.store.transactions[second.Transaction.ID].Status)
	assert.Equal(t, 0, f.gateway.chargeCalls)
}

func TestCharge_GatewayUnavailableReleasesClaim(t *testing.T) {
	f := newChargeFixture()
	f.gateway.chargeFn = func(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
		return nil, fmt.Errorf("%w: circuit open", application.ErrGatewayUnavailable)
	}

	_, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeGatewayUnavailable, svcErr.Code)

	// the attempt stays open for the buyer's retry, claim released
	var tx *domain.PaymentTransaction
	for _, candidate := range f.store.transactions {
		tx = candidate
	}
	require.NotNil(t, tx)
	assert.Equal(t, domain.StatusAuthorizing, tx.Status)
	assert.Nil(t, tx.ClaimedAt)
}

func TestCharge_RetryAfterGatewayFailureReusesAttempt(t *testing.T) {
	f := newChargeFixture()
	f.gateway.chargeFn = func(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
		return nil, fmt.Errorf("%w: circuit open", application.ErrGatewayUnavailable)
	}
	_, err := f.service.Charge(context.Background(), chargeCmd(), "")
	require.Error(t, err)

	var firstID domain.TransactionID
	var firstKey string
	for _, tx := range f.store.transactions {
		firstID = tx.ID
		firstKey = tx.IdempotencyKey
	}

	var usedKey string
	f.gateway.chargeFn = func(_ context.Context, _ application.GatewayChargeRequest, idempotencyKey string) (*application.GatewayResult, error) {
		usedKey = idempotencyKey
		return &application.GatewayResult{
			Status:           application.GatewayStatusApproved,
			GatewayReference: "gw-ref-1",
		}, nil
	}

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, result.Outcome)
	// same attempt, same gateway idempotency key: the gateway deduplicates
	assert.Equal(t, firstID, result.Transaction.ID)
	assert.Equal(t, firstKey, usedKey)
	assert.Len(t, f.store.transactions, 1)
}

func TestCharge_NonTransientGatewayErrorDeclines(t *testing.T) {
	f := newChargeFixture()
	f.gateway.chargeFn = func(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
		return nil, &application.GatewayError{Code: "invalid_card", Message: "Invalid card token", StatusCode: 400}
	}

	result, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, result.Outcome)
	assert.Equal(t, domain.StatusDeclined, result.Transaction.Status)
}

func TestCharge_ConcurrentAttemptConflicts(t *testing.T) {
	f := newChargeFixture()
	f.gateway.chargeFn = func(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
		return &application.GatewayResult{Status: application.GatewayStatusPending, GatewayReference: "gw-ref-1"}, nil
	}
	_, err := f.service.Charge(context.Background(), chargeCmd(), "")
	require.NoError(t, err)

	// a PROCESSING attempt exists; a second charge must not start another
	_, err = f.service.Charge(context.Background(), chargeCmd(), "")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeConcurrencyConflict, svcErr.Code)
	assert.Len(t, f.store.transactions, 1)
}

func TestCharge_IdempotentReplayReturnsOriginal(t *testing.T) {
	f := newChargeFixture()

	first, err := f.service.Charge(context.Background(), chargeCmd(), "client-key-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeApproved, first.Outcome)

	second, err := f.service.Charge(context.Background(), chargeCmd(), "client-key-1")

	require.NoError(t, err)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, OutcomeApproved, second.Outcome)
	assert.Equal(t, 1, f.gateway.chargeCalls)
	assert.Len(t, f.store.transactions, 1)
}

func TestCharge_IdempotencyKeyPayloadMismatch(t *testing.T) {
	f := newChargeFixture()

	_, err := f.service.Charge(context.Background(), chargeCmd(), "client-key-1")
	require.NoError(t, err)

	other := chargeCmd()
	other.CardToken = "tok-2"
	_, err = f.service.Charge(context.Background(), other, "client-key-1")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeIdempotencyMismatch, svcErr.Code)
}

func TestCharge_IdempotencyKeyStillProcessing(t *testing.T) {
	f := newChargeFixture()
	// key locked but never bound to a transaction: the first request is
	// still in flight (or died before creating one)
	f.store.idem["client-key-1"] = &application.IdempotencyRecord{
		Key:         "client-key-1",
		RequestHash: ComputeHash(chargeCmd()),
		LockedAt:    time.Now(),
	}

	_, err := f.service.Charge(context.Background(), chargeCmd(), "client-key-1")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeRequestProcessing, svcErr.Code)
}

func TestCharge_IdempotencyKeyFreedAfterConflict(t *testing.T) {
	f := newChargeFixture()
	f.gateway.chargeFn = func(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
		return &application.GatewayResult{Status: application.GatewayStatusPending, GatewayReference: "gw-ref-1"}, nil
	}
	first, err := f.service.Charge(context.Background(), chargeCmd(), "")
	require.NoError(t, err)

	// the keyed charge loses to the PROCESSING attempt; the key must not
	// stay locked, or every retry would answer 202 forever
	_, err = f.service.Charge(context.Background(), chargeCmd(), "client-key-1")
	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	require.Equal(t, application.ErrCodeConcurrencyConflict, svcErr.Code)

	// the pending attempt resolves; the buyer retries with the same key
	f.store.transactions[first.Transaction.ID].Status = domain.StatusDeclined
	f.gateway.chargeFn = nil

	result, err := f.service.Charge(context.Background(), chargeCmd(), "client-key-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, result.Outcome)
	require.NotNil(t, f.store.idem["client-key-1"].TransactionID)
	assert.Equal(t, string(result.Transaction.ID), *f.store.idem["client-key-1"].TransactionID)
}

func TestCharge_StaleIdempotencyLockTakenOver(t *testing.T) {
	f := newChargeFixture()
	// the original holder died after locking the key but before opening an
	// attempt; the lock is older than any plausible in-flight request
	f.store.idem["client-key-1"] = &application.IdempotencyRecord{
		Key:         "client-key-1",
		RequestHash: ComputeHash(chargeCmd()),
		LockedAt:    time.Now().Add(-time.Minute),
	}

	result, err := f.service.Charge(context.Background(), chargeCmd(), "client-key-1")

	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, result.Outcome)
	require.NotNil(t, f.store.idem["client-key-1"].TransactionID)
}

func TestCharge_UnknownOrder(t *testing.T) {
	f := newChargeFixture()
	cmd := chargeCmd()
	cmd.OrderID = "order-missing"

	_, err := f.service.Charge(context.Background(), cmd, "")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeNotFound, svcErr.Code)
}

func TestCharge_OrderNotPayable(t *testing.T) {
	f := newChargeFixture()
	f.store.orders["order-1"].Status = domain.OrderCancelled

	_, err := f.service.Charge(context.Background(), chargeCmd(), "")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeInvalidState, svcErr.Code)
}

func TestCharge_InvalidMethod(t *testing.T) {
	f := newChargeFixture()
	cmd := chargeCmd()
	cmd.Method = "WIRE"

	_, err := f.service.Charge(context.Background(), cmd, "")

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeValidation, svcErr.Code)
	assert.Equal(t, 0, f.gateway.chargeCalls)
}
