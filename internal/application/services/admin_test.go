package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/authz"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

type adminFixture struct {
	store   *store
	service *AdminService
}

func newAdminFixture() *adminFixture {
	st := newStore()
	st.rules = testRules()

	order := testOrder("order-1")
	order.Status = domain.OrderPaid
	st.orders["order-1"] = order

	tx := domain.ReconstituteTransaction(
		"tx-1", "order-1", "buyer-1",
		1, domain.TransactionIdempotencyKey("order-1", 1),
		10000, "USD", domain.MethodCard,
		domain.StatusSettled,
		nil, nil,
		nil, time.Now(), time.Now(),
	)
	st.transactions[tx.ID] = tx

	st.commissions["comm-1"] = domain.Commission{
		ID: "comm-1", TransactionID: "tx-1", VendorID: "vendor-a",
		GrossCents: 7000, PlatformFeeCents: 700, VendorPayoutCents: 6300,
		RateApplied: "0.1",
	}

	repos := st.repositories()
	txm := &fakeTxManager{repos: repos}
	gate := authz.NewGate(testLogger())
	return &adminFixture{store: st, service: NewAdminService(repos, txm, gate, testLogger())}
}

func actorWith(grants ...domain.PermissionGrant) domain.Actor {
	return domain.Actor{ID: "admin-1", Role: "SUPPORT", Grants: grants}
}

func grantFor(scope domain.Scope, constraint string) domain.PermissionGrant {
	return domain.PermissionGrant{
		ActorID:    "admin-1",
		Scope:      scope,
		Constraint: constraint,
		GrantedBy:  "security-team",
		GrantedAt:  time.Now().Add(-time.Hour),
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func TestRefund_WithGrant(t *testing.T) {
	f := newAdminFixture()
	actor := actorWith(grantFor(domain.ScopeRefundIssue, "order:order-1"))

	err := f.service.Refund(context.Background(), actor, RefundCommand{TransactionID: "tx-1", Reason: "buyer dispute upheld"})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, f.store.transactions["tx-1"].Status)
	assert.Equal(t, domain.OrderRefunded, f.store.orders["order-1"].Status)

	require.Len(t, f.store.audit, 1)
	entry := f.store.audit[0]
	assert.Equal(t, "refund.issue", entry.Action)
	assert.Equal(t, "admin-1", entry.ActorID)
	assert.Equal(t, "order:order-1", entry.ResourceRef)
	assert.Equal(t, "buyer dispute upheld", entry.Reason)
	assert.NotEmpty(t, entry.BeforeSnapshot)
	assert.NotEmpty(t, entry.AfterSnapshot)
}

func TestRefund_DeniedWithoutGrant(t *testing.T) {
	f := newAdminFixture()
	// an admin-sounding role with no grant gets nothing
	actor := domain.Actor{ID: "admin-1", Role: "PLATFORM_ADMIN"}

	err := f.service.Refund(context.Background(), actor, RefundCommand{TransactionID: "tx-1", Reason: "because"})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodePermissionDenied, svcErr.Code)
	assert.Equal(t, domain.StatusSettled, f.store.transactions["tx-1"].Status)
	assert.Empty(t, f.store.audit)
}

func TestRefund_GrantForOtherOrderDenied(t *testing.T) {
	f := newAdminFixture()
	actor := actorWith(grantFor(domain.ScopeRefundIssue, "order:order-2"))

	err := f.service.Refund(context.Background(), actor, RefundCommand{TransactionID: "tx-1", Reason: "dispute"})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodePermissionDenied, svcErr.Code)
}

func TestRefund_AuditFailureAbortsOperation(t *testing.T) {
	f := newAdminFixture()
	f.store.auditErr = errors.New("audit store down")
	actor := actorWith(grantFor(domain.ScopeRefundIssue, "*"))

	err := f.service.Refund(context.Background(), actor, RefundCommand{TransactionID: "tx-1", Reason: "dispute"})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeAuditPersistence, svcErr.Code)
	assert.Empty(t, f.store.audit)
}

func TestRefund_NotSettledRejected(t *testing.T) {
	f := newAdminFixture()
	f.store.transactions["tx-1"].Status = domain.StatusProcessing
	actor := actorWith(grantFor(domain.ScopeRefundIssue, "*"))

	err := f.service.Refund(context.Background(), actor, RefundCommand{TransactionID: "tx-1", Reason: "dispute"})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeInvalidState, svcErr.Code)
}

func TestRefund_ReasonRequired(t *testing.T) {
	f := newAdminFixture()
	actor := actorWith(grantFor(domain.ScopeRefundIssue, "*"))

	err := f.service.Refund(context.Background(), actor, RefundCommand{TransactionID: "tx-1"})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeValidation, svcErr.Code)
}

func TestAdjustCommission_WithVendorGrant(t *testing.T) {
	f := newAdminFixture()
	actor := actorWith(grantFor(domain.ScopeCommissionAdjust, "vendor:vendor-a"))

	err := f.service.AdjustCommission(context.Background(), actor, AdjustCommissionCommand{
		CommissionID: "comm-1",
		DeltaCents:   200,
		Reason:       "rate negotiated retroactively",
	})

	require.NoError(t, err)
	require.Len(t, f.store.adjustments, 1)
	adj := f.store.adjustments[0]
	assert.Equal(t, "comm-1", adj.CommissionID)
	assert.Equal(t, int64(200), adj.DeltaCents)
	assert.Equal(t, "admin-1", adj.ActorID)

	// the original commission row is never mutated
	assert.Equal(t, int64(700), f.store.commissions["comm-1"].PlatformFeeCents)
	assert.Equal(t, int64(6300), f.store.commissions["comm-1"].VendorPayoutCents)

	require.Len(t, f.store.audit, 1)
	assert.Equal(t, "commission.adjust", f.store.audit[0].Action)
	assert.Equal(t, "vendor:vendor-a", f.store.audit[0].ResourceRef)
}

func TestAdjustCommission_NegativeBalanceRejected(t *testing.T) {
	f := newAdminFixture()
	actor := actorWith(grantFor(domain.ScopeCommissionAdjust, "*"))

	// pushing more than the platform fee to the vendor would leave the fee
	// negative
	err := f.service.AdjustCommission(context.Background(), actor, AdjustCommissionCommand{
		CommissionID: "comm-1",
		DeltaCents:   800,
		Reason:       "goodwill",
	})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeValidation, svcErr.Code)
	assert.Empty(t, f.store.adjustments)
}

func TestAdjustCommission_DeniedForOtherVendor(t *testing.T) {
	f := newAdminFixture()
	actor := actorWith(grantFor(domain.ScopeCommissionAdjust, "vendor:vendor-b"))

	err := f.service.AdjustCommission(context.Background(), actor, AdjustCommissionCommand{
		CommissionID: "comm-1",
		DeltaCents:   100,
		Reason:       "adjustment",
	})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodePermissionDenied, svcErr.Code)
}

func TestOverrideFraud_RecordsOverrideAndAudit(t *testing.T) {
	f := newAdminFixture()
	actor := actorWith(grantFor(domain.ScopeFraudOverride, "order:order-1"))

	err := f.service.OverrideFraud(context.Background(), actor, OverrideFraudCommand{
		OrderID: "order-1",
		Reason:  "identity verified by support call",
	})

	require.NoError(t, err)
	require.Len(t, f.store.overrides, 1)
	assert.Equal(t, domain.OrderID("order-1"), f.store.overrides[0].OrderID)

	require.Len(t, f.store.audit, 1)
	assert.Equal(t, "fraud.override", f.store.audit[0].Action)

	active, err := f.store.repositories().Fraud.HasActiveOverride(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestOverrideFraud_ExpiredGrantDenied(t *testing.T) {
	f := newAdminFixture()
	grant := grantFor(domain.ScopeFraudOverride, "order:order-1")
	grant.ExpiresAt = time.Now().Add(-time.Minute)
	actor := actorWith(grant)

	err := f.service.OverrideFraud(context.Background(), actor, OverrideFraudCommand{
		OrderID: "order-1",
		Reason:  "expired credentials",
	})

	require.Error(t, err)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodePermissionDenied, svcErr.Code)
	assert.Empty(t, f.store.overrides)
	assert.Empty(t, f.store.audit)
}
