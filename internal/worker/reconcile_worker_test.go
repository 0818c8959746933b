package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

type fakeTxRepo struct {
	transactions map[domain.TransactionID]*domain.PaymentTransaction
}

func (f *fakeTxRepo) Create(_ context.Context, tx *domain.PaymentTransaction) error {
	f.transactions[tx.ID] = tx
	return nil
}

func (f *fakeTxRepo) FindByID(_ context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error) {
	tx, ok := f.transactions[id]
	if !ok {
		return nil, application.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeTxRepo) FindByIDForUpdate(ctx context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeTxRepo) FindActiveByOrderID(context.Context, domain.OrderID) (*domain.PaymentTransaction, error) {
	return nil, application.ErrTransactionNotFound
}

func (f *fakeTxRepo) FindByGatewayReference(context.Context, string) (*domain.PaymentTransaction, error) {
	return nil, application.ErrTransactionNotFound
}

func (f *fakeTxRepo) CountByOrderID(context.Context, domain.OrderID) (int, error) { return 0, nil }

func (f *fakeTxRepo) Update(_ context.Context, tx *domain.PaymentTransaction) error {
	cp := *tx
	f.transactions[tx.ID] = &cp
	return nil
}

func (f *fakeTxRepo) FindStuck(_ context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	var stuck []*domain.PaymentTransaction
	for _, tx := range f.transactions {
		if tx.IsTerminal() || !tx.UpdatedAt.Before(cutoff) {
			continue
		}
		cp := *tx
		stuck = append(stuck, &cp)
		if len(stuck) == limit {
			break
		}
	}
	return stuck, nil
}

type passthroughTxManager struct {
	repos *application.Repositories
}

func (p *passthroughTxManager) WithTx(ctx context.Context, fn func(context.Context, *application.Repositories) error) error {
	return fn(ctx, p.repos)
}

type queryGateway struct {
	queryFn    func(ctx context.Context, ref string) (*application.GatewayResult, error)
	queryCalls int
}

func (g *queryGateway) Charge(context.Context, application.GatewayChargeRequest, string) (*application.GatewayResult, error) {
	return nil, errors.New("not used")
}

func (g *queryGateway) QueryStatus(ctx context.Context, ref string) (*application.GatewayResult, error) {
	g.queryCalls++
	return g.queryFn(ctx, ref)
}

func (g *queryGateway) HealthCheck(context.Context) (*application.GatewayHealth, error) {
	return &application.GatewayHealth{Available: true}, nil
}

type recordingApplier struct {
	calls  int
	ref    string
	result *application.GatewayResult
}

func (a *recordingApplier) ApplyGatewayResult(_ context.Context, ref string, result *application.GatewayResult) error {
	a.calls++
	a.ref = ref
	a.result = result
	return nil
}

func seedStuck(repo *fakeTxRepo, status domain.TransactionStatus, ref string, claimedAt *time.Time) *domain.PaymentTransaction {
	var gatewayRef *string
	if ref != "" {
		gatewayRef = &ref
	}
	old := time.Now().Add(-10 * time.Minute)
	tx := domain.ReconstituteTransaction(
		"tx-1", "order-1", "buyer-1",
		1, domain.TransactionIdempotencyKey("order-1", 1),
		10000, "USD", domain.MethodCard,
		status,
		gatewayRef, nil,
		claimedAt, old, old,
	)
	repo.transactions[tx.ID] = tx
	return tx
}

func newReconciler(repo *fakeTxRepo, gw *queryGateway, applier *recordingApplier) *Reconciler {
	repos := &application.Repositories{Transactions: repo}
	txm := &passthroughTxManager{repos: repos}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReconciler(repos, txm, gw, applier, time.Minute, time.Minute, 50, logger)
}

func TestRunOnce_ResolvesProcessingTransaction(t *testing.T) {
	repo := &fakeTxRepo{transactions: map[domain.TransactionID]*domain.PaymentTransaction{}}
	seedStuck(repo, domain.StatusProcessing, "gw-ref-1", nil)

	gw := &queryGateway{queryFn: func(_ context.Context, ref string) (*application.GatewayResult, error) {
		return &application.GatewayResult{Status: application.GatewayStatusApproved, GatewayReference: ref}, nil
	}}
	applier := &recordingApplier{}
	r := newReconciler(repo, gw, applier)

	r.RunOnce(context.Background())

	assert.Equal(t, 1, gw.queryCalls)
	require.Equal(t, 1, applier.calls)
	assert.Equal(t, "gw-ref-1", applier.ref)
	assert.Equal(t, application.GatewayStatusApproved, applier.result.Status)
}

func TestRunOnce_StillPendingLeftAlone(t *testing.T) {
	repo := &fakeTxRepo{transactions: map[domain.TransactionID]*domain.PaymentTransaction{}}
	seedStuck(repo, domain.StatusProcessing, "gw-ref-1", nil)

	gw := &queryGateway{queryFn: func(_ context.Context, ref string) (*application.GatewayResult, error) {
		return &application.GatewayResult{Status: application.GatewayStatusPending, GatewayReference: ref}, nil
	}}
	applier := &recordingApplier{}
	r := newReconciler(repo, gw, applier)

	r.RunOnce(context.Background())

	assert.Equal(t, 0, applier.calls)
}

func TestRunOnce_QueryFailureRetriesNextSweep(t *testing.T) {
	repo := &fakeTxRepo{transactions: map[domain.TransactionID]*domain.PaymentTransaction{}}
	seedStuck(repo, domain.StatusProcessing, "gw-ref-1", nil)

	gw := &queryGateway{queryFn: func(context.Context, string) (*application.GatewayResult, error) {
		return nil, errors.New("connection refused")
	}}
	applier := &recordingApplier{}
	r := newReconciler(repo, gw, applier)

	r.RunOnce(context.Background())

	assert.Equal(t, 0, applier.calls)
	// the transaction is untouched and will be picked up again
	assert.Equal(t, domain.StatusProcessing, repo.transactions["tx-1"].Status)
}

func TestRunOnce_ReleasesLapsedClaim(t *testing.T) {
	repo := &fakeTxRepo{transactions: map[domain.TransactionID]*domain.PaymentTransaction{}}
	claimed := time.Now().Add(-10 * time.Minute)
	seedStuck(repo, domain.StatusAuthorizing, "", &claimed)

	gw := &queryGateway{}
	applier := &recordingApplier{}
	r := newReconciler(repo, gw, applier)

	r.RunOnce(context.Background())

	tx := repo.transactions["tx-1"]
	assert.Equal(t, domain.StatusAuthorizing, tx.Status)
	assert.Nil(t, tx.ClaimedAt)
	assert.Equal(t, 0, applier.calls)
}

func TestRunOnce_FreshClaimUntouched(t *testing.T) {
	repo := &fakeTxRepo{transactions: map[domain.TransactionID]*domain.PaymentTransaction{}}
	claimed := time.Now().Add(-5 * time.Second)
	seedStuck(repo, domain.StatusAuthorizing, "", &claimed)

	gw := &queryGateway{}
	applier := &recordingApplier{}
	r := newReconciler(repo, gw, applier)

	r.RunOnce(context.Background())

	require.NotNil(t, repo.transactions["tx-1"].ClaimedAt)
}
