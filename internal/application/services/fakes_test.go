package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/application"
	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
	"github.com/DanielPopoola/marketplace-settlement/internal/fraud"
)

// store is the shared in-memory backing for all fake repositories. Reads
// hand out copies so tests observe only what was written back, the way a
// database would behave.
type store struct {
	orders       map[domain.OrderID]*domain.Order
	transactions map[domain.TransactionID]*domain.PaymentTransaction
	commissions  map[string]domain.Commission
	byTx         map[domain.TransactionID][]domain.Commission
	rules        []domain.CommissionRule
	assessments  []*domain.FraudAssessment
	overrides    []domain.FraudOverride
	audit        []*domain.AuditLogEntry
	idem         map[string]*application.IdempotencyRecord
	adjustments  []domain.CommissionAdjustment

	createAllCalls int
	auditErr       error
	commissionErr  error
}

func newStore() *store {
	return &store{
		orders:       make(map[domain.OrderID]*domain.Order),
		transactions: make(map[domain.TransactionID]*domain.PaymentTransaction),
		commissions:  make(map[string]domain.Commission),
		byTx:         make(map[domain.TransactionID][]domain.Commission),
		idem:         make(map[string]*application.IdempotencyRecord),
	}
}

func (s *store) repositories() *application.Repositories {
	return &application.Repositories{
		Orders:          &fakeOrders{s},
		Transactions:    &fakeTransactions{s},
		Commissions:     &fakeCommissions{s},
		CommissionRules: &fakeRules{s},
		Fraud:           &fakeFraud{s},
		Audit:           &fakeAudit{s},
		Idempotency:     &fakeIdempotency{s},
	}
}

// fakeTxManager hands the shared repositories to fn; there is no rollback
// emulation, tests assert on returned errors instead.
type fakeTxManager struct {
	repos *application.Repositories
}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(context.Context, *application.Repositories) error) error {
	return fn(ctx, f.repos)
}

type fakeOrders struct{ s *store }

func (f *fakeOrders) FindByID(_ context.Context, id domain.OrderID) (*domain.Order, error) {
	o, ok := f.s.orders[id]
	if !ok {
		return nil, application.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) FindByIDForUpdate(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeOrders) UpdateStatus(_ context.Context, order *domain.Order) error {
	if _, ok := f.s.orders[order.ID]; !ok {
		return application.ErrOrderNotFound
	}
	cp := *order
	f.s.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrders) AverageOrderCents(context.Context, domain.BuyerID) (int64, error) {
	return 0, nil
}

type fakeTransactions struct{ s *store }

func (f *fakeTransactions) Create(_ context.Context, tx *domain.PaymentTransaction) error {
	if _, ok := f.s.transactions[tx.ID]; ok {
		return errors.New("duplicate transaction id")
	}
	cp := *tx
	f.s.transactions[tx.ID] = &cp
	return nil
}

func (f *fakeTransactions) FindByID(_ context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error) {
	tx, ok := f.s.transactions[id]
	if !ok {
		return nil, application.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeTransactions) FindByIDForUpdate(ctx context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeTransactions) FindActiveByOrderID(_ context.Context, orderID domain.OrderID) (*domain.PaymentTransaction, error) {
	for _, tx := range f.s.transactions {
		if tx.OrderID == orderID && !tx.IsTerminal() {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, application.ErrTransactionNotFound
}

func (f *fakeTransactions) FindByGatewayReference(_ context.Context, ref string) (*domain.PaymentTransaction, error) {
	for _, tx := range f.s.transactions {
		if tx.GatewayReference != nil && *tx.GatewayReference == ref {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, application.ErrTransactionNotFound
}

func (f *fakeTransactions) CountByOrderID(_ context.Context, orderID domain.OrderID) (int, error) {
	count := 0
	for _, tx := range f.s.transactions {
		if tx.OrderID == orderID {
			count++
		}
	}
	return count, nil
}

func (f *fakeTransactions) Update(_ context.Context, tx *domain.PaymentTransaction) error {
	if _, ok := f.s.transactions[tx.ID]; !ok {
		return application.ErrTransactionNotFound
	}
	cp := *tx
	f.s.transactions[tx.ID] = &cp
	return nil
}

func (f *fakeTransactions) FindStuck(_ context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error) {
	var stuck []*domain.PaymentTransaction
	for _, tx := range f.s.transactions {
		if tx.IsTerminal() || !tx.UpdatedAt.Before(cutoff) {
			continue
		}
		if tx.Status != domain.StatusAuthorizing && tx.Status != domain.StatusProcessing {
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

type fakeCommissions struct{ s *store }

// CreateAll mirrors the ON CONFLICT DO NOTHING insert: existing rows are
// skipped (and reported), missing ones are filled in.
func (f *fakeCommissions) CreateAll(_ context.Context, commissions []domain.Commission) error {
	f.s.createAllCalls++
	if f.s.commissionErr != nil {
		return f.s.commissionErr
	}
	skipped := 0
	for _, c := range commissions {
		exists := false
		for _, existing := range f.s.byTx[c.TransactionID] {
			if existing.VendorID == c.VendorID {
				exists = true
				break
			}
		}
		if exists {
			skipped++
			continue
		}
		f.s.commissions[c.ID] = c
		f.s.byTx[c.TransactionID] = append(f.s.byTx[c.TransactionID], c)
	}
	if skipped > 0 {
		return application.ErrCommissionAlreadyComputed
	}
	return nil
}

func (f *fakeCommissions) ListByTransaction(_ context.Context, txID domain.TransactionID) ([]domain.Commission, error) {
	return f.s.byTx[txID], nil
}

func (f *fakeCommissions) FindByID(_ context.Context, id string) (*domain.Commission, error) {
	c, ok := f.s.commissions[id]
	if !ok {
		return nil, application.ErrCommissionNotFound
	}
	return &c, nil
}

func (f *fakeCommissions) CreateAdjustment(_ context.Context, adj domain.CommissionAdjustment) error {
	f.s.adjustments = append(f.s.adjustments, adj)
	return nil
}

type fakeRules struct{ s *store }

func (f *fakeRules) ListForVendors(_ context.Context, vendors []domain.VendorID) ([]domain.CommissionRule, error) {
	var rules []domain.CommissionRule
	for _, r := range f.s.rules {
		for _, v := range vendors {
			if r.VendorID == v {
				rules = append(rules, r)
			}
		}
	}
	return rules, nil
}

type fakeFraud struct{ s *store }

func (f *fakeFraud) SaveAssessment(_ context.Context, assessment *domain.FraudAssessment) error {
	f.s.assessments = append(f.s.assessments, assessment)
	return nil
}

func (f *fakeFraud) CreateOverride(_ context.Context, override domain.FraudOverride) error {
	f.s.overrides = append(f.s.overrides, override)
	return nil
}

func (f *fakeFraud) HasActiveOverride(_ context.Context, orderID domain.OrderID) (bool, error) {
	for _, o := range f.s.overrides {
		if o.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFraud) LatestAssessmentByTransaction(_ context.Context, txID domain.TransactionID) (*domain.FraudAssessment, error) {
	for i := len(f.s.assessments) - 1; i >= 0; i-- {
		if f.s.assessments[i].TransactionID == txID {
			cp := *f.s.assessments[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeFraud) RecentDecisionStats(context.Context, time.Duration) (int64, int64, error) {
	var blocked int64
	for _, a := range f.s.assessments {
		if a.Decision == domain.DecisionBlock {
			blocked++
		}
	}
	return int64(len(f.s.assessments)), blocked, nil
}

type fakeAudit struct{ s *store }

func (f *fakeAudit) Append(_ context.Context, entry *domain.AuditLogEntry) error {
	if f.s.auditErr != nil {
		return f.s.auditErr
	}
	cp := *entry
	f.s.audit = append(f.s.audit, &cp)
	return nil
}

type fakeIdempotency struct{ s *store }

func (f *fakeIdempotency) AcquireLock(_ context.Context, key, requestHash string) error {
	if _, ok := f.s.idem[key]; ok {
		return application.ErrDuplicateIdempotencyKey
	}
	f.s.idem[key] = &application.IdempotencyRecord{Key: key, RequestHash: requestHash, LockedAt: time.Now()}
	return nil
}

func (f *fakeIdempotency) FindByKey(_ context.Context, key string) (*application.IdempotencyRecord, error) {
	rec, ok := f.s.idem[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeIdempotency) ReleaseLock(_ context.Context, key string) error {
	if rec, ok := f.s.idem[key]; ok && rec.TransactionID == nil {
		delete(f.s.idem, key)
	}
	return nil
}

func (f *fakeIdempotency) BindTransaction(_ context.Context, key string, txID domain.TransactionID) error {
	rec, ok := f.s.idem[key]
	if !ok {
		return errors.New("idempotency key not found")
	}
	id := string(txID)
	rec.TransactionID = &id
	return nil
}

// scriptedGateway lets each test script the gateway's behavior.
type scriptedGateway struct {
	chargeFn func(ctx context.Context, req application.GatewayChargeRequest, idempotencyKey string) (*application.GatewayResult, error)
	queryFn  func(ctx context.Context, ref string) (*application.GatewayResult, error)

	chargeCalls int
	queryCalls  int
}

func (g *scriptedGateway) Charge(ctx context.Context, req application.GatewayChargeRequest, idempotencyKey string) (*application.GatewayResult, error) {
	g.chargeCalls++
	if g.chargeFn != nil {
		return g.chargeFn(ctx, req, idempotencyKey)
	}
	return &application.GatewayResult{
		Status:           application.GatewayStatusApproved,
		GatewayReference: "gw-ref-1",
		RawPayload:       []byte(`{"status":"approved"}`),
	}, nil
}

func (g *scriptedGateway) QueryStatus(ctx context.Context, ref string) (*application.GatewayResult, error) {
	g.queryCalls++
	if g.queryFn != nil {
		return g.queryFn(ctx, ref)
	}
	return &application.GatewayResult{Status: application.GatewayStatusApproved, GatewayReference: ref}, nil
}

func (g *scriptedGateway) HealthCheck(context.Context) (*application.GatewayHealth, error) {
	return &application.GatewayHealth{Available: true}, nil
}

// stubAssessor returns a fixed decision without touching any signal store.
type stubAssessor struct {
	decision domain.FraudDecision
	level    domain.RiskLevel
}

func (s *stubAssessor) Assess(_ context.Context, attempt fraud.AttemptContext) *domain.FraudAssessment {
	decision := s.decision
	if decision == "" {
		decision = domain.DecisionAllow
	}
	level := s.level
	if level == "" {
		level = domain.RiskLow
	}
	return &domain.FraudAssessment{
		ID:            "assessment-1",
		TransactionID: attempt.TransactionID,
		OrderID:       attempt.OrderID,
		BuyerID:       attempt.BuyerID,
		Level:         level,
		Decision:      decision,
		EvaluatedAt:   time.Now(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrder(id domain.OrderID) *domain.Order {
	return &domain.Order{
		ID:      id,
		BuyerID: "buyer-1",
		Lines: []domain.LineItem{
			{ProductID: "prod-1", VendorID: "vendor-a", Quantity: 1, UnitPriceCents: 7000},
			{ProductID: "prod-2", VendorID: "vendor-b", Quantity: 1, UnitPriceCents: 3000},
		},
		SubtotalCents: 10000,
		TotalCents:    10000,
		Currency:      "USD",
		Status:        domain.OrderPendingPayment,
		CreatedAt:     time.Now(),
	}
}

func testRules() []domain.CommissionRule {
	past := time.Now().Add(-24 * time.Hour)
	return []domain.CommissionRule{
		{VendorID: "vendor-a", Rate: "0.10", EffectiveFrom: past},
		{VendorID: "vendor-b", Rate: "0.15", EffectiveFrom: past},
	}
}
