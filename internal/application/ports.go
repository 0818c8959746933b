package application

import (
	"context"
	"time"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// GatewayStatus is the normalized payment status, independent of the
// specific gateway's vocabulary.
type GatewayStatus string

const (
	GatewayStatusPending  GatewayStatus = "PENDING"
	GatewayStatusApproved GatewayStatus = "APPROVED"
	GatewayStatusDeclined GatewayStatus = "DECLINED"
)

// GatewayChargeRequest is the outbound charge. The idempotency key is
// carried separately so decorators can pass it through unchanged.
type GatewayChargeRequest struct {
	TransactionID string
	OrderID       string
	AmountCents   int64
	Currency      string
	Method        domain.PaymentMethod

	// method-specific references, resolved by the checkout flow
	CardToken string
	BankCode  string
}

type GatewayResult struct {
	Status           GatewayStatus
	GatewayReference string
	RawPayload       []byte
}

type GatewayHealth struct {
	Available        bool
	Latency          time.Duration
	SupportedMethods []string
}

// GatewayClient is the port for the external payment gateway.
type GatewayClient interface {
	Charge(ctx context.Context, req GatewayChargeRequest, idempotencyKey string) (*GatewayResult, error)
	QueryStatus(ctx context.Context, gatewayReference string) (*GatewayResult, error)
	HealthCheck(ctx context.Context) (*GatewayHealth, error)
}

// BreakerStateReporter is implemented by the circuit-breaking gateway
// decorator; the health endpoint reads it.
type BreakerStateReporter interface {
	BreakerState() string
}

type OrderRepository interface {
	FindByID(ctx context.Context, id domain.OrderID) (*domain.Order, error)
	// FindByIDForUpdate takes the per-order row lock that serializes
	// concurrent operations on the same order.
	FindByIDForUpdate(ctx context.Context, id domain.OrderID) (*domain.Order, error)
	UpdateStatus(ctx context.Context, order *domain.Order) error
	// AverageOrderCents feeds the fraud amount signal; 0 means no history.
	AverageOrderCents(ctx context.Context, buyerID domain.BuyerID) (int64, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.PaymentTransaction) error
	FindByID(ctx context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error)
	FindByIDForUpdate(ctx context.Context, id domain.TransactionID) (*domain.PaymentTransaction, error)
	// FindActiveByOrderID returns the single non-terminal transaction for
	// the order, or ErrTransactionNotFound.
	FindActiveByOrderID(ctx context.Context, orderID domain.OrderID) (*domain.PaymentTransaction, error)
	FindByGatewayReference(ctx context.Context, ref string) (*domain.PaymentTransaction, error)
	CountByOrderID(ctx context.Context, orderID domain.OrderID) (int, error)
	Update(ctx context.Context, tx *domain.PaymentTransaction) error
	// FindStuck returns non-terminal transactions whose last update is
	// older than the cutoff, for background reconciliation.
	FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentTransaction, error)
}

type CommissionRepository interface {
	// CreateAll inserts the full commission set for a transaction. The
	// unique constraint on (transaction_id, vendor_id) makes this the
	// single-writer guard for settlement: a second writer gets
	// ErrCommissionAlreadyComputed and must treat it as success.
	CreateAll(ctx context.Context, commissions []domain.Commission) error
	ListByTransaction(ctx context.Context, txID domain.TransactionID) ([]domain.Commission, error)
	FindByID(ctx context.Context, id string) (*domain.Commission, error)
	CreateAdjustment(ctx context.Context, adj domain.CommissionAdjustment) error
}

type CommissionRuleRepository interface {
	ListForVendors(ctx context.Context, vendors []domain.VendorID) ([]domain.CommissionRule, error)
}

type FraudRepository interface {
	SaveAssessment(ctx context.Context, assessment *domain.FraudAssessment) error
	CreateOverride(ctx context.Context, override domain.FraudOverride) error
	HasActiveOverride(ctx context.Context, orderID domain.OrderID) (bool, error)
	// LatestAssessmentByTransaction returns the most recent assessment for
	// the transaction, or (nil, nil) when none was recorded.
	LatestAssessmentByTransaction(ctx context.Context, txID domain.TransactionID) (*domain.FraudAssessment, error)
	// RecentDecisionStats reports (total, blocked) assessments within the
	// window, for the health endpoint's fraud-block rate.
	RecentDecisionStats(ctx context.Context, window time.Duration) (int64, int64, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditLogEntry) error
}

// IdempotencyRecord tracks an API-level idempotency key for the charge
// endpoint: same key + same payload returns the original transaction,
// same key + different payload is a client error.
type IdempotencyRecord struct {
	Key           string
	TransactionID *string
	RequestHash   string
	LockedAt      time.Time
}

type IdempotencyRepository interface {
	// AcquireLock inserts the key; ErrDuplicateIdempotencyKey if it exists.
	AcquireLock(ctx context.Context, key, requestHash string) error
	// FindByKey returns (nil, nil) for an unknown key.
	FindByKey(ctx context.Context, key string) (*IdempotencyRecord, error)
	BindTransaction(ctx context.Context, key string, txID domain.TransactionID) error
	// ReleaseLock frees a key that never got a transaction bound to it,
	// so the caller may retry. A bound key is left untouched.
	ReleaseLock(ctx context.Context, key string) error
}

// Repositories bundles every port so transactional scopes can hand out a
// consistent set backed by one database transaction.
type Repositories struct {
	Orders          OrderRepository
	Transactions    TransactionRepository
	Commissions     CommissionRepository
	CommissionRules CommissionRuleRepository
	Fraud           FraudRepository
	Audit           AuditRepository
	Idempotency     IdempotencyRepository
}

// TxManager runs fn inside a database transaction; repos passed to fn
// share that transaction, and any error rolls the whole unit back.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}
