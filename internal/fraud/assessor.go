// Package fraud scores payment attempts before authorization.
//
// Every attempt is evaluated against a fixed set of weighted signals:
// attempt velocity per buyer/card/IP, amount relative to buyer history,
// billing/shipping country mismatch, and denylist membership. The weighted
// sum is bucketed into LOW/MEDIUM/HIGH/CRITICAL.
//
// The assessor is fail-secure: a signal that cannot be evaluated raises
// the risk floor to HIGH, it never lowers it. Assess does not return an
// error; failures are folded into the assessment itself.
package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// VelocityStore counts recent payment attempts per key within the
// lookback window.
type VelocityStore interface {
	RecordAttempt(ctx context.Context, key string, at time.Time) error
	CountSince(ctx context.Context, key string, window time.Duration) (int64, error)
}

// BuyerHistory exposes the buyer's past spending for the amount signal.
// Returns 0 with no error for buyers without history.
type BuyerHistory interface {
	AverageOrderCents(ctx context.Context, buyerID domain.BuyerID) (int64, error)
}

// Config is passed in explicitly so an assessment is a pure function of
// (context, config); there is no package-level rule state.
type Config struct {
	LookbackWindow     time.Duration `koanf:"lookback_window" validate:"required"`
	MaxAttemptsPerKey  int           `koanf:"max_attempts_per_key" validate:"required"`
	AmountRatioCeiling float64       `koanf:"amount_ratio_ceiling" validate:"required"`

	WeightVelocity    float64 `koanf:"weight_velocity"`
	WeightAmount      float64 `koanf:"weight_amount"`
	WeightGeoMismatch float64 `koanf:"weight_geo_mismatch"`
	WeightDenylist    float64 `koanf:"weight_denylist"`

	MediumThreshold   float64 `koanf:"medium_threshold" validate:"required"`
	HighThreshold     float64 `koanf:"high_threshold" validate:"required"`
	CriticalThreshold float64 `koanf:"critical_threshold" validate:"required"`

	DeniedBuyers []string `koanf:"denied_buyers"`
	DeniedCards  []string `koanf:"denied_cards"`
	DeniedIPs    []string `koanf:"denied_ips"`
}

// DefaultConfig mirrors the production defaults; tests tweak from here.
func DefaultConfig() Config {
	return Config{
		LookbackWindow:     15 * time.Minute,
		MaxAttemptsPerKey:  5,
		AmountRatioCeiling: 10,
		WeightVelocity:     0.35,
		WeightAmount:       0.25,
		WeightGeoMismatch:  0.15,
		WeightDenylist:     1.0,
		MediumThreshold:    0.25,
		HighThreshold:      0.5,
		CriticalThreshold:  0.8,
	}
}

// AttemptContext is everything known about the attempt at scoring time.
type AttemptContext struct {
	TransactionID   domain.TransactionID
	OrderID         domain.OrderID
	BuyerID         domain.BuyerID
	AmountCents     int64
	CardFingerprint string
	ClientIP        string
	BillingCountry  string
	ShippingCountry string
}

type Assessor struct {
	cfg      Config
	velocity VelocityStore
	history  BuyerHistory
	logger   *slog.Logger
}

func NewAssessor(cfg Config, velocity VelocityStore, history BuyerHistory, logger *slog.Logger) *Assessor {
	return &Assessor{
		cfg:      cfg,
		velocity: velocity,
		history:  history,
		logger:   logger,
	}
}

// Assess scores the attempt and records it in the velocity window.
func (a *Assessor) Assess(ctx context.Context, attempt AttemptContext) *domain.FraudAssessment {
	signals := []domain.FraudSignal{
		a.velocitySignal(ctx, attempt),
		a.amountSignal(ctx, attempt),
		a.geoSignal(attempt),
		a.denylistSignal(attempt),
	}

	var score float64
	anyFailed := false
	for _, s := range signals {
		score += s.Score
		if s.Failed {
			anyFailed = true
		}
	}

	level := a.bucket(score)
	if anyFailed {
		// fail secure: an unevaluated signal can hide fraud, so it is
		// treated as found fraud until proven otherwise
		level = level.Max(domain.RiskHigh)
	}

	assessment := &domain.FraudAssessment{
		ID:            uuid.New().String(),
		TransactionID: attempt.TransactionID,
		OrderID:       attempt.OrderID,
		BuyerID:       attempt.BuyerID,
		Score:         score,
		Level:         level,
		Decision:      decisionFor(level),
		Signals:       signals,
		EvaluatedAt:   time.Now(),
	}

	a.recordAttempt(ctx, attempt)

	if assessment.Decision != domain.DecisionAllow {
		a.logger.Warn("fraud assessment flagged attempt",
			"transaction_id", attempt.TransactionID,
			"buyer_id", attempt.BuyerID,
			"score", score,
			"level", level,
			"decision", assessment.Decision,
		)
	}
	return assessment
}

func decisionFor(level domain.RiskLevel) domain.FraudDecision {
	switch level {
	case domain.RiskCritical:
		return domain.DecisionBlock
	case domain.RiskHigh:
		return domain.DecisionChallenge
	default:
		return domain.DecisionAllow
	}
}

func (a *Assessor) bucket(score float64) domain.RiskLevel {
	switch {
	case score >= a.cfg.CriticalThreshold:
		return domain.RiskCritical
	case score >= a.cfg.HighThreshold:
		return domain.RiskHigh
	case score >= a.cfg.MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func (a *Assessor) velocitySignal(ctx context.Context, attempt AttemptContext) domain.FraudSignal {
	signal := domain.FraudSignal{Name: "velocity"}

	var worst float64
	for _, key := range velocityKeys(attempt) {
		count, err := a.velocity.CountSince(ctx, key, a.cfg.LookbackWindow)
		if err != nil {
			a.logger.Error("velocity lookup failed", "key", key, "error", err)
			signal.Failed = true
			signal.Detail = fmt.Sprintf("lookup failed: %v", err)
			signal.Score = a.cfg.WeightVelocity
			return signal
		}
		ratio := float64(count) / float64(a.cfg.MaxAttemptsPerKey)
		if ratio > worst {
			worst = ratio
		}
	}
	if worst > 1 {
		worst = 1
	}
	signal.Score = a.cfg.WeightVelocity * worst
	return signal
}

func (a *Assessor) amountSignal(ctx context.Context, attempt AttemptContext) domain.FraudSignal {
	signal := domain.FraudSignal{Name: "amount_vs_history"}

	avg, err := a.history.AverageOrderCents(ctx, attempt.BuyerID)
	if err != nil {
		a.logger.Error("buyer history lookup failed", "buyer_id", attempt.BuyerID, "error", err)
		signal.Failed = true
		signal.Detail = fmt.Sprintf("lookup failed: %v", err)
		signal.Score = a.cfg.WeightAmount
		return signal
	}
	if avg <= 0 {
		// first purchase: nothing to compare against
		signal.Detail = "no buyer history"
		return signal
	}

	ratio := float64(attempt.AmountCents) / float64(avg)
	if ratio <= 1 {
		return signal
	}
	scaled := (ratio - 1) / (a.cfg.AmountRatioCeiling - 1)
	if scaled > 1 {
		scaled = 1
	}
	signal.Score = a.cfg.WeightAmount * scaled
	signal.Detail = fmt.Sprintf("amount is %.1fx buyer average", ratio)
	return signal
}

func (a *Assessor) geoSignal(attempt AttemptContext) domain.FraudSignal {
	signal := domain.FraudSignal{Name: "country_mismatch"}

	if attempt.BillingCountry == "" || attempt.ShippingCountry == "" {
		signal.Failed = true
		signal.Detail = "country data missing"
		signal.Score = a.cfg.WeightGeoMismatch
		return signal
	}
	if attempt.BillingCountry != attempt.ShippingCountry {
		signal.Score = a.cfg.WeightGeoMismatch
		signal.Detail = fmt.Sprintf("billing %s, shipping %s", attempt.BillingCountry, attempt.ShippingCountry)
	}
	return signal
}

func (a *Assessor) denylistSignal(attempt AttemptContext) domain.FraudSignal {
	signal := domain.FraudSignal{Name: "denylist"}

	switch {
	case slices.Contains(a.cfg.DeniedBuyers, string(attempt.BuyerID)):
		signal.Detail = "buyer denylisted"
	case attempt.CardFingerprint != "" && slices.Contains(a.cfg.DeniedCards, attempt.CardFingerprint):
		signal.Detail = "card denylisted"
	case attempt.ClientIP != "" && slices.Contains(a.cfg.DeniedIPs, attempt.ClientIP):
		signal.Detail = "ip denylisted"
	default:
		return signal
	}
	signal.Score = a.cfg.WeightDenylist
	return signal
}

func (a *Assessor) recordAttempt(ctx context.Context, attempt AttemptContext) {
	now := time.Now()
	for _, key := range velocityKeys(attempt) {
		if err := a.velocity.RecordAttempt(ctx, key, now); err != nil {
			a.logger.Error("failed to record attempt in velocity window", "key", key, "error", err)
		}
	}
}

func velocityKeys(attempt AttemptContext) []string {
	keys := []string{"buyer:" + string(attempt.BuyerID)}
	if attempt.CardFingerprint != "" {
		keys = append(keys, "card:"+attempt.CardFingerprint)
	}
	if attempt.ClientIP != "" {
		keys = append(keys, "ip:"+attempt.ClientIP)
	}
	return keys
}
