package domain

import "time"

// RiskLevel buckets a fraud score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// rank orders risk levels for comparisons; unknown levels rank highest so
// a corrupted value is treated as the worst case.
func (l RiskLevel) rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 4
	}
}

// AtLeast reports whether l is the same or a higher risk than other.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.rank() >= other.rank()
}

// Max returns the higher of the two risk levels.
func (l RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > l.rank() {
		return other
	}
	return l
}

// FraudDecision is the assessor's verdict on a payment attempt.
type FraudDecision string

const (
	DecisionAllow     FraudDecision = "ALLOW"
	DecisionChallenge FraudDecision = "CHALLENGE"
	DecisionBlock     FraudDecision = "BLOCK"
)

// FraudSignal is one contributing factor with its weighted score share.
type FraudSignal struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	// Failed marks a signal whose evaluation errored; its presence forces
	// the fail-secure floor on the overall assessment.
	Failed bool `json:"failed,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// FraudAssessment is the immutable record of scoring one payment attempt.
// It informs the state machine but never mutates the transaction itself.
type FraudAssessment struct {
	ID            string
	TransactionID TransactionID
	OrderID       OrderID
	BuyerID       BuyerID
	Score         float64
	Level         RiskLevel
	Decision      FraudDecision
	Signals       []FraudSignal
	EvaluatedAt   time.Time
}

// FraudOverride records an audited administrative decision to let an
// order proceed despite a CHALLENGE or BLOCK assessment.
type FraudOverride struct {
	ID        string
	OrderID   OrderID
	ActorID   string
	Reason    string
	CreatedAt time.Time
}
