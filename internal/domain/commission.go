package domain

import "time"

// Commission is one vendor's share of an approved transaction. Created
// exactly once when the transaction settles; corrections never mutate it
// and are recorded as CommissionAdjustment rows instead.
type Commission struct {
	ID                   string
	TransactionID        TransactionID
	VendorID             VendorID
	GrossCents           int64
	PlatformFeeCents     int64
	VendorPayoutCents    int64
	RateApplied          string // decimal string, e.g. "0.10"
	RoundingAdjustCents  int64
	CreatedAt            time.Time
}

// CommissionAdjustment is an append-only, audited correction to a
// commission. The original row stays untouched.
type CommissionAdjustment struct {
	ID           string
	CommissionID string
	DeltaCents   int64 // positive moves money to the vendor, negative to the platform
	Reason       string
	ActorID      string
	CreatedAt    time.Time
}

// CommissionRule is the vendor commission-rate configuration consumed
// from collaborators: rate per vendor with an effective date range.
type CommissionRule struct {
	VendorID      VendorID
	Rate          string // decimal string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// ActiveAt reports whether the rule applies at the given instant.
func (r CommissionRule) ActiveAt(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || at.Before(*r.EffectiveTo)
}

// CheckCommissionInvariant verifies the sum property that must hold for
// every settled transaction: payouts plus fees equal the charged amount
// exactly, to the minor currency unit.
func CheckCommissionInvariant(amountCents int64, commissions []Commission) error {
	var sum int64
	for _, c := range commissions {
		sum += c.VendorPayoutCents + c.PlatformFeeCents
	}
	if sum != amountCents {
		return NewCommissionImbalanceError(amountCents, sum)
	}
	return nil
}
