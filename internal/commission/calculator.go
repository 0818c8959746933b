// Package commission implements the vendor/platform split for approved
// transactions. Pure computation: no I/O, no clock, no randomness.
package commission

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DanielPopoola/marketplace-settlement/internal/domain"
)

// Input carries everything Compute needs. At selects which commission
// rules are in effect; callers pass the transaction's creation time so the
// result is a pure function of its inputs.
type Input struct {
	TransactionID domain.TransactionID
	AmountCents   int64
	Currency      string
	Lines         []domain.LineItem
	Rules         []domain.CommissionRule
	At            time.Time
}

// Compute splits the transaction amount across vendors proportionally to
// their line-item subtotals, then applies each vendor's rate to produce
// the platform fee and vendor payout.
//
// Rounding rule: the proportional gross shares use the largest-remainder
// method so they sum to the amount exactly; the per-vendor fee is rounded
// half-up in minor units and the payout takes the remainder, so rounding
// residue always lands on the platform fee line. The invariant
// sum(payout+fee) == amount holds to the cent.
func Compute(in Input) ([]domain.Commission, error) {
	if in.AmountCents <= 0 {
		return nil, domain.NewInvalidAmountError(in.AmountCents)
	}
	if len(in.Lines) == 0 {
		return nil, domain.NewMissingRequiredFieldError("line items")
	}

	vendors, subtotals := vendorSubtotals(in.Lines)
	rates, err := effectiveRates(vendors, in.Rules, in.At)
	if err != nil {
		return nil, err
	}

	gross, adjust := proportionalShares(in.AmountCents, vendors, subtotals)

	commissions := make([]domain.Commission, 0, len(vendors))
	for _, v := range vendors {
		rate := rates[v]
		grossDec := decimal.NewFromInt(gross[v])

		// half-up on the fee; the payout absorbs the remainder so the
		// residue stays on the platform side of the ledger
		fee := grossDec.Mul(rate).Round(0).IntPart()
		if fee > gross[v] {
			fee = gross[v]
		}

		commissions = append(commissions, domain.Commission{
			TransactionID:       in.TransactionID,
			VendorID:            v,
			GrossCents:          gross[v],
			PlatformFeeCents:    fee,
			VendorPayoutCents:   gross[v] - fee,
			RateApplied:         rate.String(),
			RoundingAdjustCents: adjust[v],
		})
	}

	if err := domain.CheckCommissionInvariant(in.AmountCents, commissions); err != nil {
		return nil, err
	}
	return commissions, nil
}

func vendorSubtotals(lines []domain.LineItem) ([]domain.VendorID, map[domain.VendorID]int64) {
	var vendors []domain.VendorID
	subtotals := make(map[domain.VendorID]int64)
	for _, l := range lines {
		if _, seen := subtotals[l.VendorID]; !seen {
			vendors = append(vendors, l.VendorID)
		}
		subtotals[l.VendorID] += l.SubtotalCents()
	}
	return vendors, subtotals
}

func effectiveRates(vendors []domain.VendorID, rules []domain.CommissionRule, at time.Time) (map[domain.VendorID]decimal.Decimal, error) {
	rates := make(map[domain.VendorID]decimal.Decimal, len(vendors))
	chosen := make(map[domain.VendorID]domain.CommissionRule, len(vendors))

	for _, r := range rules {
		if !r.ActiveAt(at) {
			continue
		}
		// latest effective rule wins when ranges overlap
		if cur, ok := chosen[r.VendorID]; ok && cur.EffectiveFrom.After(r.EffectiveFrom) {
			continue
		}
		chosen[r.VendorID] = r
	}

	for _, v := range vendors {
		rule, ok := chosen[v]
		if !ok {
			return nil, fmt.Errorf("no commission rule in effect for vendor %s", v)
		}
		rate, err := decimal.NewFromString(rule.Rate)
		if err != nil {
			return nil, fmt.Errorf("invalid commission rate %q for vendor %s: %w", rule.Rate, v, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("commission rate %s for vendor %s out of range", rate, v)
		}
		rates[v] = rate
	}
	return rates, nil
}

// proportionalShares allocates amount across vendors by subtotal using the
// largest-remainder method. Ties go to the vendor appearing first on the
// order, so the result is deterministic.
func proportionalShares(amount int64, vendors []domain.VendorID, subtotals map[domain.VendorID]int64) (map[domain.VendorID]int64, map[domain.VendorID]int64) {
	var total int64
	for _, v := range vendors {
		total += subtotals[v]
	}

	shares := make(map[domain.VendorID]int64, len(vendors))
	adjust := make(map[domain.VendorID]int64, len(vendors))

	amountDec := decimal.NewFromInt(amount)
	totalDec := decimal.NewFromInt(total)

	type slice struct {
		vendor    domain.VendorID
		remainder decimal.Decimal
		position  int
	}
	remainders := make([]slice, 0, len(vendors))

	var allocated int64
	for i, v := range vendors {
		exact := amountDec.Mul(decimal.NewFromInt(subtotals[v])).DivRound(totalDec, 8)
		base := exact.Floor()
		shares[v] = base.IntPart()
		allocated += shares[v]
		remainders = append(remainders, slice{vendor: v, remainder: exact.Sub(base), position: i})
	}

	sort.SliceStable(remainders, func(i, j int) bool {
		if !remainders[i].remainder.Equal(remainders[j].remainder) {
			return remainders[i].remainder.GreaterThan(remainders[j].remainder)
		}
		return remainders[i].position < remainders[j].position
	})

	for i := 0; allocated < amount; i++ {
		v := remainders[i%len(remainders)].vendor
		shares[v]++
		adjust[v]++
		allocated++
	}

	return shares, adjust
}
