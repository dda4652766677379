package waterfall

import (
	"sort"

	"github.com/shopspring/decimal"
)

// WeightSumTolerance is the maximum drift allowed when investor weights are
// checked against 100%.
var WeightSumTolerance = decimal.RequireFromString("0.01")

// InvestorAllocation is one investor's share of a tier's LP pool, in minimal
// currency units.
type InvestorAllocation struct {
	InvestorID string
	Amount     int64
}

// AllocateLPPool splits lpPool across investors in proportion to their
// weights using the largest-remainder method: every investor gets the floor
// of their exact proportional share, then the leftover minimal units go one
// each to the investors with the largest fractional remainders, ties broken
// by investor id ascending. The result sums to lpPool exactly, every
// allocation is within one unit of the exact proportional share, and
// identical inputs always produce identical output.
//
// Zero-weight investors receive zero and never take part in remainder
// distribution. Weights must sum to 100 within WeightSumTolerance.
func AllocateLPPool(lpPool int64, weights []InvestorWeight) ([]InvestorAllocation, error) {
	if lpPool < 0 {
		return nil, newValidationError("", "LP pool must be non-negative, got %d", lpPool)
	}
	if len(weights) == 0 {
		return nil, newValidationError("", "no investor weights supplied")
	}

	sum := decimal.Zero
	for _, w := range weights {
		if w.Weight.IsNegative() {
			return nil, newValidationError("", "investor %s has negative weight %s", w.InvestorID, w.Weight.String())
		}
		sum = sum.Add(w.Weight)
	}
	if sum.Sub(hundred).Abs().GreaterThan(WeightSumTolerance) {
		return nil, newValidationError("", "investor weights sum to %s, expected 100", sum.String())
	}

	type share struct {
		investorID string
		base       int64
		frac       decimal.Decimal
		zeroWeight bool
	}

	// Weights are normalized by their actual sum so the raw shares total
	// exactly lpPool even when the sum drifts within tolerance.
	pool := decimal.NewFromInt(lpPool)
	shares := make([]share, len(weights))
	var allocated int64
	for i, w := range weights {
		raw := pool.Mul(w.Weight).Div(sum)
		base := raw.Floor()
		shares[i] = share{
			investorID: w.InvestorID,
			base:       base.IntPart(),
			frac:       raw.Sub(base),
			zeroWeight: w.Weight.IsZero(),
		}
		allocated += shares[i].base
	}

	remainder := lpPool - allocated

	// Deterministic remainder order: largest fractional remainder first,
	// then investor id ascending.
	order := make([]int, 0, len(shares))
	for i := range shares {
		if !shares[i].zeroWeight {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := &shares[order[a]], &shares[order[b]]
		if cmp := sa.frac.Cmp(sb.frac); cmp != 0 {
			return cmp > 0
		}
		return sa.investorID < sb.investorID
	})

	if remainder > int64(len(order)) {
		return nil, newArithmeticError(
			"remainder of %d units exceeds %d eligible investors", remainder, len(order))
	}
	for i := int64(0); i < remainder; i++ {
		shares[order[i]].base++
	}

	out := make([]InvestorAllocation, len(shares))
	var total int64
	for i, s := range shares {
		out[i] = InvestorAllocation{InvestorID: s.investorID, Amount: s.base}
		total += s.base
	}
	if total != lpPool {
		return nil, newArithmeticError("allocations sum to %d, expected %d", total, lpPool)
	}

	return out, nil
}
