package waterfall

import "github.com/shopspring/decimal"

// ComputeWaterfall pours totalAmount through the tier set in ascending tier
// order. priorState maps tier number to the amount already allocated to that
// tier across previous distributions (missing entries mean zero).
//
// For each tier the consumable amount is min(remaining, capacityLeft) where
// an unbounded tier's capacity is the full remaining amount. The LP pool is
// the rounded LP share of the tier amount; the GP pool is the remainder by
// subtraction, so lp+gp always reconciles to the tier amount exactly.
//
// The computation is pure: it never mutates priorState and performs no I/O.
// The caller commits the returned results and increments atomically.
func ComputeWaterfall(totalAmount int64, ts *TierSet, priorState map[int]int64) ([]TierResult, error) {
	if totalAmount <= 0 {
		return nil, newValidationError(ts.StructureID, "distribution amount must be positive, got %d", totalAmount)
	}

	remaining := totalAmount
	results := make([]TierResult, 0, ts.Len())

	for _, tier := range ts.Tiers() {
		if remaining == 0 {
			break
		}

		capacityLeft := remaining
		if !tier.Unbounded() {
			used := priorState[tier.TierNumber]
			capacityLeft = *tier.ThresholdAmount - used
			if capacityLeft < 0 {
				capacityLeft = 0
			}
		}

		tierAmount := remaining
		if capacityLeft < tierAmount {
			tierAmount = capacityLeft
		}
		if tierAmount == 0 {
			continue
		}

		lpPool := decimal.NewFromInt(tierAmount).
			Mul(tier.LPSharePercent).
			Div(hundred).
			Round(0).
			IntPart()
		gpPool := tierAmount - lpPool

		results = append(results, TierResult{
			TierNumber: tier.TierNumber,
			TierType:   tier.TierType,
			TierAmount: tierAmount,
			LPPool:     lpPool,
			GPPool:     gpPool,
		})
		remaining -= tierAmount
	}

	if remaining > 0 {
		// Only reachable when the unbounded residual tier is missing or
		// inactive. Dropping cash silently is never acceptable.
		return nil, newArithmeticError(
			"tier capacity exhausted with %d units unallocated for structure %s", remaining, ts.StructureID)
	}

	var check int64
	for _, r := range results {
		check += r.LPPool + r.GPPool
	}
	if check != totalAmount {
		return nil, newArithmeticError(
			"tier totals sum to %d, expected %d for structure %s", check, totalAmount, ts.StructureID)
	}

	return results, nil
}
