package waterfall

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PercentSumTolerance is the maximum drift allowed when a tier's LP and GP
// share percentages are checked against 100. Percentages are never compared
// for exact equality.
var PercentSumTolerance = decimal.RequireFromString("0.001")

var hundred = decimal.NewFromInt(100)

// TierSet is a validated, ordered collection of the active tiers of one
// structure. A TierSet is only ever obtained through NewTierSet; its tiers
// are sorted by ascending tier number and satisfy every structural invariant
// (contiguous numbering, percent sums, unbounded tier placement).
type TierSet struct {
	StructureID string
	tiers       []Tier
}

// NewTierSet validates the given tiers and returns a TierSet, or a
// *ValidationError describing the first violation. Inactive tiers are
// excluded before validation; the remaining tier numbers must form a
// contiguous 1..N sequence. Any violation fails the whole load — partial
// tier sets are never evaluated.
func NewTierSet(structureID string, tiers []Tier) (*TierSet, error) {
	active := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.IsActive {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return nil, newValidationError(structureID, "no active tiers")
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].TierNumber < active[j].TierNumber
	})

	seen := make(map[int]bool, len(active))
	unboundedCount := 0
	for i := range active {
		t := &active[i]
		if !t.TierType.Valid() {
			return nil, newValidationError(structureID, "tier %d has unknown type %q", t.TierNumber, t.TierType)
		}
		if seen[t.TierNumber] {
			return nil, newValidationError(structureID, "duplicate tier number %d", t.TierNumber)
		}
		seen[t.TierNumber] = true

		sum := t.LPSharePercent.Add(t.GPSharePercent)
		if sum.Sub(hundred).Abs().GreaterThan(PercentSumTolerance) {
			return nil, newValidationError(structureID,
				"tier %d LP/GP percentages sum to %s, expected 100", t.TierNumber, sum.String())
		}
		if t.LPSharePercent.IsNegative() || t.GPSharePercent.IsNegative() {
			return nil, newValidationError(structureID, "tier %d has a negative share percentage", t.TierNumber)
		}

		// Capacity follows the tier type: only a Residual tier is unbounded,
		// and a Residual tier is never capped.
		if t.Unbounded() {
			if t.TierType != TierResidual {
				return nil, newValidationError(structureID,
					"tier %d (%s) requires a threshold amount", t.TierNumber, t.TierType)
			}
			unboundedCount++
		} else {
			if t.TierType == TierResidual {
				return nil, newValidationError(structureID,
					"tier %d residual must not have a threshold amount", t.TierNumber)
			}
			if *t.ThresholdAmount <= 0 {
				return nil, newValidationError(structureID,
					"tier %d threshold amount must be positive, got %d", t.TierNumber, *t.ThresholdAmount)
			}
		}
	}

	// Contiguous 1..N, no gaps.
	for i, t := range active {
		if t.TierNumber != i+1 {
			return nil, newValidationError(structureID,
				"tier numbers must be contiguous starting at 1: expected %d, got %d", i+1, t.TierNumber)
		}
	}

	if unboundedCount > 1 {
		return nil, newValidationError(structureID, "more than one unbounded tier")
	}
	if unboundedCount == 1 && !active[len(active)-1].Unbounded() {
		return nil, newValidationError(structureID, "unbounded tier must be the highest-numbered active tier")
	}

	return &TierSet{StructureID: structureID, tiers: active}, nil
}

// Tiers returns the validated tiers in ascending tier-number order.
func (ts *TierSet) Tiers() []Tier {
	return ts.tiers
}

// Len returns the number of active tiers.
func (ts *TierSet) Len() int {
	return len(ts.tiers)
}
