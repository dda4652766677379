package waterfall

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Engine guards the distribution lifecycle (Draft → WaterfallApplied → Paid)
// and orchestrates a full waterfall run: load and validate the tier set,
// snapshot cumulative tier state, compute tier results and investor
// allocations fully in memory, then hand the whole outcome to the Committer
// as one atomic unit. The engine holds no mutable state of its own; all
// cross-call state lives in the tier-state rows owned by the committing
// transaction.
type Engine struct {
	structures    StructureRepository
	tierState     TierStateRepository
	distributions DistributionRepository
	committer     Committer
	logger        zerolog.Logger
}

// NewEngine creates a waterfall engine with injected repositories.
func NewEngine(
	structures StructureRepository,
	tierState TierStateRepository,
	distributions DistributionRepository,
	committer Committer,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		structures:    structures,
		tierState:     tierState,
		distributions: distributions,
		committer:     committer,
		logger:        logger.With().Str("component", "WaterfallEngine").Logger(),
	}
}

// ApplyWaterfall runs the waterfall for a Draft distribution exactly once.
// A distribution that already has its waterfall applied, or is not in Draft,
// yields *ConflictError and no state change. The computation itself is pure;
// only the final Committer call mutates anything, and it is all-or-nothing.
func (e *Engine) ApplyWaterfall(ctx context.Context, distributionID string) (*Result, error) {
	dist, err := e.distributions.Get(ctx, distributionID)
	if err != nil {
		return nil, err
	}

	if dist.WaterfallApplied {
		return nil, &ConflictError{DistributionID: dist.ID, Reason: "waterfall already applied"}
	}
	if dist.Status != StatusDraft {
		return nil, &ConflictError{
			DistributionID: dist.ID,
			Reason:         fmt.Sprintf("cannot apply waterfall from status %s", dist.Status),
		}
	}

	tiers, err := e.structures.GetTiers(ctx, dist.StructureID)
	if err != nil {
		return nil, err
	}
	tierSet, err := NewTierSet(dist.StructureID, tiers)
	if err != nil {
		return nil, err
	}

	weights, err := e.structures.GetInvestorWeights(ctx, dist.StructureID)
	if err != nil {
		return nil, err
	}

	// Snapshot cumulative state for every tier, unbounded included: the
	// snapshot both feeds capacity math and lets the committer detect a
	// concurrent run over the same structure.
	priorState := make(map[int]int64, tierSet.Len())
	for _, tier := range tierSet.Tiers() {
		used, err := e.tierState.Get(ctx, dist.StructureID, tier.TierNumber)
		if err != nil {
			return nil, err
		}
		priorState[tier.TierNumber] = used
	}

	tierResults, err := ComputeWaterfall(dist.TotalAmount, tierSet, priorState)
	if err != nil {
		return nil, err
	}

	allocations := make([]AllocationLine, 0, len(tierResults)*(len(weights)+1))
	increments := make([]TierStateIncrement, 0, len(tierResults))
	for _, tr := range tierResults {
		if tr.LPPool > 0 {
			lines, err := AllocateLPPool(tr.LPPool, weights)
			if err != nil {
				return nil, err
			}
			for _, line := range lines {
				allocations = append(allocations, AllocationLine{
					DistributionID: dist.ID,
					TierNumber:     tr.TierNumber,
					InvestorID:     line.InvestorID,
					Amount:         line.Amount,
				})
			}
		}
		if tr.GPPool > 0 {
			allocations = append(allocations, AllocationLine{
				DistributionID: dist.ID,
				TierNumber:     tr.TierNumber,
				InvestorID:     GPLedgerID,
				Amount:         tr.GPPool,
				IsGP:           true,
			})
		}
		increments = append(increments, TierStateIncrement{
			StructureID: dist.StructureID,
			TierNumber:  tr.TierNumber,
			Amount:      tr.TierAmount,
			Prior:       priorState[tr.TierNumber],
		})
	}

	if err := reconcile(dist.TotalAmount, tierResults, allocations); err != nil {
		return nil, err
	}

	committed := *dist
	committed.Status = StatusWaterfallApplied
	committed.WaterfallApplied = true
	committed.UpdatedAt = time.Now().UTC()

	commit := &CommitSet{
		Distribution: &committed,
		TierResults:  tierResults,
		Allocations:  allocations,
		Increments:   increments,
	}
	if err := e.committer.CommitWaterfall(ctx, commit); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("distribution_id", dist.ID).
		Str("structure_id", dist.StructureID).
		Int64("total_amount", dist.TotalAmount).
		Int("tiers", len(tierResults)).
		Int("allocation_lines", len(allocations)).
		Msg("waterfall applied")

	return &Result{
		DistributionID: dist.ID,
		StructureID:    dist.StructureID,
		TotalAmount:    dist.TotalAmount,
		TierBreakdown:  tierResults,
		Allocations:    allocations,
	}, nil
}

// MarkPaid transitions a distribution from WaterfallApplied to Paid. Paid is
// terminal for this engine; any other starting status is a conflict.
func (e *Engine) MarkPaid(ctx context.Context, distributionID string) (*Distribution, error) {
	dist, err := e.distributions.Get(ctx, distributionID)
	if err != nil {
		return nil, err
	}
	if dist.Status != StatusWaterfallApplied {
		return nil, &ConflictError{
			DistributionID: dist.ID,
			Reason:         fmt.Sprintf("cannot mark paid from status %s", dist.Status),
		}
	}

	dist.Status = StatusPaid
	dist.UpdatedAt = time.Now().UTC()
	if err := e.distributions.Save(ctx, dist); err != nil {
		return nil, err
	}

	e.logger.Info().Str("distribution_id", dist.ID).Msg("distribution marked paid")
	return dist, nil
}

// reconcile verifies the exact-sum invariants before anything is persisted:
// tier pools sum to the distribution total, and per-tier allocation lines
// (investor lines plus the GP ledger line) sum to the tier amount.
func reconcile(totalAmount int64, tierResults []TierResult, allocations []AllocationLine) error {
	var poolSum int64
	perTier := make(map[int]int64, len(tierResults))
	for _, tr := range tierResults {
		poolSum += tr.TierAmount
		perTier[tr.TierNumber] = tr.TierAmount
	}
	if poolSum != totalAmount {
		return newArithmeticError("tier amounts sum to %d, expected %d", poolSum, totalAmount)
	}

	lineSums := make(map[int]int64, len(tierResults))
	for _, line := range allocations {
		lineSums[line.TierNumber] += line.Amount
	}
	for tierNumber, want := range perTier {
		if got := lineSums[tierNumber]; got != want {
			return newArithmeticError("tier %d allocation lines sum to %d, expected %d", tierNumber, got, want)
		}
	}
	return nil
}
