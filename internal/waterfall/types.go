// Package waterfall implements the capital-distribution waterfall engine.
// It evaluates an ordered set of preference tiers (return of capital,
// preferred return, GP catch-up, residual carry) against a distribution
// amount, tracks cumulative per-tier consumption across distributions, and
// allocates each tier's LP pool across investors with exact-sum rounding.
//
// All monetary amounts are int64 minimal currency units (cents). Percentages
// and fractional intermediates use shopspring/decimal; binary floating point
// never touches money.
package waterfall

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TierType identifies the economic role of a waterfall tier.
type TierType string

const (
	TierReturnOfCapital TierType = "RETURN_OF_CAPITAL"
	TierPreferredReturn TierType = "PREFERRED_RETURN"
	TierCatchup         TierType = "CATCHUP"
	TierResidual        TierType = "RESIDUAL"
)

// Valid reports whether t is one of the known tier types.
func (t TierType) Valid() bool {
	switch t {
	case TierReturnOfCapital, TierPreferredReturn, TierCatchup, TierResidual:
		return true
	}
	return false
}

// Tier is one ordered layer of a structure's waterfall.
type Tier struct {
	StructureID     string          `json:"structure_id"`
	TierNumber      int             `json:"tier_number"`
	TierType        TierType        `json:"tier_type"`
	LPSharePercent  decimal.Decimal `json:"lp_share_percent"`
	GPSharePercent  decimal.Decimal `json:"gp_share_percent"`
	ThresholdAmount *int64          `json:"threshold_amount,omitempty"` // nil = unbounded capacity
	IsActive        bool            `json:"is_active"`
}

// Unbounded reports whether the tier has no capacity limit. Exactly one
// active tier per structure may be unbounded and it must be the last.
func (t *Tier) Unbounded() bool {
	return t.ThresholdAmount == nil
}

// InvestorWeight is one investor's economic interest in a structure,
// expressed as a percentage. Weights over a structure's active investors
// must sum to 100 within WeightSumTolerance.
type InvestorWeight struct {
	InvestorID string          `json:"investor_id"`
	Weight     decimal.Decimal `json:"weight"`
}

// DistributionStatus is the lifecycle state of a distribution event.
type DistributionStatus string

const (
	StatusDraft            DistributionStatus = "DRAFT"
	StatusWaterfallApplied DistributionStatus = "WATERFALL_APPLIED"
	StatusPaid             DistributionStatus = "PAID"
)

// Distribution is one cash distribution event for a structure.
type Distribution struct {
	ID               string             `json:"id"`
	StructureID      string             `json:"structure_id"`
	TotalAmount      int64              `json:"total_amount"` // minimal units, > 0
	Status           DistributionStatus `json:"status"`
	WaterfallApplied bool               `json:"waterfall_applied"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// TierResult is the outcome of pouring the distribution through one tier.
// LPPool + GPPool always equals TierAmount exactly: the GP side is computed
// by subtraction, never rounded independently.
type TierResult struct {
	TierNumber int      `json:"tier_number"`
	TierType   TierType `json:"tier_type"`
	TierAmount int64    `json:"tier_amount"`
	LPPool     int64    `json:"lp_pool"`
	GPPool     int64    `json:"gp_pool"`
}

// GPLedgerID is the synthetic investor id carried by GP-side allocation
// lines so that per-tier allocation totals reconcile to TierAmount.
const GPLedgerID = "GP"

// AllocationLine is one immutable per-investor, per-tier output line.
// GP ledger lines use InvestorID == GPLedgerID and IsGP == true.
type AllocationLine struct {
	DistributionID string `json:"distribution_id"`
	TierNumber     int    `json:"tier_number"`
	InvestorID     string `json:"investor_id"`
	Amount         int64  `json:"amount"`
	IsGP           bool   `json:"is_gp"`
}

// TierStateIncrement records how much a committed waterfall run adds to the
// cumulative consumption of one (structure, tier) pair. Prior is the
// cumulative amount the run was computed against; the committer re-reads the
// row under lock and rejects the commit if the stored amount no longer
// matches, so a run computed from a stale snapshot can never over-fill a
// capped tier.
type TierStateIncrement struct {
	StructureID string `json:"structure_id"`
	TierNumber  int    `json:"tier_number"`
	Amount      int64  `json:"amount"`
	Prior       int64  `json:"prior"`
}

// Result is the complete output of a successful ApplyWaterfall call.
type Result struct {
	DistributionID string           `json:"distribution_id"`
	StructureID    string           `json:"structure_id"`
	TotalAmount    int64            `json:"total_amount"`
	TierBreakdown  []TierResult     `json:"tier_breakdown"`
	Allocations    []AllocationLine `json:"allocations"`
}

// CommitSet bundles everything a successful waterfall run must persist as
// one atomic unit: the status flip, tier results, allocation lines and the
// cumulative tier-state increments.
type CommitSet struct {
	Distribution *Distribution
	TierResults  []TierResult
	Allocations  []AllocationLine
	Increments   []TierStateIncrement
}

// StructureRepository supplies the tier definitions and investor weights of
// a structure.
type StructureRepository interface {
	GetTiers(ctx context.Context, structureID string) ([]Tier, error)
	GetInvestorWeights(ctx context.Context, structureID string) ([]InvestorWeight, error)
}

// TierStateRepository reads cumulative per-tier consumption. Rows are
// created lazily at zero and only ever incremented; increments happen inside
// the committer's transaction, never through this read interface.
type TierStateRepository interface {
	Get(ctx context.Context, structureID string, tierNumber int) (int64, error)
}

// DistributionRepository loads and saves distribution events.
type DistributionRepository interface {
	Get(ctx context.Context, id string) (*Distribution, error)
	Save(ctx context.Context, d *Distribution) error
}

// AllocationRepository reads committed allocation lines.
type AllocationRepository interface {
	ListByDistribution(ctx context.Context, distributionID string) ([]AllocationLine, error)
}

// Committer persists a CommitSet atomically. Implementations must enforce
// per-distribution mutual exclusion (compare-and-set on waterfall_applied or
// a row lock) and serialize same-structure commits: each increment's Prior
// snapshot is verified against the stored tier state inside the committing
// transaction, and any mismatch means another run committed in between. A
// losing concurrent caller gets *ConflictError, never a silent overwrite.
type Committer interface {
	CommitWaterfall(ctx context.Context, commit *CommitSet) error
}
