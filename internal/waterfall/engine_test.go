package waterfall

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

// ============================================================================
// IN-MEMORY FAKES
// ============================================================================

type memStore struct {
	tiers         map[string][]Tier
	weights       map[string][]InvestorWeight
	distributions map[string]*Distribution
	tierState     map[string]int64 // "structureID/tierNumber" -> amount
	allocations   []AllocationLine
	commitCalls   int
	failCommit    error
}

func newMemStore() *memStore {
	return &memStore{
		tiers:         make(map[string][]Tier),
		weights:       make(map[string][]InvestorWeight),
		distributions: make(map[string]*Distribution),
		tierState:     make(map[string]int64),
	}
}

func stateKey(structureID string, tierNumber int) string {
	return fmt.Sprintf("%s/%d", structureID, tierNumber)
}

func (m *memStore) GetTiers(_ context.Context, structureID string) ([]Tier, error) {
	tiers, ok := m.tiers[structureID]
	if !ok {
		return nil, &NotFoundError{Resource: "structure", ID: structureID}
	}
	return tiers, nil
}

func (m *memStore) GetInvestorWeights(_ context.Context, structureID string) ([]InvestorWeight, error) {
	return m.weights[structureID], nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Distribution, error) {
	d, ok := m.distributions[id]
	if !ok {
		return nil, &NotFoundError{Resource: "distribution", ID: id}
	}
	copied := *d
	return &copied, nil
}

func (m *memStore) Save(_ context.Context, d *Distribution) error {
	copied := *d
	m.distributions[d.ID] = &copied
	return nil
}

func (m *memStore) GetState(_ context.Context, structureID string, tierNumber int) (int64, error) {
	return m.tierState[stateKey(structureID, tierNumber)], nil
}

// CommitWaterfall mimics the transactional committer: compare-and-set on
// waterfall_applied, verify each increment's Prior snapshot against stored
// tier state, then apply everything or nothing.
func (m *memStore) CommitWaterfall(_ context.Context, commit *CommitSet) error {
	m.commitCalls++
	if m.failCommit != nil {
		return m.failCommit
	}

	current, ok := m.distributions[commit.Distribution.ID]
	if !ok {
		return &NotFoundError{Resource: "distribution", ID: commit.Distribution.ID}
	}
	if current.WaterfallApplied {
		return &ConflictError{DistributionID: current.ID, Reason: "waterfall already applied"}
	}
	for _, inc := range commit.Increments {
		if stored := m.tierState[stateKey(inc.StructureID, inc.TierNumber)]; stored != inc.Prior {
			return &ConflictError{
				DistributionID: commit.Distribution.ID,
				Reason: fmt.Sprintf("tier %d cumulative state changed since computation (had %d, found %d)",
					inc.TierNumber, inc.Prior, stored),
			}
		}
	}

	copied := *commit.Distribution
	m.distributions[copied.ID] = &copied
	for _, inc := range commit.Increments {
		m.tierState[stateKey(inc.StructureID, inc.TierNumber)] += inc.Amount
	}
	m.allocations = append(m.allocations, commit.Allocations...)
	return nil
}

type stateReader struct{ store *memStore }

func (r stateReader) Get(ctx context.Context, structureID string, tierNumber int) (int64, error) {
	return r.store.GetState(ctx, structureID, tierNumber)
}

func newTestEngine(store *memStore) *Engine {
	return NewEngine(store, stateReader{store}, store, store, zerolog.Nop())
}

func seedStructure(store *memStore) {
	store.tiers["struct-1"] = []Tier{
		makeTier(1, TierReturnOfCapital, "100", "0", amt(100000)),
		makeTier(2, TierResidual, "80", "20", nil),
	}
	store.weights["struct-1"] = weights("inv-a", "60", "inv-b", "40")
}

func seedDistribution(store *memStore, id string, total int64) {
	store.distributions[id] = &Distribution{
		ID:          id,
		StructureID: "struct-1",
		TotalAmount: total,
		Status:      StatusDraft,
	}
}

// ============================================================================
// APPLY WATERFALL
// ============================================================================

func TestEngine_ApplyWaterfall(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 250000)

	engine := newTestEngine(store)
	result, err := engine.ApplyWaterfall(context.Background(), "dist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Tier 1 absorbs its full 100000 threshold, tier 2 the remaining 150000.
	if len(result.TierBreakdown) != 2 {
		t.Fatalf("expected 2 tier results, got %d", len(result.TierBreakdown))
	}
	if result.TierBreakdown[0].TierAmount != 100000 {
		t.Errorf("tier 1 amount: expected 100000, got %d", result.TierBreakdown[0].TierAmount)
	}
	if result.TierBreakdown[1].TierAmount != 150000 {
		t.Errorf("tier 2 amount: expected 150000, got %d", result.TierBreakdown[1].TierAmount)
	}

	var total int64
	for _, line := range result.Allocations {
		total += line.Amount
	}
	if total != 250000 {
		t.Errorf("allocation lines sum to %d, expected 250000", total)
	}

	dist := store.distributions["dist-1"]
	if dist.Status != StatusWaterfallApplied || !dist.WaterfallApplied {
		t.Errorf("distribution not flipped: status=%s applied=%v", dist.Status, dist.WaterfallApplied)
	}
	if got := store.tierState[stateKey("struct-1", 1)]; got != 100000 {
		t.Errorf("tier 1 cumulative state: expected 100000, got %d", got)
	}
}

func TestEngine_ApplyWaterfall_GPLedgerLines(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 150000)

	engine := newTestEngine(store)
	result, err := engine.ApplyWaterfall(context.Background(), "dist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Tier 2 (80/20) takes 50000: GP ledger line must carry the 20% side so
	// tier totals reconcile.
	var gpLines int
	for _, line := range result.Allocations {
		if line.IsGP {
			gpLines++
			if line.InvestorID != GPLedgerID {
				t.Errorf("GP line carries investor id %q", line.InvestorID)
			}
			if line.TierNumber != 2 || line.Amount != 10000 {
				t.Errorf("expected GP line tier 2 amount 10000, got tier %d amount %d",
					line.TierNumber, line.Amount)
			}
		}
	}
	if gpLines != 1 {
		t.Errorf("expected exactly 1 GP ledger line, got %d", gpLines)
	}
}

func TestEngine_ApplyWaterfall_Idempotency(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 50000)

	engine := newTestEngine(store)
	if _, err := engine.ApplyWaterfall(context.Background(), "dist-1"); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}

	stateAfterFirst := store.tierState[stateKey("struct-1", 1)]
	allocsAfterFirst := len(store.allocations)

	_, err := engine.ApplyWaterfall(context.Background(), "dist-1")
	if err == nil {
		t.Fatal("second apply must fail")
	}
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected *ConflictError, got %T: %v", err, err)
	}

	// State after the failed second call is identical to state after the
	// first call: never double-counted.
	if got := store.tierState[stateKey("struct-1", 1)]; got != stateAfterFirst {
		t.Errorf("tier state changed by failed re-apply: %d -> %d", stateAfterFirst, got)
	}
	if len(store.allocations) != allocsAfterFirst {
		t.Errorf("allocation lines changed by failed re-apply: %d -> %d",
			allocsAfterFirst, len(store.allocations))
	}
}

func TestEngine_ApplyWaterfall_ConflictFromNonDraftStatus(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 50000)
	store.distributions["dist-1"].Status = StatusPaid

	engine := newTestEngine(store)
	_, err := engine.ApplyWaterfall(context.Background(), "dist-1")
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected *ConflictError, got %v", err)
	}
	if store.commitCalls != 0 {
		t.Error("commit must not be attempted from an invalid state")
	}
}

func TestEngine_ApplyWaterfall_ConcurrentLoserGetsConflict(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 50000)

	// Simulate losing the commit race: another writer applied between our
	// read and our commit.
	store.failCommit = &ConflictError{DistributionID: "dist-1", Reason: "concurrent writer won"}

	engine := newTestEngine(store)
	_, err := engine.ApplyWaterfall(context.Background(), "dist-1")
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected *ConflictError from losing the race, got %v", err)
	}
}

// frozenStateReader serves the tier-state snapshot it was built with no
// matter what commits afterwards, standing in for a second engine whose
// state reads interleaved with another writer's commit.
type frozenStateReader struct{ state map[string]int64 }

func (r frozenStateReader) Get(_ context.Context, structureID string, tierNumber int) (int64, error) {
	return r.state[stateKey(structureID, tierNumber)], nil
}

func TestEngine_ApplyWaterfall_StaleStateSnapshotLosesCommit(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 150000)
	seedDistribution(store, "dist-2", 150000)

	// Both runs compute against the state as it was before either committed,
	// as two interleaved applications over the same structure would.
	engine := NewEngine(store, frozenStateReader{state: map[string]int64{}}, store, store, zerolog.Nop())

	if _, err := engine.ApplyWaterfall(context.Background(), "dist-1"); err != nil {
		t.Fatalf("first application failed: %v", err)
	}
	if got := store.tierState[stateKey("struct-1", 1)]; got != 100000 {
		t.Fatalf("tier 1 state after first commit = %d, want 100000", got)
	}

	// The second run also booked 100000 into the capped tier. Committing it
	// would push the tier past its threshold, so the committer must reject.
	_, err := engine.ApplyWaterfall(context.Background(), "dist-2")
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected *ConflictError from stale snapshot, got %T: %v", err, err)
	}

	if got := store.tierState[stateKey("struct-1", 1)]; got != 100000 {
		t.Errorf("capped tier over-filled: state = %d, threshold 100000", got)
	}
	loser := store.distributions["dist-2"]
	if loser.WaterfallApplied || loser.Status != StatusDraft {
		t.Errorf("losing distribution mutated: status=%s applied=%v", loser.Status, loser.WaterfallApplied)
	}
	for _, line := range store.allocations {
		if line.DistributionID == "dist-2" {
			t.Errorf("losing distribution has a committed allocation line: %+v", line)
		}
	}
}

func TestEngine_ApplyWaterfall_NotFound(t *testing.T) {
	engine := newTestEngine(newMemStore())
	_, err := engine.ApplyWaterfall(context.Background(), "missing")
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
}

func TestEngine_ApplyWaterfall_InvalidTierSetLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	store.tiers["struct-1"] = []Tier{
		makeTier(1, TierReturnOfCapital, "100", "0", amt(100000)),
		makeTier(3, TierResidual, "80", "20", nil), // gap: no tier 2
	}
	store.weights["struct-1"] = weights("inv-a", "100")
	seedDistribution(store, "dist-1", 50000)

	engine := newTestEngine(store)
	_, err := engine.ApplyWaterfall(context.Background(), "dist-1")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError for tier gap, got %v", err)
	}
	if store.commitCalls != 0 {
		t.Error("nothing may be committed when validation fails")
	}
	if store.distributions["dist-1"].Status != StatusDraft {
		t.Error("distribution status must remain Draft")
	}
}

func TestEngine_ApplyWaterfall_CapacityOverflowSurfaces(t *testing.T) {
	store := newMemStore()
	store.tiers["struct-1"] = []Tier{
		makeTier(1, TierReturnOfCapital, "100", "0", amt(10000)),
	}
	store.weights["struct-1"] = weights("inv-a", "100")
	seedDistribution(store, "dist-1", 50000)

	engine := newTestEngine(store)
	_, err := engine.ApplyWaterfall(context.Background(), "dist-1")
	var aErr *ArithmeticError
	if !errors.As(err, &aErr) {
		t.Fatalf("expected *ArithmeticError, got %v", err)
	}
	if store.commitCalls != 0 {
		t.Error("nothing may be committed when cash is left over")
	}
}

func TestEngine_ApplyWaterfall_CumulativeAcrossDistributions(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 60000)
	seedDistribution(store, "dist-2", 60000)

	engine := newTestEngine(store)
	if _, err := engine.ApplyWaterfall(context.Background(), "dist-1"); err != nil {
		t.Fatalf("dist-1: %v", err)
	}
	result, err := engine.ApplyWaterfall(context.Background(), "dist-2")
	if err != nil {
		t.Fatalf("dist-2: %v", err)
	}

	// Tier 1 had 60000 of its 100000 threshold consumed by dist-1, so
	// dist-2 gets 40000 there and 20000 spills into the residual tier.
	if result.TierBreakdown[0].TierAmount != 40000 {
		t.Errorf("expected tier 1 to absorb 40000, got %d", result.TierBreakdown[0].TierAmount)
	}
	if result.TierBreakdown[1].TierAmount != 20000 {
		t.Errorf("expected tier 2 to absorb 20000, got %d", result.TierBreakdown[1].TierAmount)
	}
	if got := store.tierState[stateKey("struct-1", 1)]; got != 100000 {
		t.Errorf("cumulative tier 1 state: expected 100000, got %d", got)
	}
}

// ============================================================================
// MARK PAID
// ============================================================================

func TestEngine_MarkPaid(t *testing.T) {
	store := newMemStore()
	seedStructure(store)
	seedDistribution(store, "dist-1", 50000)

	engine := newTestEngine(store)
	if _, err := engine.ApplyWaterfall(context.Background(), "dist-1"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	dist, err := engine.MarkPaid(context.Background(), "dist-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dist.Status != StatusPaid {
		t.Errorf("expected status PAID, got %s", dist.Status)
	}
}

func TestEngine_MarkPaid_InvalidTransitions(t *testing.T) {
	testCases := []struct {
		name   string
		status DistributionStatus
	}{
		{"from draft", StatusDraft},
		{"already paid", StatusPaid},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			seedStructure(store)
			seedDistribution(store, "dist-1", 50000)
			store.distributions["dist-1"].Status = tc.status

			engine := newTestEngine(store)
			_, err := engine.MarkPaid(context.Background(), "dist-1")
			var cErr *ConflictError
			if !errors.As(err, &cErr) {
				t.Fatalf("expected *ConflictError, got %v", err)
			}
		})
	}
}
