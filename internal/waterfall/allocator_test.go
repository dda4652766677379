package waterfall

import (
	"errors"
	"reflect"
	"testing"
)

func weights(pairs ...interface{}) []InvestorWeight {
	out := make([]InvestorWeight, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, InvestorWeight{
			InvestorID: pairs[i].(string),
			Weight:     pct(pairs[i+1].(string)),
		})
	}
	return out
}

func sumAllocations(allocs []InvestorAllocation) int64 {
	var total int64
	for _, a := range allocs {
		total += a.Amount
	}
	return total
}

func TestAllocateLPPool_WorkedExample(t *testing.T) {
	// Two investors 60/40 over an LP pool of 80001 units: raw shares are
	// 48000.6 and 32000.4, bases 48000 and 32000, and the single remainder
	// unit goes to the larger fractional remainder.
	allocs, err := AllocateLPPool(80001, weights("inv-a", "60", "inv-b", "40"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]int64{"inv-a": 48001, "inv-b": 32000}
	for _, a := range allocs {
		if a.Amount != want[a.InvestorID] {
			t.Errorf("investor %s: expected %d, got %d", a.InvestorID, want[a.InvestorID], a.Amount)
		}
	}
	if sumAllocations(allocs) != 80001 {
		t.Errorf("allocations sum to %d, expected 80001", sumAllocations(allocs))
	}
}

func TestAllocateLPPool_ExactSumProperty(t *testing.T) {
	testCases := []struct {
		name    string
		lpPool  int64
		weights []InvestorWeight
	}{
		{"even thirds", 100, weights("a", "33.33", "b", "33.33", "c", "33.34")},
		{"sixths", 1000001, weights("a", "16.67", "b", "16.67", "c", "16.67", "d", "16.67", "e", "16.66", "f", "16.66")},
		{"tiny pool", 1, weights("a", "50", "b", "50")},
		{"single investor", 999999, weights("solo", "100")},
		{"uneven", 77777, weights("a", "12.5", "b", "37.5", "c", "50")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			allocs, err := AllocateLPPool(tc.lpPool, tc.weights)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := sumAllocations(allocs); got != tc.lpPool {
				t.Errorf("allocations sum to %d, expected %d", got, tc.lpPool)
			}
		})
	}
}

func TestAllocateLPPool_TieBreakByInvestorID(t *testing.T) {
	// 50/50 over an odd pool: equal fractional remainders, so the extra
	// unit must go to the lexicographically smaller investor id.
	allocs, err := AllocateLPPool(101, weights("inv-b", "50", "inv-a", "50"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byID := make(map[string]int64, len(allocs))
	for _, a := range allocs {
		byID[a.InvestorID] = a.Amount
	}
	if byID["inv-a"] != 51 || byID["inv-b"] != 50 {
		t.Errorf("expected inv-a=51 inv-b=50, got inv-a=%d inv-b=%d", byID["inv-a"], byID["inv-b"])
	}
}

func TestAllocateLPPool_Deterministic(t *testing.T) {
	w := weights("inv-3", "19.17", "inv-1", "40.83", "inv-2", "25", "inv-4", "15")

	first, err := AllocateLPPool(123457, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := AllocateLPPool(123457, w)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d: output differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestAllocateLPPool_ZeroWeightInvestor(t *testing.T) {
	allocs, err := AllocateLPPool(101, weights("inv-a", "50", "inv-zero", "0", "inv-b", "50"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, a := range allocs {
		if a.InvestorID == "inv-zero" && a.Amount != 0 {
			t.Errorf("zero-weight investor must receive 0, got %d", a.Amount)
		}
	}
	if sumAllocations(allocs) != 101 {
		t.Errorf("allocations sum to %d, expected 101", sumAllocations(allocs))
	}
}

func TestAllocateLPPool_WithinOneUnitOfExactShare(t *testing.T) {
	w := weights("a", "33.33", "b", "33.33", "c", "33.34")
	allocs, err := AllocateLPPool(1000, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exact := map[string]float64{"a": 333.3, "b": 333.3, "c": 333.4}
	for _, alloc := range allocs {
		diff := float64(alloc.Amount) - exact[alloc.InvestorID]
		if diff > 1 || diff < -1 {
			t.Errorf("investor %s allocation %d is more than 1 unit from exact share %.1f",
				alloc.InvestorID, alloc.Amount, exact[alloc.InvestorID])
		}
	}
}

func TestAllocateLPPool_ZeroPool(t *testing.T) {
	allocs, err := AllocateLPPool(0, weights("a", "60", "b", "40"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, a := range allocs {
		if a.Amount != 0 {
			t.Errorf("expected zero allocation, got %d for %s", a.Amount, a.InvestorID)
		}
	}
}

func TestAllocateLPPool_InvalidWeights(t *testing.T) {
	testCases := []struct {
		name    string
		lpPool  int64
		weights []InvestorWeight
	}{
		{"empty weights", 100, nil},
		{"weights sum below 100", 100, weights("a", "60", "b", "20")},
		{"weights sum above tolerance", 100, weights("a", "60", "b", "40.02")},
		{"negative weight", 100, weights("a", "110", "b", "-10")},
		{"negative pool", -5, weights("a", "100")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AllocateLPPool(tc.lpPool, tc.weights)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected *ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestAllocateLPPool_WeightSumTolerance(t *testing.T) {
	// 99.99 and 100.01 are inside the ±0.01 tolerance.
	for _, w := range [][]InvestorWeight{
		weights("a", "60", "b", "39.99"),
		weights("a", "60", "b", "40.01"),
	} {
		if _, err := AllocateLPPool(1000, w); err != nil {
			t.Errorf("weights within tolerance rejected: %v", err)
		}
	}
}
