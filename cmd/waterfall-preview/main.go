// waterfall-preview computes a dry-run waterfall from a JSON scenario file
// and prints the tier breakdown and investor allocations. It never touches
// storage; operators use it to sanity-check a tier configuration before a
// real distribution is created.
//
// Usage: waterfall-preview -scenario scenario.json
//
// Scenario format:
//
//	{
//	  "structure_id": "fund-1",
//	  "total_amount": 100001,
//	  "prior_state": {"1": 80000},
//	  "tiers": [
//	    {"tier_number": 1, "tier_type": "RETURN_OF_CAPITAL",
//	     "lp_share_percent": "100", "gp_share_percent": "0",
//	     "threshold_amount": 100000, "is_active": true},
//	    {"tier_number": 2, "tier_type": "RESIDUAL",
//	     "lp_share_percent": "80", "gp_share_percent": "20", "is_active": true}
//	  ],
//	  "investors": [
//	    {"investor_id": "inv-a", "weight": "60"},
//	    {"investor_id": "inv-b", "weight": "40"}
//	  ]
//	}
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"fund-admin-backend/internal/waterfall"
)

type scenario struct {
	StructureID string                     `json:"structure_id"`
	TotalAmount int64                      `json:"total_amount"`
	PriorState  map[string]int64           `json:"prior_state"`
	Tiers       []waterfall.Tier           `json:"tiers"`
	Investors   []waterfall.InvestorWeight `json:"investors"`
}

func main() {
	scenarioPath := flag.String("scenario", "", "path to JSON scenario file")
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: waterfall-preview -scenario scenario.json")
		os.Exit(2)
	}

	data, err := os.ReadFile(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read scenario: %v\n", err)
		os.Exit(1)
	}

	var sc scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse scenario: %v\n", err)
		os.Exit(1)
	}

	for i := range sc.Tiers {
		sc.Tiers[i].StructureID = sc.StructureID
	}

	tierSet, err := waterfall.NewTierSet(sc.StructureID, sc.Tiers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid tier set: %v\n", err)
		os.Exit(1)
	}

	prior := make(map[int]int64, len(sc.PriorState))
	for k, v := range sc.PriorState {
		n, err := strconv.Atoi(k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid prior_state tier number %q\n", k)
			os.Exit(1)
		}
		prior[n] = v
	}

	results, err := waterfall.ComputeWaterfall(sc.TotalAmount, tierSet, prior)
	if err != nil {
		fmt.Fprintf(os.Stderr, "waterfall failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Distribution preview for structure %s (amount %d units)\n\n", sc.StructureID, sc.TotalAmount)
	fmt.Println("TIER BREAKDOWN")
	fmt.Printf("%-6s %-20s %14s %14s %14s\n", "Tier", "Type", "Amount", "LP pool", "GP pool")
	for _, r := range results {
		fmt.Printf("%-6d %-20s %14d %14d %14d\n", r.TierNumber, r.TierType, r.TierAmount, r.LPPool, r.GPPool)
	}

	if len(sc.Investors) == 0 {
		return
	}

	fmt.Println("\nINVESTOR ALLOCATIONS")
	fmt.Printf("%-6s %-20s %14s\n", "Tier", "Investor", "Amount")
	for _, r := range results {
		if r.LPPool == 0 {
			continue
		}
		lines, err := waterfall.AllocateLPPool(r.LPPool, sc.Investors)
		if err != nil {
			fmt.Fprintf(os.Stderr, "allocation failed for tier %d: %v\n", r.TierNumber, err)
			os.Exit(1)
		}
		for _, line := range lines {
			fmt.Printf("%-6d %-20s %14d\n", r.TierNumber, line.InvestorID, line.Amount)
		}
	}
}
