package auth

// Operation names the role-gated API operations.
type Operation string

const (
	OpManageStructures   Operation = "manage_structures"
	OpViewStructures     Operation = "view_structures"
	OpCreateDistribution Operation = "create_distribution"
	OpApplyWaterfall     Operation = "apply_waterfall"
	OpMarkPaid           Operation = "mark_paid"
	OpViewAllocations    Operation = "view_allocations"
)

// rolePolicy is the single source of truth for which roles may perform
// which operations. Handlers consult this table instead of branching on
// roles inline.
var rolePolicy = map[Operation]map[string]bool{
	OpManageStructures:   {"admin": true},
	OpViewStructures:     {"admin": true, "fund_manager": true, "investor": true},
	OpCreateDistribution: {"admin": true, "fund_manager": true},
	OpApplyWaterfall:     {"admin": true, "fund_manager": true},
	OpMarkPaid:           {"admin": true, "fund_manager": true},
	OpViewAllocations:    {"admin": true, "fund_manager": true, "investor": true},
}

// Allowed reports whether the given role may perform the operation. Unknown
// roles and unknown operations are always denied.
func Allowed(role string, op Operation) bool {
	return rolePolicy[op][role]
}
