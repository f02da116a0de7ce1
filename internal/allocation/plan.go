package allocation

// PlanTier is the subscription level of a workspace.
type PlanTier string

const (
	PlanFree     PlanTier = "FREE"
	PlanBusiness PlanTier = "BUSINESS"
	PlanAgency   PlanTier = "AGENCY"
)

// IsValid reports whether t is a known tier.
func (t PlanTier) IsValid() bool {
	switch t {
	case PlanFree, PlanBusiness, PlanAgency:
		return true
	}
	return false
}

// Rank orders tiers from least to most capable. Unknown tiers rank as FREE.
func (t PlanTier) Rank() int {
	switch t {
	case PlanBusiness:
		return 1
	case PlanAgency:
		return 2
	default:
		return 0
	}
}

// ResourceKind is a resource with a plan-bound ceiling.
type ResourceKind string

const (
	ResourceWorkspaces     ResourceKind = "workspaces"
	ResourceAdmins         ResourceKind = "admins"
	ResourcePagesPerFunnel ResourceKind = "pages"
	ResourceFunnels        ResourceKind = "funnels"
)

// FunnelsPerWorkspace is deliberately not plan-indexed: every tier gets the
// same flat ceiling.
const FunnelsPerWorkspace = 3

var baseTables = map[ResourceKind]map[PlanTier]int{
	ResourceWorkspaces: {
		PlanFree:     1,
		PlanBusiness: 1,
		PlanAgency:   3,
	},
	ResourceAdmins: {
		PlanFree:     1,
		PlanBusiness: 2,
		PlanAgency:   1,
	},
	ResourcePagesPerFunnel: {
		PlanFree:     35,
		PlanBusiness: 35,
		PlanAgency:   35,
	},
}

// BaseAllocation returns the plan ceiling for kind before add-ons.
// Unknown tiers use the FREE value; unknown kinds have no allocation.
func BaseAllocation(kind ResourceKind, tier PlanTier) int {
	if kind == ResourceFunnels {
		return FunnelsPerWorkspace
	}
	table, ok := baseTables[kind]
	if !ok {
		return 0
	}
	if n, ok := table[tier]; ok {
		return n
	}
	return table[PlanFree]
}
