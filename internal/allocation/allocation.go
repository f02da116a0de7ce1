package allocation

// ExtraFromAddOns sums the contribution of every ACTIVE add-on that extends
// kind. Non-positive quantities contribute nothing.
func ExtraFromAddOns(kind ResourceKind, addOns []AddOn) int {
	at, ok := addOnFor[kind]
	if !ok {
		return 0
	}
	extra := 0
	for _, a := range addOns {
		if a.Status != AddOnActive || a.Type != at || a.Quantity <= 0 {
			continue
		}
		extra += a.Quantity * perUnit[at]
	}
	return extra
}

// TotalAllocation is the base plan ceiling plus add-on contributions.
func TotalAllocation(kind ResourceKind, tier PlanTier, addOns []AddOn) int {
	return BaseAllocation(kind, tier) + ExtraFromAddOns(kind, addOns)
}

// CanCreate reports whether one more resource fits under the ceiling.
// currentCount must be read right before the write it guards.
func CanCreate(kind ResourceKind, currentCount int, tier PlanTier, addOns []AddOn) bool {
	return currentCount < TotalAllocation(kind, tier, addOns)
}

// RemainingSlots never goes below zero, even when usage already exceeds the
// ceiling (for example after a downgrade).
func RemainingSlots(kind ResourceKind, currentCount int, tier PlanTier, addOns []AddOn) int {
	return max(0, TotalAllocation(kind, tier, addOns)-currentCount)
}

// CanPromoteToAdmin is the admin-slot guard used for promotions and admin
// invitations.
func CanPromoteToAdmin(currentAdmins int, tier PlanTier, addOns []AddOn) bool {
	return CanCreate(ResourceAdmins, currentAdmins, tier, addOns)
}

// CanCreateFunnel checks the flat per-workspace funnel ceiling.
func CanCreateFunnel(currentFunnels int, tier PlanTier, addOns []AddOn) bool {
	return CanCreate(ResourceFunnels, currentFunnels, tier, addOns)
}

// CanCreatePage checks the per-funnel page ceiling.
func CanCreatePage(currentPages int, tier PlanTier, addOns []AddOn) bool {
	return CanCreate(ResourcePagesPerFunnel, currentPages, tier, addOns)
}

// CanCreateWorkspace checks how many workspaces a user may own.
func CanCreateWorkspace(ownedWorkspaces int, tier PlanTier) bool {
	return CanCreate(ResourceWorkspaces, ownedWorkspaces, tier, nil)
}

// Summary is the full breakdown shown to users and used in error messages.
type Summary struct {
	Resource        ResourceKind `json:"resource"`
	Plan            PlanTier     `json:"plan"`
	BaseAllocation  int          `json:"base_allocation"`
	ExtraFromAddOns int          `json:"extra_from_add_ons"`
	TotalAllocation int          `json:"total_allocation"`
	CurrentUsage    int          `json:"current_usage"`
	RemainingSlots  int          `json:"remaining_slots"`
	CanCreateMore   bool         `json:"can_create_more"`
}

// Summarize computes a Summary. It never fails.
func Summarize(kind ResourceKind, currentCount int, tier PlanTier, addOns []AddOn) Summary {
	base := BaseAllocation(kind, tier)
	extra := ExtraFromAddOns(kind, addOns)
	total := base + extra
	return Summary{
		Resource:        kind,
		Plan:            tier,
		BaseAllocation:  base,
		ExtraFromAddOns: extra,
		TotalAllocation: total,
		CurrentUsage:    currentCount,
		RemainingSlots:  max(0, total-currentCount),
		CanCreateMore:   currentCount < total,
	}
}
