package allocation

// AddOnType identifies what an add-on extends.
type AddOnType string

const (
	AddOnExtraPage  AddOnType = "EXTRA_PAGE"
	AddOnExtraAdmin AddOnType = "EXTRA_ADMIN"
)

// IsValid reports whether t is a known add-on type.
func (t AddOnType) IsValid() bool {
	return t == AddOnExtraPage || t == AddOnExtraAdmin
}

// AddOnStatus is the billing state of an add-on. Only ACTIVE counts.
type AddOnStatus string

const (
	AddOnActive    AddOnStatus = "ACTIVE"
	AddOnPending   AddOnStatus = "PENDING"
	AddOnInactive  AddOnStatus = "INACTIVE"
	AddOnCancelled AddOnStatus = "CANCELLED"
)

// AddOn is a purchased increment to one resource ceiling.
type AddOn struct {
	Type     AddOnType   `json:"type"`
	Quantity int         `json:"quantity"`
	Status   AddOnStatus `json:"status"`
}

// perUnit is how much one unit of an add-on adds to its resource.
var perUnit = map[AddOnType]int{
	AddOnExtraPage:  5,
	AddOnExtraAdmin: 1,
}

// addOnFor maps a resource to the add-on type that extends it.
var addOnFor = map[ResourceKind]AddOnType{
	ResourcePagesPerFunnel: AddOnExtraPage,
	ResourceAdmins:         AddOnExtraAdmin,
}

// PerUnitIncrement returns the ceiling increase for one unit of t.
func PerUnitIncrement(t AddOnType) int {
	return perUnit[t]
}

// ResourceFor returns the resource kind an add-on type extends.
func ResourceFor(t AddOnType) (ResourceKind, bool) {
	for kind, at := range addOnFor {
		if at == t {
			return kind, true
		}
	}
	return "", false
}
