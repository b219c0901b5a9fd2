package catalog

// Category classifies a resource type. The set is closed; unknown
// categories are a configuration error, not a runtime condition.
type Category string

const (
	CategoryHousing   Category = "housing"
	CategoryFunds     Category = "funds"
	CategoryGoods     Category = "goods"
	CategoryServices  Category = "services"
	CategoryDocuments Category = "documents"
)

// Categories returns the closed category set in declaration order.
func Categories() []Category {
	return []Category{CategoryHousing, CategoryFunds, CategoryGoods, CategoryServices, CategoryDocuments}
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryHousing, CategoryFunds, CategoryGoods, CategoryServices, CategoryDocuments:
		return true
	}
	return false
}

// GrantType discriminates permission grants.
type GrantType string

const (
	GrantRole GrantType = "role"
	GrantUser GrantType = "user"
)

// Grant names one role or user allowed an ability.
type Grant struct {
	Type GrantType `json:"type"`
	ID   string    `json:"id"`
}

// Permissions maps abilities to grant lists.
//
// Empty lists are meaningful, not absent: an empty Viewers list means
// everyone can view, while empty Controllers or Allocators means the admin
// role only. A nil *Permissions on the resource type means access is
// unrestricted entirely.
type Permissions struct {
	Controllers []Grant `json:"controllers"`
	Allocators  []Grant `json:"allocators"`
	Viewers     []Grant `json:"viewers"`
}

// Governance records where a constraint came from, so a violation carrying
// it is contestable rather than just a rejection.
type Governance struct {
	PropagationLevel  string `json:"propagation_level"`
	AdoptingAuthority string `json:"adopting_authority"`
	SourceLevel       string `json:"source_level"`
}

// Constraints bound who may receive a resource and under what conditions.
// Pointer fields distinguish "unset" from zero so policy merging can
// overwrite keys individually.
type Constraints struct {
	EligibleRoles     []string    `json:"eligible_roles,omitempty"`
	MaxPerClient      *int        `json:"max_per_client,omitempty"`
	PeriodDays        *int        `json:"period_days,omitempty"`
	RequiresApproval  *bool       `json:"requires_approval,omitempty"`
	ApprovalThreshold *int64      `json:"approval_threshold,omitempty"`
	Governance        *Governance `json:"governance,omitempty"`
}

// Policy is a standalone constraint block scoped to one or more resource
// types, layered on top of the type's own constraints at validation time.
type Policy struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	ResourceTypeIDs []string    `json:"resource_type_ids"`
	Constraints     Constraints `json:"constraints"`
}

// AppliesTo reports whether the policy is scoped to the given resource type.
func (p Policy) AppliesTo(resourceTypeID string) bool {
	for _, id := range p.ResourceTypeIDs {
		if id == resourceTypeID {
			return true
		}
	}
	return false
}

// ResourceType describes one allocatable resource.
type ResourceType struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Category    Category     `json:"category"`
	Unit        string       `json:"unit"`
	Fungible    bool         `json:"fungible"`
	Perishable  bool         `json:"perishable"`
	TTLDays     *int         `json:"ttl_days,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
}
