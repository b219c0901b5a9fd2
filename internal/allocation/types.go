package allocation

import "fmt"

// Opacity is the visibility level of a relation, ordered from fully
// private to fully public.
type Opacity int

const (
	// OpacitySovereign is visible to the owning individual only.
	OpacitySovereign Opacity = iota
	// OpacityAttested is visible to an explicit partner list.
	OpacityAttested
	// OpacityContributed is visible to the contributing network.
	OpacityContributed
	// OpacityPublished is publicly visible.
	OpacityPublished
)

var opacityNames = map[Opacity]string{
	OpacitySovereign:   "sovereign",
	OpacityAttested:    "attested",
	OpacityContributed: "contributed",
	OpacityPublished:   "published",
}

// Valid reports whether o is one of the four levels.
func (o Opacity) Valid() bool {
	_, ok := opacityNames[o]
	return ok
}

// String returns the level name, or "???" for out-of-range values.
func (o Opacity) String() string {
	if name, ok := opacityNames[o]; ok {
		return name
	}
	return "???"
}

// Relation is one organization's holding of a resource type. The ledger
// invariant available + allocated + reserved == capacity holds after every
// mutation; available may go negative when operators over-allocate in an
// emergency, which keeps the invariant intact and the deficit visible.
type Relation struct {
	ID              string   `json:"id"`
	ResourceTypeID  string   `json:"resource_type_id"`
	RelationType    string   `json:"relation_type"`
	Capacity        int64    `json:"capacity"`
	Available       int64    `json:"available"`
	Allocated       int64    `json:"allocated"`
	Reserved        int64    `json:"reserved"`
	Opacity         Opacity  `json:"opacity"`
	PreviousOpacity *Opacity `json:"previous_opacity,omitempty"`
	AttestedTo      []string `json:"attested_to,omitempty"`
}

// CheckSum verifies the ledger invariant.
func (r Relation) CheckSum() error {
	if r.Available+r.Allocated+r.Reserved != r.Capacity {
		return fmt.Errorf("relation %s: available(%d) + allocated(%d) + reserved(%d) != capacity(%d)",
			r.ID, r.Available, r.Allocated, r.Reserved, r.Capacity)
	}
	return nil
}

// Status is an allocation's lifecycle state. Once it leaves active it is
// terminal.
type Status string

const (
	StatusActive   Status = "active"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusConsumed, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Approval attaches an explicit sign-off to a request.
type Approval struct {
	ApprovedBy string `json:"approved_by"`
	ApprovedAt int64  `json:"approved_at"`
	Note       string `json:"note,omitempty"`
}

// Allocation is the current-state record of one grant. It is never
// deleted; lifecycle transitions update status and leave timeline facts.
type Allocation struct {
	ID             string    `json:"id"`
	ResourceTypeID string    `json:"resource_type_id"`
	RelationID     string    `json:"relation_id"`
	Quantity       int64     `json:"quantity"`
	AllocatedTo    string    `json:"allocated_to"`
	Status         Status    `json:"status"`
	AllocatedAt    int64     `json:"allocated_at"`
	Approval       *Approval `json:"approval,omitempty"`
}

// ShadowRecord is the copy of an allocation written once into the
// individual's sovereign room at grant time. The organization never
// mutates it afterward, so the individual's view of the grant survives
// whatever happens in the organization's room.
type ShadowRecord struct {
	Allocation Allocation `json:"allocation"`
	OrgRoom    string     `json:"org_room"`
	WrittenAt  int64      `json:"written_at"`
}

// Request is a proposed allocation.
type Request struct {
	ResourceTypeID string    `json:"resource_type_id"`
	RelationID     string    `json:"relation_id"`
	Quantity       int64     `json:"quantity"`
	AllocatedTo    string    `json:"allocated_to"`
	Approval       *Approval `json:"approval,omitempty"`
}
