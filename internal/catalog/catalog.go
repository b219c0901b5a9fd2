package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"caseledger/internal/op"
	"caseledger/internal/roomstore"
)

// EventType is the room state event type resource type records are keyed
// under.
const EventType = "app.caseledger.resource_type"

// ResourceTypeInput is the caller-supplied part of a new resource type.
type ResourceTypeInput struct {
	Name        string
	Category    Category
	Unit        string
	Fungible    bool
	Perishable  bool
	TTLDays     *int
	Constraints *Constraints
	Permissions *Permissions
}

// Catalog persists resource types as keyed state records in the owning
// organization's room.
type Catalog struct {
	store roomstore.Store
	ids   op.IDGenerator
}

// New creates a catalog backed by the given store.
func New(store roomstore.Store) *Catalog {
	return &Catalog{store: store, ids: op.UUIDv7Generator{}}
}

// NewWithIDs creates a catalog with a custom id generator. Used by tests.
func NewWithIDs(store roomstore.Store, ids op.IDGenerator) *Catalog {
	return &Catalog{store: store, ids: ids}
}

// CreateResourceType validates the input, assigns an id, fills default
// permissions when none are supplied, and persists the type keyed by id in
// the owning room.
func (c *Catalog) CreateResourceType(ctx context.Context, orgRoom string, input ResourceTypeInput) (*ResourceType, error) {
	if !input.Category.Valid() {
		return nil, &InvalidCategoryError{Category: input.Category}
	}

	rt := ResourceType{
		ID:          c.ids.NewID(),
		Name:        input.Name,
		Category:    input.Category,
		Unit:        input.Unit,
		Fungible:    input.Fungible,
		Perishable:  input.Perishable,
		TTLDays:     input.TTLDays,
		Constraints: input.Constraints,
		Permissions: input.Permissions,
	}
	if rt.Permissions == nil {
		rt.Permissions = DefaultPermissions()
	}

	payload, err := json.Marshal(rt)
	if err != nil {
		return nil, fmt.Errorf("marshal resource type %s: %w", rt.ID, err)
	}
	if err := c.store.WriteState(ctx, orgRoom, EventType, rt.ID, payload); err != nil {
		return nil, fmt.Errorf("persist resource type %s: %w", rt.ID, err)
	}

	slog.Info("resource type created",
		"room", orgRoom,
		"resource_type_id", rt.ID,
		"category", string(rt.Category),
		"name", rt.Name,
	)
	return &rt, nil
}

// GetResourceType fetches a persisted type by id. Returns (nil, nil) when
// absent, matching the store's read contract.
func (c *Catalog) GetResourceType(ctx context.Context, orgRoom, id string) (*ResourceType, error) {
	payload, err := c.store.ReadState(ctx, orgRoom, EventType, id)
	if err != nil {
		return nil, fmt.Errorf("read resource type %s: %w", id, err)
	}
	if payload == nil {
		return nil, nil
	}

	var rt ResourceType
	if err := json.Unmarshal(payload, &rt); err != nil {
		return nil, fmt.Errorf("decode resource type %s: %w", id, err)
	}
	return &rt, nil
}

// DefaultPermissions is the block attached to types created without one:
// admins control, the allocating roles allocate, and anyone can view.
func DefaultPermissions() *Permissions {
	return &Permissions{
		Controllers: []Grant{{Type: GrantRole, ID: AdminRole}},
		Allocators: []Grant{
			{Type: GrantRole, ID: AdminRole},
			{Type: GrantRole, ID: "case_manager"},
			{Type: GrantRole, ID: "provider"},
		},
		Viewers: []Grant{},
	}
}
