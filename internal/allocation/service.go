package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"caseledger/internal/catalog"
	"caseledger/internal/op"
	"caseledger/internal/oplog"
	"caseledger/internal/roomstore"
)

// Room event types the service persists under.
const (
	RelationEventType   = "app.caseledger.relation"
	AllocationEventType = "app.caseledger.allocation"
	ShadowEventType     = "app.caseledger.vault_shadow"
	LifecycleEventType  = "app.caseledger.allocation_lifecycle"
	InventoryEventType  = "app.caseledger.inventory_adjustment"
	OpacityEventType    = "app.caseledger.opacity_change"
)

// Service orchestrates the allocation ledger: relations in organization
// rooms, allocation records in bridge rooms, shadow copies in vault rooms,
// and operation log entries documenting each grant.
//
// There is no compensating rollback. A failure partway through an
// allocation (ledger updated, shadow write failed) is returned to the
// caller for manual reconciliation rather than silently unwound.
type Service struct {
	store roomstore.Store
	log   *oplog.Log
	ids   op.IDGenerator
	clock oplog.Clock
	locks *keyedMutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithIDGenerator replaces the UUIDv7 generator. Used by tests.
func WithIDGenerator(g op.IDGenerator) ServiceOption {
	return func(s *Service) { s.ids = g }
}

// WithClock replaces the wall clock. Used by tests.
func WithClock(c oplog.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// NewService creates an allocation service. The operation log documents
// grants; it writes through the same store.
func NewService(store roomstore.Store, log *oplog.Log, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		log:   log,
		ids:   op.UUIDv7Generator{},
		clock: systemClock{},
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type systemClock struct{}

func (systemClock) NowUnixMilli() int64 { return time.Now().UnixMilli() }

// EstablishInput is the caller-supplied part of a new relation.
type EstablishInput struct {
	ResourceTypeID string
	RelationType   string
	Capacity       int64
}

// EstablishRelation creates a relation with the full capacity available
// and sovereign opacity, and persists its inventory record in the
// organization's room.
func (s *Service) EstablishRelation(ctx context.Context, orgRoom string, input EstablishInput) (*Relation, error) {
	if input.Capacity < 0 {
		return nil, fmt.Errorf("establish relation: capacity must not be negative, got %d", input.Capacity)
	}

	relation := Relation{
		ID:             s.ids.NewID(),
		ResourceTypeID: input.ResourceTypeID,
		RelationType:   input.RelationType,
		Capacity:       input.Capacity,
		Available:      input.Capacity,
		Opacity:        OpacitySovereign,
	}
	if err := s.writeRelation(ctx, orgRoom, relation); err != nil {
		return nil, err
	}

	slog.Info("relation established",
		"room", orgRoom,
		"relation_id", relation.ID,
		"resource_type_id", relation.ResourceTypeID,
		"capacity", relation.Capacity,
	)
	return &relation, nil
}

// RestockInventory moves capacity and available by the same signed delta.
func (s *Service) RestockInventory(ctx context.Context, orgRoom, relationID string, delta int64) (*Relation, error) {
	return s.shiftInventory(ctx, orgRoom, relationID, delta, "")
}

// AdjustInventory is RestockInventory plus an audited reason: the delta is
// recorded as a timeline fact in the organization's room.
func (s *Service) AdjustInventory(ctx context.Context, orgRoom, relationID string, delta int64, reason string) (*Relation, error) {
	if reason == "" {
		return nil, fmt.Errorf("adjust inventory: a reason is required")
	}
	return s.shiftInventory(ctx, orgRoom, relationID, delta, reason)
}

func (s *Service) shiftInventory(ctx context.Context, orgRoom, relationID string, delta int64, reason string) (*Relation, error) {
	unlock := s.locks.lock(orgRoom + "/" + relationID)
	defer unlock()

	relation, err := s.readRelation(ctx, orgRoom, relationID)
	if err != nil {
		return nil, err
	}

	relation.Capacity += delta
	relation.Available += delta
	if relation.Capacity < 0 {
		return nil, fmt.Errorf("shift inventory: relation %s capacity would go negative (%d)", relationID, relation.Capacity)
	}
	if err := relation.CheckSum(); err != nil {
		return nil, fmt.Errorf("shift inventory: %w", err)
	}
	if err := s.writeRelation(ctx, orgRoom, *relation); err != nil {
		return nil, err
	}

	if reason != "" {
		fact := map[string]any{
			"relation_id": relationID,
			"delta":       delta,
			"reason":      reason,
			"ts":          s.clock.NowUnixMilli(),
		}
		payload, err := json.Marshal(fact)
		if err != nil {
			return nil, fmt.Errorf("marshal inventory adjustment: %w", err)
		}
		if _, err := s.store.AppendTimelineEvent(ctx, orgRoom, InventoryEventType, payload); err != nil {
			return nil, fmt.Errorf("record inventory adjustment for %s: %w", relationID, err)
		}
	}

	slog.Info("inventory shifted",
		"room", orgRoom,
		"relation_id", relationID,
		"delta", delta,
		"capacity", relation.Capacity,
		"available", relation.Available,
	)
	return relation, nil
}

// AllocateResource validates the request and, when valid, performs the
// grant: ledger mutation under the relation lock, allocation record in the
// bridge room, shadow copy in the individual's vault room, and an insert
// operation documenting the grant.
//
// An invalid request mutates nothing and returns the full violation set.
func (s *Service) AllocateResource(ctx context.Context, bridgeRoom string, req Request, orgRoom, vaultRoom string, rt catalog.ResourceType, policies []catalog.Policy, callerRole string) (Result, error) {
	existing, err := s.ListAllocations(ctx, bridgeRoom)
	if err != nil {
		return Result{}, err
	}
	relation, err := s.readRelation(ctx, orgRoom, req.RelationID)
	if err != nil {
		return Result{}, err
	}

	result := Validate(req, rt, policies, existing, callerRole, relation, s.clock.NowUnixMilli())
	if !result.Valid {
		slog.Info("allocation rejected",
			"room", bridgeRoom,
			"resource_type_id", req.ResourceTypeID,
			"violations", len(result.Violations),
		)
		return result, nil
	}

	unlock := s.locks.lock(orgRoom + "/" + req.RelationID)
	relation, err = s.readRelation(ctx, orgRoom, req.RelationID)
	if err != nil {
		unlock()
		return Result{}, err
	}
	relation.Available -= req.Quantity
	relation.Allocated += req.Quantity
	if err := relation.CheckSum(); err != nil {
		unlock()
		return Result{}, fmt.Errorf("allocate: %w", err)
	}
	err = s.writeRelation(ctx, orgRoom, *relation)
	unlock()
	if err != nil {
		return Result{}, err
	}

	alloc := Allocation{
		ID:             s.ids.NewID(),
		ResourceTypeID: req.ResourceTypeID,
		RelationID:     req.RelationID,
		Quantity:       req.Quantity,
		AllocatedTo:    req.AllocatedTo,
		Status:         StatusActive,
		AllocatedAt:    s.clock.NowUnixMilli(),
		Approval:       req.Approval,
	}
	if err := s.writeAllocation(ctx, bridgeRoom, alloc); err != nil {
		return Result{}, fmt.Errorf("ledger updated but allocation record failed, reconcile manually: %w", err)
	}

	shadow := ShadowRecord{Allocation: alloc, OrgRoom: orgRoom, WrittenAt: alloc.AllocatedAt}
	shadowPayload, err := json.Marshal(shadow)
	if err != nil {
		return Result{}, fmt.Errorf("marshal shadow record %s: %w", alloc.ID, err)
	}
	if err := s.store.WriteState(ctx, vaultRoom, ShadowEventType, alloc.ID, shadowPayload); err != nil {
		return Result{}, fmt.Errorf("allocation %s recorded but vault shadow failed, reconcile manually: %w", alloc.ID, err)
	}

	if _, err := s.log.Append(ctx, bridgeRoom, op.INS, "allocations."+alloc.ID,
		op.Obj(op.P("value", op.Obj(
			op.P("resource_type_id", op.VString(alloc.ResourceTypeID)),
			op.P("relation_id", op.VString(alloc.RelationID)),
			op.P("quantity", op.VInt(alloc.Quantity)),
			op.P("allocated_to", op.VString(alloc.AllocatedTo)),
		))),
		op.Frame{Type: "institutional", Epistemic: "recorded", Role: callerRole},
	); err != nil {
		return Result{}, fmt.Errorf("allocation %s recorded but grant operation failed: %w", alloc.ID, err)
	}

	slog.Info("resource allocated",
		"room", bridgeRoom,
		"allocation_id", alloc.ID,
		"relation_id", alloc.RelationID,
		"quantity", alloc.Quantity,
		"allocated_to", alloc.AllocatedTo,
	)

	result.Allocation = &alloc
	return result, nil
}

// UpdateRelationOpacity moves a relation to a new visibility level,
// keeping the previous level on the record and appending an audit fact.
// Upgrades to attested store the explicit partner list.
func (s *Service) UpdateRelationOpacity(ctx context.Context, orgRoom, relationID string, newOpacity Opacity, attestedTo []string) (*Relation, error) {
	if !newOpacity.Valid() {
		return nil, fmt.Errorf("update opacity: %d is not a known level", int(newOpacity))
	}

	unlock := s.locks.lock(orgRoom + "/" + relationID)
	defer unlock()

	relation, err := s.readRelation(ctx, orgRoom, relationID)
	if err != nil {
		return nil, err
	}

	previous := relation.Opacity
	relation.PreviousOpacity = &previous
	relation.Opacity = newOpacity
	if newOpacity == OpacityAttested {
		relation.AttestedTo = attestedTo
	}
	if err := s.writeRelation(ctx, orgRoom, *relation); err != nil {
		return nil, err
	}

	fact := map[string]any{
		"relation_id":      relationID,
		"previous_opacity": previous.String(),
		"new_opacity":      newOpacity.String(),
		"ts":               s.clock.NowUnixMilli(),
	}
	if newOpacity == OpacityAttested {
		fact["attested_to"] = attestedTo
	}
	payload, err := json.Marshal(fact)
	if err != nil {
		return nil, fmt.Errorf("marshal opacity change: %w", err)
	}
	if _, err := s.store.AppendTimelineEvent(ctx, orgRoom, OpacityEventType, payload); err != nil {
		return nil, fmt.Errorf("record opacity change for %s: %w", relationID, err)
	}

	slog.Info("relation opacity updated",
		"room", orgRoom,
		"relation_id", relationID,
		"previous", previous.String(),
		"new", newOpacity.String(),
	)
	return relation, nil
}

// TransitionAllocation moves an active allocation to a terminal status and
// appends the lifecycle fact. Transitions out of active are terminal;
// anything else is rejected.
func (s *Service) TransitionAllocation(ctx context.Context, bridgeRoom, allocationID string, newStatus Status, reason string) (*Allocation, error) {
	if !newStatus.Valid() || newStatus == StatusActive {
		return nil, fmt.Errorf("transition allocation: %q is not a terminal status", newStatus)
	}
	return s.transition(ctx, bridgeRoom, allocationID, newStatus, string(newStatus), reason)
}

// ReturnAllocation records a return: the allocation is closed out as
// revoked, the lifecycle fact says "returned", and the quantity goes back
// to the relation's available pool in the organization's room.
func (s *Service) ReturnAllocation(ctx context.Context, bridgeRoom, orgRoom, allocationID, reason string) (*Allocation, error) {
	alloc, err := s.transition(ctx, bridgeRoom, allocationID, StatusRevoked, "returned", reason)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(orgRoom + "/" + alloc.RelationID)
	defer unlock()

	relation, err := s.readRelation(ctx, orgRoom, alloc.RelationID)
	if err != nil {
		return nil, fmt.Errorf("allocation %s returned but relation read failed, reconcile manually: %w", allocationID, err)
	}
	relation.Available += alloc.Quantity
	relation.Allocated -= alloc.Quantity
	if err := relation.CheckSum(); err != nil {
		return nil, fmt.Errorf("return allocation: %w", err)
	}
	if err := s.writeRelation(ctx, orgRoom, *relation); err != nil {
		return nil, fmt.Errorf("allocation %s returned but relation write failed, reconcile manually: %w", allocationID, err)
	}
	return alloc, nil
}

func (s *Service) transition(ctx context.Context, bridgeRoom, allocationID string, newStatus Status, event, reason string) (*Allocation, error) {
	alloc, err := s.GetAllocation(ctx, bridgeRoom, allocationID)
	if err != nil {
		return nil, err
	}
	if alloc == nil {
		return nil, fmt.Errorf("transition allocation: %s not found in %s", allocationID, bridgeRoom)
	}
	if alloc.Status != StatusActive {
		return nil, fmt.Errorf("transition allocation: %s is already %s, terminal statuses do not transition", allocationID, alloc.Status)
	}

	alloc.Status = newStatus
	if err := s.writeAllocationState(ctx, bridgeRoom, *alloc); err != nil {
		return nil, err
	}

	fact := map[string]any{
		"allocation_id": allocationID,
		"event":         event,
		"status":        string(newStatus),
		"reason":        reason,
		"ts":            s.clock.NowUnixMilli(),
	}
	payload, err := json.Marshal(fact)
	if err != nil {
		return nil, fmt.Errorf("marshal lifecycle fact: %w", err)
	}
	if _, err := s.store.AppendTimelineEvent(ctx, bridgeRoom, LifecycleEventType, payload); err != nil {
		return nil, fmt.Errorf("record lifecycle event for %s: %w", allocationID, err)
	}

	slog.Info("allocation transitioned",
		"room", bridgeRoom,
		"allocation_id", allocationID,
		"event", event,
		"status", string(newStatus),
	)
	return alloc, nil
}

// GetAllocation fetches the current-state record. Returns (nil, nil) when
// absent.
func (s *Service) GetAllocation(ctx context.Context, bridgeRoom, allocationID string) (*Allocation, error) {
	payload, err := s.store.ReadState(ctx, bridgeRoom, AllocationEventType, allocationID)
	if err != nil {
		return nil, fmt.Errorf("read allocation %s: %w", allocationID, err)
	}
	if payload == nil {
		return nil, nil
	}
	var alloc Allocation
	if err := json.Unmarshal(payload, &alloc); err != nil {
		return nil, fmt.Errorf("decode allocation %s: %w", allocationID, err)
	}
	return &alloc, nil
}

// GetRelation fetches a relation's inventory record. Returns (nil, nil)
// when absent.
func (s *Service) GetRelation(ctx context.Context, orgRoom, relationID string) (*Relation, error) {
	payload, err := s.store.ReadState(ctx, orgRoom, RelationEventType, relationID)
	if err != nil {
		return nil, fmt.Errorf("read relation %s: %w", relationID, err)
	}
	if payload == nil {
		return nil, nil
	}
	var relation Relation
	if err := json.Unmarshal(payload, &relation); err != nil {
		return nil, fmt.Errorf("decode relation %s: %w", relationID, err)
	}
	return &relation, nil
}

// ListAllocations returns every allocation recorded in the bridge room at
// its current status. The grant-time timeline supplies the set; the keyed
// state record supplies each allocation's present state.
func (s *Service) ListAllocations(ctx context.Context, bridgeRoom string) ([]Allocation, error) {
	events, err := s.store.ReadTimeline(ctx, bridgeRoom, AllocationEventType)
	if err != nil {
		return nil, fmt.Errorf("read allocation timeline for %s: %w", bridgeRoom, err)
	}

	allocations := []Allocation{}
	for _, ev := range events {
		var atGrant Allocation
		if err := json.Unmarshal(ev.Payload, &atGrant); err != nil {
			return nil, fmt.Errorf("decode allocation event %s: %w", ev.EventID, err)
		}
		current, err := s.GetAllocation(ctx, bridgeRoom, atGrant.ID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			allocations = append(allocations, *current)
		} else {
			allocations = append(allocations, atGrant)
		}
	}
	return allocations, nil
}

// readRelation is GetRelation plus a not-found error, for paths that
// require the relation to exist.
func (s *Service) readRelation(ctx context.Context, orgRoom, relationID string) (*Relation, error) {
	relation, err := s.GetRelation(ctx, orgRoom, relationID)
	if err != nil {
		return nil, err
	}
	if relation == nil {
		return nil, fmt.Errorf("relation %s not found in %s", relationID, orgRoom)
	}
	return relation, nil
}

func (s *Service) writeRelation(ctx context.Context, orgRoom string, relation Relation) error {
	payload, err := json.Marshal(relation)
	if err != nil {
		return fmt.Errorf("marshal relation %s: %w", relation.ID, err)
	}
	if err := s.store.WriteState(ctx, orgRoom, RelationEventType, relation.ID, payload); err != nil {
		return fmt.Errorf("persist relation %s: %w", relation.ID, err)
	}
	return nil
}

// writeAllocation records a new grant: the keyed state record plus the
// grant-time timeline fact ListAllocations enumerates.
func (s *Service) writeAllocation(ctx context.Context, bridgeRoom string, alloc Allocation) error {
	if err := s.writeAllocationState(ctx, bridgeRoom, alloc); err != nil {
		return err
	}
	payload, err := json.Marshal(alloc)
	if err != nil {
		return fmt.Errorf("marshal allocation %s: %w", alloc.ID, err)
	}
	if _, err := s.store.AppendTimelineEvent(ctx, bridgeRoom, AllocationEventType, payload); err != nil {
		return fmt.Errorf("record allocation event %s: %w", alloc.ID, err)
	}
	return nil
}

func (s *Service) writeAllocationState(ctx context.Context, bridgeRoom string, alloc Allocation) error {
	payload, err := json.Marshal(alloc)
	if err != nil {
		return fmt.Errorf("marshal allocation %s: %w", alloc.ID, err)
	}
	if err := s.store.WriteState(ctx, bridgeRoom, AllocationEventType, alloc.ID, payload); err != nil {
		return fmt.Errorf("persist allocation %s: %w", alloc.ID, err)
	}
	return nil
}
