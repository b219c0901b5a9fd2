package harness

import (
	"context"
	"fmt"

	"caseledger/internal/allocation"
	"caseledger/internal/oplog"
	"caseledger/internal/roomstore"
	"caseledger/internal/testutil"
)

// Fixed rooms for every scenario run. The store is fresh per run, so the
// names only need to be stable.
const (
	scenarioOrgRoom    = "!org:harness"
	scenarioBridgeRoom = "!bridge:harness"
	scenarioVaultRoom  = "!vault:harness"
)

// TraceEvent is one executed step with the ledger position after it.
type TraceEvent struct {
	Step       int      `json:"step"`
	Op         string   `json:"op"`
	Valid      *bool    `json:"valid,omitempty"`
	Violations []string `json:"violations,omitempty"`
	Advisories []string `json:"advisories,omitempty"`
	Capacity   int64    `json:"capacity"`
	Available  int64    `json:"available"`
	Allocated  int64    `json:"allocated"`
	Opacity    string   `json:"opacity"`
}

// Result is a completed scenario run. Failures are assertion mismatches;
// infrastructure problems surface as errors from Run instead.
type Result struct {
	Scenario string
	Passed   bool
	Failures []string
	Trace    []TraceEvent
	Relation *allocation.Relation
}

// Run executes a scenario against a fresh in-memory store with
// deterministic ids and clock.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	store := roomstore.NewMemory()

	log := oplog.NewLog(store, oplog.NewChain(), "@harness:harness", "harness",
		oplog.WithIDGenerator(testutil.NewSequenceIDs("op")),
		oplog.WithClock(testutil.NewFixedClock(1700000000000, 1000)),
	)
	svc := allocation.NewService(store, log,
		allocation.WithIDGenerator(testutil.NewSequenceIDs("res")),
		allocation.WithClock(testutil.NewFixedClock(1700000000000, 1000)),
	)

	rt, policies := scenario.toCatalog()
	result := &Result{Scenario: scenario.Name}

	var relationID string
	var lastAllocationID string

	for i, step := range scenario.Steps {
		event := TraceEvent{Step: i + 1, Op: step.Op}

		switch step.Op {
		case "establish_relation":
			relation, err := svc.EstablishRelation(ctx, scenarioOrgRoom, allocation.EstablishInput{
				ResourceTypeID: rt.ID,
				RelationType:   step.RelationType,
				Capacity:       step.Capacity,
			})
			if err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}
			relationID = relation.ID

		case "restock":
			if _, err := svc.RestockInventory(ctx, scenarioOrgRoom, relationID, step.Delta); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}

		case "adjust":
			if _, err := svc.AdjustInventory(ctx, scenarioOrgRoom, relationID, step.Delta, step.Reason); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}

		case "allocate":
			req := allocation.Request{
				ResourceTypeID: rt.ID,
				RelationID:     relationID,
				Quantity:       step.Quantity,
				AllocatedTo:    step.AllocatedTo,
			}
			if step.Approved {
				req.Approval = &allocation.Approval{ApprovedBy: "@approver:harness", ApprovedAt: 1700000000000}
			}
			outcome, err := svc.AllocateResource(ctx, scenarioBridgeRoom, req, scenarioOrgRoom, scenarioVaultRoom, rt, policies, step.Role)
			if err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}

			valid := outcome.Valid
			event.Valid = &valid
			for _, v := range outcome.Violations {
				event.Violations = append(event.Violations, v.Check)
			}
			event.Advisories = outcome.Advisories
			if outcome.Allocation != nil {
				lastAllocationID = outcome.Allocation.ID
			}
			if step.ExpectValid != nil && *step.ExpectValid != outcome.Valid {
				result.Failures = append(result.Failures,
					fmt.Sprintf("step %d: expected valid=%t, got valid=%t", i+1, *step.ExpectValid, outcome.Valid))
			}

		case "transition":
			if lastAllocationID == "" {
				return nil, fmt.Errorf("step %d (%s): no allocation to transition", i+1, step.Op)
			}
			if _, err := svc.TransitionAllocation(ctx, scenarioBridgeRoom, lastAllocationID, allocation.Status(step.Event), step.Reason); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}

		case "return":
			if lastAllocationID == "" {
				return nil, fmt.Errorf("step %d (%s): no allocation to return", i+1, step.Op)
			}
			if _, err := svc.ReturnAllocation(ctx, scenarioBridgeRoom, scenarioOrgRoom, lastAllocationID, step.Reason); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}

		case "update_opacity":
			level, err := parseOpacity(step.Level)
			if err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}
			if _, err := svc.UpdateRelationOpacity(ctx, scenarioOrgRoom, relationID, level, step.AttestedTo); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
			}

		default:
			return nil, fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}

		relation, err := svc.GetRelation(ctx, scenarioOrgRoom, relationID)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): read relation: %w", i+1, step.Op, err)
		}
		if relation == nil {
			return nil, fmt.Errorf("step %d (%s): relation %s missing", i+1, step.Op, relationID)
		}
		if err := relation.CheckSum(); err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("step %d: %v", i+1, err))
		}
		event.Capacity = relation.Capacity
		event.Available = relation.Available
		event.Allocated = relation.Allocated
		event.Opacity = relation.Opacity.String()
		result.Trace = append(result.Trace, event)
		result.Relation = relation
	}

	if scenario.Expect != nil && result.Relation != nil {
		if result.Relation.Capacity != scenario.Expect.Capacity {
			result.Failures = append(result.Failures,
				fmt.Sprintf("final capacity: expected %d, got %d", scenario.Expect.Capacity, result.Relation.Capacity))
		}
		if result.Relation.Available != scenario.Expect.Available {
			result.Failures = append(result.Failures,
				fmt.Sprintf("final available: expected %d, got %d", scenario.Expect.Available, result.Relation.Available))
		}
		if result.Relation.Allocated != scenario.Expect.Allocated {
			result.Failures = append(result.Failures,
				fmt.Sprintf("final allocated: expected %d, got %d", scenario.Expect.Allocated, result.Relation.Allocated))
		}
	}

	result.Passed = len(result.Failures) == 0
	return result, nil
}

func parseOpacity(level string) (allocation.Opacity, error) {
	switch level {
	case "sovereign":
		return allocation.OpacitySovereign, nil
	case "attested":
		return allocation.OpacityAttested, nil
	case "contributed":
		return allocation.OpacityContributed, nil
	case "published":
		return allocation.OpacityPublished, nil
	}
	return 0, fmt.Errorf("unknown opacity level %q", level)
}
