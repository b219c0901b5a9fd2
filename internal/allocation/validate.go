package allocation

import (
	"fmt"

	"caseledger/internal/catalog"
)

// Rolling-window default when a max_per_client constraint has no
// period_days.
const defaultPeriodDays = 365

const millisPerDay = 86400000

// Violation is one failed constraint check. Governance, when present,
// carries the provenance of the constraint so the rejection is contestable.
type Violation struct {
	Check      string              `json:"check"`
	Message    string              `json:"message"`
	Governance *catalog.Governance `json:"governance,omitempty"`
}

// Result is the validator's structural outcome. Advisories flag concerns
// that deliberately never block an allocation.
type Result struct {
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations"`
	Advisories []string    `json:"advisories,omitempty"`
	Allocation *Allocation `json:"allocation,omitempty"`
}

// MergeConstraints layers standalone policies scoped to the resource type
// on top of the type's own constraints. Policies apply in array order and
// later policies overwrite earlier keys; last in the list wins, which is
// the explicit precedence rule.
func MergeConstraints(base *catalog.Constraints, policies []catalog.Policy, resourceTypeID string) catalog.Constraints {
	var merged catalog.Constraints
	if base != nil {
		merged = *base
	}
	for _, policy := range policies {
		if !policy.AppliesTo(resourceTypeID) {
			continue
		}
		c := policy.Constraints
		if c.EligibleRoles != nil {
			merged.EligibleRoles = c.EligibleRoles
		}
		if c.MaxPerClient != nil {
			merged.MaxPerClient = c.MaxPerClient
		}
		if c.PeriodDays != nil {
			merged.PeriodDays = c.PeriodDays
		}
		if c.RequiresApproval != nil {
			merged.RequiresApproval = c.RequiresApproval
		}
		if c.ApprovalThreshold != nil {
			merged.ApprovalThreshold = c.ApprovalThreshold
		}
		if c.Governance != nil {
			merged.Governance = c.Governance
		}
	}
	return merged
}

// Validate checks a request against the merged constraints and the
// caller's allocation history. Pure: no store access, no mutation.
//
// Every check runs and every violation is collected; the function never
// short-circuits, so the caller sees the complete problem set in one pass.
// relation may be nil when no inventory context is available; it only
// feeds advisories.
func Validate(req Request, rt catalog.ResourceType, policies []catalog.Policy, existing []Allocation, callerRole string, relation *Relation, nowMS int64) Result {
	constraints := MergeConstraints(rt.Constraints, policies, rt.ID)
	result := Result{Violations: []Violation{}}

	if req.Quantity <= 0 {
		result.Violations = append(result.Violations, Violation{
			Check:   "quantity",
			Message: fmt.Sprintf("quantity must be positive, got %d", req.Quantity),
		})
	}

	if len(constraints.EligibleRoles) > 0 && !containsString(constraints.EligibleRoles, callerRole) {
		result.Violations = append(result.Violations, Violation{
			Check:      "eligible_roles",
			Message:    fmt.Sprintf("role %q is not eligible to receive %s (eligible: %v)", callerRole, rt.Name, constraints.EligibleRoles),
			Governance: constraints.Governance,
		})
	}

	if constraints.MaxPerClient != nil {
		periodDays := defaultPeriodDays
		if constraints.PeriodDays != nil {
			periodDays = *constraints.PeriodDays
		}
		cutoff := nowMS - int64(periodDays)*millisPerDay

		count := 0
		for _, a := range existing {
			if a.ResourceTypeID == req.ResourceTypeID && a.AllocatedTo == req.AllocatedTo &&
				a.Status == StatusActive && a.AllocatedAt >= cutoff {
				count++
			}
		}
		if count+1 > *constraints.MaxPerClient {
			result.Violations = append(result.Violations, Violation{
				Check: "max_per_client",
				Message: fmt.Sprintf("%s already holds %d active allocation(s) of %s in the last %d day(s), max is %d",
					req.AllocatedTo, count, rt.Name, periodDays, *constraints.MaxPerClient),
				Governance: constraints.Governance,
			})
		}
	}

	if constraints.RequiresApproval != nil && *constraints.RequiresApproval {
		needed := true
		if constraints.ApprovalThreshold != nil {
			needed = req.Quantity > *constraints.ApprovalThreshold
		}
		if needed && req.Approval == nil {
			message := fmt.Sprintf("allocating %s requires approval", rt.Name)
			if constraints.ApprovalThreshold != nil {
				message = fmt.Sprintf("allocating %d %s exceeds the approval threshold of %d", req.Quantity, rt.Unit, *constraints.ApprovalThreshold)
			}
			result.Violations = append(result.Violations, Violation{
				Check:      "requires_approval",
				Message:    message,
				Governance: constraints.Governance,
			})
		}
	}

	// Advisory only. Low stock and perishability inform the operator, they
	// never block.
	if relation != nil && req.Quantity > relation.Available {
		result.Advisories = append(result.Advisories,
			fmt.Sprintf("requested %d but only %d available on relation %s", req.Quantity, relation.Available, relation.ID))
	}
	if rt.Perishable && rt.TTLDays != nil {
		result.Advisories = append(result.Advisories,
			fmt.Sprintf("%s is perishable with a %d-day shelf life", rt.Name, *rt.TTLDays))
	}

	result.Valid = len(result.Violations) == 0
	return result
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
