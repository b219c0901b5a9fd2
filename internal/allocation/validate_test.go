package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseledger/internal/catalog"
)

const nowMS = int64(1700000000000)

func intPtr(n int) *int       { return &n }
func int64Ptr(n int64) *int64 { return &n }
func boolPtr(b bool) *bool    { return &b }

func shelterBed(constraints *catalog.Constraints) catalog.ResourceType {
	return catalog.ResourceType{
		ID:          "rt-bed",
		Name:        "Shelter Bed",
		Category:    catalog.CategoryHousing,
		Unit:        "bed",
		Fungible:    true,
		Constraints: constraints,
	}
}

func bedRequest(quantity int64) Request {
	return Request{
		ResourceTypeID: "rt-bed",
		RelationID:     "rel-1",
		Quantity:       quantity,
		AllocatedTo:    "@client:x",
	}
}

func violationChecks(result Result) []string {
	checks := make([]string, len(result.Violations))
	for i, v := range result.Violations {
		checks[i] = v.Check
	}
	return checks
}

func TestValidateNoConstraintsIsValid(t *testing.T) {
	result := Validate(bedRequest(1), shelterBed(nil), nil, nil, "volunteer", nil, nowMS)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Violations)
}

func TestValidateRejectsNonPositiveQuantity(t *testing.T) {
	result := Validate(bedRequest(0), shelterBed(nil), nil, nil, "admin", nil, nowMS)
	assert.False(t, result.Valid)
	assert.Contains(t, violationChecks(result), "quantity")
}

func TestValidateEligibleRolesCarriesGovernance(t *testing.T) {
	gov := &catalog.Governance{PropagationLevel: "county", AdoptingAuthority: "org:coalition", SourceLevel: "state"}
	rt := shelterBed(&catalog.Constraints{EligibleRoles: []string{"admin"}, Governance: gov})

	result := Validate(bedRequest(1), rt, nil, nil, "case_manager", nil, nowMS)
	require.False(t, result.Valid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "eligible_roles", result.Violations[0].Check)
	assert.Equal(t, gov, result.Violations[0].Governance)

	assert.True(t, Validate(bedRequest(1), rt, nil, nil, "admin", nil, nowMS).Valid)
}

func TestValidateMaxPerClientWindow(t *testing.T) {
	rt := shelterBed(&catalog.Constraints{MaxPerClient: intPtr(2), PeriodDays: intPtr(30)})
	recent := nowMS - 10*millisPerDay
	stale := nowMS - 40*millisPerDay

	twoRecent := []Allocation{
		{ID: "a-1", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusActive, AllocatedAt: recent},
		{ID: "a-2", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusActive, AllocatedAt: recent},
	}
	result := Validate(bedRequest(1), rt, nil, twoRecent, "admin", nil, nowMS)
	require.False(t, result.Valid)
	assert.Contains(t, violationChecks(result), "max_per_client")

	// Outside the window: not counted.
	twoStale := []Allocation{
		{ID: "a-1", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusActive, AllocatedAt: stale},
		{ID: "a-2", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusActive, AllocatedAt: stale},
	}
	assert.True(t, Validate(bedRequest(1), rt, nil, twoStale, "admin", nil, nowMS).Valid)

	// Non-active: not counted.
	twoClosed := []Allocation{
		{ID: "a-1", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusConsumed, AllocatedAt: recent},
		{ID: "a-2", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusRevoked, AllocatedAt: recent},
	}
	assert.True(t, Validate(bedRequest(1), rt, nil, twoClosed, "admin", nil, nowMS).Valid)

	// Another client's allocations: not counted.
	otherClient := []Allocation{
		{ID: "a-1", ResourceTypeID: "rt-bed", AllocatedTo: "@other:x", Status: StatusActive, AllocatedAt: recent},
		{ID: "a-2", ResourceTypeID: "rt-bed", AllocatedTo: "@other:x", Status: StatusActive, AllocatedAt: recent},
	}
	assert.True(t, Validate(bedRequest(1), rt, nil, otherClient, "admin", nil, nowMS).Valid)
}

func TestValidateMaxPerClientDefaultPeriod(t *testing.T) {
	rt := shelterBed(&catalog.Constraints{MaxPerClient: intPtr(1)})

	inside := []Allocation{{ID: "a-1", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusActive, AllocatedAt: nowMS - 300*millisPerDay}}
	assert.False(t, Validate(bedRequest(1), rt, nil, inside, "admin", nil, nowMS).Valid,
		"300 days ago is inside the default 365-day window")

	outside := []Allocation{{ID: "a-1", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusActive, AllocatedAt: nowMS - 400*millisPerDay}}
	assert.True(t, Validate(bedRequest(1), rt, nil, outside, "admin", nil, nowMS).Valid)
}

func TestValidateApprovalThreshold(t *testing.T) {
	rt := shelterBed(&catalog.Constraints{RequiresApproval: boolPtr(true), ApprovalThreshold: int64Ptr(100)})

	assert.True(t, Validate(bedRequest(50), rt, nil, nil, "admin", nil, nowMS).Valid,
		"below threshold, no approval needed")

	over := Validate(bedRequest(150), rt, nil, nil, "admin", nil, nowMS)
	require.False(t, over.Valid)
	assert.Contains(t, violationChecks(over), "requires_approval")

	approved := bedRequest(150)
	approved.Approval = &Approval{ApprovedBy: "@director:x", ApprovedAt: nowMS}
	assert.True(t, Validate(approved, rt, nil, nil, "admin", nil, nowMS).Valid)
}

func TestValidateApprovalWithoutThreshold(t *testing.T) {
	rt := shelterBed(&catalog.Constraints{RequiresApproval: boolPtr(true)})

	assert.False(t, Validate(bedRequest(1), rt, nil, nil, "admin", nil, nowMS).Valid,
		"without a threshold every allocation needs approval")

	approved := bedRequest(1)
	approved.Approval = &Approval{ApprovedBy: "@director:x", ApprovedAt: nowMS}
	assert.True(t, Validate(approved, rt, nil, nil, "admin", nil, nowMS).Valid)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	rt := shelterBed(&catalog.Constraints{
		EligibleRoles:    []string{"admin"},
		RequiresApproval: boolPtr(true),
	})

	result := Validate(bedRequest(1), rt, nil, nil, "case_manager", nil, nowMS)
	require.False(t, result.Valid)
	checks := violationChecks(result)
	assert.Contains(t, checks, "eligible_roles")
	assert.Contains(t, checks, "requires_approval")
	assert.GreaterOrEqual(t, len(result.Violations), 2, "all problems report in one pass")
}

func TestValidateInventoryAndTTLAreAdvisoryOnly(t *testing.T) {
	ttl := 14
	rt := shelterBed(nil)
	rt.Perishable = true
	rt.TTLDays = &ttl
	relation := &Relation{ID: "rel-1", Capacity: 5, Available: 2, Allocated: 3}

	result := Validate(bedRequest(4), rt, nil, nil, "admin", relation, nowMS)
	assert.True(t, result.Valid, "low stock and perishability never block")
	assert.Empty(t, result.Violations)
	assert.Len(t, result.Advisories, 2)
}

func TestMergeConstraintsLastPolicyWins(t *testing.T) {
	base := &catalog.Constraints{MaxPerClient: intPtr(5), EligibleRoles: []string{"admin"}}
	policies := []catalog.Policy{
		{ID: "p-1", ResourceTypeIDs: []string{"rt-bed"}, Constraints: catalog.Constraints{MaxPerClient: intPtr(3)}},
		{ID: "p-2", ResourceTypeIDs: []string{"rt-bed"}, Constraints: catalog.Constraints{MaxPerClient: intPtr(1), RequiresApproval: boolPtr(true)}},
		{ID: "p-3", ResourceTypeIDs: []string{"rt-other"}, Constraints: catalog.Constraints{MaxPerClient: intPtr(9)}},
	}

	merged := MergeConstraints(base, policies, "rt-bed")
	require.NotNil(t, merged.MaxPerClient)
	assert.Equal(t, 1, *merged.MaxPerClient, "later policies overwrite earlier keys")
	require.NotNil(t, merged.RequiresApproval)
	assert.True(t, *merged.RequiresApproval)
	assert.Equal(t, []string{"admin"}, merged.EligibleRoles, "untouched keys survive the merge")
}

func TestMergeConstraintsIgnoresUnscopedPolicies(t *testing.T) {
	policies := []catalog.Policy{
		{ID: "p-1", ResourceTypeIDs: []string{"rt-other"}, Constraints: catalog.Constraints{MaxPerClient: intPtr(1)}},
	}
	merged := MergeConstraints(nil, policies, "rt-bed")
	assert.Nil(t, merged.MaxPerClient)
}

func TestValidateIsPure(t *testing.T) {
	rt := shelterBed(&catalog.Constraints{MaxPerClient: intPtr(2)})
	existing := []Allocation{{ID: "a-1", ResourceTypeID: "rt-bed", AllocatedTo: "@client:x", Status: StatusActive, AllocatedAt: nowMS}}
	relation := &Relation{ID: "rel-1", Capacity: 5, Available: 5}

	before := *relation
	_ = Validate(bedRequest(1), rt, nil, existing, "admin", relation, nowMS)
	assert.Equal(t, before, *relation)
	assert.Equal(t, StatusActive, existing[0].Status)
}
