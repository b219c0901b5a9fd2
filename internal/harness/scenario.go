package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"caseledger/internal/catalog"
)

// Scenario is one YAML-defined allocation flow.
type Scenario struct {
	// Name uniquely identifies the scenario; the golden trace file is
	// named after it.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// ResourceType declares the type every step allocates against.
	ResourceType ResourceTypeDecl `yaml:"resource_type"`

	// Policies are standalone constraint blocks layered on the type.
	Policies []PolicyDecl `yaml:"policies,omitempty"`

	// Steps run in order against a fresh in-memory store.
	Steps []Step `yaml:"steps"`

	// Expect is the final ledger position after all steps.
	Expect *Expect `yaml:"expect,omitempty"`
}

// ResourceTypeDecl mirrors the catalog input in YAML form.
type ResourceTypeDecl struct {
	Name        string           `yaml:"name"`
	Category    string           `yaml:"category"`
	Unit        string           `yaml:"unit"`
	Fungible    bool             `yaml:"fungible"`
	Perishable  bool             `yaml:"perishable"`
	TTLDays     *int             `yaml:"ttl_days,omitempty"`
	Constraints *ConstraintsDecl `yaml:"constraints,omitempty"`
}

// PolicyDecl is a standalone policy in YAML form, always scoped to the
// scenario's resource type.
type PolicyDecl struct {
	Name        string          `yaml:"name"`
	Constraints ConstraintsDecl `yaml:"constraints"`
}

// ConstraintsDecl mirrors catalog.Constraints in YAML form.
type ConstraintsDecl struct {
	EligibleRoles     []string `yaml:"eligible_roles,omitempty"`
	MaxPerClient      *int     `yaml:"max_per_client,omitempty"`
	PeriodDays        *int     `yaml:"period_days,omitempty"`
	RequiresApproval  *bool    `yaml:"requires_approval,omitempty"`
	ApprovalThreshold *int64   `yaml:"approval_threshold,omitempty"`
}

// Step is one ledger action. Op selects the action; the other fields feed
// whichever action it names.
type Step struct {
	// Op is one of: establish_relation, restock, adjust, allocate,
	// transition, return, update_opacity.
	Op string `yaml:"op"`

	RelationType string   `yaml:"relation_type,omitempty"`
	Capacity     int64    `yaml:"capacity,omitempty"`
	Delta        int64    `yaml:"delta,omitempty"`
	Reason       string   `yaml:"reason,omitempty"`
	Quantity     int64    `yaml:"quantity,omitempty"`
	AllocatedTo  string   `yaml:"allocated_to,omitempty"`
	Role         string   `yaml:"role,omitempty"`
	Approved     bool     `yaml:"approved,omitempty"`
	Event        string   `yaml:"event,omitempty"`
	Level        string   `yaml:"level,omitempty"`
	AttestedTo   []string `yaml:"attested_to,omitempty"`

	// ExpectValid asserts the allocate step's validation outcome.
	ExpectValid *bool `yaml:"expect_valid,omitempty"`
}

// Expect is the asserted final ledger position.
type Expect struct {
	Capacity  int64 `yaml:"capacity"`
	Available int64 `yaml:"available"`
	Allocated int64 `yaml:"allocated"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if scenario.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one step is required", path)
	}
	if !catalog.Category(scenario.ResourceType.Category).Valid() {
		return nil, fmt.Errorf("scenario %s: unknown category %q", path, scenario.ResourceType.Category)
	}
	return &scenario, nil
}

// LoadScenarios loads every .yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := filepath.Ext(entry.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, nil
}

// toCatalog converts the YAML declarations into catalog types. The
// resource type gets a fixed id so traces stay stable.
func (s *Scenario) toCatalog() (catalog.ResourceType, []catalog.Policy) {
	rt := catalog.ResourceType{
		ID:         "rt-1",
		Name:       s.ResourceType.Name,
		Category:   catalog.Category(s.ResourceType.Category),
		Unit:       s.ResourceType.Unit,
		Fungible:   s.ResourceType.Fungible,
		Perishable: s.ResourceType.Perishable,
		TTLDays:    s.ResourceType.TTLDays,
	}
	if s.ResourceType.Constraints != nil {
		rt.Constraints = s.ResourceType.Constraints.toCatalog()
	}

	policies := make([]catalog.Policy, 0, len(s.Policies))
	for i, decl := range s.Policies {
		policies = append(policies, catalog.Policy{
			ID:              fmt.Sprintf("policy-%d", i+1),
			Name:            decl.Name,
			ResourceTypeIDs: []string{rt.ID},
			Constraints:     *decl.Constraints.toCatalog(),
		})
	}
	return rt, policies
}

func (c *ConstraintsDecl) toCatalog() *catalog.Constraints {
	return &catalog.Constraints{
		EligibleRoles:     c.EligibleRoles,
		MaxPerClient:      c.MaxPerClient,
		PeriodDays:        c.PeriodDays,
		RequiresApproval:  c.RequiresApproval,
		ApprovalThreshold: c.ApprovalThreshold,
	}
}
