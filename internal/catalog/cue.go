package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// CompileError reports a structural problem in a CUE catalog definition,
// carrying the CUE source position when one is available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Definitions is a compiled CUE catalog: resource type inputs keyed by
// their declaration label, plus standalone policies scoped by those labels.
type Definitions struct {
	ResourceTypes map[string]ResourceTypeInput
	Policies      []Policy
}

// LoadDefinitions loads every .cue file in dir and compiles the
// resource_type and policy declarations. All compile errors are collected
// so a catalog author sees the complete set in one pass.
func LoadDefinitions(dir string) (*Definitions, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("catalog directory %s: %w", dir, err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("catalog path %s: not a directory", dir)}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("scan catalog directory %s: %w", dir, err)}
	}
	if len(cueFiles) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{fmt.Errorf("building CUE value: %w", err)}
	}

	return CompileDefinitions(value)
}

// CompileDefinitions extracts resource_type and policy declarations from a
// built CUE value.
func CompileDefinitions(value cue.Value) (*Definitions, []error) {
	var errs []error
	defs := &Definitions{ResourceTypes: make(map[string]ResourceTypeInput)}

	typesVal := value.LookupPath(cue.ParsePath("resource_type"))
	if typesVal.Exists() {
		iter, iterErr := typesVal.Fields()
		if iterErr != nil {
			errs = append(errs, fmt.Errorf("iterating resource types: %w", iterErr))
		} else {
			for iter.Next() {
				input, err := CompileResourceType(iter.Value())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				defs.ResourceTypes[iter.Label()] = *input
			}
		}
	}

	policiesVal := value.LookupPath(cue.ParsePath("policy"))
	if policiesVal.Exists() {
		iter, iterErr := policiesVal.Fields()
		if iterErr != nil {
			errs = append(errs, fmt.Errorf("iterating policies: %w", iterErr))
		} else {
			for iter.Next() {
				policy, err := CompilePolicy(iter.Value())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				policy.ID = iter.Label()
				defs.Policies = append(defs.Policies, *policy)
			}
		}
	}

	if len(defs.ResourceTypes) == 0 && len(defs.Policies) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no resource types or policies declared"))
	}
	return defs, errs
}

// CompileResourceType parses one resource_type declaration.
func CompileResourceType(v cue.Value) (*ResourceTypeInput, error) {
	if err := v.Err(); err != nil {
		return nil, err
	}

	input := &ResourceTypeInput{}

	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	input.Name = name

	categoryStr, err := requiredString(v, "category")
	if err != nil {
		return nil, err
	}
	category := Category(categoryStr)
	if !category.Valid() {
		return nil, &CompileError{
			Field:   "category",
			Message: fmt.Sprintf("%q is not a known category (known: %v)", categoryStr, Categories()),
			Pos:     v.LookupPath(cue.ParsePath("category")).Pos(),
		}
	}
	input.Category = category

	unit, err := requiredString(v, "unit")
	if err != nil {
		return nil, err
	}
	input.Unit = unit

	if input.Fungible, err = optionalBool(v, "fungible"); err != nil {
		return nil, err
	}
	if input.Perishable, err = optionalBool(v, "perishable"); err != nil {
		return nil, err
	}
	if ttl, ok, err := optionalInt(v, "ttl_days"); err != nil {
		return nil, err
	} else if ok {
		input.TTLDays = &ttl
	}

	constraintsVal := v.LookupPath(cue.ParsePath("constraints"))
	if constraintsVal.Exists() {
		constraints, err := compileConstraints(constraintsVal)
		if err != nil {
			return nil, err
		}
		input.Constraints = constraints
	}
	return input, nil
}

// CompilePolicy parses one standalone policy declaration. The caller fills
// ID from the declaration label.
func CompilePolicy(v cue.Value) (*Policy, error) {
	if err := v.Err(); err != nil {
		return nil, err
	}

	policy := &Policy{}

	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	policy.Name = name

	scopeVal := v.LookupPath(cue.ParsePath("resource_types"))
	if !scopeVal.Exists() {
		return nil, &CompileError{Field: "resource_types", Message: "resource_types scope is required", Pos: v.Pos()}
	}
	list, err := scopeVal.List()
	if err != nil {
		return nil, &CompileError{Field: "resource_types", Message: err.Error(), Pos: scopeVal.Pos()}
	}
	for list.Next() {
		id, err := list.Value().String()
		if err != nil {
			return nil, &CompileError{Field: "resource_types", Message: err.Error(), Pos: list.Value().Pos()}
		}
		policy.ResourceTypeIDs = append(policy.ResourceTypeIDs, id)
	}
	if len(policy.ResourceTypeIDs) == 0 {
		return nil, &CompileError{Field: "resource_types", Message: "resource_types scope must not be empty", Pos: scopeVal.Pos()}
	}

	constraintsVal := v.LookupPath(cue.ParsePath("constraints"))
	if !constraintsVal.Exists() {
		return nil, &CompileError{Field: "constraints", Message: "constraints block is required", Pos: v.Pos()}
	}
	constraints, err := compileConstraints(constraintsVal)
	if err != nil {
		return nil, err
	}
	policy.Constraints = *constraints
	return policy, nil
}

func compileConstraints(v cue.Value) (*Constraints, error) {
	c := &Constraints{}

	rolesVal := v.LookupPath(cue.ParsePath("eligible_roles"))
	if rolesVal.Exists() {
		list, err := rolesVal.List()
		if err != nil {
			return nil, &CompileError{Field: "eligible_roles", Message: err.Error(), Pos: rolesVal.Pos()}
		}
		for list.Next() {
			role, err := list.Value().String()
			if err != nil {
				return nil, &CompileError{Field: "eligible_roles", Message: err.Error(), Pos: list.Value().Pos()}
			}
			c.EligibleRoles = append(c.EligibleRoles, role)
		}
	}

	if n, ok, err := optionalInt(v, "max_per_client"); err != nil {
		return nil, err
	} else if ok {
		c.MaxPerClient = &n
	}
	if n, ok, err := optionalInt(v, "period_days"); err != nil {
		return nil, err
	} else if ok {
		c.PeriodDays = &n
	}

	approvalVal := v.LookupPath(cue.ParsePath("requires_approval"))
	if approvalVal.Exists() {
		b, err := approvalVal.Bool()
		if err != nil {
			return nil, &CompileError{Field: "requires_approval", Message: err.Error(), Pos: approvalVal.Pos()}
		}
		c.RequiresApproval = &b
	}

	thresholdVal := v.LookupPath(cue.ParsePath("approval_threshold"))
	if thresholdVal.Exists() {
		n, err := thresholdVal.Int64()
		if err != nil {
			return nil, &CompileError{Field: "approval_threshold", Message: err.Error(), Pos: thresholdVal.Pos()}
		}
		c.ApprovalThreshold = &n
	}

	govVal := v.LookupPath(cue.ParsePath("governance"))
	if govVal.Exists() {
		gov := &Governance{}
		var err error
		if gov.PropagationLevel, err = requiredString(govVal, "propagation_level"); err != nil {
			return nil, err
		}
		if gov.AdoptingAuthority, err = requiredString(govVal, "adopting_authority"); err != nil {
			return nil, err
		}
		if gov.SourceLevel, err = requiredString(govVal, "source_level"); err != nil {
			return nil, err
		}
		c.Governance = gov
	}
	return c, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: err.Error(), Pos: fieldVal.Pos()}
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return false, nil
	}
	b, err := fieldVal.Bool()
	if err != nil {
		return false, &CompileError{Field: field, Message: err.Error(), Pos: fieldVal.Pos()}
	}
	return b, nil
}

func optionalInt(v cue.Value, field string) (int, bool, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return 0, false, nil
	}
	n, err := fieldVal.Int64()
	if err != nil {
		return 0, false, &CompileError{Field: field, Message: err.Error(), Pos: fieldVal.Pos()}
	}
	return int(n), true, nil
}

// findCUEFiles walks dir and returns every .cue file path.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
