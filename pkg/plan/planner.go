package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odrift/odrift/pkg/compare"
	"github.com/odrift/odrift/pkg/rpc"
)

// Generate builds an execution plan from a diff set. It never performs I/O.
//
// A failed validation returns a plan with Summary.HasErrors set and the
// offending messages listed; callers must check HasErrors before applying.
func Generate(diffs []compare.ModelDiff, opts *Options) *ExecutionPlan {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
		if o.MaxOperations == 0 {
			o.MaxOperations = DefaultMaxOperations
		}
	}

	p := &ExecutionPlan{
		ID: uuid.New().String(),
		Metadata: Metadata{
			CreatedAt:      time.Now(),
			ChangesByModel: make(map[string]int),
		},
	}

	ops := operationsFromDiffs(diffs, p)

	if len(ops) > o.MaxOperations {
		return failPlan(p, fmt.Sprintf(
			"plan has %d operations, exceeding the maximum of %d", len(ops), o.MaxOperations))
	}

	resolveDependencies(ops)

	if o.ValidateDependencies {
		if errs := validateDependencies(ops); len(errs) > 0 {
			return failPlan(p, errs...)
		}
	}

	if o.AutoReorder {
		ordered, err := orderOperations(ops)
		if err != nil {
			return failPlan(p, err.Error())
		}
		ops = ordered
	}

	p.Operations = ops
	summarize(p)
	return p
}

// operationsFromDiffs synthesizes one operation per actionable diff:
// a create for every new record, an update for every drifted one.
// Zero-change diffs of existing records are dropped. Delete diffs are
// accepted when present in the input even though the forward comparator
// never produces them.
func operationsFromDiffs(diffs []compare.ModelDiff, p *ExecutionPlan) []Operation {
	ops := make([]Operation, 0, len(diffs))
	for _, diff := range diffs {
		changeCount := len(diff.Changes)
		p.Metadata.ChangesByModel[diff.Model] += changeCount
		p.Metadata.TotalChanges += changeCount

		switch {
		case diff.IsNew:
			op := Operation{
				Type:   OpCreate,
				Model:  diff.Model,
				ID:     rpc.TempID(diff.Model, diff.ID),
				Values: valuesFromChanges(diff.Changes),
			}
			if diff.ParentRef != nil {
				op.Values[diff.ParentRef.Field] = TempRef(diff.ParentRef.ParentID)
				op.Reason = fmt.Sprintf("created under %s via %s", diff.ParentRef.ParentModel, diff.ParentRef.Field)
			}
			ops = append(ops, op)
		case hasDeleteChange(diff.Changes):
			ops = append(ops, Operation{
				Type:  OpDelete,
				Model: diff.Model,
				ID:    rpc.CanonicalID(diff.Model, diff.ID),
			})
		case changeCount > 0:
			ops = append(ops, Operation{
				Type:   OpUpdate,
				Model:  diff.Model,
				ID:     rpc.CanonicalID(diff.Model, diff.ID),
				Values: valuesFromChanges(diff.Changes),
			})
		}
	}
	return ops
}

func valuesFromChanges(changes []compare.FieldChange) rpc.ValueMap {
	values := make(rpc.ValueMap, len(changes))
	for _, c := range changes {
		values[c.Path] = c.NewValue
	}
	return values
}

func hasDeleteChange(changes []compare.FieldChange) bool {
	for _, c := range changes {
		if c.Operation == compare.ChangeDelete {
			return true
		}
	}
	return false
}

// resolveDependencies scans every operation's values for temporary
// references and records each as a dependency on the introducing create.
// The scan is purely syntactic and needs no schema knowledge of which
// fields are relational.
func resolveDependencies(ops []Operation) {
	for i := range ops {
		refs := ScanTempRefs(ops[i].Values)
		deps := make([]string, 0, len(refs))
		for _, ref := range refs {
			if ref == ops[i].ID {
				continue
			}
			deps = append(deps, ref)
		}
		if len(deps) > 0 {
			ops[i].Dependencies = deps
		}
	}
}

// validateDependencies checks that every dependency id exists in the plan,
// that none targets a delete, and that the dependency graph is acyclic.
// One message is recorded per violation.
func validateDependencies(ops []Operation) []string {
	var errs []string

	index := make(map[string]*Operation, len(ops))
	for i := range ops {
		if prior, dup := index[ops[i].ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate operation id %q (%s and %s)", ops[i].ID, prior.Type, ops[i].Type))
			continue
		}
		index[ops[i].ID] = &ops[i]
	}

	for i := range ops {
		for _, dep := range ops[i].Dependencies {
			target, exists := index[dep]
			if !exists {
				errs = append(errs, fmt.Sprintf("operation %s depends on unknown operation %q", ops[i].ID, dep))
				continue
			}
			if target.Type == OpDelete {
				errs = append(errs, fmt.Sprintf("operation %s depends on delete operation %q", ops[i].ID, dep))
			}
		}
	}

	if cycle := findCycle(ops, index); len(cycle) > 0 {
		errs = append(errs, fmt.Sprintf("circular dependency detected: %s", joinCycle(cycle)))
	}

	return errs
}

// findCycle runs a DFS over the dependency graph and returns the first cycle
// path found, or nil. Unknown dependency targets are skipped; they are
// reported separately.
func findCycle(ops []Operation, index map[string]*Operation) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(ops))

	var cycle []string
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		color[id] = gray
		path = append(path, id)
		op, ok := index[id]
		if ok {
			for _, dep := range op.Dependencies {
				if _, exists := index[dep]; !exists {
					continue
				}
				switch color[dep] {
				case white:
					if visit(dep, path) {
						return true
					}
				case gray:
					start := 0
					for i, p := range path {
						if p == dep {
							start = i
							break
						}
					}
					cycle = append(append([]string{}, path[start:]...), dep)
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for i := range ops {
		if color[ops[i].ID] == white {
			if visit(ops[i].ID, nil) {
				return cycle
			}
		}
	}
	return nil
}

func joinCycle(cycle []string) string {
	out := ""
	for i, id := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

func failPlan(p *ExecutionPlan, errs ...string) *ExecutionPlan {
	p.Operations = nil
	p.Summary = Summary{
		IsEmpty:   true,
		HasErrors: true,
		Errors:    errs,
	}
	return p
}

func summarize(p *ExecutionPlan) {
	for _, op := range p.Operations {
		switch op.Type {
		case OpCreate:
			p.Summary.Creates++
		case OpUpdate:
			p.Summary.Updates++
		case OpDelete:
			p.Summary.Deletes++
		}
	}
	p.Summary.IsEmpty = len(p.Operations) == 0
}
