// Package plan turns record diffs into an ordered, dependency-aware,
// validated execution plan, and renders plans for human review. It is pure:
// no I/O happens here.
package plan

import (
	"fmt"
	"time"

	"github.com/odrift/odrift/pkg/rpc"
)

// OperationType is the kind of server mutation an operation performs.
type OperationType string

const (
	// OpCreate creates a new record. Its id is always a temporary identifier.
	OpCreate OperationType = "create"

	// OpUpdate writes fields of an existing record.
	OpUpdate OperationType = "update"

	// OpDelete unlinks an existing record.
	OpDelete OperationType = "delete"
)

// Validate checks the operation type is one of the known kinds.
func (o OperationType) Validate() error {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return nil
	default:
		return rpc.NewValidationError(fmt.Sprintf("invalid operation type %q", o))
	}
}

// TempRef is a tagged reference to a record that will be created during plan
// execution. Using a distinct type keeps engine-internal references out of
// band; the string form "<model>:temp_<token>" is still recognized when plan
// values arrive from JSON documents.
type TempRef string

// String returns the in-band wire form of the reference.
func (r TempRef) String() string { return string(r) }

// MarshalJSON writes the wire form so plans round-trip through JSON.
func (r TempRef) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", string(r))), nil
}

// Operation is one step of an execution plan. For creates the ID is a
// temporary identifier; for updates and deletes it is the canonical
// "<model>:<integer>" display form.
type Operation struct {
	// Type is the operation kind.
	Type OperationType `json:"type"`

	// Model is the target model.
	Model string `json:"model"`

	// ID is the operation id, unique within the plan.
	ID string `json:"id"`

	// Values is the write payload for creates and updates.
	Values rpc.ValueMap `json:"values,omitempty"`

	// Context is an optional per-operation server context.
	Context rpc.ValueMap `json:"context,omitempty"`

	// Reason is a human-readable note on why the operation exists.
	Reason string `json:"reason,omitempty"`

	// Dependencies lists operation ids that must complete before this one.
	Dependencies []string `json:"dependencies,omitempty"`
}

// Summary counts a plan's operations and carries its validation outcome.
type Summary struct {
	// Creates is the number of create operations.
	Creates int `json:"creates"`

	// Updates is the number of update operations.
	Updates int `json:"updates"`

	// Deletes is the number of delete operations.
	Deletes int `json:"deletes"`

	// IsEmpty is true when the plan has no operations.
	IsEmpty bool `json:"is_empty"`

	// HasErrors is true when validation rejected the plan.
	HasErrors bool `json:"has_errors"`

	// Errors lists validation messages verbatim.
	Errors []string `json:"errors,omitempty"`
}

// Metadata records when and from what the plan was built.
type Metadata struct {
	// CreatedAt is the plan construction timestamp.
	CreatedAt time.Time `json:"created_at"`

	// ChangesByModel tallies field changes per model.
	ChangesByModel map[string]int `json:"changes_by_model"`

	// TotalChanges is the field change count across all operations.
	TotalChanges int `json:"total_changes"`
}

// ExecutionPlan is an ordered, validated sequence of operations. A plan
// exclusively owns its operations; nothing mutates them after construction.
type ExecutionPlan struct {
	// ID identifies the plan in history and logs.
	ID string `json:"id"`

	// Operations are the plan steps in execution order.
	Operations []Operation `json:"operations"`

	// Metadata records plan provenance.
	Metadata Metadata `json:"metadata"`

	// Summary carries counts and validation state.
	Summary Summary `json:"summary"`
}

// DefaultMaxOperations caps plan size unless overridden.
const DefaultMaxOperations = 10000

// Options refine plan generation.
type Options struct {
	// EnableBatching reserves batching of homogeneous writes. Currently
	// operations stay one-per-record.
	EnableBatching bool

	// AutoReorder orders creates before updates before deletes with a
	// dependency-honoring topological sort inside each partition.
	AutoReorder bool

	// ValidateDependencies rejects plans whose dependencies are missing,
	// target deletes, or form cycles.
	ValidateDependencies bool

	// MaxOperations caps the plan size. Zero means DefaultMaxOperations.
	MaxOperations int
}

// DefaultOptions returns the options Generate uses when given nil.
func DefaultOptions() Options {
	return Options{
		AutoReorder:          true,
		ValidateDependencies: true,
		MaxOperations:        DefaultMaxOperations,
	}
}
