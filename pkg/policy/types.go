package policy

import (
	"time"

	"github.com/odrift/odrift/pkg/plan"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the apply.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// OperationID is the plan operation that violated the policy, if any.
	OperationID string `json:"operation_id,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the outcome of evaluating policies against a plan.
type Result struct {
	// Allowed indicates if the plan may be applied.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document handed to Rego for each evaluation. The whole plan
// and each operation are evaluated separately; exactly one of Operation or
// Plan is set per evaluation.
type Input struct {
	// Operation is the plan operation being evaluated.
	Operation *plan.Operation `json:"operation,omitempty"`

	// Plan carries plan-level counts for whole-plan rules.
	Plan *PlanInput `json:"plan,omitempty"`
}

// PlanInput is the plan-level view exposed to policies.
type PlanInput struct {
	ID      string `json:"id"`
	Creates int    `json:"creates"`
	Updates int    `json:"updates"`
	Deletes int    `json:"deletes"`
	Total   int    `json:"total"`
}
