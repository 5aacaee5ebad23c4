package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		protectedModelsPolicy(),
		maxOperationsPolicy(),
		adminUserPolicy(),
	}
}

// protectedModelsPolicy blocks deletes against models whose records the
// server itself depends on.
func protectedModelsPolicy() Policy {
	return Policy{
		Name:        "protected-models",
		Description: "Blocks delete operations against system models",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety", "deletes"},
		Rego: `package odrift.policies.protected

import rego.v1

protected_models := {
	"ir.model",
	"ir.model.fields",
	"ir.module.module",
	"res.company",
}

deny contains violation if {
	input.operation
	op := input.operation
	op.type == "delete"
	protected_models[op.model]
	violation := {
		"message": sprintf("deletes against system model %s are not allowed", [op.model]),
		"severity": "error",
		"operation": op.id,
	}
}
`,
	}
}

// maxOperationsPolicy warns when a single plan mutates an unusually large
// number of records.
func maxOperationsPolicy() Policy {
	return Policy{
		Name:        "max-operations",
		Description: "Warns when a plan exceeds 500 operations",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"safety", "scale"},
		Rego: `package odrift.policies.scale

import rego.v1

deny contains violation if {
	input.plan
	input.plan.total > 500
	violation := {
		"message": sprintf("plan contains %d operations; review before applying", [input.plan.total]),
		"severity": "warning",
	}
}
`,
	}
}

// adminUserPolicy blocks deleting the administrator account.
func adminUserPolicy() Policy {
	return Policy{
		Name:        "admin-user",
		Description: "Blocks deleting user record 1 and record 2",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety", "users"},
		Rego: `package odrift.policies.users

import rego.v1

reserved_users := {"res.users:1", "res.users:2"}

deny contains violation if {
	input.operation
	op := input.operation
	op.type == "delete"
	reserved_users[op.id]
	violation := {
		"message": sprintf("user %s is reserved and cannot be deleted", [op.id]),
		"severity": "error",
		"operation": op.id,
	}
}
`,
	}
}
