// Package policy provides Open Policy Agent (OPA) integration for plan
// governance. Execution plans are evaluated against Rego policies before
// apply; built-in policies protect system models and reserved user accounts,
// and custom policies can be loaded from .rego files.
package policy
