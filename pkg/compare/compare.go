// Package compare produces field-level diffs between a desired state and an
// actual snapshot for a single model. It is pure: no I/O, deterministic for
// every input.
package compare

import (
	"reflect"
	"sort"

	"github.com/odrift/odrift/pkg/rpc"
)

// ChangeOp is the kind of change a field underwent.
type ChangeOp string

const (
	// ChangeCreate indicates the field is being set on a new record.
	ChangeCreate ChangeOp = "create"

	// ChangeUpdate indicates the field value differs from the snapshot.
	ChangeUpdate ChangeOp = "update"

	// ChangeDelete is accepted in diff inputs but never produced by a
	// forward compare.
	ChangeDelete ChangeOp = "delete"
)

// FieldChange is one field-level difference.
type FieldChange struct {
	// Path is the field path, JSON-pointer style for nested values.
	Path string `json:"path"`

	// Operation is the change kind.
	Operation ChangeOp `json:"operation"`

	// NewValue is always taken from desired.
	NewValue interface{} `json:"new_value"`

	// OldValue is nil when the field was absent from the snapshot or its
	// actual value was the server's empty sentinel.
	OldValue interface{} `json:"old_value"`
}

// ParentReference records a one-to-many linkage for a create that was
// declared nested under a parent record.
type ParentReference struct {
	Field       string `json:"field"`
	ParentModel string `json:"parent_model"`
	ParentID    string `json:"parent_id"`
}

// ModelDiff is the set of changes for one record. (Model, ID) is unique
// within a diff set.
type ModelDiff struct {
	Model     string           `json:"model"`
	ID        int64            `json:"id"`
	Changes   []FieldChange    `json:"changes"`
	IsNew     bool             `json:"is_new"`
	ParentRef *ParentReference `json:"parent_reference,omitempty"`
}

// FieldMeta carries the field flags the comparator honors.
type FieldMeta struct {
	Type     string
	ReadOnly bool
	Computed bool
}

// Comparator is a per-field equality predicate. A true result means equal.
type Comparator func(desired, actual interface{}) bool

// Options refine a compare.
type Options struct {
	// FieldMetadata maps field names to their flags. Readonly and computed
	// fields are skipped.
	FieldMetadata map[string]FieldMeta

	// IgnoreFields lists field names skipped outright.
	IgnoreFields []string

	// CustomComparators override the structural equality per field.
	CustomComparators map[string]Comparator

	// ParentRefs attaches a parent linkage to new records by desired id.
	ParentRefs map[int64]ParentReference
}

// Records compares desired records against an actual snapshot and returns
// one diff per drifted or missing record. Records present only in actual are
// ignored: a forward compare never produces deletes. Iteration is in
// ascending desired-id order so the result is deterministic.
func Records(model string, desired, actual map[int64]rpc.ValueMap, opts Options) []ModelDiff {
	ignored := make(map[string]bool, len(opts.IgnoreFields))
	for _, f := range opts.IgnoreFields {
		ignored[f] = true
	}

	ids := make([]int64, 0, len(desired))
	for id := range desired {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	diffs := make([]ModelDiff, 0, len(desired))
	for _, id := range ids {
		want := desired[id]
		have, exists := actual[id]

		fields := orderedFields(want)
		changes := make([]FieldChange, 0, len(fields))
		for _, field := range fields {
			if ignored[field] || skippedByMetadata(field, opts.FieldMetadata) {
				continue
			}
			newValue := want[field]

			if !exists {
				changes = append(changes, FieldChange{
					Path:      field,
					Operation: ChangeCreate,
					NewValue:  newValue,
					OldValue:  nil,
				})
				continue
			}

			oldValue, present := have[field]
			if equalField(field, newValue, oldValue, opts) {
				continue
			}
			reported := oldValue
			if !present || rpc.IsEmptyValue(oldValue) {
				reported = nil
			}
			changes = append(changes, FieldChange{
				Path:      field,
				Operation: ChangeUpdate,
				NewValue:  newValue,
				OldValue:  reported,
			})
		}

		if exists && len(changes) == 0 {
			continue
		}

		diff := ModelDiff{
			Model:   model,
			ID:      id,
			Changes: changes,
			IsNew:   !exists,
		}
		if !exists {
			if ref, ok := opts.ParentRefs[id]; ok {
				refCopy := ref
				diff.ParentRef = &refCopy
			}
		}
		diffs = append(diffs, diff)
	}
	return diffs
}

// equalField decides whether a desired value matches the snapshot value for
// one field, honoring custom comparators and the server's field semantics.
func equalField(field string, desired, actual interface{}, opts Options) bool {
	if cmp, ok := opts.CustomComparators[field]; ok {
		return cmp(desired, actual)
	}
	meta := opts.FieldMetadata[field]
	return Equal(desired, actual, meta.Type)
}

// Equal applies structural equality by type with the server's read/write
// asymmetries normalized away:
//
//   - "empty" on the server side (false, "", empty list) equals an absent or
//     empty desired value;
//   - a many-to-one read shape [id, display_name] equals the bare integer id;
//   - a property-bag read shape (list of {name, value, ...} objects) equals
//     the simple name-to-value write mapping;
//   - lists compare elementwise, mappings key-wise.
func Equal(desired, actual interface{}, fieldType string) bool {
	if rpc.IsEmptyValue(desired) && rpc.IsEmptyValue(actual) {
		return true
	}

	desired = rpc.NormalizeReference(desired)
	actual = rpc.NormalizeReference(actual)

	if _, isMap := desired.(map[string]interface{}); fieldType == "properties" || (isMap && looksLikePropertyBag(actual)) {
		actual = PropertyBagToMap(actual)
	}

	switch want := desired.(type) {
	case []interface{}:
		have, ok := actual.([]interface{})
		if !ok || len(want) != len(have) {
			return false
		}
		for i := range want {
			if !Equal(want[i], have[i], "") {
				return false
			}
		}
		return true
	case map[string]interface{}:
		have, ok := actual.(map[string]interface{})
		if !ok {
			return false
		}
		for k, wv := range want {
			if !Equal(wv, have[k], "") {
				return false
			}
		}
		for k := range have {
			if _, present := want[k]; !present && !rpc.IsEmptyValue(have[k]) {
				return false
			}
		}
		return true
	default:
		return scalarEqual(desired, actual)
	}
}

// scalarEqual compares scalars with numeric types unified, since JSON
// decoding yields float64 where the caller may hold int.
func scalarEqual(a, b interface{}) bool {
	if ai, ok := rpc.AsInt(a); ok {
		if bi, ok := rpc.AsInt(b); ok {
			return ai == bi
		}
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// PropertyBagToMap converts the property-bag read shape, an ordered list of
// {name, type, string, value, ...} objects, into the simple name-to-value
// write mapping. Values that are not in the read shape pass through.
func PropertyBagToMap(v interface{}) interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return v
	}
	out := make(map[string]interface{}, len(list))
	for _, elem := range list {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return v
		}
		name, ok := obj["name"].(string)
		if !ok {
			return v
		}
		out[name] = obj["value"]
	}
	return out
}

func looksLikePropertyBag(v interface{}) bool {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return false
	}
	for _, elem := range list {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return false
		}
		if _, ok := obj["name"].(string); !ok {
			return false
		}
		if _, ok := obj["value"]; !ok {
			return false
		}
	}
	return true
}

func skippedByMetadata(field string, meta map[string]FieldMeta) bool {
	m, ok := meta[field]
	if !ok {
		return false
	}
	return m.ReadOnly || m.Computed
}

// orderedFields returns the field names of a record in a stable order.
func orderedFields(values rpc.ValueMap) []string {
	fields := make([]string, 0, len(values))
	for f := range values {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
