package rpc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValueMap is the uniform field-name to field-value representation used for
// desired state, actual snapshots, and write payloads. The ERP defines models
// at runtime, so there is no static per-model type to mirror.
type ValueMap map[string]interface{}

// Record is a single record read from the server. The "id" key is always an
// integer when the record came from read or search_read.
type Record = ValueMap

// tempIDPattern matches the in-band string form of a temporary identifier,
// "<model>:temp_<token>". It is only consulted for values that arrive from
// JSON documents; engine-internal references use the tagged TempRef type.
var tempIDPattern = regexp.MustCompile(`^[a-z0-9_.]+:temp_[A-Za-z0-9_-]+$`)

// canonicalIDPattern matches the canonical display form "<model>:<integer>".
var canonicalIDPattern = regexp.MustCompile(`^[a-z0-9_.]+:[0-9]+$`)

// TempID formats a temporary identifier for a record that will be created
// during plan execution.
func TempID(model string, token interface{}) string {
	return fmt.Sprintf("%s:temp_%v", model, token)
}

// CanonicalID formats the canonical display form for a server-assigned id.
func CanonicalID(model string, id int64) string {
	return fmt.Sprintf("%s:%d", model, id)
}

// IsTempID reports whether s has the temporary identifier form.
func IsTempID(s string) bool {
	return tempIDPattern.MatchString(s)
}

// IsCanonicalID reports whether s has the canonical "<model>:<integer>" form.
func IsCanonicalID(s string) bool {
	return canonicalIDPattern.MatchString(s)
}

// SplitID splits either identifier form into its model and tail parts.
func SplitID(s string) (model, tail string, ok bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// ParseCanonicalID extracts the integer id from the canonical display form.
func ParseCanonicalID(s string) (model string, id int64, err error) {
	m, tail, ok := SplitID(s)
	if !ok {
		return "", 0, NewInvalidInputError(fmt.Sprintf("malformed record id %q", s)).WithCode(ErrCodeBadIDForm)
	}
	id, perr := strconv.ParseInt(tail, 10, 64)
	if perr != nil || id <= 0 {
		return "", 0, NewInvalidInputError(fmt.Sprintf("record id %q is not in canonical integer form", s)).WithCode(ErrCodeBadIDForm)
	}
	return m, id, nil
}

// NormalizeReference collapses the ERP's many-to-one read shape into a plain
// integer id. Reads return `[id, display_name]`; writes accept the integer.
// Non-reference values are returned unchanged.
func NormalizeReference(v interface{}) interface{} {
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return v
	}
	if _, isStr := pair[1].(string); !isStr {
		return v
	}
	if id, ok := AsInt(pair[0]); ok {
		return id
	}
	return v
}

// AsInt coerces JSON-decoded numeric shapes to an int64. JSON decoding hands
// back float64 for all numbers, so both paths must be accepted.
func AsInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// IsEmptyValue reports whether v is the ERP's canonical "empty" sentinel:
// nil, false, the empty string, or an empty list. Unset fields read back as
// false from the server regardless of their declared type.
func IsEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	}
	return false
}
