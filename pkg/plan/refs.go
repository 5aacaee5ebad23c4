package plan

import (
	"sort"

	"github.com/odrift/odrift/pkg/rpc"
)

// ScanTempRefs walks a value and collects every temporary reference it
// contains, in encounter order and deduplicated. Both the tagged TempRef
// type and the in-band "<model>:temp_<token>" string form are recognized,
// traversing nested lists and mappings.
func ScanTempRefs(v interface{}) []string {
	seen := make(map[string]bool)
	var refs []string
	scanTempRefs(v, seen, &refs)
	return refs
}

func scanTempRefs(v interface{}, seen map[string]bool, refs *[]string) {
	switch t := v.(type) {
	case TempRef:
		record(string(t), seen, refs)
	case string:
		if rpc.IsTempID(t) {
			record(t, seen, refs)
		}
	case []interface{}:
		for _, elem := range t {
			scanTempRefs(elem, seen, refs)
		}
	case map[string]interface{}:
		for _, key := range sortedKeys(t) {
			scanTempRefs(t[key], seen, refs)
		}
	case rpc.ValueMap:
		scanTempRefs(map[string]interface{}(t), seen, refs)
	}
}

func record(ref string, seen map[string]bool, refs *[]string) {
	if !seen[ref] {
		seen[ref] = true
		*refs = append(*refs, ref)
	}
}

// RewriteTempRefs returns a copy of v with every resolved temporary
// reference replaced by its integer id. Unresolved references are collected
// into missing. Lists and mappings are rebuilt, scalars pass through.
func RewriteTempRefs(v interface{}, ids map[string]int64) (out interface{}, missing []string) {
	switch t := v.(type) {
	case TempRef:
		return rewriteOne(string(t), ids)
	case string:
		if rpc.IsTempID(t) {
			return rewriteOne(t, ids)
		}
		return t, nil
	case []interface{}:
		rebuilt := make([]interface{}, len(t))
		for i, elem := range t {
			r, miss := RewriteTempRefs(elem, ids)
			rebuilt[i] = r
			missing = append(missing, miss...)
		}
		return rebuilt, missing
	case map[string]interface{}:
		rebuilt := make(map[string]interface{}, len(t))
		for k, elem := range t {
			r, miss := RewriteTempRefs(elem, ids)
			rebuilt[k] = r
			missing = append(missing, miss...)
		}
		return rebuilt, missing
	case rpc.ValueMap:
		r, miss := RewriteTempRefs(map[string]interface{}(t), ids)
		return rpc.ValueMap(r.(map[string]interface{})), miss
	default:
		return v, nil
	}
}

func rewriteOne(ref string, ids map[string]int64) (interface{}, []string) {
	if id, ok := ids[ref]; ok {
		return id, nil
	}
	return ref, []string{ref}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
