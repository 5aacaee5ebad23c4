package plan

import (
	"reflect"
	"testing"

	"github.com/odrift/odrift/pkg/rpc"
)

func TestScanTempRefs(t *testing.T) {
	values := rpc.ValueMap{
		"parent_id":   TempRef("res.partner:temp_1"),
		"category_id": []interface{}{4, "res.partner.category:temp_tag"},
		"company_id":  7,
		"name":        "Acme",
		"nested": map[string]interface{}{
			"again": "res.partner:temp_1",
		},
	}

	refs := ScanTempRefs(values)
	want := map[string]bool{
		"res.partner:temp_1":            true,
		"res.partner.category:temp_tag": true,
	}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %d distinct", refs, len(want))
	}
	for _, ref := range refs {
		if !want[ref] {
			t.Errorf("unexpected ref %q", ref)
		}
	}
}

func TestScanTempRefsIgnoresCanonicalIDs(t *testing.T) {
	refs := ScanTempRefs(rpc.ValueMap{
		"parent_id": "res.partner:42",
		"note":      "temp_1 mentioned in prose",
	})
	if len(refs) != 0 {
		t.Errorf("non-temp strings collected: %v", refs)
	}
}

func TestScanTempRefsDeterministic(t *testing.T) {
	values := rpc.ValueMap{
		"b": "res.partner:temp_b",
		"a": "res.partner:temp_a",
		"c": "res.partner:temp_c",
	}
	first := ScanTempRefs(values)
	for i := 0; i < 10; i++ {
		if got := ScanTempRefs(values); !reflect.DeepEqual(got, first) {
			t.Fatal("scan order varies across runs")
		}
	}
}

func TestRewriteTempRefs(t *testing.T) {
	values := rpc.ValueMap{
		"parent_id":   TempRef("res.partner:temp_1"),
		"category_id": []interface{}{"res.partner.category:temp_tag", 9},
		"name":        "Acme",
	}
	ids := map[string]int64{
		"res.partner:temp_1":            101,
		"res.partner.category:temp_tag": 202,
	}

	out, missing := RewriteTempRefs(values, ids)
	if len(missing) != 0 {
		t.Fatalf("unexpected missing refs: %v", missing)
	}
	rewritten := out.(rpc.ValueMap)
	if rewritten["parent_id"] != int64(101) {
		t.Errorf("parent_id = %#v, want 101", rewritten["parent_id"])
	}
	list := rewritten["category_id"].([]interface{})
	if list[0] != int64(202) || list[1] != 9 {
		t.Errorf("category_id = %#v", list)
	}
	if rewritten["name"] != "Acme" {
		t.Errorf("scalar rewritten: %#v", rewritten["name"])
	}

	// The input is not mutated.
	if _, ok := values["parent_id"].(TempRef); !ok {
		t.Error("rewrite mutated its input")
	}
}

func TestRewriteTempRefsReportsMissing(t *testing.T) {
	out, missing := RewriteTempRefs(rpc.ValueMap{
		"parent_id": "res.partner:temp_gone",
	}, nil)
	if len(missing) != 1 || missing[0] != "res.partner:temp_gone" {
		t.Fatalf("missing = %v", missing)
	}
	if out.(rpc.ValueMap)["parent_id"] != "res.partner:temp_gone" {
		t.Error("unresolved ref not left in place")
	}
}
