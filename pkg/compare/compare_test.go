package compare

import (
	"reflect"
	"testing"

	"github.com/odrift/odrift/pkg/rpc"
)

func TestRecordsNoDrift(t *testing.T) {
	desired := map[int64]rpc.ValueMap{
		1: {"name": "Acme", "is_company": true},
	}
	actual := map[int64]rpc.ValueMap{
		1: {"id": 1, "name": "Acme", "is_company": true},
	}

	diffs := Records("res.partner", desired, actual, Options{})
	if len(diffs) != 0 {
		t.Fatalf("expected no diffs for identical state, got %v", diffs)
	}
}

func TestRecordsMissingRecordIsCreate(t *testing.T) {
	desired := map[int64]rpc.ValueMap{
		5: {"name": "New Co", "email": "new@example.com"},
	}

	diffs := Records("res.partner", desired, map[int64]rpc.ValueMap{}, Options{})
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d", len(diffs))
	}
	d := diffs[0]
	if !d.IsNew {
		t.Error("missing record not flagged as new")
	}
	if d.Model != "res.partner" || d.ID != 5 {
		t.Errorf("diff identity = %s/%d", d.Model, d.ID)
	}
	if len(d.Changes) != 2 {
		t.Fatalf("expected one change per field, got %d", len(d.Changes))
	}
	for _, ch := range d.Changes {
		if ch.Operation != ChangeCreate {
			t.Errorf("change %s operation = %s, want create", ch.Path, ch.Operation)
		}
		if ch.OldValue != nil {
			t.Errorf("change %s old value = %v, want nil", ch.Path, ch.OldValue)
		}
	}
}

func TestRecordsFieldDrift(t *testing.T) {
	desired := map[int64]rpc.ValueMap{
		1: {"name": "Acme Corp", "phone": "123"},
	}
	actual := map[int64]rpc.ValueMap{
		1: {"id": 1, "name": "Acme", "phone": "123"},
	}

	diffs := Records("res.partner", desired, actual, Options{})
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d", len(diffs))
	}
	changes := diffs[0].Changes
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %v", changes)
	}
	ch := changes[0]
	if ch.Path != "name" || ch.Operation != ChangeUpdate {
		t.Errorf("unexpected change: %+v", ch)
	}
	if ch.NewValue != "Acme Corp" || ch.OldValue != "Acme" {
		t.Errorf("values = %v -> %v", ch.OldValue, ch.NewValue)
	}
}

func TestRecordsDeterministicOrder(t *testing.T) {
	desired := map[int64]rpc.ValueMap{
		3: {"name": "C"},
		1: {"name": "A"},
		2: {"name": "B"},
	}

	var first []ModelDiff
	for i := 0; i < 10; i++ {
		diffs := Records("res.partner", desired, map[int64]rpc.ValueMap{}, Options{})
		if first == nil {
			first = diffs
			continue
		}
		if !reflect.DeepEqual(first, diffs) {
			t.Fatal("same input produced differently ordered diffs")
		}
	}
	for i, want := range []int64{1, 2, 3} {
		if first[i].ID != want {
			t.Errorf("diff %d id = %d, want %d (ascending order)", i, first[i].ID, want)
		}
	}
}

func TestRecordsSkipsReadonlyComputedAndIgnored(t *testing.T) {
	desired := map[int64]rpc.ValueMap{
		1: {"name": "Acme", "display_name": "ACME", "total": 10, "note": "x"},
	}
	actual := map[int64]rpc.ValueMap{
		1: {"id": 1, "name": "Acme", "display_name": "other", "total": 99, "note": "y"},
	}

	diffs := Records("res.partner", desired, actual, Options{
		FieldMetadata: map[string]FieldMeta{
			"display_name": {ReadOnly: true},
			"total":        {Computed: true},
		},
		IgnoreFields: []string{"note"},
	})
	if len(diffs) != 0 {
		t.Errorf("skipped fields produced diffs: %v", diffs)
	}
}

func TestRecordsExtraActualRecordsIgnored(t *testing.T) {
	desired := map[int64]rpc.ValueMap{1: {"name": "A"}}
	actual := map[int64]rpc.ValueMap{
		1: {"id": 1, "name": "A"},
		2: {"id": 2, "name": "B"},
	}

	diffs := Records("res.partner", desired, actual, Options{})
	if len(diffs) != 0 {
		t.Errorf("forward compare produced deletes: %v", diffs)
	}
}

func TestRecordsParentRef(t *testing.T) {
	desired := map[int64]rpc.ValueMap{7: {"name": "Child"}}
	ref := ParentReference{Field: "child_ids", ParentModel: "res.partner", ParentID: "res.partner:temp_1"}

	diffs := Records("res.partner", desired, map[int64]rpc.ValueMap{}, Options{
		ParentRefs: map[int64]ParentReference{7: ref},
	})
	if len(diffs) != 1 || diffs[0].ParentRef == nil {
		t.Fatalf("parent reference not attached: %v", diffs)
	}
	if *diffs[0].ParentRef != ref {
		t.Errorf("parent ref = %+v, want %+v", diffs[0].ParentRef, ref)
	}
}

func TestRecordsCustomComparator(t *testing.T) {
	desired := map[int64]rpc.ValueMap{1: {"name": "ACME"}}
	actual := map[int64]rpc.ValueMap{1: {"id": 1, "name": "acme"}}

	diffs := Records("res.partner", desired, actual, Options{
		CustomComparators: map[string]Comparator{
			"name": func(d, a interface{}) bool { return true },
		},
	})
	if len(diffs) != 0 {
		t.Errorf("custom comparator result ignored: %v", diffs)
	}
}

func TestEqualEmptySentinels(t *testing.T) {
	empties := []interface{}{nil, false, "", []interface{}{}}
	for _, d := range empties {
		for _, a := range empties {
			if !Equal(d, a, "") {
				t.Errorf("Equal(%#v, %#v) = false, want true", d, a)
			}
		}
	}
	if Equal(float64(0), false, "") {
		t.Error("numeric zero equated with the empty sentinel")
	}
}

func TestEqualReferenceShapes(t *testing.T) {
	// Read shape [id, display_name] vs bare id, both directions.
	if !Equal(int64(4), []interface{}{float64(4), "Acme"}, "many2one") {
		t.Error("bare id != read shape")
	}
	if !Equal([]interface{}{float64(4), "Acme"}, float64(4), "many2one") {
		t.Error("read shape != bare id")
	}
	if Equal(int64(4), []interface{}{float64(5), "Other"}, "many2one") {
		t.Error("different reference ids compared equal")
	}
}

func TestEqualPropertyBag(t *testing.T) {
	write := map[string]interface{}{"priority": "high", "count": float64(2)}
	read := []interface{}{
		map[string]interface{}{"name": "priority", "type": "selection", "string": "Priority", "value": "high"},
		map[string]interface{}{"name": "count", "type": "integer", "string": "Count", "value": float64(2)},
	}

	if !Equal(write, read, "properties") {
		t.Error("write mapping != read shape for equal bags")
	}

	read[0].(map[string]interface{})["value"] = "low"
	if Equal(write, read, "properties") {
		t.Error("bags with different values compared equal")
	}
}

func TestEqualLists(t *testing.T) {
	if !Equal([]interface{}{1, 2, 3}, []interface{}{float64(1), float64(2), float64(3)}, "") {
		t.Error("elementwise numeric lists not equal")
	}
	if Equal([]interface{}{1, 2}, []interface{}{2, 1}, "") {
		t.Error("order-sensitive lists compared equal")
	}
	if Equal([]interface{}{1}, []interface{}{1, 2}, "") {
		t.Error("lists of different length compared equal")
	}
}

func TestEqualMaps(t *testing.T) {
	if !Equal(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"a": float64(1), "b": false},
		"",
	) {
		t.Error("extra empty actual key broke equality")
	}
	if Equal(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"a": 1, "b": "set"},
		"",
	) {
		t.Error("extra non-empty actual key ignored")
	}
}

func TestPropertyBagToMap(t *testing.T) {
	read := []interface{}{
		map[string]interface{}{"name": "x", "value": float64(1)},
	}
	out, ok := PropertyBagToMap(read).(map[string]interface{})
	if !ok {
		t.Fatal("read shape not converted to a mapping")
	}
	if out["x"] != float64(1) {
		t.Errorf("out = %v", out)
	}

	// Non-bag values pass through untouched.
	if got := PropertyBagToMap("plain"); got != "plain" {
		t.Errorf("pass-through broken: %v", got)
	}
}
