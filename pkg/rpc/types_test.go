package rpc

import (
	"testing"
)

func TestTempIDRoundTrip(t *testing.T) {
	id := TempID("res.partner", 42)
	if id != "res.partner:temp_42" {
		t.Fatalf("unexpected temp id: %s", id)
	}
	if !IsTempID(id) {
		t.Errorf("IsTempID(%q) = false, want true", id)
	}
	if IsCanonicalID(id) {
		t.Errorf("IsCanonicalID(%q) = true for a temp id", id)
	}
}

func TestCanonicalIDRoundTrip(t *testing.T) {
	id := CanonicalID("res.partner", 7)
	if id != "res.partner:7" {
		t.Fatalf("unexpected canonical id: %s", id)
	}
	if !IsCanonicalID(id) {
		t.Errorf("IsCanonicalID(%q) = false, want true", id)
	}

	model, n, err := ParseCanonicalID(id)
	if err != nil {
		t.Fatalf("ParseCanonicalID failed: %v", err)
	}
	if model != "res.partner" || n != 7 {
		t.Errorf("parsed %s/%d, want res.partner/7", model, n)
	}
}

func TestIDFormClassification(t *testing.T) {
	tests := []struct {
		id        string
		temp      bool
		canonical bool
	}{
		{"res.partner:temp_a1", true, false},
		{"res.partner:1", false, true},
		{"ir.model.fields:temp_x-Y_z", true, false},
		{"res.partner:temp_", false, false},
		{"res.partner", false, false},
		{":1", false, false},
		{"res.partner:1x", false, false},
		{"Res.Partner:1", false, false},
	}
	for _, tt := range tests {
		if got := IsTempID(tt.id); got != tt.temp {
			t.Errorf("IsTempID(%q) = %v, want %v", tt.id, got, tt.temp)
		}
		if got := IsCanonicalID(tt.id); got != tt.canonical {
			t.Errorf("IsCanonicalID(%q) = %v, want %v", tt.id, got, tt.canonical)
		}
	}
}

func TestParseCanonicalIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "res.partner", "res.partner:", "res.partner:zero", "res.partner:0", "res.partner:-3"} {
		if _, _, err := ParseCanonicalID(id); err == nil {
			t.Errorf("ParseCanonicalID(%q) accepted a malformed id", id)
		} else if !IsInvalidInput(err) {
			t.Errorf("ParseCanonicalID(%q) error kind = %v, want invalid input", id, KindOf(err))
		}
	}
}

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"read shape", []interface{}{float64(5), "Acme"}, int64(5)},
		{"already integer", int64(5), int64(5)},
		{"two ints is not a reference", []interface{}{float64(1), float64(2)}, []interface{}{float64(1), float64(2)}},
		{"wrong arity", []interface{}{float64(1)}, []interface{}{float64(1)}},
		{"string", "x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeReference(tt.in)
			switch want := tt.want.(type) {
			case int64:
				if got != want {
					t.Errorf("got %v, want %v", got, want)
				}
			default:
				// Non-normalized inputs come back unchanged.
				if _, ok := got.([]interface{}); !ok && got != tt.in {
					t.Errorf("got %v, want input unchanged", got)
				}
			}
		})
	}
}

func TestAsInt(t *testing.T) {
	if n, ok := AsInt(float64(9)); !ok || n != 9 {
		t.Errorf("AsInt(9.0) = %d, %v", n, ok)
	}
	if n, ok := AsInt(9); !ok || n != 9 {
		t.Errorf("AsInt(9) = %d, %v", n, ok)
	}
	if _, ok := AsInt(9.5); ok {
		t.Error("AsInt(9.5) accepted a fractional value")
	}
	if _, ok := AsInt("9"); ok {
		t.Error("AsInt accepted a string")
	}
}

func TestIsEmptyValue(t *testing.T) {
	empties := []interface{}{nil, false, "", []interface{}{}}
	for _, v := range empties {
		if !IsEmptyValue(v) {
			t.Errorf("IsEmptyValue(%#v) = false, want true", v)
		}
	}
	nonEmpties := []interface{}{true, "x", float64(0), []interface{}{1}, map[string]interface{}{}}
	for _, v := range nonEmpties {
		if IsEmptyValue(v) {
			t.Errorf("IsEmptyValue(%#v) = true, want false", v)
		}
	}
}
