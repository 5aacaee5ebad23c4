package plan

import (
	"strings"
	"testing"

	"github.com/odrift/odrift/pkg/compare"
	"github.com/odrift/odrift/pkg/rpc"
)

func TestRenderEmptyPlan(t *testing.T) {
	p := Generate(nil, nil)
	got := Render(p, RenderOptions{})
	if got != "No changes. State is up to date.\n" {
		t.Errorf("empty render = %q", got)
	}
}

func TestRenderPlan(t *testing.T) {
	diffs := []compare.ModelDiff{
		newDiff("res.partner", 1, true, createChange("name", "Acme"), createChange("active", true)),
		newDiff("res.partner", 9, false, updateChange("phone", "1", "2")),
	}
	p := Generate(diffs, nil)

	out := Render(p, RenderOptions{})
	for _, want := range []string{
		"res.partner[" + rpc.TempID("res.partner", 1) + "]:",
		`  + name = "Acme"`,
		"  + active = true",
		"res.partner[res.partner:9]:",
		`  ~ phone = "2"`,
		"Plan: 1 to add, 1 to change, 0 to destroy.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("ANSI escapes emitted with color disabled")
	}
}

func TestRenderColor(t *testing.T) {
	p := Generate([]compare.ModelDiff{
		newDiff("res.partner", 1, true, createChange("name", "Acme")),
	}, nil)

	out := Render(p, RenderOptions{Color: true})
	if !strings.Contains(out, ansiGreen) || !strings.Contains(out, ansiReset) {
		t.Error("color render carries no ANSI escapes")
	}
}

func TestRenderErrors(t *testing.T) {
	p := Generate([]compare.ModelDiff{
		newDiff("res.partner", 1, true, createChange("parent_id", "res.partner:temp_missing")),
	}, nil)
	if !p.Summary.HasErrors {
		t.Fatal("expected an invalid plan")
	}

	out := Render(p, RenderOptions{})
	if !strings.Contains(out, "Plan contains errors:") {
		t.Errorf("error header missing:\n%s", out)
	}
	if !strings.Contains(out, "unknown operation") {
		t.Errorf("error detail missing:\n%s", out)
	}
}

func TestRenderDiffs(t *testing.T) {
	diffs := []compare.ModelDiff{
		newDiff("res.partner", 1, true, createChange("name", "Acme")),
		newDiff("res.partner", 9, false, updateChange("phone", "1", "2")),
	}

	out := RenderDiffs(diffs, RenderOptions{})
	for _, want := range []string{
		"res.partner[res.partner:temp_1]:",
		`  + name = "Acme"`,
		"res.partner[res.partner:9]:",
		`  ~ phone = "1" -> "2"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diff render missing %q:\n%s", want, out)
		}
	}

	if got := RenderDiffs(nil, RenderOptions{}); got != "No changes. State is up to date.\n" {
		t.Errorf("empty diff render = %q", got)
	}
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "(null)"},
		{"x", `"x"`},
		{true, "true"},
		{float64(3), "3"},
		{float64(3.5), "3.5"},
		{int64(7), "7"},
		{TempRef("res.partner:temp_1"), `"res.partner:temp_1"`},
		{map[string]interface{}{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := renderValue(tt.in); got != tt.want {
			t.Errorf("renderValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderListTruncation(t *testing.T) {
	list := make([]interface{}, 15)
	for i := range list {
		list[i] = i
	}
	got := renderValue(list)
	if !strings.Contains(got, "…15 total") {
		t.Errorf("long list not truncated: %s", got)
	}
}
