package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/odrift/odrift/pkg/compare"
)

// ANSI escapes used by the renderer when color is enabled.
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// RenderOptions configure plan rendering.
type RenderOptions struct {
	// Color enables ANSI color on the diff markers.
	Color bool
}

// maxRenderedElems is how many list elements are shown before truncation.
const maxRenderedElems = 10

// Render emits a human-readable plan report. The line format is stable for
// machine consumers: a "<model>[<id>]:" header per operation, indented
// "+|~|- path = ..." lines, and a final "Plan: C to add, U to change,
// D to destroy." summary. An empty plan renders a single no-changes line.
func Render(p *ExecutionPlan, opts RenderOptions) string {
	var b strings.Builder

	if p.Summary.HasErrors {
		b.WriteString(paint("Plan contains errors:\n", ansiBold+ansiRed, opts.Color))
		for _, msg := range p.Summary.Errors {
			fmt.Fprintf(&b, "  - %s\n", msg)
		}
		return b.String()
	}

	if p.Summary.IsEmpty {
		return "No changes. State is up to date.\n"
	}

	for _, op := range p.Operations {
		fmt.Fprintf(&b, "%s[%s]:\n", op.Model, op.ID)
		switch op.Type {
		case OpCreate:
			for _, field := range sortedValueKeys(op.Values) {
				line := fmt.Sprintf("  + %s = %s", field, renderValue(op.Values[field]))
				b.WriteString(paint(line, ansiGreen, opts.Color))
				b.WriteByte('\n')
			}
		case OpUpdate:
			for _, field := range sortedValueKeys(op.Values) {
				line := fmt.Sprintf("  ~ %s = %s", field, renderValue(op.Values[field]))
				b.WriteString(paint(line, ansiYellow, opts.Color))
				b.WriteByte('\n')
			}
		case OpDelete:
			line := fmt.Sprintf("  - %s", op.ID)
			b.WriteString(paint(line, ansiRed, opts.Color))
			b.WriteByte('\n')
		}
	}

	summary := fmt.Sprintf("Plan: %d to add, %d to change, %d to destroy.",
		p.Summary.Creates, p.Summary.Updates, p.Summary.Deletes)
	b.WriteString(paint(summary, ansiBold, opts.Color))
	b.WriteByte('\n')
	return b.String()
}

// RenderDiffs emits the comparator's view before a plan exists, one header
// per record with old -> new detail on updates.
func RenderDiffs(diffs []compare.ModelDiff, opts RenderOptions) string {
	if len(diffs) == 0 {
		return "No changes. State is up to date.\n"
	}

	var b strings.Builder
	for _, diff := range diffs {
		if diff.IsNew {
			fmt.Fprintf(&b, "%s[%s:temp_%d]:\n", diff.Model, diff.Model, diff.ID)
		} else {
			fmt.Fprintf(&b, "%s[%s:%d]:\n", diff.Model, diff.Model, diff.ID)
		}
		for _, change := range diff.Changes {
			var line string
			switch change.Operation {
			case compare.ChangeCreate:
				line = paint(fmt.Sprintf("  + %s = %s", change.Path, renderValue(change.NewValue)), ansiGreen, opts.Color)
			case compare.ChangeUpdate:
				line = paint(fmt.Sprintf("  ~ %s = %s -> %s",
					change.Path, renderValue(change.OldValue), renderValue(change.NewValue)), ansiYellow, opts.Color)
			case compare.ChangeDelete:
				line = paint(fmt.Sprintf("  - %s", change.Path), ansiRed, opts.Color)
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderValue serializes a field value for the report: strings quoted,
// booleans and numbers literal, null as "(null)", lists truncated past
// maxRenderedElems, mappings as compact JSON.
func renderValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "(null)"
	case string:
		return fmt.Sprintf("%q", t)
	case TempRef:
		return fmt.Sprintf("%q", string(t))
	case bool:
		return fmt.Sprintf("%v", t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int, int64:
		return fmt.Sprintf("%d", t)
	case []interface{}:
		return renderList(t)
	case map[string]interface{}:
		return renderJSON(t)
	default:
		return renderJSON(t)
	}
}

func renderList(list []interface{}) string {
	var b strings.Builder
	b.WriteByte('[')
	shown := list
	truncated := false
	if len(list) > maxRenderedElems {
		shown = list[:maxRenderedElems]
		truncated = true
	}
	for i, elem := range shown {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(renderValue(elem))
	}
	if truncated {
		fmt.Fprintf(&b, ", …%d total", len(list))
	}
	b.WriteByte(']')
	return b.String()
}

func renderJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func paint(s, color string, enabled bool) string {
	if !enabled {
		return s
	}
	return color + s + ansiReset
}

func sortedValueKeys(values map[string]interface{}) []string {
	return sortedKeys(values)
}
