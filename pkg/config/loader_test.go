package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odrift/odrift/pkg/rpc"
)

func writeState(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const partnerYAML = `
models:
  res.partner:
    records:
      - id: 1
        name: Acme
        is_company: true
      - id: 2
        name: Beta
`

func TestLoadYAML(t *testing.T) {
	path := writeState(t, "state.yaml", partnerYAML)

	st, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	records := st.Models["res.partner"]
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[1]["name"] != "Acme" || records[1]["is_company"] != true {
		t.Errorf("record 1 = %v", records[1])
	}
	if _, carried := records[1]["id"]; carried {
		t.Error("id key leaked into the value map")
	}
	if len(st.Sources) != 1 || st.Sources[0] != path {
		t.Errorf("sources = %v", st.Sources)
	}
}

func TestLoadYAMLRejectsMissingID(t *testing.T) {
	path := writeState(t, "state.yaml", `
models:
  res.partner:
    records:
      - name: Acme
`)
	_, err := NewLoader().Load(path)
	if !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestLoadYAMLRejectsDuplicateID(t *testing.T) {
	path := writeState(t, "state.yaml", `
models:
  res.partner:
    records:
      - id: 1
        name: A
      - id: 1
        name: B
`)
	_, err := NewLoader().Load(path)
	if !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestLoadCUE(t *testing.T) {
	path := writeState(t, "state.cue", `
models: "res.partner": records: [
	{id: 1, name: "Acme", email: "info@acme.example"},
	{id: 2, name: "Beta"},
]
`)
	st, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	records := st.Models["res.partner"]
	if len(records) != 2 || records[1]["email"] != "info@acme.example" {
		t.Errorf("records = %v", records)
	}
}

func TestLoadCUERejectsNonPositiveID(t *testing.T) {
	path := writeState(t, "state.cue", `
models: "res.partner": records: [{id: 0, name: "Acme"}]
`)
	_, err := NewLoader().Load(path)
	if !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestLoadStarlark(t *testing.T) {
	path := writeState(t, "state.star", `
models = {
    "res.partner": {
        "records": [{"id": i, "name": "Partner %d" % i} for i in range(1, 4)],
    },
}
`)
	st, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	records := st.Models["res.partner"]
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}
	if records[2]["name"] != "Partner 2" {
		t.Errorf("record 2 = %v", records[2])
	}
}

func TestLoadStarlarkRequiresModelsGlobal(t *testing.T) {
	path := writeState(t, "state.star", `x = 1`)

	_, err := NewLoader().Load(path)
	if !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeState(t, "state.toml", `models = {}`)

	_, err := NewLoader().Load(path)
	if !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("partners.yaml", partnerYAML)
	write("users.yaml", `
models:
  res.users:
    records:
      - id: 5
        login: admin
`)
	write("notes.txt", "not a state file")

	st, err := NewLoader().Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(st.Models["res.partner"]) != 2 || len(st.Models["res.users"]) != 1 {
		t.Errorf("models = %v", st.Models)
	}
}

func TestLoadMergeConflict(t *testing.T) {
	a := writeState(t, "a.yaml", partnerYAML)
	b := writeState(t, "b.yaml", `
models:
  res.partner:
    records:
      - id: 1
        name: Duplicate
`)

	_, err := NewLoader().Load(a, b)
	if !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestLoadMergeAcrossModels(t *testing.T) {
	a := writeState(t, "a.yaml", partnerYAML)
	b := writeState(t, "b.yaml", `
models:
  res.partner:
    records:
      - id: 3
        name: Gamma
  res.users:
    records:
      - id: 5
        login: admin
`)

	st, err := NewLoader().Load(a, b)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(st.Models["res.partner"]) != 3 {
		t.Errorf("partner records = %v", st.Models["res.partner"])
	}
	if len(st.Sources) != 2 {
		t.Errorf("sources = %v", st.Sources)
	}
}

func TestLoadNoSources(t *testing.T) {
	if _, err := NewLoader().Load(); !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}
