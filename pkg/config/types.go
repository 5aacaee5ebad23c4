// Package config loads desired-state documents: the record state users
// declare per model, authored in YAML, CUE, or Starlark.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odrift/odrift/pkg/rpc"
)

// State is a parsed desired-state document set.
type State struct {
	// Sources are the file paths the state was loaded from.
	Sources []string `json:"sources"`

	// ParsedAt is when the state was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Models maps model names to their desired records keyed by id.
	Models map[string]map[int64]rpc.ValueMap `json:"models" validate:"required,min=1"`
}

// document is the on-disk shape shared by all three formats.
type document struct {
	Models map[string]modelDocument `yaml:"models" json:"models"`
}

type modelDocument struct {
	Records []map[string]interface{} `yaml:"records" json:"records"`
}

// stateValidator checks decoded documents before they become State.
var stateValidator = validator.New()

// fromDocument converts an on-disk document into engine form. Each record
// must carry a positive integer "id"; the remaining keys are its desired
// field values.
func fromDocument(source string, doc document) (*State, error) {
	if len(doc.Models) == 0 {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: document declares no models", source))
	}

	state := &State{
		Sources:  []string{source},
		ParsedAt: time.Now(),
		Models:   make(map[string]map[int64]rpc.ValueMap, len(doc.Models)),
	}

	for model, md := range doc.Models {
		if model == "" {
			return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: empty model name", source))
		}
		records := make(map[int64]rpc.ValueMap, len(md.Records))
		for i, rec := range md.Records {
			id, ok := rpc.AsInt(rec["id"])
			if !ok || id <= 0 {
				return nil, rpc.NewInvalidInputError(fmt.Sprintf(
					"%s: model %q record %d has no positive integer id", source, model, i))
			}
			if _, dup := records[id]; dup {
				return nil, rpc.NewInvalidInputError(fmt.Sprintf(
					"%s: model %q declares record id %d twice", source, model, id))
			}
			values := make(rpc.ValueMap, len(rec)-1)
			for k, v := range rec {
				if k == "id" {
					continue
				}
				values[k] = v
			}
			records[id] = values
		}
		state.Models[model] = records
	}

	if err := stateValidator.Struct(state); err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: %v", source, err))
	}
	return state, nil
}

// Merge combines states from several sources. Declaring the same (model, id)
// in two sources is an error; drift runs must see one desired value per
// record.
func Merge(states ...*State) (*State, error) {
	if len(states) == 0 {
		return nil, rpc.NewInvalidInputError("no state documents to merge")
	}
	if len(states) == 1 {
		return states[0], nil
	}

	merged := &State{
		ParsedAt: time.Now(),
		Models:   make(map[string]map[int64]rpc.ValueMap),
	}
	for _, st := range states {
		merged.Sources = append(merged.Sources, st.Sources...)
		for model, records := range st.Models {
			if merged.Models[model] == nil {
				merged.Models[model] = make(map[int64]rpc.ValueMap, len(records))
			}
			for id, values := range records {
				if _, dup := merged.Models[model][id]; dup {
					return nil, rpc.NewInvalidInputError(fmt.Sprintf(
						"record %s:%d is declared in more than one source", model, id))
				}
				merged.Models[model][id] = values
			}
		}
	}
	return merged, nil
}
