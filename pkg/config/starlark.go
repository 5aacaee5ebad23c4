package config

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/odrift/odrift/pkg/rpc"
)

// starlarkEvaluator runs .star state scripts. A script builds records
// procedurally and assigns the document to a top-level `models` global:
//
//	models = {
//	    "res.partner": {"records": [{"id": i, "name": "P%d" % i} for i in range(1, 4)]},
//	}
type starlarkEvaluator struct {
	timeout time.Duration
}

const defaultStarlarkTimeout = 30 * time.Second

func newStarlarkEvaluator(timeout time.Duration) *starlarkEvaluator {
	if timeout == 0 {
		timeout = defaultStarlarkTimeout
	}
	return &starlarkEvaluator{timeout: timeout}
}

func (e *starlarkEvaluator) evaluate(path string, raw []byte) (*State, error) {
	thread := &starlark.Thread{
		Name: "odrift-state",
		Print: func(_ *starlark.Thread, msg string) {
			// Script prints are discarded; state generation must be pure.
		},
	}

	done := make(chan struct{})
	timer := time.AfterFunc(e.timeout, func() {
		thread.Cancel("state script timeout")
		close(done)
	})
	defer timer.Stop()

	globals, err := starlark.ExecFile(thread, path, raw, starlark.StringDict{})
	select {
	case <-done:
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: script exceeded the %v timeout", path, e.timeout))
	default:
	}
	if err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: script failed: %v", path, err))
	}

	modelsValue, ok := globals["models"]
	if !ok {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: script does not define a `models` global", path))
	}

	converted, err := fromStarlarkValue(modelsValue)
	if err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: %v", path, err))
	}
	modelsMap, ok := converted.(map[string]interface{})
	if !ok {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: `models` must be a dict of model name to records", path))
	}

	doc := document{Models: make(map[string]modelDocument, len(modelsMap))}
	for model, v := range modelsMap {
		md, err := modelDocumentFromValue(v)
		if err != nil {
			return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: model %q: %v", path, model, err))
		}
		doc.Models[model] = md
	}
	return fromDocument(path, doc)
}

func modelDocumentFromValue(v interface{}) (modelDocument, error) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return modelDocument{}, fmt.Errorf("expected a dict with a `records` list, got %T", v)
	}
	rawRecords, ok := obj["records"].([]interface{})
	if !ok {
		return modelDocument{}, fmt.Errorf("missing `records` list")
	}
	md := modelDocument{Records: make([]map[string]interface{}, 0, len(rawRecords))}
	for i, r := range rawRecords {
		rec, ok := r.(map[string]interface{})
		if !ok {
			return modelDocument{}, fmt.Errorf("record %d is not a dict", i)
		}
		md.Records = append(md.Records, rec)
	}
	return md, nil
}

// fromStarlarkValue converts a Starlark value into the JSON-compatible Go
// shapes the engine uses everywhere else.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s overflows int64", val.String())
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make([]interface{}, 0, val.Len())
		it := val.Iterate()
		defer it.Done()
		var elem starlark.Value
		for it.Next(&elem) {
			converted, err := fromStarlarkValue(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]interface{}, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			converted, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, val.Len())
		for _, key := range val.Keys() {
			ks, ok := key.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key %s is not a string", key.String())
			}
			value, _, err := val.Get(key)
			if err != nil {
				return nil, err
			}
			converted, err := fromStarlarkValue(value)
			if err != nil {
				return nil, err
			}
			out[string(ks)] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}
