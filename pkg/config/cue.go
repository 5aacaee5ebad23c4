package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/odrift/odrift/pkg/rpc"
)

// stateSchema constrains CUE state documents to the shared document shape.
const stateSchema = `
models: [string]: {
	records: [...{
		id: int & >0
		...
	}]
}
`

// cueParser evaluates CUE state documents. CUE gives authors typed
// constraints and references the YAML form cannot express; the evaluated
// value is decoded into the same document shape.
type cueParser struct {
	ctx *cue.Context
}

func newCUEParser() *cueParser {
	return &cueParser{ctx: cuecontext.New()}
}

func (p *cueParser) parse(path string, raw []byte) (*State, error) {
	schema := p.ctx.CompileString(stateSchema, cue.Filename("state-schema.cue"))
	if schema.Err() != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("internal state schema error: %v", schema.Err()))
	}

	value := p.ctx.CompileBytes(raw, cue.Filename(path))
	if value.Err() != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf(
			"%s: malformed CUE: %s", path, cueerrors.Details(value.Err(), nil)))
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf(
			"%s: state document violates the schema: %s", path, cueerrors.Details(err, nil)))
	}

	var doc document
	if err := unified.Decode(&doc); err != nil {
		return nil, rpc.NewInvalidInputError(fmt.Sprintf("%s: cannot decode CUE value: %v", path, err))
	}
	return fromDocument(path, doc)
}
