// Package props works with property-bag fields: dynamic key-value fields
// whose schema lives on a parent record. A write replaces the whole bag, so
// partial updates must read, merge, and write back; UpdateProperties is that
// helper.
package props

import (
	"context"
	"fmt"

	"github.com/odrift/odrift/pkg/compare"
	"github.com/odrift/odrift/pkg/rpc"
)

// Property is one entry of the read shape, carrying the per-record value and
// the parent-defined metadata.
type Property struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Label     string      `json:"string"`
	Value     interface{} `json:"value"`
	Selection interface{} `json:"selection,omitempty"`
	Comodel   string      `json:"comodel,omitempty"`
}

// ReadBag reads the property-bag field of a record and returns both the full
// read shape and the simple name-to-value mapping.
func ReadBag(ctx context.Context, client rpc.Client, model string, id int64, field string) ([]Property, rpc.ValueMap, error) {
	records, err := client.Read(ctx, model, []int64{id}, []string{field})
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, rpc.NewRPCError(
			fmt.Sprintf("record %s:%d not found", model, id), nil).WithCode(rpc.ErrCodeMissingRecord).WithModel(model)
	}

	raw, ok := records[0][field].([]interface{})
	if !ok {
		// An unset bag reads back as the server's empty sentinel.
		if rpc.IsEmptyValue(records[0][field]) {
			return nil, rpc.ValueMap{}, nil
		}
		return nil, nil, rpc.NewProtocolError(
			fmt.Sprintf("field %q is not a property bag", field), nil).WithModel(model)
	}

	properties := make([]Property, 0, len(raw))
	values := make(rpc.ValueMap, len(raw))
	for _, elem := range raw {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return nil, nil, rpc.NewProtocolError(
				fmt.Sprintf("malformed property entry in %q", field), nil).WithModel(model)
		}
		p := propertyFromObject(obj)
		properties = append(properties, p)
		values[p.Name] = p.Value
	}
	return properties, values, nil
}

// UpdateProperties performs the safe read-modify-write cycle: the current
// bag is read, updates are merged over it, and the whole mapping is written
// back. Writing updates directly would silently drop every key not named,
// because the field replaces on write.
func UpdateProperties(ctx context.Context, client rpc.Client, model string, id int64, field string, updates rpc.ValueMap) error {
	if len(updates) == 0 {
		return nil
	}

	_, current, err := ReadBag(ctx, client, model, id, field)
	if err != nil {
		return err
	}

	merged := make(rpc.ValueMap, len(current)+len(updates))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}

	if _, err := client.Write(ctx, model, []int64{id}, rpc.ValueMap{field: merged}, nil); err != nil {
		return err
	}
	return nil
}

// ReplaceProperties writes the bag outright. Keys absent from values are
// dropped by the server; callers that want merging should use
// UpdateProperties instead.
func ReplaceProperties(ctx context.Context, client rpc.Client, model string, id int64, field string, values rpc.ValueMap) error {
	_, err := client.Write(ctx, model, []int64{id}, rpc.ValueMap{field: values}, nil)
	return err
}

// DroppedKeys reports which keys of the current bag a direct write of
// updates would silently remove. Used to build the warning surfaced when a
// partial write is about to drop values.
func DroppedKeys(current []Property, updates rpc.ValueMap) []string {
	var dropped []string
	for _, p := range current {
		if _, kept := updates[p.Name]; !kept {
			dropped = append(dropped, p.Name)
		}
	}
	return dropped
}

// AsWriteShape converts a read shape back into the write mapping. It is the
// same conversion the comparator applies before structural compare.
func AsWriteShape(properties []Property) rpc.ValueMap {
	values := make(rpc.ValueMap, len(properties))
	for _, p := range properties {
		values[p.Name] = p.Value
	}
	return values
}

// Equal reports whether a desired write mapping matches a read shape.
func Equal(desired rpc.ValueMap, actual []Property) bool {
	return compare.Equal(map[string]interface{}(desired), map[string]interface{}(AsWriteShape(actual)), "")
}

func propertyFromObject(obj map[string]interface{}) Property {
	p := Property{Value: obj["value"]}
	if s, ok := obj["name"].(string); ok {
		p.Name = s
	}
	if s, ok := obj["type"].(string); ok {
		p.Type = s
	}
	if s, ok := obj["string"].(string); ok {
		p.Label = s
	}
	if sel, ok := obj["selection"]; ok {
		p.Selection = sel
	}
	if s, ok := obj["comodel"].(string); ok {
		p.Comodel = s
	}
	return p
}
