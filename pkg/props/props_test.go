package props

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/odrift/odrift/pkg/rpc"
)

// bagClient serves one record's property bag and records writes.
type bagClient struct {
	rpc.Client

	bag     interface{}
	readErr error
	writes  []rpc.ValueMap
}

func (b *bagClient) Read(ctx context.Context, model string, ids []int64, fields []string) ([]rpc.Record, error) {
	if b.readErr != nil {
		return nil, b.readErr
	}
	if b.bag == nil {
		return nil, nil
	}
	return []rpc.Record{{"id": ids[0], fields[0]: b.bag}}, nil
}

func (b *bagClient) Write(ctx context.Context, model string, ids []int64, values rpc.ValueMap, opctx rpc.ValueMap) (bool, error) {
	b.writes = append(b.writes, values)
	return true, nil
}

func readShape() []interface{} {
	return []interface{}{
		map[string]interface{}{"name": "priority", "type": "selection", "string": "Priority", "value": "high"},
		map[string]interface{}{"name": "owner", "type": "many2one", "comodel": "res.users", "value": float64(7)},
	}
}

func TestReadBag(t *testing.T) {
	client := &bagClient{bag: readShape()}

	properties, values, err := ReadBag(context.Background(), client, "res.partner", 1, "properties")
	if err != nil {
		t.Fatalf("ReadBag failed: %v", err)
	}
	if len(properties) != 2 {
		t.Fatalf("got %d properties", len(properties))
	}
	if properties[0].Name != "priority" || properties[0].Label != "Priority" {
		t.Errorf("property = %+v", properties[0])
	}
	if properties[1].Comodel != "res.users" {
		t.Errorf("comodel = %q", properties[1].Comodel)
	}
	want := rpc.ValueMap{"priority": "high", "owner": float64(7)}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("values = %v, want %v", values, want)
	}
}

func TestReadBagEmptySentinel(t *testing.T) {
	client := &bagClient{bag: false}

	properties, values, err := ReadBag(context.Background(), client, "res.partner", 1, "properties")
	if err != nil {
		t.Fatalf("ReadBag failed: %v", err)
	}
	if len(properties) != 0 || len(values) != 0 {
		t.Errorf("unset bag = %v / %v", properties, values)
	}
}

func TestReadBagMissingRecord(t *testing.T) {
	client := &bagClient{}

	_, _, err := ReadBag(context.Background(), client, "res.partner", 1, "properties")
	if !rpc.IsRPCError(err) {
		t.Fatalf("error = %v, want rpc", err)
	}
	var e *rpc.Error
	if !errors.As(err, &e) || e.Code != rpc.ErrCodeMissingRecord {
		t.Errorf("error = %v, want missing record", err)
	}
}

func TestUpdatePropertiesMerges(t *testing.T) {
	client := &bagClient{bag: readShape()}

	err := UpdateProperties(context.Background(), client, "res.partner", 1, "properties",
		rpc.ValueMap{"priority": "low"})
	if err != nil {
		t.Fatalf("UpdateProperties failed: %v", err)
	}
	if len(client.writes) != 1 {
		t.Fatalf("writes = %d", len(client.writes))
	}
	written := client.writes[0]["properties"].(rpc.ValueMap)
	if written["priority"] != "low" {
		t.Errorf("update not applied: %v", written)
	}
	// The untouched key survives the write-replaces-all semantics.
	if written["owner"] != float64(7) {
		t.Errorf("unnamed key dropped: %v", written)
	}
}

func TestUpdatePropertiesNoUpdatesIsNoOp(t *testing.T) {
	client := &bagClient{bag: readShape()}

	if err := UpdateProperties(context.Background(), client, "res.partner", 1, "properties", nil); err != nil {
		t.Fatalf("UpdateProperties failed: %v", err)
	}
	if len(client.writes) != 0 {
		t.Error("empty update reached the server")
	}
}

func TestReplaceProperties(t *testing.T) {
	client := &bagClient{bag: readShape()}

	err := ReplaceProperties(context.Background(), client, "res.partner", 1, "properties",
		rpc.ValueMap{"priority": "low"})
	if err != nil {
		t.Fatalf("ReplaceProperties failed: %v", err)
	}
	written := client.writes[0]["properties"].(rpc.ValueMap)
	if _, ok := written["owner"]; ok {
		t.Error("replace merged instead of overwriting")
	}
}

func TestDroppedKeys(t *testing.T) {
	current := []Property{
		{Name: "priority", Value: "high"},
		{Name: "owner", Value: float64(7)},
	}
	dropped := DroppedKeys(current, rpc.ValueMap{"priority": "low"})
	if len(dropped) != 1 || dropped[0] != "owner" {
		t.Errorf("dropped = %v", dropped)
	}
	if d := DroppedKeys(current, rpc.ValueMap{"priority": "x", "owner": nil}); len(d) != 0 {
		t.Errorf("fully named write reports drops: %v", d)
	}
}

func TestEqual(t *testing.T) {
	current := []Property{
		{Name: "priority", Value: "high"},
		{Name: "owner", Value: float64(7)},
	}
	if !Equal(rpc.ValueMap{"priority": "high", "owner": 7}, current) {
		t.Error("matching bag compared unequal")
	}
	if Equal(rpc.ValueMap{"priority": "low", "owner": 7}, current) {
		t.Error("drifted bag compared equal")
	}
}
