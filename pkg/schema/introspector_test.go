package schema

import (
	"context"
	"testing"
	"time"

	"github.com/odrift/odrift/pkg/rpc"
)

// metaClient serves scripted introspection answers and counts round-trips.
type metaClient struct {
	rpc.Client

	modelRecords []rpc.Record
	fieldsGet    map[string]interface{}

	searchReads int
	calls       int
}

func (m *metaClient) SearchRead(ctx context.Context, model string, domain rpc.Domain, opts rpc.SearchReadOptions) ([]rpc.Record, error) {
	m.searchReads++
	if model != "ir.model" {
		return nil, rpc.NewInvalidInputError("unexpected model " + model)
	}
	return m.modelRecords, nil
}

func (m *metaClient) Call(ctx context.Context, model, method string, args []interface{}, kwargs rpc.ValueMap) (interface{}, error) {
	m.calls++
	if method != "fields_get" {
		return nil, rpc.NewInvalidInputError("unexpected method " + method)
	}
	return m.fieldsGet, nil
}

func partnerFieldsGet() map[string]interface{} {
	return map[string]interface{}{
		"name": map[string]interface{}{
			"type": "char", "required": true, "store": true, "string": "Name",
		},
		"parent_id": map[string]interface{}{
			"type": "many2one", "relation": "res.partner", "store": true,
		},
		"display_name": map[string]interface{}{
			"type": "char", "readonly": true, "compute": "_compute_display_name",
		},
		"company_type": map[string]interface{}{
			"type": "selection", "store": false,
			"selection": []interface{}{
				[]interface{}{"person", "Individual"},
				[]interface{}{"company", "Company"},
			},
		},
	}
}

func TestGetModelsFiltersAndCaches(t *testing.T) {
	client := &metaClient{
		modelRecords: []rpc.Record{
			{"id": float64(1), "model": "res.partner", "name": "Contact", "transient": false, "modules": "base, contacts"},
			{"id": float64(2), "model": "res.config.settings", "name": "Settings", "transient": true, "modules": "base"},
			{"id": float64(3), "model": "sale.order", "name": "Sales Order", "transient": false, "modules": "sale"},
		},
	}
	intr := NewIntrospector(client)
	ctx := context.Background()

	models, err := intr.GetModels(ctx, GetModelsOptions{})
	if err != nil {
		t.Fatalf("GetModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("transient model not filtered: %v", models)
	}
	if models[0].Model != "res.partner" || models[0].Modules[1] != "contacts" {
		t.Errorf("model record = %+v", models[0])
	}

	withTransient, err := intr.GetModels(ctx, GetModelsOptions{IncludeTransient: true})
	if err != nil {
		t.Fatalf("GetModels failed: %v", err)
	}
	if len(withTransient) != 3 {
		t.Errorf("transient filter stuck on: %v", withTransient)
	}

	byModule, err := intr.GetModels(ctx, GetModelsOptions{Modules: []string{"sale"}})
	if err != nil {
		t.Fatalf("GetModels failed: %v", err)
	}
	if len(byModule) != 1 || byModule[0].Model != "sale.order" {
		t.Errorf("module filter = %v", byModule)
	}

	// Three reads, one fetch.
	if client.searchReads != 1 {
		t.Errorf("server round-trips = %d, want 1", client.searchReads)
	}
}

func TestGetModelsCacheExpiry(t *testing.T) {
	client := &metaClient{modelRecords: []rpc.Record{
		{"id": float64(1), "model": "res.partner", "name": "Contact"},
	}}
	intr := NewIntrospector(client, WithCacheTTL(time.Nanosecond))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := intr.GetModels(ctx, GetModelsOptions{}); err != nil {
			t.Fatalf("GetModels failed: %v", err)
		}
		time.Sleep(time.Microsecond)
	}
	if client.searchReads != 2 {
		t.Errorf("expired cache served a stale entry: %d round-trips", client.searchReads)
	}
}

func TestGetModelsBypassCache(t *testing.T) {
	client := &metaClient{modelRecords: []rpc.Record{
		{"id": float64(1), "model": "res.partner", "name": "Contact"},
	}}
	intr := NewIntrospector(client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := intr.GetModels(ctx, GetModelsOptions{BypassCache: true}); err != nil {
			t.Fatalf("GetModels failed: %v", err)
		}
	}
	if client.searchReads != 2 {
		t.Errorf("bypass still hit the cache: %d round-trips", client.searchReads)
	}
}

func TestGetFieldsParsesAndSorts(t *testing.T) {
	client := &metaClient{fieldsGet: partnerFieldsGet()}
	intr := NewIntrospector(client)

	fields, err := intr.GetFields(context.Background(), "res.partner", GetFieldsOptions{})
	if err != nil {
		t.Fatalf("GetFields failed: %v", err)
	}
	if len(fields) != 4 {
		t.Fatalf("got %d fields", len(fields))
	}
	for i := 1; i < len(fields); i++ {
		if fields[i-1].Name > fields[i].Name {
			t.Fatalf("fields not sorted: %s > %s", fields[i-1].Name, fields[i].Name)
		}
	}

	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	if f := byName["name"]; f.Type != "char" || !f.Required || f.Description != "Name" {
		t.Errorf("name field = %+v", f)
	}
	if f := byName["parent_id"]; f.Relation != "res.partner" {
		t.Errorf("parent_id field = %+v", f)
	}
	if f := byName["display_name"]; !f.ReadOnly || f.Compute == "" {
		t.Errorf("display_name field = %+v", f)
	}
	if f := byName["company_type"]; len(f.Selection) != 2 || f.Selection[0] != [2]string{"person", "Individual"} {
		t.Errorf("company_type selection = %+v", f.Selection)
	}
}

func TestGetFieldsRejectsEmptyModel(t *testing.T) {
	intr := NewIntrospector(&metaClient{})
	_, err := intr.GetFields(context.Background(), "", GetFieldsOptions{})
	if !rpc.IsInvalidInput(err) {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestGetFieldsCachePerModel(t *testing.T) {
	client := &metaClient{fieldsGet: partnerFieldsGet()}
	intr := NewIntrospector(client)
	ctx := context.Background()

	if _, err := intr.GetFields(ctx, "res.partner", GetFieldsOptions{}); err != nil {
		t.Fatalf("GetFields failed: %v", err)
	}
	if _, err := intr.GetFields(ctx, "res.partner", GetFieldsOptions{}); err != nil {
		t.Fatalf("GetFields failed: %v", err)
	}
	if client.calls != 1 {
		t.Errorf("cached model refetched: %d round-trips", client.calls)
	}

	if _, err := intr.GetFields(ctx, "res.users", GetFieldsOptions{}); err != nil {
		t.Fatalf("GetFields failed: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("distinct model served from the wrong cache entry: %d round-trips", client.calls)
	}

	intr.InvalidateCache()
	if _, err := intr.GetFields(ctx, "res.partner", GetFieldsOptions{}); err != nil {
		t.Fatalf("GetFields failed: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("invalidated cache still served: %d round-trips", client.calls)
	}
}

func TestGetModelMetadataMergesBase(t *testing.T) {
	client := &metaClient{fieldsGet: map[string]interface{}{
		// Live omits the description and selection; base supplies them.
		"company_type": map[string]interface{}{"type": "selection", "store": false},
		// Live contradicts base on the readonly flag; live wins.
		"name": map[string]interface{}{"type": "char", "readonly": true, "required": false},
		// Live-only field with no base annotation.
		"vat": map[string]interface{}{"type": "char"},
	}}
	intr := NewIntrospector(client)

	meta, err := intr.GetModelMetadata(context.Background(), "res.partner", GetFieldsOptions{})
	if err != nil {
		t.Fatalf("GetModelMetadata failed: %v", err)
	}

	ct := meta.Fields["company_type"]
	if len(ct.Selection) != 2 {
		t.Errorf("base selection not merged: %+v", ct)
	}
	if ct.Description == "" {
		t.Error("base description not merged")
	}

	name := meta.Fields["name"]
	if !name.ReadOnly {
		t.Error("live readonly flag overridden by base")
	}
	if name.Description != "Contact or company name" {
		t.Errorf("name description = %q", name.Description)
	}

	if _, ok := meta.Fields["vat"]; !ok {
		t.Error("live-only field dropped by the merge")
	}
	// Base-only fields remain visible so callers can warn on unknown fields.
	if _, ok := meta.Fields["email"]; !ok {
		t.Error("base-only field dropped by the merge")
	}
}
