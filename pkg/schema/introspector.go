// Package schema fetches and caches model and field metadata from the ERP
// and merges it with static base-schema annotations for well-known models.
package schema

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/odrift/odrift/pkg/rpc"
)

// Model describes a server-side model.
type Model struct {
	ID        int64    `json:"id"`
	Model     string   `json:"model"`
	Name      string   `json:"name"`
	Transient bool     `json:"transient"`
	Modules   []string `json:"modules,omitempty"`
	State     string   `json:"state,omitempty"`
}

// Field describes one typed field of a model.
type Field struct {
	Name          string      `json:"name"`
	Type          string      `json:"ttype"`
	Required      bool        `json:"required"`
	ReadOnly      bool        `json:"readonly"`
	Relation      string      `json:"relation,omitempty"`
	RelationField string      `json:"relation_field,omitempty"`
	Selection     [][2]string `json:"selection,omitempty"`
	Store         bool        `json:"store"`
	Compute       string      `json:"compute,omitempty"`
	Help          string      `json:"help,omitempty"`
	Description   string      `json:"description,omitempty"`
}

// ModelMetadata is the merged view of a model's live fields and base
// annotations. BaseFields and LiveFields are kept for debugging the merge.
type ModelMetadata struct {
	Model      string           `json:"model"`
	Fields     map[string]Field `json:"fields"`
	BaseFields []string         `json:"base_fields,omitempty"`
	LiveFields []string         `json:"live_fields,omitempty"`
}

// GetModelsOptions refine a GetModels call.
type GetModelsOptions struct {
	IncludeTransient bool
	Modules          []string
	BypassCache      bool
}

// GetFieldsOptions refine a GetFields call.
type GetFieldsOptions struct {
	BypassCache bool
}

// DefaultCacheTTL is how long cached metadata stays valid.
const DefaultCacheTTL = 10 * time.Minute

// Introspector caches model definitions fetched over RPC. The cache is
// single-writer per session: writes happen only on miss.
type Introspector struct {
	client rpc.Client
	base   *BaseRegistry
	logger zerolog.Logger
	ttl    time.Duration

	mu     sync.RWMutex
	models *modelsEntry
	fields map[string]*fieldsEntry
}

type modelsEntry struct {
	models    []Model
	fetchedAt time.Time
}

type fieldsEntry struct {
	fields    []Field
	fetchedAt time.Time
}

// IntrospectorOption configures an Introspector.
type IntrospectorOption func(*Introspector)

// WithCacheTTL overrides the metadata cache TTL.
func WithCacheTTL(ttl time.Duration) IntrospectorOption {
	return func(i *Introspector) { i.ttl = ttl }
}

// WithLogger sets the introspector logger.
func WithLogger(logger zerolog.Logger) IntrospectorOption {
	return func(i *Introspector) {
		i.logger = logger.With().Str("component", "introspector").Logger()
	}
}

// WithBaseRegistry overrides the static base-schema registry.
func WithBaseRegistry(base *BaseRegistry) IntrospectorOption {
	return func(i *Introspector) { i.base = base }
}

// NewIntrospector creates an introspector bound to an authenticated client.
func NewIntrospector(client rpc.Client, opts ...IntrospectorOption) *Introspector {
	i := &Introspector{
		client: client,
		base:   DefaultBaseRegistry(),
		logger: zerolog.Nop(),
		ttl:    DefaultCacheTTL,
		fields: make(map[string]*fieldsEntry),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GetModels returns the model descriptors known to the server.
func (i *Introspector) GetModels(ctx context.Context, opts GetModelsOptions) ([]Model, error) {
	if !opts.BypassCache {
		i.mu.RLock()
		entry := i.models
		i.mu.RUnlock()
		if entry != nil && time.Since(entry.fetchedAt) < i.ttl {
			return filterModels(entry.models, opts), nil
		}
	}

	records, err := i.client.SearchRead(ctx, "ir.model", rpc.Domain{}, rpc.SearchReadOptions{
		Fields: []string{"id", "model", "name", "transient", "modules", "state"},
		Order:  "model asc",
	})
	if err != nil {
		return nil, err
	}

	models := make([]Model, 0, len(records))
	for _, rec := range records {
		models = append(models, modelFromRecord(rec))
	}

	i.mu.Lock()
	i.models = &modelsEntry{models: models, fetchedAt: time.Now()}
	i.mu.Unlock()

	i.logger.Debug().Int("count", len(models)).Msg("model metadata refreshed")
	return filterModels(models, opts), nil
}

// GetFields returns the field descriptors of one model.
func (i *Introspector) GetFields(ctx context.Context, model string, opts GetFieldsOptions) ([]Field, error) {
	if model == "" {
		return nil, rpc.NewInvalidInputError("model name is empty")
	}

	if !opts.BypassCache {
		i.mu.RLock()
		entry := i.fields[model]
		i.mu.RUnlock()
		if entry != nil && time.Since(entry.fetchedAt) < i.ttl {
			return entry.fields, nil
		}
	}

	raw, err := i.client.Call(ctx, model, "fields_get", nil, rpc.ValueMap{
		"attributes": []string{
			"type", "required", "readonly", "relation", "relation_field",
			"selection", "store", "compute", "help", "string",
		},
	})
	if err != nil {
		return nil, err
	}

	fieldsByName, ok := raw.(map[string]interface{})
	if !ok {
		return nil, rpc.NewProtocolError("fields_get returned unexpected shape", nil).WithModel(model)
	}

	fields := make([]Field, 0, len(fieldsByName))
	for name, def := range fieldsByName {
		attrs, ok := def.(map[string]interface{})
		if !ok {
			continue
		}
		fields = append(fields, fieldFromAttrs(name, attrs))
	}
	sortFields(fields)

	i.mu.Lock()
	i.fields[model] = &fieldsEntry{fields: fields, fetchedAt: time.Now()}
	i.mu.Unlock()

	i.logger.Debug().Str("model", model).Int("count", len(fields)).Msg("field metadata refreshed")
	return fields, nil
}

// GetModelMetadata returns a model's fields merged with base-schema
// annotations. Base metadata provides defaults; live introspection overrides
// the type and the required/readonly flags.
func (i *Introspector) GetModelMetadata(ctx context.Context, model string, opts GetFieldsOptions) (*ModelMetadata, error) {
	live, err := i.GetFields(ctx, model, opts)
	if err != nil {
		return nil, err
	}

	meta := &ModelMetadata{
		Model:  model,
		Fields: make(map[string]Field, len(live)),
	}

	baseFields := i.base.Fields(model)
	for name, bf := range baseFields {
		meta.Fields[name] = bf
		meta.BaseFields = append(meta.BaseFields, name)
	}
	sortStrings(meta.BaseFields)

	for _, lf := range live {
		merged := lf
		if bf, ok := meta.Fields[lf.Name]; ok {
			// Base supplies the description and selection refinements the
			// server does not carry; live wins on type and flags.
			if merged.Description == "" {
				merged.Description = bf.Description
			}
			if len(merged.Selection) == 0 {
				merged.Selection = bf.Selection
			}
			if merged.Relation == "" {
				merged.Relation = bf.Relation
			}
		}
		meta.Fields[lf.Name] = merged
		meta.LiveFields = append(meta.LiveFields, lf.Name)
	}

	return meta, nil
}

// InvalidateCache drops all cached metadata.
func (i *Introspector) InvalidateCache() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.models = nil
	i.fields = make(map[string]*fieldsEntry)
}

func filterModels(models []Model, opts GetModelsOptions) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if m.Transient && !opts.IncludeTransient {
			continue
		}
		if len(opts.Modules) > 0 && !intersects(m.Modules, opts.Modules) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func intersects(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

func modelFromRecord(rec rpc.Record) Model {
	m := Model{}
	if id, ok := rpc.AsInt(rec["id"]); ok {
		m.ID = id
	}
	if s, ok := rec["model"].(string); ok {
		m.Model = s
	}
	if s, ok := rec["name"].(string); ok {
		m.Name = s
	}
	if b, ok := rec["transient"].(bool); ok {
		m.Transient = b
	}
	if s, ok := rec["state"].(string); ok {
		m.State = s
	}
	// modules reads back as a comma-separated string.
	if s, ok := rec["modules"].(string); ok && s != "" {
		m.Modules = splitCSV(s)
	}
	return m
}

func fieldFromAttrs(name string, attrs map[string]interface{}) Field {
	f := Field{Name: name}
	if s, ok := attrs["type"].(string); ok {
		f.Type = s
	}
	if b, ok := attrs["required"].(bool); ok {
		f.Required = b
	}
	if b, ok := attrs["readonly"].(bool); ok {
		f.ReadOnly = b
	}
	if s, ok := attrs["relation"].(string); ok {
		f.Relation = s
	}
	if s, ok := attrs["relation_field"].(string); ok {
		f.RelationField = s
	}
	if b, ok := attrs["store"].(bool); ok {
		f.Store = b
	}
	if s, ok := attrs["compute"].(string); ok {
		f.Compute = s
	}
	if s, ok := attrs["help"].(string); ok {
		f.Help = s
	}
	if s, ok := attrs["string"].(string); ok {
		f.Description = s
	}
	if sel, ok := attrs["selection"].([]interface{}); ok {
		for _, pair := range sel {
			p, ok := pair.([]interface{})
			if !ok || len(p) != 2 {
				continue
			}
			key, _ := p[0].(string)
			label, _ := p[1].(string)
			f.Selection = append(f.Selection, [2]string{key, label})
		}
	}
	return f
}

func sortFields(fields []Field) {
	sort.Slice(fields, func(a, b int) bool { return fields[a].Name < fields[b].Name })
}

func sortStrings(s []string) {
	sort.Strings(s)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
