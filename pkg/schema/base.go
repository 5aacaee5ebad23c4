package schema

// BaseRegistry is the static base-schema registry: human descriptions and
// type refinements for well-known models, merged under live introspection.
type BaseRegistry struct {
	models map[string]map[string]Field
}

// NewBaseRegistry creates an empty registry.
func NewBaseRegistry() *BaseRegistry {
	return &BaseRegistry{models: make(map[string]map[string]Field)}
}

// Register adds or replaces the base fields for a model.
func (r *BaseRegistry) Register(model string, fields map[string]Field) {
	r.models[model] = fields
}

// Fields returns the base field annotations for a model, or nil.
func (r *BaseRegistry) Fields(model string) map[string]Field {
	return r.models[model]
}

// Models lists the models the registry annotates.
func (r *BaseRegistry) Models() []string {
	out := make([]string, 0, len(r.models))
	for m := range r.models {
		out = append(out, m)
	}
	sortStrings(out)
	return out
}

// DefaultBaseRegistry returns annotations for the core models every
// deployment carries. Live introspection always overrides the type and
// required/readonly flags; these entries only supply descriptions, relation
// hints, and selection enums the server does not expose.
func DefaultBaseRegistry() *BaseRegistry {
	r := NewBaseRegistry()

	r.Register("res.partner", map[string]Field{
		"name":       {Name: "name", Type: "char", Description: "Contact or company name"},
		"email":      {Name: "email", Type: "char", Description: "Primary email address"},
		"phone":      {Name: "phone", Type: "char", Description: "Primary phone number"},
		"is_company": {Name: "is_company", Type: "boolean", Description: "Whether the partner is a company rather than an individual"},
		"parent_id":  {Name: "parent_id", Type: "many2one", Relation: "res.partner", Description: "Parent company"},
		"category_id": {
			Name: "category_id", Type: "many2many", Relation: "res.partner.category",
			Description: "Partner tags",
		},
		"company_type": {
			Name: "company_type", Type: "selection",
			Selection:   [][2]string{{"person", "Individual"}, {"company", "Company"}},
			Description: "Kind of partner record",
		},
	})

	r.Register("res.users", map[string]Field{
		"login":      {Name: "login", Type: "char", Description: "Login name used for authentication"},
		"partner_id": {Name: "partner_id", Type: "many2one", Relation: "res.partner", Description: "Related partner record"},
		"groups_id":  {Name: "groups_id", Type: "many2many", Relation: "res.groups", Description: "Access groups"},
		"active":     {Name: "active", Type: "boolean", Description: "Archived users keep their history but cannot log in"},
	})

	r.Register("res.groups", map[string]Field{
		"name":  {Name: "name", Type: "char", Description: "Group name"},
		"users": {Name: "users", Type: "many2many", Relation: "res.users", Description: "Group members"},
		"category_id": {
			Name: "category_id", Type: "many2one", Relation: "ir.module.category",
			Description: "Application this group belongs to",
		},
	})

	r.Register("ir.model", map[string]Field{
		"model":     {Name: "model", Type: "char", Description: "Technical model name (dotted)"},
		"name":      {Name: "name", Type: "char", Description: "Human model name"},
		"transient": {Name: "transient", Type: "boolean", Description: "Whether records are periodically vacuumed"},
		"state": {
			Name: "state", Type: "selection",
			Selection:   [][2]string{{"manual", "Custom Object"}, {"base", "Base Object"}},
			Description: "Origin of the model definition",
		},
	})

	r.Register("ir.model.fields", map[string]Field{
		"name":     {Name: "name", Type: "char", Description: "Technical field name"},
		"ttype":    {Name: "ttype", Type: "selection", Description: "Field type"},
		"relation": {Name: "relation", Type: "char", Description: "Comodel for relational fields"},
		"required": {Name: "required", Type: "boolean", Description: "Whether a value is mandatory"},
		"readonly": {Name: "readonly", Type: "boolean", Description: "Whether the field rejects writes"},
		"store":    {Name: "store", Type: "boolean", Description: "Whether the field is persisted in the database"},
	})

	return r
}
