package schema

// Introspection types for exposing registered model metadata via REST API.
// They let clients discover generated models, fields, and endpoints at runtime.

// ModelListResponse is returned by GET /rest/models
type ModelListResponse struct {
	Models []ModelSummary `json:"models"`
	Count  int            `json:"count"`
}

// ModelSummary provides a brief overview of a registered model.
type ModelSummary struct {
	Name     string `json:"name"`
	Table    string `json:"table"`
	Endpoint string `json:"endpoint"`
	Fields   int    `json:"fields"`
}

// ModelSchemaResponse is returned by GET /_schema/{model}
type ModelSchemaResponse struct {
	Model      string           `json:"model"`
	Table      string           `json:"table"`
	PrimaryKey string           `json:"primary_key"`
	Fields     []FieldSchema    `json:"fields"`
	Endpoints  []EndpointSchema `json:"endpoints"`
}

// FieldSchema describes a resolved field for introspection.
type FieldSchema struct {
	Name       string `json:"name"`
	Type       Kind   `json:"type"`
	GoType     string `json:"go_type"`
	Required   bool   `json:"required"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Implicit   bool   `json:"implicit,omitempty"` // auto-generated id
	Searchable bool   `json:"searchable,omitempty"`
	ForeignKey string `json:"foreign_key,omitempty"`
	Default    *Value `json:"default,omitempty"`
	SQLType    string `json:"sql_type,omitempty"` // for tooling
}

// EndpointSchema describes a generated HTTP endpoint.
type EndpointSchema struct {
	Operation string `json:"operation"`
	Method    string `json:"method"`
	Path      string `json:"path"`
}
