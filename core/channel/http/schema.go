package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/dialect"
	"github.com/artpar/ondemand/core/schema"
	"github.com/artpar/ondemand/pkg/jsonapi"
)

// Lister is the read side of the descriptor registry.
type Lister interface {
	List() []convention.Descriptor
	Get(name string) (convention.Descriptor, bool)
}

// SchemaHandler handles schema introspection requests.
type SchemaHandler struct {
	models  Lister
	dialect dialect.Dialect
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(models Lister, d dialect.Dialect) *SchemaHandler {
	return &SchemaHandler{models: models, dialect: d}
}

// Routes returns a router with all schema routes.
func (h *SchemaHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListModels)
	r.Get("/{name}", h.GetModel)
	return r
}

// ListModels handles GET /rest/models and GET /_schema
func (h *SchemaHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	descs := h.models.List()

	resp := schema.ModelListResponse{
		Models: make([]schema.ModelSummary, 0, len(descs)),
		Count:  len(descs),
	}
	for _, d := range descs {
		resp.Models = append(resp.Models, schema.ModelSummary{
			Name:     d.Name,
			Table:    d.Table,
			Endpoint: d.Prefix,
			Fields:   len(d.Fields),
		})
	}

	jsonapi.WriteJSON(w, http.StatusOK, resp)
}

// GetModel handles GET /_schema/{name}
func (h *SchemaHandler) GetModel(w http.ResponseWriter, r *http.Request) {
	d, ok := h.models.Get(chi.URLParam(r, "name"))
	if !ok {
		jsonapi.WriteNotFound(w, "Model not found")
		return
	}

	jsonapi.WriteJSON(w, http.StatusOK, h.buildModelSchema(d))
}

// buildModelSchema converts a descriptor to its introspection form.
func (h *SchemaHandler) buildModelSchema(d convention.Descriptor) schema.ModelSchemaResponse {
	resp := schema.ModelSchemaResponse{
		Model:      d.Name,
		Table:      d.Table,
		PrimaryKey: d.Key().Name,
		Fields:     make([]schema.FieldSchema, 0, len(d.Fields)),
	}

	for _, f := range d.Fields {
		sqlType := h.dialect.ColumnType(f.Kind)
		if f.PrimaryKey && f.AutoAssigned {
			sqlType = h.dialect.AutoKeyType()
		}
		resp.Fields = append(resp.Fields, schema.FieldSchema{
			Name:       f.Name,
			Type:       f.Kind,
			GoType:     f.Kind.GoType(),
			Required:   !f.Nullable,
			PrimaryKey: f.PrimaryKey,
			Implicit:   f.Implicit,
			Searchable: f.Kind.IsTextual(),
			ForeignKey: f.ForeignKey,
			Default:    f.Default,
			SQLType:    sqlType,
		})
	}

	for _, ep := range d.Endpoints() {
		resp.Endpoints = append(resp.Endpoints, schema.EndpointSchema{
			Operation: ep.Operation,
			Method:    ep.Method,
			Path:      ep.Path,
		})
	}

	return resp
}
