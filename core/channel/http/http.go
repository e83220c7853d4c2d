// Package http generates the REST endpoints of a registered model.
// Each model gets create, list, get, update and delete routes under its prefix.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/query"
	"github.com/artpar/ondemand/core/schema"
	"github.com/artpar/ondemand/core/storage"
	"github.com/artpar/ondemand/pkg/jsonapi"
	"github.com/artpar/ondemand/ports"
)

// maxBodyBytes bounds create and update request bodies.
const maxBodyBytes = 1 << 20

// Records performs record operations for a descriptor.
type Records interface {
	Create(ctx context.Context, desc convention.Descriptor, input map[string]any) (schema.Record, error)
	Get(ctx context.Context, desc convention.Descriptor, key schema.Value) (schema.Record, error)
	Update(ctx context.Context, desc convention.Descriptor, key schema.Value, input map[string]any) (schema.Record, error)
	Delete(ctx context.Context, desc convention.Descriptor, key schema.Value) error
	List(ctx context.Context, desc convention.Descriptor, params query.Params) (query.Page, error)
}

// Channel serves the generated endpoints of one model.
type Channel struct {
	desc   convention.Descriptor
	store  Records
	logger zerolog.Logger
}

// Generate builds the route group for a descriptor.
func Generate(desc convention.Descriptor, store Records, logger zerolog.Logger) ports.RouteGroup {
	c := &Channel{
		desc:   desc,
		store:  store,
		logger: logger.With().Str("model", desc.Name).Logger(),
	}

	return ports.RouteGroup{
		Name:   desc.Name,
		Prefix: desc.Prefix,
		Routes: []ports.Route{
			{Method: http.MethodPost, Pattern: "/", Handler: c.handleCreate},
			{Method: http.MethodGet, Pattern: "/", Handler: c.handleList},
			{Method: http.MethodGet, Pattern: "/{id}", Handler: c.handleGet},
			{Method: http.MethodPut, Pattern: "/{id}", Handler: c.handleUpdate},
			{Method: http.MethodPatch, Pattern: "/{id}", Handler: c.handleUpdate},
			{Method: http.MethodDelete, Pattern: "/{id}", Handler: c.handleDelete},
		},
	}
}

// handleCreate handles POST requests for creating records.
func (c *Channel) handleCreate(w http.ResponseWriter, r *http.Request) {
	input, err := decodeObject(w, r)
	if err != nil {
		jsonapi.WriteBadRequest(w, err.Error())
		return
	}

	rec, err := c.store.Create(r.Context(), c.desc, input)
	if err != nil {
		c.writeError(w, "create", err)
		return
	}

	jsonapi.WriteJSON(w, http.StatusCreated, rec)
}

// handleList handles GET requests for listing records.
func (c *Channel) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := query.Parse(r.URL.Query())
	if err != nil {
		c.writeError(w, "list", err)
		return
	}

	page, err := c.store.List(r.Context(), c.desc, params)
	if err != nil {
		c.writeError(w, "list", err)
		return
	}

	jsonapi.WriteJSON(w, http.StatusOK, page)
}

// handleGet handles GET requests for a single record.
func (c *Channel) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := storage.ParseKey(c.desc, chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, "get", err)
		return
	}

	rec, err := c.store.Get(r.Context(), c.desc, key)
	if err != nil {
		c.writeError(w, "get", err)
		return
	}

	jsonapi.WriteJSON(w, http.StatusOK, rec)
}

// handleUpdate handles PUT/PATCH requests for updating records.
func (c *Channel) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key, err := storage.ParseKey(c.desc, chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, "update", err)
		return
	}

	input, err := decodeObject(w, r)
	if err != nil {
		jsonapi.WriteBadRequest(w, err.Error())
		return
	}

	rec, err := c.store.Update(r.Context(), c.desc, key, input)
	if err != nil {
		c.writeError(w, "update", err)
		return
	}

	jsonapi.WriteJSON(w, http.StatusOK, rec)
}

// handleDelete handles DELETE requests.
func (c *Channel) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := storage.ParseKey(c.desc, chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, "delete", err)
		return
	}

	if err := c.store.Delete(r.Context(), c.desc, key); err != nil {
		c.writeError(w, "delete", err)
		return
	}

	jsonapi.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Item deleted successfully",
	})
}

// writeError maps record and query errors to responses.
func (c *Channel) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		jsonapi.WriteNotFound(w, "Item not found")
	case errors.Is(err, storage.ErrInvalidRecord), errors.Is(err, storage.ErrInvalidKey):
		jsonapi.WriteBadRequest(w, err.Error())
	case errors.Is(err, query.ErrInvalidPagination):
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("invalid_pagination", "page", err.Error()))
	case errors.Is(err, query.ErrInvalidSortOrder):
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("invalid_sort_order", "sort_order", err.Error()))
	case errors.Is(err, query.ErrInvalidFilterFormat):
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("invalid_filter_format", "filter", err.Error()))
	case errors.Is(err, query.ErrInvalidFilterField):
		jsonapi.WriteError(w, jsonapi.ErrInvalidParameter("invalid_filter_field", "filter", err.Error()))
	default:
		c.logger.Error().Err(err).Str("op", op).Msg("record operation failed")
		jsonapi.WriteInternalError(w, err.Error())
	}
}

// decodeObject reads a JSON object body, keeping numbers as json.Number.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var input map[string]any
	if err := dec.Decode(&input); err != nil || input == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return input, nil
}
