package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	channel "github.com/artpar/ondemand/core/channel/http"
	"github.com/artpar/ondemand/core/engine"
	"github.com/artpar/ondemand/core/schema"
	"github.com/artpar/ondemand/pkg/jsonapi"
)

// maxDefinitionBytes bounds registration request bodies.
const maxDefinitionBytes = 1 << 20

// Pinger checks that a dependency is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Routes returns the health routes, relative to their mount point.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Liveness)
	r.Get("/live", h.Liveness)
	r.Get("/ready", h.Readiness)
	return r
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	jsonapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness checks that the database answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			jsonapi.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	jsonapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Registrar registers models at runtime.
type Registrar interface {
	Register(ctx context.Context, def schema.ModelDefinition) (engine.Result, error)
}

// RegistrationHandler serves the /rest endpoints.
type RegistrationHandler struct {
	registrar Registrar
	models    *channel.SchemaHandler
	logger    zerolog.Logger
}

// NewRegistrationHandler creates the handler for model registration and listing.
func NewRegistrationHandler(registrar Registrar, models *channel.SchemaHandler, logger zerolog.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		registrar: registrar,
		models:    models,
		logger:    logger,
	}
}

// Routes returns the /rest routes.
func (h *RegistrationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate-rest-api", h.Generate)
	r.Get("/models", h.models.ListModels)
	return r
}

// Generate handles POST /rest/generate-rest-api.
func (h *RegistrationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	def, err := decodeDefinition(w, r)
	if err != nil {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "invalid_definition", "Bad Request").
			Detail(err.Error()).
			Build())
		return
	}

	res, err := h.registrar.Register(r.Context(), def)
	if err != nil {
		h.writeError(w, def, err)
		return
	}

	jsonapi.WriteJSON(w, http.StatusCreated, res)
}

func (h *RegistrationHandler) writeError(w http.ResponseWriter, def schema.ModelDefinition, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		b := jsonapi.NewError(http.StatusBadRequest, verr.Code(), "Validation Failed").Detail(verr.Detail)
		if verr.Field != "" {
			b = b.Meta("field", verr.Field)
		}
		jsonapi.WriteError(w, b.Build())
		return
	}

	h.logger.Error().Err(err).Str("model", def.Name).Msg("model registration failed")
	jsonapi.WriteInternalError(w, err.Error())
}

// decodeDefinition reads a model definition body, rejecting trailing data.
func decodeDefinition(w http.ResponseWriter, r *http.Request) (schema.ModelDefinition, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionBytes))
	if err != nil {
		return schema.ModelDefinition{}, err
	}

	var def schema.ModelDefinition
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&def); err != nil {
		return schema.ModelDefinition{}, errors.New("request body must be a model definition object")
	}
	if dec.More() {
		return schema.ModelDefinition{}, errors.New("request body must contain a single JSON object")
	}
	return def, nil
}
