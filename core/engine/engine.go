// Package engine coordinates model registration and startup discovery.
//
// A registration validates a definition, derives its descriptor, applies the
// table, mounts the generated endpoints and commits the descriptor, all under a
// single mutex. The artifact pair and the manifest entry are written afterwards
// so that a later process can mount the same model again.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	channel "github.com/artpar/ondemand/core/channel/http"
	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/registry"
	"github.com/artpar/ondemand/core/schema"
	"github.com/artpar/ondemand/core/storage"
	"github.com/artpar/ondemand/ports"
)

// Registration and discovery outcomes reported to metrics.
const (
	ResultCreated      = "created"
	ResultInvalid      = "invalid"
	ResultSchemaError  = "schema_error"
	ResultMountError   = "mount_error"
	ResultPersistError = "persist_error"
	ResultError        = "error"

	ResultMounted = "mounted"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// SchemaApplier creates and verifies the table of a descriptor.
type SchemaApplier interface {
	Apply(ctx context.Context, desc convention.Descriptor) error
}

// Deps holds the collaborators of an Engine.
type Deps struct {
	Registry  *registry.Registry
	Applier   SchemaApplier
	Records   channel.Records
	Mounter   ports.Mounter
	Artifacts ports.ArtifactStore
	Manifest  ports.Manifest
	Metrics   ports.EngineMetrics
	Logger    zerolog.Logger

	// Reserved lists names that cannot be used as models because the host
	// router already serves their prefix.
	Reserved []string
}

// Engine registers models at runtime and re-mounts them at startup.
type Engine struct {
	mu sync.Mutex

	registry  *registry.Registry
	applier   SchemaApplier
	records   channel.Records
	mounter   ports.Mounter
	artifacts ports.ArtifactStore
	manifest  ports.Manifest
	metrics   ports.EngineMetrics
	logger    zerolog.Logger
	reserved  []string
}

// Result is returned by a successful registration.
type Result struct {
	Message      string   `json:"message"`
	Endpoint     string   `json:"endpoints"`
	FilesCreated []string `json:"files_created"`
}

// PersistError reports a model that is live but whose artifacts were not
// fully written. It will not be mounted again after a restart.
type PersistError struct {
	Model string
	Step  string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("model %s is mounted but %s failed: %v", e.Model, e.Step, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// MountError reports a route group the router refused.
type MountError struct {
	Prefix string
	Err    error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mount %s: %v", e.Prefix, e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// New creates an engine. Registry, Applier, Records and Mounter are required.
func New(deps Deps) *Engine {
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopEngineMetrics{}
	}

	return &Engine{
		registry:  deps.Registry,
		applier:   deps.Applier,
		records:   deps.Records,
		mounter:   deps.Mounter,
		artifacts: deps.Artifacts,
		manifest:  deps.Manifest,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "engine").Logger(),
		reserved:  deps.Reserved,
	}
}

// Registry returns the descriptor registry the engine commits to.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Register creates a model from its definition and mounts its endpoints.
//
// Validation failures are *schema.ValidationError. Table failures are
// *storage.SchemaApplyError and leave nothing registered. A *PersistError means
// the endpoints are live but the model will not be rediscovered on restart.
func (e *Engine) Register(ctx context.Context, def schema.ModelDefinition) (Result, error) {
	desc, err := e.register(ctx, def)
	if err != nil {
		e.metrics.RegistrationObserved(resultOf(err))
		return Result{}, err
	}

	res := Result{
		Message:  fmt.Sprintf("Model %s created successfully", desc.Name),
		Endpoint: desc.Prefix,
	}

	files, err := e.persist(ctx, desc)
	res.FilesCreated = files
	if err != nil {
		e.logger.Error().Err(err).Str("model", desc.Name).Msg("model will not survive restart")
		e.metrics.RegistrationObserved(ResultPersistError)
		return res, err
	}

	e.metrics.RegistrationObserved(ResultCreated)
	e.logger.Info().
		Str("model", desc.Name).
		Str("table", desc.Table).
		Strs("files", files).
		Msg("model registered")

	return res, nil
}

// register runs validation through registry commit under the engine lock.
func (e *Engine) register(ctx context.Context, def schema.ModelDefinition) (convention.Descriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := schema.Validate(def, e.reserved...); err != nil {
		return convention.Descriptor{}, err
	}
	if err := e.registry.Check(def.Name); err != nil {
		return convention.Descriptor{}, err
	}

	desc, err := convention.Derive(def)
	if err != nil {
		return convention.Descriptor{}, err
	}

	if err := e.mountLocked(ctx, desc); err != nil {
		return convention.Descriptor{}, err
	}

	return desc, nil
}

// mountLocked applies, mounts and commits a descriptor. Callers hold e.mu.
func (e *Engine) mountLocked(ctx context.Context, desc convention.Descriptor) error {
	if err := e.applier.Apply(ctx, desc); err != nil {
		return err
	}

	group := channel.Generate(desc, e.records, e.logger)
	if err := e.mounter.Mount(group); err != nil {
		e.logger.Error().
			Err(err).
			Str("model", desc.Name).
			Str("table", desc.Table).
			Msg("table created but endpoints could not be mounted")
		return &MountError{Prefix: group.Prefix, Err: err}
	}

	if err := e.registry.Register(desc); err != nil {
		return err
	}

	e.metrics.ModelsMounted(e.registry.Len())
	return nil
}

// persist writes the artifact pair and appends the manifest entry.
func (e *Engine) persist(ctx context.Context, desc convention.Descriptor) ([]string, error) {
	if e.artifacts == nil {
		return []string{}, nil
	}

	files, err := e.artifacts.Save(ctx, ports.NewArtifact(desc))
	if err != nil {
		return files, &PersistError{Model: desc.Name, Step: "artifact write", Err: err}
	}

	if e.manifest != nil {
		if err := e.manifest.Append(ctx, desc.Table); err != nil {
			return files, &PersistError{Model: desc.Name, Step: "manifest append", Err: err}
		}
	}

	return files, nil
}

// resultOf classifies a registration failure.
func resultOf(err error) string {
	var verr *schema.ValidationError
	var aerr *storage.SchemaApplyError
	var merr *MountError

	switch {
	case errors.As(err, &verr):
		return ResultInvalid
	case errors.As(err, &aerr):
		return ResultSchemaError
	case errors.As(err, &merr):
		return ResultMountError
	default:
		return ResultError
	}
}
