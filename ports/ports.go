// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"net/http"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/schema"
)

// -----------------------------------------------------------------------------
// Router Ports
// -----------------------------------------------------------------------------

// Route is one generated endpoint.
type Route struct {
	Method  string
	Pattern string // relative to the group prefix, e.g. "/" or "/{id}"
	Handler http.HandlerFunc
}

// RouteGroup is the set of endpoints generated for one model.
type RouteGroup struct {
	Name   string
	Prefix string
	Routes []Route
}

// Mounter attaches route groups to the live router.
// Mounting is append-only; a prefix can be mounted once.
type Mounter interface {
	Mount(group RouteGroup) error
}

// ErrPrefixMounted is returned when a group prefix is already served.
var ErrPrefixMounted = errors.New("prefix already mounted")

// -----------------------------------------------------------------------------
// Artifact Ports
// -----------------------------------------------------------------------------

// ErrArtifactNotFound is returned when no artifact exists for a name.
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore persists the generated model and API descriptions.
// Keys are lower-cased model names.
type ArtifactStore interface {
	// Save writes both parts of an artifact and returns where they were written.
	Save(ctx context.Context, a Artifact) ([]string, error)

	// Load reads an artifact by model name.
	Load(ctx context.Context, name string) (Artifact, error)

	// Names lists stored artifact keys in sorted order.
	Names(ctx context.Context) ([]string, error)
}

// Manifest is the append-only list of model names mounted at startup.
type Manifest interface {
	// Append records a model name.
	Append(ctx context.Context, name string) error

	// Names returns the recorded names in append order.
	Names(ctx context.Context) ([]string, error)
}

// -----------------------------------------------------------------------------
// Artifacts
// -----------------------------------------------------------------------------

// Artifact is the persisted pair describing a generated model.
type Artifact struct {
	Model ModelArtifact
	API   APIArtifact
}

// Key returns the storage key of the artifact.
func (a Artifact) Key() string {
	return a.Model.Table
}

// ModelArtifact is the content of model.yaml.
type ModelArtifact struct {
	Definition schema.ModelDefinition `yaml:"definition" json:"definition"`
	Table      string                 `yaml:"table" json:"table"`
	PrimaryKey string                 `yaml:"primary_key" json:"primary_key"`
	Fields     []FieldArtifact        `yaml:"fields" json:"fields"`
}

// FieldArtifact is a resolved field listing entry.
type FieldArtifact struct {
	Name       string      `yaml:"name" json:"name"`
	Kind       schema.Kind `yaml:"kind" json:"kind"`
	Nullable   bool        `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Default    string      `yaml:"default,omitempty" json:"default,omitempty"`
	PrimaryKey bool        `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	Implicit   bool        `yaml:"implicit,omitempty" json:"implicit,omitempty"`
	ForeignKey string      `yaml:"foreign_key,omitempty" json:"foreign_key,omitempty"`
}

// APIArtifact is the content of api.yaml.
type APIArtifact struct {
	Model     string                `yaml:"model" json:"model"`
	Prefix    string                `yaml:"prefix" json:"prefix"`
	Endpoints []convention.Endpoint `yaml:"endpoints" json:"endpoints"`
}

// NewArtifact builds the artifact pair for a descriptor.
func NewArtifact(d convention.Descriptor) Artifact {
	fields := make([]FieldArtifact, len(d.Fields))
	for i, f := range d.Fields {
		fa := FieldArtifact{
			Name:       f.Name,
			Kind:       f.Kind,
			Nullable:   f.Nullable,
			PrimaryKey: f.PrimaryKey,
			Implicit:   f.Implicit,
			ForeignKey: f.ForeignKey,
		}
		if f.Default != nil {
			fa.Default = f.Default.Text()
		}
		fields[i] = fa
	}

	return Artifact{
		Model: ModelArtifact{
			Definition: d.Source,
			Table:      d.Table,
			PrimaryKey: d.Key().Name,
			Fields:     fields,
		},
		API: APIArtifact{
			Model:     d.Name,
			Prefix:    d.Prefix,
			Endpoints: d.Endpoints(),
		},
	}
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// EngineMetrics receives registration and discovery outcomes.
type EngineMetrics interface {
	RegistrationObserved(result string)
	DiscoveryObserved(result string)
	ModelsMounted(n int)
}

// NopEngineMetrics discards all observations.
type NopEngineMetrics struct{}

func (NopEngineMetrics) RegistrationObserved(string) {}
func (NopEngineMetrics) DiscoveryObserved(string)    {}
func (NopEngineMetrics) ModelsMounted(int)           {}
