// Package registry holds the descriptors of every model mounted in this process.
// Names are compared case-insensitively and entries are never removed.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/schema"
)

// Registry maps lower-cased model names to descriptors.
type Registry struct {
	mu sync.RWMutex

	// descriptors by lower-cased name
	models map[string]convention.Descriptor

	// tables to model names
	tables map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		models: make(map[string]convention.Descriptor),
		tables: make(map[string]string),
	}
}

// Check reports a duplicate-model validation error if name is taken.
func (r *Registry) Check(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.check(name)
}

func (r *Registry) check(name string) error {
	key := strings.ToLower(name)
	if existing, ok := r.models[key]; ok {
		return schema.DuplicateModel(name, existing.Name)
	}
	if owner, ok := r.tables[key]; ok {
		return schema.DuplicateModel(name, owner)
	}
	return nil
}

// Register commits a descriptor. It fails with schema.ErrDuplicateModel if
// the name or the table is already claimed.
func (r *Registry) Register(d convention.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(d.Name); err != nil {
		return err
	}
	if owner, ok := r.tables[d.Table]; ok {
		return schema.DuplicateModel(d.Name, owner)
	}

	r.models[strings.ToLower(d.Name)] = d
	r.tables[d.Table] = d.Name

	return nil
}

// Get returns a descriptor by name, ignoring case.
func (r *Registry) Get(name string) (convention.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.models[strings.ToLower(name)]
	return d, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all descriptors sorted by table name.
func (r *Registry) List() []convention.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]convention.Descriptor, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Table < out[j].Table
	})

	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}
