package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/schema"
)

// DiscoveryReport summarizes a startup discovery pass.
type DiscoveryReport struct {
	Mounted []string
	Skipped []string
	Failed  []DiscoveryFailure
}

// DiscoveryFailure is one artifact that could not be mounted.
type DiscoveryFailure struct {
	Name string
	Err  error
}

// OK reports whether every discovered model was mounted or already present.
func (r DiscoveryReport) OK() bool {
	return len(r.Failed) == 0
}

// DiscoverAndMountAll mounts every model named by the manifest or the
// artifact store. Manifest order comes first; names only present in the store
// follow in sorted order. A failing entry is logged and the rest continue, as
// does an unreadable manifest.
func (e *Engine) DiscoverAndMountAll(ctx context.Context) DiscoveryReport {
	var report DiscoveryReport

	names, err := e.discoverNames(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("could not enumerate artifacts")
		report.Failed = append(report.Failed, DiscoveryFailure{Name: "*", Err: err})
		e.metrics.DiscoveryObserved(ResultFailed)
		return report
	}

	for _, name := range names {
		if ctx.Err() != nil {
			report.Failed = append(report.Failed, DiscoveryFailure{Name: name, Err: ctx.Err()})
			continue
		}

		mounted, err := e.mount(ctx, name)
		switch {
		case err != nil:
			e.logger.Error().Err(err).Str("model", name).Msg("skipping model during discovery")
			report.Failed = append(report.Failed, DiscoveryFailure{Name: name, Err: err})
		case mounted:
			report.Mounted = append(report.Mounted, name)
		default:
			report.Skipped = append(report.Skipped, name)
		}
	}

	e.logger.Info().
		Int("mounted", len(report.Mounted)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Msg("model discovery complete")

	return report
}

// Mount discovers and mounts a single stored model. A name that is already
// registered is a no-op.
func (e *Engine) Mount(ctx context.Context, name string) error {
	_, err := e.mount(ctx, name)
	return err
}

// mount loads an artifact and mounts it, reporting whether anything changed.
func (e *Engine) mount(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.Contains(name) {
		e.metrics.DiscoveryObserved(ResultSkipped)
		return false, nil
	}

	desc, err := e.loadDescriptor(ctx, name)
	if err == nil {
		err = e.mountLocked(ctx, desc)
	}
	if err != nil {
		e.metrics.DiscoveryObserved(ResultFailed)
		return false, err
	}

	e.metrics.DiscoveryObserved(ResultMounted)
	e.logger.Info().Str("model", desc.Name).Str("table", desc.Table).Msg("model mounted from artifact")
	return true, nil
}

// loadDescriptor reads an artifact and derives its descriptor again.
func (e *Engine) loadDescriptor(ctx context.Context, name string) (convention.Descriptor, error) {
	if e.artifacts == nil {
		return convention.Descriptor{}, fmt.Errorf("no artifact store configured for %s", name)
	}

	a, err := e.artifacts.Load(ctx, name)
	if err != nil {
		return convention.Descriptor{}, fmt.Errorf("load artifact %s: %w", name, err)
	}

	if !strings.EqualFold(a.Model.Definition.Name, name) {
		return convention.Descriptor{}, fmt.Errorf("artifact %s describes model %q", name, a.Model.Definition.Name)
	}

	if err := schema.Validate(a.Model.Definition, e.reserved...); err != nil {
		return convention.Descriptor{}, fmt.Errorf("artifact %s: %w", name, err)
	}

	desc, err := convention.Derive(a.Model.Definition)
	if err != nil {
		return convention.Descriptor{}, fmt.Errorf("derive %s: %w", name, err)
	}
	return desc, nil
}

// discoverNames merges manifest entries and stored artifact keys.
func (e *Engine) discoverNames(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	add := func(list []string) {
		for _, n := range list {
			key := strings.ToLower(strings.TrimSpace(n))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, key)
		}
	}

	// The store listing alone is enough to discover every model, so an
	// unreadable manifest only costs the registration order.
	if e.manifest != nil {
		list, err := e.manifest.Names(ctx)
		if err != nil {
			e.logger.Warn().Err(err).Msg("could not read manifest, falling back to artifact listing")
		}
		add(list)
	}

	if e.artifacts != nil {
		list, err := e.artifacts.Names(ctx)
		if err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}
		add(list)
	}

	return names, nil
}
