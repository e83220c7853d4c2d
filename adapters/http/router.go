// Package http provides the HTTP surface of the service: the live router that
// generated model endpoints are mounted into, middleware, and the handlers for
// registration, health and metrics.
package http

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/artpar/ondemand/adapters/metrics"
	"github.com/artpar/ondemand/pkg/jsonapi"
	"github.com/artpar/ondemand/ports"
)

// Paths owned by the host router. Models cannot be named after them.
const (
	RestPrefix   = "/rest"
	SchemaPrefix = "/_schema"
	HealthPrefix = "/health"
)

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	Health         Pinger        // checked by /health/ready when set
	MetricsPath    string        // default /metrics
	RequestTimeout time.Duration // default 60s
}

// static is a handler mounted by the host rather than generated.
type static struct {
	pattern string
	handler http.Handler
}

// Router is the live HTTP handler. Every mount rebuilds an immutable chi
// router and publishes it atomically, so requests never observe a router that
// is being modified. Mounted groups are never removed.
type Router struct {
	logger zerolog.Logger
	cfg    RouterConfig

	mu       sync.Mutex
	statics  []static
	groups   []ports.RouteGroup
	prefixes map[string]string

	current atomic.Pointer[chi.Mux]
}

// DefaultRequestTimeout bounds a request when no timeout is configured.
const DefaultRequestTimeout = 60 * time.Second

// NewRouter creates the main HTTP router with health and metrics endpoints.
func NewRouter(logger zerolog.Logger, cfg RouterConfig) *Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	rt := &Router{
		logger:   logger,
		cfg:      cfg,
		prefixes: make(map[string]string),
	}

	health := NewHealthHandler(cfg.Health)
	rt.statics = append(rt.statics, static{HealthPrefix, health.Routes()})
	rt.prefixes[HealthPrefix] = "health"
	if cfg.Metrics != nil {
		rt.statics = append(rt.statics, static{cfg.MetricsPath, cfg.Metrics.Handler()})
		rt.prefixes[cfg.MetricsPath] = "metrics"
	}

	rt.current.Store(rt.build())
	return rt
}

// Handle mounts a host handler under a fixed prefix.
func (rt *Router) Handle(prefix string, h http.Handler) error {
	prefix = normalizePrefix(prefix)

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if owner, ok := rt.prefixes[prefix]; ok {
		return fmt.Errorf("%w: %s (owned by %s)", ports.ErrPrefixMounted, prefix, owner)
	}
	rt.prefixes[prefix] = "host"
	rt.statics = append(rt.statics, static{prefix, h})
	rt.current.Store(rt.build())
	return nil
}

// Mount attaches a generated route group. A prefix can be mounted once.
func (rt *Router) Mount(group ports.RouteGroup) error {
	prefix := normalizePrefix(group.Prefix)
	if prefix == "/" {
		return fmt.Errorf("cannot mount group %s at the root", group.Name)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if owner, ok := rt.prefixes[prefix]; ok {
		return fmt.Errorf("%w: %s (owned by %s)", ports.ErrPrefixMounted, prefix, owner)
	}

	group.Prefix = prefix
	rt.prefixes[prefix] = group.Name
	rt.groups = append(rt.groups, group)
	rt.current.Store(rt.build())

	rt.logger.Info().
		Str("model", group.Name).
		Str("prefix", prefix).
		Int("routes", len(group.Routes)).
		Msg("route group mounted")

	return nil
}

// SetRequestTimeout changes the per-request deadline. Requests already in
// flight keep the deadline they started with.
func (rt *Router) SetRequestTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultRequestTimeout
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.cfg.RequestTimeout == d {
		return
	}
	rt.logger.Info().
		Dur("old", rt.cfg.RequestTimeout).
		Dur("new", d).
		Msg("request timeout changed")
	rt.cfg.RequestTimeout = d
	rt.current.Store(rt.build())
}

// RequestTimeout returns the per-request deadline applied to new requests.
func (rt *Router) RequestTimeout() time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cfg.RequestTimeout
}

// Prefixes returns every mounted prefix in sorted order.
func (rt *Router) Prefixes() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out := make([]string, 0, len(rt.prefixes))
	for p := range rt.prefixes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ReservedNames returns the model names that collide with host prefixes.
func (rt *Router) ReservedNames() []string {
	return ReservedNames(rt.cfg.MetricsPath)
}

// ReservedNames returns the model names that collide with the host prefixes
// of a router serving metrics at metricsPath.
func ReservedNames(metricsPath string) []string {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return []string{
		strings.TrimPrefix(RestPrefix, "/"),
		strings.TrimPrefix(SchemaPrefix, "/"),
		strings.TrimPrefix(HealthPrefix, "/"),
		strings.TrimPrefix(metricsPath, "/"),
	}
}

// ServeHTTP dispatches to the most recently published router.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.current.Load().ServeHTTP(w, r)
}

// build assembles a fresh router from the static handlers and groups.
// Callers hold rt.mu.
func (rt *Router) build() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(rt.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(rt.cfg.RequestTimeout))
	if rt.cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(rt.cfg.Metrics, rt.cfg.MetricsPath))
	}

	for _, s := range rt.statics {
		r.Mount(s.pattern, s.handler)
	}

	for _, g := range rt.groups {
		routes := g.Routes
		r.Route(g.Prefix, func(sr chi.Router) {
			for _, route := range routes {
				sr.Method(route.Method, route.Pattern, route.Handler)
			}
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteNotFound(w, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteMethodNotAllowed(w, r.Method)
	})

	return r
}

func normalizePrefix(p string) string {
	p = strings.TrimSuffix(strings.TrimSpace(p), "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
