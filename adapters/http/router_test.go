package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	apihttp "github.com/artpar/ondemand/adapters/http"
	"github.com/artpar/ondemand/adapters/metrics"
	"github.com/artpar/ondemand/ports"
)

func echoGroup(name string) ports.RouteGroup {
	return ports.RouteGroup{
		Name:   name,
		Prefix: "/" + strings.ToLower(name),
		Routes: []ports.Route{
			{Method: http.MethodGet, Pattern: "/", Handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "list %s", name)
			}},
			{Method: http.MethodGet, Pattern: "/{id}", Handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "get %s", name)
			}},
		},
	}
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_MountServesGroup(t *testing.T) {
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{})

	if rec := serve(rt, http.MethodGet, "/book/"); rec.Code != http.StatusNotFound {
		t.Fatalf("before mount status = %d, want 404", rec.Code)
	}

	if err := rt.Mount(echoGroup("Book")); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{"/book/", "list Book"},
		{"/book", "list Book"},
		{"/book/7", "get Book"},
	}
	for _, tt := range tests {
		rec := serve(rt, http.MethodGet, tt.path)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", tt.path, rec.Code)
			continue
		}
		if rec.Body.String() != tt.want {
			t.Errorf("GET %s body = %q, want %q", tt.path, rec.Body.String(), tt.want)
		}
	}
}

func TestRouter_MountIsAppendOnly(t *testing.T) {
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{})

	if err := rt.Mount(echoGroup("Book")); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if err := rt.Mount(echoGroup("Author")); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	err := rt.Mount(echoGroup("Book"))
	if !errors.Is(err, ports.ErrPrefixMounted) {
		t.Fatalf("second Mount() error = %v, want ErrPrefixMounted", err)
	}

	// Both groups stay served after the failed mount.
	if rec := serve(rt, http.MethodGet, "/book/1"); rec.Code != http.StatusOK {
		t.Errorf("GET /book/1 status = %d", rec.Code)
	}
	if rec := serve(rt, http.MethodGet, "/author/1"); rec.Code != http.StatusOK {
		t.Errorf("GET /author/1 status = %d", rec.Code)
	}
}

func TestRouter_HostPrefixesAreProtected(t *testing.T) {
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{})

	if err := rt.Handle(apihttp.RestPrefix, http.NotFoundHandler()); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	for _, prefix := range []string{"/rest", "/health"} {
		g := echoGroup("x")
		g.Prefix = prefix
		if err := rt.Mount(g); !errors.Is(err, ports.ErrPrefixMounted) {
			t.Errorf("Mount(%s) error = %v, want ErrPrefixMounted", prefix, err)
		}
	}

	want := map[string]bool{"rest": true, "_schema": true, "health": true, "metrics": true}
	for _, name := range rt.ReservedNames() {
		if !want[name] {
			t.Errorf("unexpected reserved name %q", name)
		}
		delete(want, name)
	}
	if len(want) != 0 {
		t.Errorf("missing reserved names: %v", want)
	}
}

func TestRouter_SetRequestTimeout(t *testing.T) {
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{})

	// Reports how long the request has left before its deadline.
	err := rt.Handle("/deadline", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			http.Error(w, "no deadline", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, time.Until(deadline).Round(time.Second))
	}))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if got := serve(rt, http.MethodGet, "/deadline").Body.String(); got != "1m0s" {
		t.Errorf("default deadline = %q, want 1m0s", got)
	}

	rt.SetRequestTimeout(5 * time.Minute)
	if rt.RequestTimeout() != 5*time.Minute {
		t.Errorf("RequestTimeout() = %v, want 5m", rt.RequestTimeout())
	}
	if got := serve(rt, http.MethodGet, "/deadline").Body.String(); got != "5m0s" {
		t.Errorf("deadline after change = %q, want 5m0s", got)
	}

	rt.SetRequestTimeout(0)
	if rt.RequestTimeout() != apihttp.DefaultRequestTimeout {
		t.Errorf("RequestTimeout() = %v, want default", rt.RequestTimeout())
	}
}

func TestRouter_NotFoundIsJSONAPI(t *testing.T) {
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{})

	rec := serve(rt, http.MethodGet, "/nothing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.api+json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var doc struct {
		Errors []struct {
			Status string `json:"status"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(doc.Errors) != 1 || doc.Errors[0].Status != "404" {
		t.Errorf("errors = %+v", doc.Errors)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{})
	if err := rt.Mount(echoGroup("Book")); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	rec := serve(rt, http.MethodDelete, "/book/")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRouter_ConcurrentMountAndServe(t *testing.T) {
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{})
	if err := rt.Mount(echoGroup("Base")); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := rt.Mount(echoGroup(fmt.Sprintf("model%d", i))); err != nil {
				t.Errorf("Mount() error = %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if rec := serve(rt, http.MethodGet, "/base/"); rec.Code != http.StatusOK {
					t.Errorf("GET /base/ status = %d", rec.Code)
					return
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		path := fmt.Sprintf("/model%d/", i)
		if rec := serve(rt, http.MethodGet, path); rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, rec.Code)
		}
	}
	if got := len(rt.Prefixes()); got != 12 {
		t.Errorf("len(Prefixes()) = %d, want 12", got)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		pinger apihttp.Pinger
		path   string
		want   int
	}{
		{"liveness", nil, "/health", http.StatusOK},
		{"live alias", nil, "/health/live", http.StatusOK},
		{"ready without db", nil, "/health/ready", http.StatusOK},
		{"ready with db", fakePinger{}, "/health/ready", http.StatusOK},
		{"ready with failing db", fakePinger{err: errors.New("connection refused")}, "/health/ready", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{Health: tt.pinger})
			rec := serve(rt, http.MethodGet, tt.path)
			if rec.Code != tt.want {
				t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	rt := apihttp.NewRouter(zerolog.Nop(), apihttp.RouterConfig{Metrics: m})
	if err := rt.Mount(echoGroup("Book")); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	serve(rt, http.MethodGet, "/book/17")
	serve(rt, http.MethodGet, "/health")

	rec := serve(rt, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `ondemand_requests_total{method="GET",path="/book/{id}",status="200"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
	if strings.Contains(body, `path="/health"`) {
		t.Error("health checks should not be counted")
	}
}
