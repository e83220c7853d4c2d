package bootstrap_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/ondemand/adapters/artifact"
	"github.com/artpar/ondemand/bootstrap"
	"github.com/artpar/ondemand/config"
	"github.com/artpar/ondemand/core/convention"
	"github.com/artpar/ondemand/core/schema"
	"github.com/artpar/ondemand/ports"
)

const bookDefinition = `{"name":"Book","fields":[{"name":"title","type":"str"},{"name":"pages","type":"int"}]}`

func loadConfig(t *testing.T, dir, extra string) *config.Config {
	t.Helper()

	content := "database:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "ondemand.db") + "\n" +
		"metrics:\n  enabled: true\n" + extra
	if !strings.Contains(extra, "artifacts:") {
		content += "artifacts:\n  dir: " + filepath.Join(dir, "models") + "\n"
	}

	path := filepath.Join(dir, "ondemand.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *bootstrap.App {
	t.Helper()

	logger := zerolog.Nop()
	app, err := bootstrap.NewWithOptions(context.Background(), cfg, bootstrap.Options{
		Logger:          &logger,
		MetricsRegistry: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	return app
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(data)
}

func registerAndRediscover(t *testing.T, cfg *config.Config) {
	t.Helper()

	app := newApp(t, cfg)
	srv := httptest.NewServer(app.Router)

	status, body := do(t, srv, http.MethodPost, "/rest/generate-rest-api", bookDefinition)
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", status, body)
	}

	var result struct {
		Message      string   `json:"message"`
		Endpoints    string   `json:"endpoints"`
		FilesCreated []string `json:"files_created"`
	}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Message != "Model Book created successfully" {
		t.Errorf("message = %q", result.Message)
	}
	if result.Endpoints != "/book" {
		t.Errorf("endpoints = %q, want /book", result.Endpoints)
	}
	if len(result.FilesCreated) != 2 {
		t.Errorf("files_created = %v, want 2 entries", result.FilesCreated)
	}

	status, body = do(t, srv, http.MethodPost, "/book", `{"title":"Go","pages":300}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", status, body)
	}

	srv.Close()
	if err := app.Close(); err != nil {
		t.Fatalf("close app: %v", err)
	}

	// A fresh process over the same storage serves the model again.
	app = newApp(t, cfg)
	defer app.Close()
	srv = httptest.NewServer(app.Router)
	defer srv.Close()

	if len(app.Discovery.Mounted) != 1 || app.Discovery.Mounted[0] != "book" {
		t.Fatalf("discovery mounted = %v, want [book]", app.Discovery.Mounted)
	}
	if !app.Discovery.OK() {
		t.Errorf("discovery failures: %v", app.Discovery.Failed)
	}

	status, body = do(t, srv, http.MethodGet, "/book/1", "")
	if status != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", status, body)
	}
	if !strings.Contains(body, `"title":"Go"`) {
		t.Errorf("get body = %s", body)
	}

	status, body = do(t, srv, http.MethodGet, "/rest/models", "")
	if status != http.StatusOK || !strings.Contains(body, `"count":1`) {
		t.Errorf("models status = %d, body = %s", status, body)
	}
}

func TestBootstrap_FileArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "")

	registerAndRediscover(t, cfg)

	for _, name := range []string{artifact.ModelFile, artifact.APIFile} {
		if _, err := os.Stat(filepath.Join(dir, "models", "book", name)); err != nil {
			t.Errorf("artifact %s: %v", name, err)
		}
	}

	manifest, err := os.ReadFile(filepath.Join(dir, "models", artifact.ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if strings.TrimSpace(string(manifest)) != "book" {
		t.Errorf("manifest = %q, want book", manifest)
	}
}

func TestBootstrap_DatabaseArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "artifacts:\n  driver: database\n")

	registerAndRediscover(t, cfg)

	if _, err := os.Stat(filepath.Join(dir, "models")); !os.IsNotExist(err) {
		t.Errorf("file artifacts should not be written, stat err = %v", err)
	}
}

func TestBootstrap_HostEndpoints(t *testing.T) {
	app := newApp(t, loadConfig(t, t.TempDir(), ""))
	defer app.Close()
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	status, _ := do(t, srv, http.MethodGet, "/health/ready", "")
	if status != http.StatusOK {
		t.Errorf("readiness status = %d, want 200", status)
	}

	status, body := do(t, srv, http.MethodPost, "/rest/generate-rest-api", `{"name":"health","fields":[{"name":"x","type":"str"}]}`)
	if status != http.StatusBadRequest {
		t.Errorf("reserved name status = %d, body = %s", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/rest/generate-rest-api", `{"name":"sqlite_notes","fields":[{"name":"x","type":"str"}]}`)
	if status != http.StatusBadRequest || !strings.Contains(body, "invalid_name") {
		t.Errorf("sqlite_ prefix status = %d, body = %s", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/rest/generate-rest-api", bookDefinition)
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", status, body)
	}

	status, body = do(t, srv, http.MethodPost, "/book", `{"title":"ÉCOLE DE GO","pages":10}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", status, body)
	}
	status, body = do(t, srv, http.MethodGet, "/book?search="+url.QueryEscape("école"), "")
	if status != http.StatusOK || !strings.Contains(body, `"total_items":1`) {
		t.Errorf("unicode search status = %d, body = %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/_schema/book", "")
	if status != http.StatusOK || !strings.Contains(body, `"title"`) {
		t.Errorf("schema status = %d, body = %s", status, body)
	}

	status, body = do(t, srv, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	for _, want := range []string{
		`ondemand_registrations_total{result="created"} 1`,
		`ondemand_registrations_total{result="invalid"} 2`,
		`ondemand_mounted_models 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestBootstrap_RunWatchesArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir, "artifacts:\n  dir: "+filepath.Join(dir, "models")+"\n  watch: true\n")
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	app := newApp(t, cfg)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	// Another process drops a model into the artifact directory.
	desc, err := convention.Derive(schema.ModelDefinition{
		Name:   "Author",
		Fields: []schema.FieldDefinition{{Name: "name", Type: "str"}},
	})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	store, err := artifact.NewFileStore(filepath.Join(dir, "models"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}

	// Save until the watcher has picked the directory up.
	deadline := time.Now().Add(10 * time.Second)
	for !app.Engine.Registry().Contains("author") {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not mount the dropped model")
		}
		if _, err := store.Save(context.Background(), ports.NewArtifact(desc)); err != nil {
			t.Fatalf("save artifact: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_Reconfigure(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	dir := t.TempDir()
	cfg := loadConfig(t, dir, "server:\n  request_timeout: 30s\n")
	app := newApp(t, cfg)
	defer app.Close()

	if got := app.Router.RequestTimeout(); got != 30*time.Second {
		t.Fatalf("initial request timeout = %v, want 30s", got)
	}

	next := *cfg
	next.Server.RequestTimeout = 2 * time.Minute
	next.Server.Port = cfg.Server.Port + 1
	next.Logging.Level = "warn"

	app.Reconfigure(config.Change{
		Old:    cfg,
		New:    &next,
		Fields: []string{"server.port", "server.request_timeout", "logging.level"},
	})

	if got := app.Router.RequestTimeout(); got != 2*time.Minute {
		t.Errorf("request timeout = %v, want 2m", got)
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("global level = %v, want warn", zerolog.GlobalLevel())
	}
	if app.HTTPServer.Addr != cfg.Server.Addr() {
		t.Errorf("listen address changed to %s without a restart", app.HTTPServer.Addr)
	}
}

func TestNewLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	bootstrap.NewLogger(config.LoggingConfig{Level: "debug", Format: "console"})
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("global level = %v, want debug", zerolog.GlobalLevel())
	}

	bootstrap.SetLogLevel("nonsense")
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("global level = %v, want info", zerolog.GlobalLevel())
	}
}
