package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// settleDelay lets a burst of editor write events collapse into one reload.
const settleDelay = 100 * time.Millisecond

// field is one configuration key tracked across reloads.
type field struct {
	name       string
	reloadable bool
	changed    func(a, b *Config) bool
}

var fields = []field{
	{"server.host", false, func(a, b *Config) bool { return a.Server.Host != b.Server.Host }},
	{"server.port", false, func(a, b *Config) bool { return a.Server.Port != b.Server.Port }},
	{"server.read_timeout", false, func(a, b *Config) bool { return a.Server.ReadTimeout != b.Server.ReadTimeout }},
	{"server.write_timeout", false, func(a, b *Config) bool { return a.Server.WriteTimeout != b.Server.WriteTimeout }},
	{"server.request_timeout", true, func(a, b *Config) bool { return a.Server.RequestTimeout != b.Server.RequestTimeout }},
	{"server.shutdown_timeout", false, func(a, b *Config) bool { return a.Server.ShutdownTimeout != b.Server.ShutdownTimeout }},
	{"database.driver", false, func(a, b *Config) bool { return a.Database.Driver != b.Database.Driver }},
	{"database.dsn", false, func(a, b *Config) bool { return a.Database.DSN != b.Database.DSN }},
	{"database.max_open_conns", false, func(a, b *Config) bool { return a.Database.MaxOpenConns != b.Database.MaxOpenConns }},
	{"database.max_idle_conns", false, func(a, b *Config) bool { return a.Database.MaxIdleConns != b.Database.MaxIdleConns }},
	{"database.conn_max_lifetime", false, func(a, b *Config) bool { return a.Database.ConnMaxLifetime != b.Database.ConnMaxLifetime }},
	{"artifacts.driver", false, func(a, b *Config) bool { return a.Artifacts.Driver != b.Artifacts.Driver }},
	{"artifacts.dir", false, func(a, b *Config) bool { return a.Artifacts.Dir != b.Artifacts.Dir }},
	{"artifacts.manifest", false, func(a, b *Config) bool { return a.Artifacts.Manifest != b.Artifacts.Manifest }},
	{"artifacts.watch", false, func(a, b *Config) bool { return a.Artifacts.Watch != b.Artifacts.Watch }},
	{"artifacts.db_driver", false, func(a, b *Config) bool { return a.Artifacts.DBDriver != b.Artifacts.DBDriver }},
	{"artifacts.dsn", false, func(a, b *Config) bool { return a.Artifacts.DSN != b.Artifacts.DSN }},
	{"logging.level", true, func(a, b *Config) bool { return a.Logging.Level != b.Logging.Level }},
	{"logging.format", false, func(a, b *Config) bool { return a.Logging.Format != b.Logging.Format }},
	{"metrics.enabled", false, func(a, b *Config) bool { return a.Metrics.Enabled != b.Metrics.Enabled }},
	{"metrics.path", false, func(a, b *Config) bool { return a.Metrics.Path != b.Metrics.Path }},
}

// ReloadableFields returns the keys a running server applies on reload.
func ReloadableFields() []string {
	return fieldNames(true)
}

// NonReloadableFields returns the keys that only take effect on restart.
func NonReloadableFields() []string {
	return fieldNames(false)
}

func fieldNames(reloadable bool) []string {
	var out []string
	for _, f := range fields {
		if f.reloadable == reloadable {
			out = append(out, f.name)
		}
	}
	return out
}

// Change describes what a reload altered. Fields is empty when nothing did.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string // changed keys, in declaration order
}

// Has reports whether key changed.
func (c Change) Has(key string) bool {
	for _, f := range c.Fields {
		if f == key {
			return true
		}
	}
	return false
}

// Pending returns the changed keys that wait for a restart.
func (c Change) Pending() []string {
	var out []string
	for _, f := range fields {
		if !f.reloadable && c.Has(f.name) {
			out = append(out, f.name)
		}
	}
	return out
}

func diff(old, next *Config) Change {
	c := Change{Old: old, New: next}
	for _, f := range fields {
		if f.changed(old, next) {
			c.Fields = append(c.Fields, f.name)
		}
	}
	return c
}

// Holder owns the live configuration of a server started from a file.
// Readers call Get; Reload and Watch replace the value and notify listeners.
type Holder struct {
	path    string
	logger  zerolog.Logger
	current atomic.Pointer[Config]

	mu        sync.Mutex // serializes reloads and guards listeners
	listeners []func(Change)
}

// NewHolder loads path and returns a holder serving it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{path: absPath, logger: logger}
	h.current.Store(cfg)
	return h, nil
}

// Get returns the current configuration. The value must not be modified.
func (h *Holder) Get() *Config {
	return h.current.Load()
}

// OnChange registers fn to run after every reload that changes a key.
// Listeners run in registration order with the reload lock held.
func (h *Holder) OnChange(fn func(Change)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload reads the file again. On error the current configuration stays.
func (h *Holder) Reload() (Change, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping current config")
		return Change{}, fmt.Errorf("reload config: %w", err)
	}

	change := diff(h.current.Load(), next)
	h.current.Store(next)

	if len(change.Fields) == 0 {
		h.logger.Debug().Str("path", h.path).Msg("config reloaded, nothing changed")
		return change, nil
	}

	for _, key := range change.Pending() {
		h.logger.Warn().Str("field", key).Msg("config change takes effect on restart")
	}
	h.logger.Info().Strs("changed", change.Fields).Msg("configuration reloaded")

	for _, fn := range h.listeners {
		fn(change)
	}
	return change, nil
}

// Watch reloads on SIGHUP and whenever the file is written, until ctx is
// done. The directory is watched so that editors replacing the file by rename
// are still seen.
func (h *Holder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	h.logger.Info().Str("path", h.path).Msg("watching config for changes (file writes and SIGHUP)")

	name := filepath.Base(h.path)
	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-hup:
			h.logger.Info().Msg("received SIGHUP")
			_, _ = h.Reload()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			settle = time.After(settleDelay)

		case <-settle:
			settle = nil
			_, _ = h.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}
