// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/artpar/ondemand/adapters/artifact"
	"github.com/artpar/ondemand/adapters/database"
	apihttp "github.com/artpar/ondemand/adapters/http"
	"github.com/artpar/ondemand/adapters/metrics"
	"github.com/artpar/ondemand/config"
	channel "github.com/artpar/ondemand/core/channel/http"
	"github.com/artpar/ondemand/core/engine"
	"github.com/artpar/ondemand/core/registry"
	"github.com/artpar/ondemand/core/storage"
	"github.com/artpar/ondemand/ports"
)

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *database.DB
	Router     *apihttp.Router
	Engine     *engine.Engine
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	Artifacts ports.ArtifactStore
	Manifest  ports.Manifest

	// Discovery is the result of the startup discovery pass.
	Discovery engine.DiscoveryReport

	watcher *artifact.Watcher
	stores  *ArtifactStores
}

// Options overrides process-wide defaults.
type Options struct {
	// Logger replaces the logger built from cfg.Logging.
	Logger *zerolog.Logger

	// MetricsRegistry replaces the default Prometheus registry.
	MetricsRegistry *prometheus.Registry
}

// New creates and initializes the application, then mounts every model
// found in the artifact store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return NewWithOptions(ctx, cfg, Options{})
}

// NewWithOptions is New with overrides for the logger and metrics registry.
func NewWithOptions(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = NewLogger(cfg.Logging)
	}
	logger.Info().Msg("initializing ondemand")

	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Metrics.Enabled {
		if opts.MetricsRegistry != nil {
			a.Metrics = metrics.NewWithRegistry(opts.MetricsRegistry)
		} else {
			a.Metrics = metrics.New()
		}
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	if err := a.initArtifacts(); err != nil {
		a.Close()
		return nil, fmt.Errorf("init artifacts: %w", err)
	}

	if err := a.initHTTP(); err != nil {
		a.Close()
		return nil, fmt.Errorf("init http server: %w", err)
	}

	a.Discovery = a.Engine.DiscoverAndMountAll(ctx)
	for _, f := range a.Discovery.Failed {
		logger.Warn().Err(f.Err).Str("model", f.Name).Msg("model not mounted at startup")
	}

	if cfg.Artifacts.Watch {
		if fs, ok := a.Artifacts.(*artifact.FileStore); ok {
			a.watcher = artifact.NewWatcher(fs.Dir(), a.Engine.Mount, a.eventObserver(), logger)
		}
	}

	return a, nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := database.Open(ctx, database.Options{
		Driver:          a.Config.Database.Driver,
		DSN:             a.Config.Database.DSN,
		MaxOpenConns:    a.Config.Database.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.MaxIdleConns,
		ConnMaxLifetime: a.Config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}

	a.DB = db
	a.Logger.Info().
		Str("driver", db.Dialect.Name()).
		Msg("database initialized")
	return nil
}

func (a *App) initArtifacts() error {
	stores, err := OpenArtifacts(a.Config.Artifacts, a.DB)
	if err != nil {
		return err
	}

	a.Artifacts = stores.Store
	a.Manifest = stores.Manifest
	a.stores = stores
	a.Logger.Info().
		Str("driver", a.Config.Artifacts.Driver).
		Str("location", stores.Location).
		Msg("artifact store ready")
	return nil
}

// ArtifactStores is the artifact store and manifest selected by configuration.
type ArtifactStores struct {
	Store    ports.ArtifactStore
	Manifest ports.Manifest
	Location string

	own *gorm.DB // set only when the stores opened their own database
}

// Close releases a database the stores opened themselves.
func (s *ArtifactStores) Close() error {
	if s.own == nil {
		return nil
	}
	sqlDB, err := s.own.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenArtifacts opens the configured artifact store. The database driver
// shares db when no separate DSN is configured.
func OpenArtifacts(cfg config.ArtifactsConfig, db *database.DB) (*ArtifactStores, error) {
	if cfg.Driver != "database" {
		store, err := artifact.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return &ArtifactStores{
			Store:    store,
			Manifest: artifact.NewFileManifest(cfg.Manifest),
			Location: cfg.Dir,
		}, nil
	}

	opts := artifact.GormOptions{Driver: cfg.DBDriver, DSN: cfg.DSN}
	shared := cfg.DSN == ""
	if shared {
		if db == nil {
			return nil, fmt.Errorf("artifacts.dsn is required without a shared database")
		}
		opts.Driver = db.Dialect.Name()
		opts.Conn = db.DB
	}

	gdb, err := artifact.OpenGorm(opts)
	if err != nil {
		return nil, err
	}

	stores := &ArtifactStores{
		Store:    artifact.NewGormStore(gdb),
		Manifest: artifact.NewGormManifest(gdb),
		Location: opts.Driver + ":" + artifact.Record{}.TableName(),
	}
	if !shared {
		stores.own = gdb
	}
	return stores, nil
}

func (a *App) initHTTP() error {
	a.Router = apihttp.NewRouter(a.Logger, apihttp.RouterConfig{
		Metrics:        a.Metrics,
		Health:         a.DB,
		MetricsPath:    a.Config.Metrics.Path,
		RequestTimeout: a.Config.Server.RequestTimeout,
	})

	reg := registry.New()
	deps := engine.Deps{
		Registry:  reg,
		Applier:   storage.NewApplier(a.DB.DB, a.DB.Dialect),
		Records:   storage.NewStore(a.DB.DB, a.DB.Dialect),
		Mounter:   a.Router,
		Artifacts: a.Artifacts,
		Manifest:  a.Manifest,
		Logger:    a.Logger,
	}
	if a.Metrics != nil {
		deps.Metrics = a.Metrics
	}

	deps.Reserved = append(a.Router.ReservedNames(), a.DB.Dialect.ReservedNames()...)
	a.Engine = engine.New(deps)

	schemaHandler := channel.NewSchemaHandler(reg, a.DB.Dialect)
	if err := a.Router.Handle(apihttp.SchemaPrefix, schemaHandler.Routes()); err != nil {
		return err
	}

	registration := apihttp.NewRegistrationHandler(a.Engine, schemaHandler, a.Logger)
	if err := a.Router.Handle(apihttp.RestPrefix, registration.Routes()); err != nil {
		return err
	}

	a.HTTPServer = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	return nil
}

func (a *App) eventObserver() artifact.EventObserver {
	if a.Metrics == nil {
		return nil
	}
	return a.Metrics
}

// Run serves HTTP, and watches the artifact directory when configured, until
// ctx is cancelled or the server fails. The server is shut down gracefully
// before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config.Server.ShutdownTimeout > 0 {
		return a.Config.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

// Reconfigure applies the reloadable keys of a configuration change to the
// running app. Other keys are left for the next restart.
func (a *App) Reconfigure(change config.Change) {
	if change.Has("logging.level") {
		SetLogLevel(change.New.Logging.Level)
	}
	if change.Has("server.request_timeout") {
		a.Router.SetRequestTimeout(change.New.Server.RequestTimeout)
	}
}

// Close releases the database connections.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("artifact database close error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
			return err
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// NewLogger builds the process logger and sets the global level.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	SetLogLevel(cfg.Level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// SetLogLevel changes the global log level. Unknown levels mean info.
func SetLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
