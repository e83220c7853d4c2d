package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher outcomes reported to the event observer.
const (
	EventMounted = "mounted"
	EventFailed  = "failed"
)

// MountFunc mounts a stored model by name.
type MountFunc func(ctx context.Context, name string) error

// EventObserver receives the outcome of each handled artifact event.
type EventObserver interface {
	ArtifactEventObserved(result string)
}

// Watcher mounts models whose model.yaml appears in the artifact directory
// while the process is running.
type Watcher struct {
	dir      string
	mount    MountFunc
	observer EventObserver
	logger   zerolog.Logger

	watcher *fsnotify.Watcher
	once    sync.Once
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher over dir. observer may be nil.
func NewWatcher(dir string, mount MountFunc, observer EventObserver, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		mount:    mount,
		observer: observer,
		logger:   logger.With().Str("component", "artifact-watcher").Logger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins watching the directory and every existing model directory.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("read artifact dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := watcher.Add(filepath.Join(w.dir, e.Name())); err != nil {
				w.logger.Warn().Err(err).Str("dir", e.Name()).Msg("cannot watch model directory")
			}
		}
	}

	go w.loop(ctx)

	w.logger.Info().Str("dir", w.dir).Msg("watching artifact directory")
	return nil
}

// Run starts the watcher and blocks until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		w.Stop()
	case <-w.stopCh:
	}
	<-w.doneCh
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("artifact watcher error")

		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handle reacts to new model directories and to model.yaml writes.
func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	switch {
	case len(parts) == 1:
		info, err := os.Stat(event.Name)
		if err != nil || !info.IsDir() {
			return
		}
		if err := w.watcher.Add(event.Name); err != nil {
			w.logger.Warn().Err(err).Str("dir", parts[0]).Msg("cannot watch model directory")
			return
		}
		// The model file may have landed before the watch was added.
		if _, err := os.Stat(filepath.Join(event.Name, ModelFile)); err == nil {
			w.mountName(ctx, parts[0])
		}

	case len(parts) == 2 && parts[1] == ModelFile:
		w.mountName(ctx, parts[0])
	}
}

func (w *Watcher) mountName(ctx context.Context, name string) {
	log := w.logger.With().Str("model", name).Logger()

	if err := w.mount(ctx, name); err != nil {
		log.Error().Err(err).Msg("artifact could not be mounted")
		w.observe(EventFailed)
		return
	}
	log.Debug().Msg("artifact event handled")
	w.observe(EventMounted)
}

func (w *Watcher) observe(result string) {
	if w.observer != nil {
		w.observer.ArtifactEventObserved(result)
	}
}
