package signal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize catalog watcher")

// reloadDebounce coalesces the burst of writes editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// LoadRegistry returns the builtin catalog merged with the custom catalog at
// path. An empty path yields the builtin catalog.
func LoadRegistry(path string) (*Registry, error) {
	registry := Default()
	if path == "" {
		return registry, nil
	}
	custom, err := LoadCustom(path)
	if err != nil {
		return nil, err
	}
	return registry.With(custom...)
}

// Reload is one attempt to rebuild the registry after the catalog changed.
// Exactly one of Registry and Err is set.
type Reload struct {
	Registry *Registry
	Err      error
}

// CatalogWatcher rebuilds the registry whenever a custom catalog file
// changes on disk.
//
// The parent directory is watched rather than the file itself so that
// editors which save by rename keep being observed.
type CatalogWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	reloads  chan Reload
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewCatalogWatcher creates a watcher for the catalog at path.
func NewCatalogWatcher(path string) (*CatalogWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving catalog path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &CatalogWatcher{
		path:    abs,
		watcher: watcher,
		reloads: make(chan Reload, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine. Reloads are delivered on
// Reloads until ctx is cancelled or Stop is called.
func (w *CatalogWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.watcher.Close()
		close(w.done)
		close(w.reloads)
		return fmt.Errorf("watching catalog directory: %w", err)
	}
	go w.loop(ctx)
	return nil
}

// Reloads returns the channel of rebuilt registries. It is closed when the
// watcher stops.
func (w *CatalogWatcher) Reloads() <-chan Reload {
	return w.reloads
}

// Stop halts the watcher and waits for the loop to exit.
func (w *CatalogWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}

func (w *CatalogWatcher) loop(ctx context.Context) {
	defer close(w.done)
	defer close(w.reloads)
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			var r Reload
			r.Registry, r.Err = LoadRegistry(w.path)
			if r.Err != nil {
				r.Registry = nil
			}
			select {
			case w.reloads <- r:
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.reloads <- Reload{Err: fmt.Errorf("catalog watcher: %w", err)}:
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			}
		}
	}
}
