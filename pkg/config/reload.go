package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Watcher reloads the YAML tunables file when it changes on disk and hands
// the freshly validated Config to a callback. A file that fails to parse or
// validate is logged and skipped; the running config stays untouched.
type Watcher struct {
	path     string
	logger   *observability.Logger
	onReload func(*Config)
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given config file
func NewWatcher(path string, logger *observability.Logger, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, not the file: editors and k8s configmap updates
	// replace the file, which drops a direct watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     path,
		logger:   logger.WithField("component", "config_watcher"),
		onReload: onReload,
		watcher:  fw,
	}, nil
}

// Run processes file events until the context is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.WithField("path", w.path).Info("watching config file for changes")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("ignoring config change that failed validation")
		return
	}
	w.logger.Info("config file changed, applying tunables")
	w.onReload(cfg)
}
