package nfc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the content of a tapped tag.
type Handler func(ctx context.Context, data []byte) error

// Watcher dispatches files created in an inbox directory as tag taps.
type Watcher struct {
	dir     string
	handler Handler
	logger  *slog.Logger
	fsw     *fsnotify.Watcher

	// Remove consumed files (default true).
	consume bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithKeepFiles leaves tapped files in the inbox.
func WithKeepFiles() WatcherOption {
	return func(w *Watcher) { w.consume = false }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher starts watching dir. Call Run to dispatch taps.
func NewWatcher(dir string, handler Handler, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		dir:     dir,
		handler: handler,
		logger:  slog.New(slog.DiscardHandler),
		consume: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "nfc-watcher")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fsw = fsw
	return w, nil
}

// Run dispatches taps until ctx is done or Close is called. Handler errors
// are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) || !isTagFile(ev.Name) {
				continue
			}
			w.dispatch(ctx, ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read tap", "path", path, "error", err)
		return
	}
	if w.consume {
		if err := os.Remove(path); err != nil {
			w.logger.Warn("remove tap", "path", path, "error", err)
		}
	}

	w.logger.Debug("tag tapped", "path", path, "size", len(data))
	if err := w.handler(ctx, data); err != nil {
		w.logger.Warn("tap rejected", "path", path, "error", err)
	}
}

func isTagFile(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && filepath.Ext(name) == Extension
}
