package packs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/michaldziwisz/programista-core/internal/guide"
	"github.com/michaldziwisz/programista-core/internal/log"
)

// Watcher reloads the runtime when an active pointer changes on disk, for
// example after another process installs a pack.
type Watcher struct {
	service  *Service
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration
}

// NewWatcher watches every kind directory under the service's store. The
// directories are created when missing, since fsnotify cannot watch paths
// that do not exist yet.
func NewWatcher(service *Service) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("packs: create watcher: %w", err)
	}
	for _, kind := range guide.AllKinds() {
		dir := service.store.KindDir(kind)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("packs: create %s: %w", dir, err)
		}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("packs: watch %s: %w", dir, err)
		}
	}
	return &Watcher{
		service:  service,
		watcher:  fsw,
		logger:   log.WithComponent("packs"),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start runs the watch loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str(log.FieldEvent, "packs.watcher_stopped").Msg("pack watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != activeName {
				continue
			}
			// Atomic installs land as Create or Rename; direct writes as
			// Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().
				Str(log.FieldEvent, "packs.pointer_changed").
				Str(log.FieldPath, event.Name).
				Str("op", event.Op.String()).
				Msg("active pointer changed")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if err := w.service.LoadInstalled(ctx); err != nil {
					w.logger.Error().Err(err).
						Str(log.FieldEvent, "packs.auto_reload_failed").
						Msg("automatic pack reload failed")
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).
				Str(log.FieldEvent, "packs.watcher_error").
				Msg("pack watcher error")
		}
	}
}

// Close stops the underlying filesystem watcher. Calling it twice is safe.
func (w *Watcher) Close() error { return w.watcher.Close() }
