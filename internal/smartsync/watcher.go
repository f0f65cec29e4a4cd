package smartsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"apikb/internal/generator"
	"apikb/internal/logging"
	"apikb/internal/manifest"
	"apikb/internal/scanner"
)

// SyncHandler is called after each successful watch-triggered sync
type SyncHandler func(pk *manifest.ProjectKnowledge, stats *generator.Stats)

// WatchConfig contains watch mode configuration
type WatchConfig struct {
	DebounceMs int
}

// Watcher keeps a project manifest current while source files change.
// Filesystem events are coalesced over a debounce window so editor save
// bursts and branch switches trigger one sync, not hundreds.
type Watcher struct {
	syncer   *Syncer
	scan     *scanner.Scanner
	fsw      *fsnotify.Watcher
	debounce *Debouncer
	handler  SyncHandler
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWatcher creates a watcher over the syncer's project root
func NewWatcher(syncer *Syncer, cfg WatchConfig, handler SyncHandler, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	delay := time.Duration(cfg.DebounceMs) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	return &Watcher{
		syncer:   syncer,
		scan:     syncer.scan,
		fsw:      fsw,
		debounce: NewDebouncer(delay),
		handler:  handler,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start registers watches on every scannable directory and begins the event
// loop. Returns once watches are registered; the loop runs until Stop or
// context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs, err := w.scan.Dirs()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn("Failed to watch directory", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
		}
	}

	w.logger.Info("Watch mode started", map[string]interface{}{
		"directories": len(dirs),
	})
	w.syncer.setState(StateWatching)

	go w.loop(ctx)
	return nil
}

// Stop shuts the watcher down, flushing any pending sync first so edits made
// just before shutdown are not lost.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.debounce.Flush()
	err := w.fsw.Close()
	<-w.done
	w.syncer.setState(StateIdle)
	w.logger.Info("Watch mode stopped", nil)
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Filesystem watcher error", map[string]interface{}{
				"error": err.Error(),
			})

		case <-ctx.Done():
			w.debounce.Cancel()
			_ = w.fsw.Close()
			return
		}
	}
}

// handleEvent filters noise and schedules a debounced sync. New directories
// are added to the watch set immediately so files created inside them are
// seen before the next full registration pass.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if ignoredPath(event.Name) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Debug("Failed to watch new directory", map[string]interface{}{
					"dir":   event.Name,
					"error": err.Error(),
				})
			}
			return
		}
	}

	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	w.logger.Debug("Change detected", map[string]interface{}{
		"path": event.Name,
		"op":   event.Op.String(),
	})

	w.syncer.setState(StateDebouncing)
	w.debounce.Trigger(func() {
		w.runSync(ctx)
	})
}

func (w *Watcher) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	pk, stats, err := w.syncer.Sync(ctx)
	w.syncer.setState(StateWatching)
	if err != nil {
		w.logger.Error("Watch-triggered sync failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if stats.FilesExtracted == 0 && stats.FilesRemoved == 0 {
		return
	}

	if w.handler != nil {
		w.handler(pk, stats)
	}
}

// ignoredPath filters events for paths a scan would never visit. Temp files
// from editor atomic saves are the dominant noise source.
func ignoredPath(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if skipDirSegment(seg) {
			return true
		}
	}
	return false
}

func skipDirSegment(seg string) bool {
	switch seg {
	case "", ".", "..":
		return false
	}
	if strings.HasPrefix(seg, ".") {
		return true
	}
	switch seg {
	case "node_modules", "vendor", "dist", "build", "target", "__pycache__", "coverage":
		return true
	}
	return false
}
