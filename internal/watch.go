package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	tt "github.com/dlinter/dlin/internal/types"
	"github.com/dlinter/dlin/scanner"
)

// DefaultDebounce is how long the watcher waits after the last write to a
// file before linting it again.
const DefaultDebounce = 100 * time.Millisecond

var ErrAlreadyWatching = errors.New("already watching")

// ResultFunc receives the outcome of every re-lint triggered by the watcher.
type ResultFunc func(filename string, issues []tt.Issue, err error)

// Watcher re-lints Dockerfiles as they change on disk.
type Watcher struct {
	engine   *Engine
	logger   *zap.Logger
	onResult ResultFunc
	debounce time.Duration

	mu       sync.Mutex
	watching bool
	fsw      *fsnotify.Watcher
	timers   map[string]*time.Timer
}

// NewWatcher creates a watcher reporting to onResult. A nil onResult logs
// the results instead.
func NewWatcher(engine *Engine, logger *zap.Logger, onResult ResultFunc) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		engine:   engine,
		logger:   logger,
		onResult: onResult,
		debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
	}
	if w.onResult == nil {
		w.onResult = w.reportIssues
	}
	return w
}

// SetDebounce changes the quiet period before a changed file is linted.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Watch adds every directory under paths (or the parent directory of a
// file path) and processes events until ctx is done.
func (w *Watcher) Watch(ctx context.Context, paths ...string) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return ErrAlreadyWatching
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("error creating watcher: %w", err)
	}
	w.fsw = fsw
	w.watching = true
	w.mu.Unlock()

	defer w.stop()

	for _, path := range paths {
		if err := w.add(path); err != nil {
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	w.logger.Info("watching for changes", zap.Strings("paths", paths))
	w.watchLoop(ctx)
	return nil
}

func (w *Watcher) add(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if path == root {
				return w.fsw.Add(filepath.Dir(path))
			}
			return nil
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for name, timer := range w.timers {
		timer.Stop()
		delete(w.timers, name)
	}
	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("error closing watcher", zap.Error(err))
		}
	}
	w.watching = false
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFileEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleFileEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !scanner.IsDockerfile(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// collapse bursts of writes into one run
	if timer, ok := w.timers[event.Name]; ok {
		timer.Stop()
	}
	name := event.Name
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, name)
		w.mu.Unlock()

		issues, err := w.engine.Run(name)
		w.onResult(name, issues, err)
	})
}

func (w *Watcher) reportIssues(filename string, issues []tt.Issue, err error) {
	if err != nil {
		w.logger.Error("error linting file", zap.String("file", filename), zap.Error(err))
		return
	}
	if len(issues) == 0 {
		w.logger.Info("no issues found", zap.String("file", filename))
		return
	}

	w.logger.Info("found issues", zap.String("file", filename), zap.Int("count", len(issues)))
	for _, issue := range issues {
		w.logger.Info(issue.Message,
			zap.String("rule", issue.Rule),
			zap.Int("line", issue.Line),
			zap.Stringer("severity", issue.Severity),
		)
	}
}
