// Package watch reports extension modules that change on disk using fsnotify.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// DefaultDebounce coalesces the burst of events a single rebuild produces.
const DefaultDebounce = 250 * time.Millisecond

// Ensure ModuleWatcher implements the interface.
var _ driven.ModuleWatcher = (*ModuleWatcher)(nil)

// ModuleWatcher watches a modules directory and its module subdirectories.
type ModuleWatcher struct {
	debounce time.Duration
}

// NewModuleWatcher creates a watcher that waits debounce after the last
// event before reporting a module. Zero uses DefaultDebounce.
func NewModuleWatcher(debounce time.Duration) *ModuleWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &ModuleWatcher{debounce: debounce}
}

// Watch emits the id of each module under dir that changed.
func (w *ModuleWatcher) Watch(ctx context.Context, dir string) (<-chan domain.ExtensionID, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() && moduleID(dir, filepath.Join(dir, entry.Name())) != "" {
			if err := fsw.Add(filepath.Join(dir, entry.Name())); err != nil {
				logger.Warn("watching module %s: %v", entry.Name(), err)
			}
		}
	}

	out := make(chan domain.ExtensionID)
	go w.loop(ctx, fsw, dir, out)
	return out, nil
}

func (w *ModuleWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher, dir string, out chan<- domain.ExtensionID) {
	defer close(out)
	defer fsw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	pending := make(map[domain.ExtensionID]struct{})

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			id := moduleID(dir, event.Name)
			if id == "" {
				continue
			}
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == dir {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = fsw.Add(event.Name)
				}
			}
			logger.Debug("module %q: %s", id, event.Op)
			pending[id] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("module watcher: %v", err)

		case <-timer.C:
			for id := range pending {
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
				delete(pending, id)
			}
		}
	}
}

// moduleID maps a path under dir to the module it belongs to.
// Hidden entries and paths outside dir map to "".
func moduleID(dir, path string) domain.ExtensionID {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	if strings.HasPrefix(first, ".") {
		return ""
	}
	id := domain.ExtensionID(first)
	if id.Validate() != nil {
		return ""
	}
	return id
}
