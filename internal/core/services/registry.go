package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// Ensure ExtensionRegistry implements the interface.
var _ driving.ExtensionRegistry = (*ExtensionRegistry)(nil)

// ExtensionRegistry owns the live extensions of the host, at most one per id.
// Extensions are started on first use and removed when they exit.
type ExtensionRegistry struct {
	settings  domain.ExtensionSettings
	spawner   driven.ProcessSpawner
	records   driven.ProcessRecordStore
	inspector driven.ProcessInspector
	watcher   driven.ModuleWatcher

	mu         sync.Mutex
	extensions map[domain.ExtensionID]*Extension
	closed     bool
	stopWatch  context.CancelFunc
	watchDone  chan struct{}
}

// NewExtensionRegistry creates a registry that spawns extensions with spawner.
func NewExtensionRegistry(settings domain.ExtensionSettings, spawner driven.ProcessSpawner) *ExtensionRegistry {
	return &ExtensionRegistry{
		settings:   settings,
		spawner:    spawner,
		extensions: make(map[domain.ExtensionID]*Extension),
	}
}

// SetProcessRecords enables pid bookkeeping and the orphan sweep in Start.
// Both are optional; inspector may be nil to record without reaping.
func (r *ExtensionRegistry) SetProcessRecords(store driven.ProcessRecordStore, inspector driven.ProcessInspector) {
	r.records = store
	r.inspector = inspector
}

// SetModuleWatcher enables hot reload of changed modules in Start.
func (r *ExtensionRegistry) SetModuleWatcher(w driven.ModuleWatcher) {
	r.watcher = w
}

// Start reaps extension processes orphaned by a previous host and starts
// watching the modules directory. A failed sweep is only logged; a watch
// that cannot start is returned.
func (r *ExtensionRegistry) Start(ctx context.Context) error {
	if r.records != nil && r.inspector != nil {
		reaped, err := NewReaper(r.records, r.inspector).Reap(ctx)
		if err != nil {
			logger.Warn("reaping orphaned extensions: %v", err)
		}
		if reaped > 0 {
			logger.Info("reaped %d orphaned extension processes", reaped)
		}
	}

	if r.watcher == nil {
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	changes, err := r.watcher.Watch(watchCtx, r.settings.ModulesDir)
	if err != nil {
		cancel()
		return fmt.Errorf("watching modules: %w", err)
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.stopWatch = cancel
	r.watchDone = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		for id := range changes {
			if err := r.Terminate(id); err == nil {
				logger.Info("module of extension %q changed, restarting on next use", id)
			}
		}
	}()
	return nil
}

// Get returns the live extension for id, starting it if needed.
// The returned extension may still be NotReady, or already Terminated if
// the spawn failed.
func (r *ExtensionRegistry) Get(ctx context.Context, id domain.ExtensionID) (driving.Extension, error) {
	ext, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return ext, nil
}

func (r *ExtensionRegistry) get(ctx context.Context, id domain.ExtensionID) (*Extension, error) {
	spec, err := r.settings.ProcessSpec(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, domain.ErrRegistryClosed
	}
	if ext, ok := r.extensions[id]; ok && ext.IsActive() {
		r.mu.Unlock()
		return ext, nil
	}

	logger.Debug("starting extension %q: %s", id, spec.Executable)
	ext := NewExtension(ctx, spec, ExtensionConfig{
		Spawner:        r.spawner,
		Records:        r.records,
		RequestTimeout: r.settings.RequestTimeout,
	})
	r.extensions[id] = ext
	r.mu.Unlock()

	// Registered outside the lock: a failed spawn fires the listener at once.
	ext.OnceExit(func(error) {
		r.remove(id, ext)
	})
	return ext, nil
}

// remove drops the entry for id if it still belongs to ext.
func (r *ExtensionRegistry) remove(id domain.ExtensionID, ext *Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extensions[id] == ext {
		delete(r.extensions, id)
	}
}

// Terminate kills the extension and removes it.
func (r *ExtensionRegistry) Terminate(id domain.ExtensionID) error {
	r.mu.Lock()
	ext, ok := r.extensions[id]
	if ok {
		delete(r.extensions, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: extension %q", domain.ErrNotFound, id)
	}
	return ext.shutdown()
}

// TerminateAll kills every extension. The registry stays usable.
func (r *ExtensionRegistry) TerminateAll() error {
	r.mu.Lock()
	extensions := r.drain()
	r.mu.Unlock()
	return terminateEach(extensions)
}

// Shutdown stops the module watcher, kills every extension and refuses
// further Get calls. Calling it more than once is safe.
func (r *ExtensionRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	extensions := r.drain()
	stop, done := r.stopWatch, r.watchDone
	r.stopWatch, r.watchDone = nil, nil
	r.mu.Unlock()

	var err error
	if stop != nil {
		stop()
		select {
		case <-done:
		case <-ctx.Done():
			multierr.AppendInto(&err, fmt.Errorf("stopping module watcher: %w", ctx.Err()))
		}
	}

	multierr.AppendInto(&err, terminateEach(extensions))
	logger.Debug("extension registry shut down (%d extensions terminated)", len(extensions))
	return err
}

// List returns a snapshot of the live extensions sorted by id.
func (r *ExtensionRegistry) List() []domain.ExtensionInfo {
	r.mu.Lock()
	infos := make([]domain.ExtensionInfo, 0, len(r.extensions))
	for id, ext := range r.extensions {
		infos = append(infos, domain.ExtensionInfo{
			ID:    id,
			PID:   ext.PID(),
			State: ext.State(),
		})
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// drain empties the map. The caller must hold r.mu.
func (r *ExtensionRegistry) drain() []*Extension {
	extensions := make([]*Extension, 0, len(r.extensions))
	for id, ext := range r.extensions {
		extensions = append(extensions, ext)
		delete(r.extensions, id)
	}
	return extensions
}

func terminateEach(extensions []*Extension) error {
	var err error
	for _, ext := range extensions {
		if terr := ext.shutdown(); terr != nil {
			multierr.AppendInto(&err, fmt.Errorf("extension %q: %w", ext.ID(), terr))
		}
	}
	return err
}
