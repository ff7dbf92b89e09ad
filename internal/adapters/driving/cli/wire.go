package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-extensions/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-extensions/internal/adapters/driven/process"
	"github.com/custodia-labs/sercha-extensions/internal/adapters/driven/procinfo"
	"github.com/custodia-labs/sercha-extensions/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-extensions/internal/adapters/driven/watch"
	"github.com/custodia-labs/sercha-extensions/internal/core/services"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// bootstrap wires the default adapters into the services.
func bootstrap(ctx context.Context) error {
	logger.Section("Bootstrap")

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home directory: %w", err)
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Debug("config: %s", configStore.Path())

	settingsSvc := services.NewSettingsService(configStore, home)
	settings, err := settingsSvc.Get()
	if err != nil {
		return err
	}
	if debugMode {
		settings.Debug = true
	}

	dataDir := ""
	if configDir != "" {
		dataDir = filepath.Join(configDir, "data")
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening process records: %w", err)
	}
	logger.Debug("process records: %s", store.Path())

	reg := services.NewExtensionRegistry(settings, process.NewSpawner())
	reg.SetProcessRecords(store.ProcessRecords(), procinfo.NewInspector())
	if info, err := os.Stat(settings.ModulesDir); err == nil && info.IsDir() {
		reg.SetModuleWatcher(watch.NewModuleWatcher(watch.DefaultDebounce))
	} else {
		logger.Debug("modules directory %s not found, hot reload disabled", settings.ModulesDir)
	}

	if err := reg.Start(ctx); err != nil {
		return multierr.Append(fmt.Errorf("starting registry: %w", err), store.Close())
	}

	searchService = services.NewSearchService(reg, settings)
	settingsService = settingsSvc
	registry = reg
	shutdown = func(ctx context.Context) error {
		err := reg.Shutdown(ctx)
		return multierr.Append(err, store.Close())
	}
	return nil
}
