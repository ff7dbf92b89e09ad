package services

import (
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keyModulesDir     = "extension.modules_dir"
	keyHostExecutable = "extension.host_executable"
	keyDebug          = "extension.debug"
	keyRequestTimeout = "extension.request_timeout"
	keyReadyTimeout   = "extension.ready_timeout"
	keySearchRate     = "extension.search_rate"
	keySearchBurst    = "extension.search_burst"
	keyDefaults       = "extension.defaults"
)

// SettingsService manages extension host settings.
type SettingsService struct {
	configStore driven.ConfigStore
	home        string
}

// NewSettingsService creates a new settings service.
// Defaults are resolved relative to home.
func NewSettingsService(configStore driven.ConfigStore, home string) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		home:        home,
	}
}

// Get returns the effective settings: stored values over defaults.
func (s *SettingsService) Get() (domain.ExtensionSettings, error) {
	defaults := domain.DefaultExtensionSettings(s.home)

	settings := domain.ExtensionSettings{
		ModulesDir:     s.getString(keyModulesDir, defaults.ModulesDir),
		HostExecutable: s.configStore.GetString(keyHostExecutable),
		Debug:          s.getBool(keyDebug, defaults.Debug),
		RequestTimeout: s.getDuration(keyRequestTimeout, defaults.RequestTimeout),
		ReadyTimeout:   s.getDuration(keyReadyTimeout, defaults.ReadyTimeout),
		SearchRate:     s.getFloat(keySearchRate, defaults.SearchRate),
		SearchBurst:    s.getInt(keySearchBurst, defaults.SearchBurst),
	}
	for _, id := range s.configStore.GetStringSlice(keyDefaults) {
		settings.Defaults = append(settings.Defaults, domain.ExtensionID(id))
	}

	if err := settings.Validate(); err != nil {
		return domain.ExtensionSettings{}, fmt.Errorf("config %s: %w", s.configStore.Path(), err)
	}
	return settings, nil
}

// Save validates and persists settings.
func (s *SettingsService) Save(settings domain.ExtensionSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	defaults := make([]string, len(settings.Defaults))
	for i, id := range settings.Defaults {
		defaults[i] = string(id)
	}

	values := []struct {
		key   string
		value any
	}{
		{keyModulesDir, settings.ModulesDir},
		{keyHostExecutable, settings.HostExecutable},
		{keyDebug, settings.Debug},
		{keyRequestTimeout, settings.RequestTimeout.String()},
		{keyReadyTimeout, settings.ReadyTimeout.String()},
		{keySearchRate, settings.SearchRate},
		{keySearchBurst, settings.SearchBurst},
		{keyDefaults, defaults},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	if val := s.configStore.GetString(key); val != "" {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetBool(key)
	}
	return defaultVal
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetInt(key)
	}
	return defaultVal
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetFloat(key)
	}
	return defaultVal
}

// getDuration accepts a duration string ("30s") or a number of seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	raw, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	if str, ok := raw.(string); ok {
		d, err := time.ParseDuration(str)
		if err != nil {
			logger.Warn("config %s: invalid duration %q, using %s", key, str, defaultVal)
			return defaultVal
		}
		return d
	}
	return time.Duration(s.configStore.GetFloat(key) * float64(time.Second))
}
