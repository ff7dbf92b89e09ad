package driving

import "github.com/custodia-labs/sercha-extensions/internal/core/domain"

// SettingsService manages extension host settings.
type SettingsService interface {
	// Get returns the effective settings, defaults applied.
	Get() (domain.ExtensionSettings, error)

	// Save validates and persists settings.
	Save(settings domain.ExtensionSettings) error
}
