package domain

import (
	"fmt"
	"path/filepath"
	"time"
)

// Defaults for extension settings.
const (
	// DefaultRequestTimeout bounds a single extension call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultReadyTimeout bounds the wait for a freshly spawned extension to report ready.
	DefaultReadyTimeout = 10 * time.Second

	// DefaultSearchRate is the sustained search rate per extension (requests/second).
	DefaultSearchRate = 10.0

	// DefaultSearchBurst is the search burst size per extension.
	DefaultSearchBurst = 5
)

// ExtensionSettings controls where extension modules live and how their
// processes are started.
type ExtensionSettings struct {
	// ModulesDir holds one entry per extension, named by its ExtensionID.
	ModulesDir string

	// HostExecutable, when set, is spawned for every extension and loads the
	// module named by EXTENSION_MODULE_PATH. When empty the module itself is executed.
	HostExecutable string

	// Debug inherits standard streams so extension logs are visible.
	Debug bool

	// RequestTimeout bounds each call. Zero disables the timeout.
	RequestTimeout time.Duration

	// ReadyTimeout bounds the wait for ready before a search is attempted.
	ReadyTimeout time.Duration

	// SearchRate and SearchBurst throttle searches per extension.
	SearchRate  float64
	SearchBurst int

	// Defaults are the extensions searched when none are named.
	Defaults []ExtensionID
}

// DefaultExtensionSettings returns settings rooted at the given home directory.
func DefaultExtensionSettings(home string) ExtensionSettings {
	return ExtensionSettings{
		ModulesDir:     filepath.Join(home, ".sercha", "extensions"),
		RequestTimeout: DefaultRequestTimeout,
		ReadyTimeout:   DefaultReadyTimeout,
		SearchRate:     DefaultSearchRate,
		SearchBurst:    DefaultSearchBurst,
	}
}

// Validate checks the settings are usable.
func (s ExtensionSettings) Validate() error {
	if s.ModulesDir == "" {
		return fmt.Errorf("%w: modules directory is required", ErrInvalidInput)
	}
	if s.RequestTimeout < 0 || s.ReadyTimeout < 0 {
		return fmt.Errorf("%w: timeouts cannot be negative", ErrInvalidInput)
	}
	if s.SearchRate < 0 || s.SearchBurst < 0 {
		return fmt.Errorf("%w: search rate and burst cannot be negative", ErrInvalidInput)
	}
	for _, id := range s.Defaults {
		if err := id.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ModulePath returns the module entry point for an extension.
func (s ExtensionSettings) ModulePath(id ExtensionID) string {
	return filepath.Join(s.ModulesDir, string(id))
}

// ProcessSpec resolves how to start the given extension.
func (s ExtensionSettings) ProcessSpec(id ExtensionID) (ProcessSpec, error) {
	if err := id.Validate(); err != nil {
		return ProcessSpec{}, err
	}

	modulePath, err := filepath.Abs(s.ModulePath(id))
	if err != nil {
		return ProcessSpec{}, fmt.Errorf("resolving module path for %q: %w", id, err)
	}

	executable := s.HostExecutable
	if executable == "" {
		executable = modulePath
	}

	return ProcessSpec{
		ExtensionID: id,
		Executable:  executable,
		ModulePath:  modulePath,
		Debug:       s.Debug,
	}, nil
}
