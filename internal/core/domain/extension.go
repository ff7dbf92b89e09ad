package domain

import (
	"fmt"
	"strings"
	"time"
)

// Environment variables passed to every extension process.
const (
	// EnvExtensionID names the extension module the process should load.
	EnvExtensionID = "EXTENSION_ID"

	// EnvExtensionModulePath is the absolute path to the module's entry point.
	EnvExtensionModulePath = "EXTENSION_MODULE_PATH"
)

// ExtensionID names an extension module (e.g. "stackoverflow").
type ExtensionID string

// Validate reports whether the id can safely name a module directory entry.
func (id ExtensionID) Validate() error {
	s := string(id)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty extension id", ErrInvalidInput)
	}
	if s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("%w: extension id %q is not a plain name", ErrInvalidInput, s)
	}
	return nil
}

// ExtensionState is the lifecycle state of an extension process.
type ExtensionState int

const (
	// ExtensionNotReady is the initial state, before the first ready status.
	ExtensionNotReady ExtensionState = iota
	// ExtensionReady means the process reported ready and is alive.
	ExtensionReady
	// ExtensionTerminated is absorbing: the process exited or was killed.
	ExtensionTerminated
)

// String returns a human-readable state name.
func (s ExtensionState) String() string {
	switch s {
	case ExtensionNotReady:
		return "not ready"
	case ExtensionReady:
		return "ready"
	case ExtensionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ProcessSpec describes how to start one extension process.
type ProcessSpec struct {
	// ExtensionID is the extension the process serves.
	ExtensionID ExtensionID

	// Executable is the program to run.
	Executable string

	// Args are command-line arguments.
	Args []string

	// ModulePath is the module entry point, exported as EXTENSION_MODULE_PATH.
	ModulePath string

	// Debug inherits the host's standard streams instead of discarding them.
	Debug bool
}

// Env returns the extension-specific environment entries.
// The spawner appends them to the host environment.
func (p ProcessSpec) Env() []string {
	return []string{
		EnvExtensionID + "=" + string(p.ExtensionID),
		EnvExtensionModulePath + "=" + p.ModulePath,
	}
}

// ExtensionInfo is a snapshot of a live extension for listing.
type ExtensionInfo struct {
	ID    ExtensionID
	PID   int
	State ExtensionState
}

// ProcessRecord is the host's bookkeeping entry for a spawned extension process.
// Records outlive a crashed host so the next run can reap orphans.
type ProcessRecord struct {
	// PID is the operating system process id.
	PID int

	// ExtensionID is the extension the process served.
	ExtensionID ExtensionID

	// HostPID is the host process that spawned it. Records of a live host are left alone.
	HostPID int

	// StartedAt is the process creation time, used to detect pid reuse.
	StartedAt time.Time
}
