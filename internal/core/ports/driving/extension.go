package driving

import (
	"context"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

// Extension is the host-side handle of one extension process.
type Extension interface {
	// ID returns the extension identifier.
	ID() domain.ExtensionID

	// PID returns the process id, or 0 if the process never started.
	PID() int

	// State returns the current lifecycle state.
	State() domain.ExtensionState

	// IsReady reports whether the extension has reported ready and is alive.
	IsReady() bool

	// IsActive reports whether the process has not exited or been killed.
	IsActive() bool

	// ExitErr returns why the extension terminated, or nil while it is active.
	ExitErr() error

	// OnceReady calls fn once when the extension becomes ready.
	// If it already is, fn is called before OnceReady returns.
	// The returned func removes the listener if it has not fired yet.
	OnceReady(fn func()) (cancel func())

	// OnceExit calls fn once when the extension terminates, with the exit error.
	// If it already has, fn is called before OnceExit returns.
	OnceExit(fn func(exitErr error)) (cancel func())

	// GetSources lists the sources the extension can search.
	GetSources(ctx context.Context) ([]domain.Source, error)

	// Search runs a query, optionally restricted to some sources.
	Search(ctx context.Context, query string, sources ...domain.Source) ([]domain.SearchResult, error)

	// Terminate kills the process. Calling it more than once is safe.
	Terminate()
}

// ExtensionRegistry owns the live extensions of the host.
type ExtensionRegistry interface {
	// Get returns the live extension for id, starting it if needed.
	Get(ctx context.Context, id domain.ExtensionID) (Extension, error)

	// Terminate kills the extension and removes it.
	Terminate(id domain.ExtensionID) error

	// TerminateAll kills every extension.
	TerminateAll() error

	// List returns a snapshot of the live extensions.
	List() []domain.ExtensionInfo
}
