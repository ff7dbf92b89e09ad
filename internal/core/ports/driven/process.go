package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

// ProcessSpawner starts extension processes.
type ProcessSpawner interface {
	// Spawn starts the process described by spec and returns its channel.
	// The context bounds the start only; it does not own the process lifetime.
	Spawn(ctx context.Context, spec domain.ProcessSpec) (ProcessChannel, error)
}

// ProcessChannel is the bidirectional, order-preserving message pipe to one
// extension process. Delivery is at most once in each direction: if the
// process dies mid-message the message is lost and the caller observes exit.
type ProcessChannel interface {
	// PID returns the operating system process id.
	PID() int

	// Send writes one message to the process.
	// Sends are serialised; Send is safe for concurrent use.
	Send(msg domain.Message) error

	// Messages returns the stream of messages received from the process,
	// in arrival order. Malformed messages are dropped by the channel.
	// The stream is closed once the process has exited.
	Messages() <-chan domain.Message

	// Err returns the process exit error after Messages is closed.
	// A clean exit returns nil.
	Err() error

	// Kill force-terminates the process. Calling Kill more than once is safe.
	Kill() error
}

// ProcessRecordStore persists pid bookkeeping for spawned extension processes.
type ProcessRecordStore interface {
	// Register records a spawned process.
	Register(ctx context.Context, record domain.ProcessRecord) error

	// Unregister removes the record for pid. Unknown pids are not an error.
	Unregister(ctx context.Context, pid int) error

	// List returns all records.
	List(ctx context.Context) ([]domain.ProcessRecord, error)
}

// ProcessInspector examines operating system processes by pid.
type ProcessInspector interface {
	// StartTime returns the creation time of a live process.
	// Returns domain.ErrNotFound if no such process exists.
	StartTime(ctx context.Context, pid int) (time.Time, error)

	// Kill terminates the process.
	Kill(ctx context.Context, pid int) error
}

// ModuleWatcher reports extension modules that changed on disk.
type ModuleWatcher interface {
	// Watch emits the id of every extension whose module under dir changed.
	// The channel is closed when ctx is cancelled or the watcher fails.
	Watch(ctx context.Context, dir string) (<-chan domain.ExtensionID, error)
}
