package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// Ensure Extension implements the interface.
var _ driving.Extension = (*Extension)(nil)

// ExtensionConfig holds the collaborators of an Extension.
type ExtensionConfig struct {
	// Spawner starts the process. Required.
	Spawner driven.ProcessSpawner

	// Records receives pid bookkeeping. Optional.
	Records driven.ProcessRecordStore

	// RequestTimeout bounds each call. Zero disables the timeout.
	RequestTimeout time.Duration
}

type readyListener struct {
	id uint64
	fn func()
}

type exitListener struct {
	id uint64
	fn func(error)
}

// Extension supervises one extension process: it owns the process channel
// and the correlator, tracks readiness and liveness, and exposes the typed
// operations of the protocol.
type Extension struct {
	id             domain.ExtensionID
	channel        driven.ProcessChannel
	records        driven.ProcessRecordStore
	correlator     *Correlator
	requestTimeout time.Duration

	mu             sync.Mutex
	state          domain.ExtensionState
	exitErr        error
	nextListener   uint64
	readyListeners []readyListener
	exitListeners  []exitListener
	done           chan struct{}
}

// NewExtension spawns the process described by spec and returns immediately
// in the NotReady state. A spawn failure is not returned: the Extension starts
// out Terminated with an ExitErr wrapping domain.ErrSpawnFailed, so callers
// observe it through OnceExit like any other exit.
func NewExtension(ctx context.Context, spec domain.ProcessSpec, cfg ExtensionConfig) *Extension {
	e := &Extension{
		id:             spec.ExtensionID,
		records:        cfg.Records,
		correlator:     NewCorrelator(),
		requestTimeout: cfg.RequestTimeout,
		done:           make(chan struct{}),
	}

	channel, err := cfg.Spawner.Spawn(ctx, spec)
	if err != nil {
		logger.Error("extension %q failed to start: %v", e.id, err)
		e.finish(fmt.Errorf("%w: %s: %w", domain.ErrSpawnFailed, e.id, err))
		return e
	}
	e.channel = channel
	logger.Debug("extension %q spawned with pid %d", e.id, channel.PID())

	if e.records != nil {
		record := domain.ProcessRecord{
			PID:         channel.PID(),
			ExtensionID: e.id,
			HostPID:     os.Getpid(),
			StartedAt:   time.Now(),
		}
		if err := e.records.Register(ctx, record); err != nil {
			logger.Warn("recording pid %d of extension %q: %v", record.PID, e.id, err)
		}
	}

	go e.receive()
	return e
}

// ID returns the extension identifier.
func (e *Extension) ID() domain.ExtensionID {
	return e.id
}

// PID returns the process id, or 0 if the process never started.
func (e *Extension) PID() int {
	if e.channel == nil {
		return 0
	}
	return e.channel.PID()
}

// State returns the current lifecycle state.
func (e *Extension) State() domain.ExtensionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsReady reports whether the extension has reported ready and is alive.
func (e *Extension) IsReady() bool {
	return e.State() == domain.ExtensionReady
}

// IsActive reports whether the process has not exited or been killed.
func (e *Extension) IsActive() bool {
	return e.State() != domain.ExtensionTerminated
}

// ExitErr returns why the extension terminated.
// It is nil while active and after a clean exit or an explicit Terminate.
func (e *Extension) ExitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exitErr
}

// Done returns a channel closed once the exit path has completed.
func (e *Extension) Done() <-chan struct{} {
	return e.done
}

// OnceReady calls fn once when the extension becomes ready.
// If it already is, fn runs before OnceReady returns. Otherwise fn runs on
// its own goroutine, so it may call GetSources or Search. An extension that
// terminates without becoming ready never calls fn.
func (e *Extension) OnceReady(fn func()) func() {
	e.mu.Lock()
	switch e.state {
	case domain.ExtensionReady:
		e.mu.Unlock()
		fn()
		return func() {}
	case domain.ExtensionTerminated:
		e.mu.Unlock()
		return func() {}
	}

	e.nextListener++
	id := e.nextListener
	e.readyListeners = append(e.readyListeners, readyListener{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.readyListeners {
			if l.id == id {
				e.readyListeners = append(e.readyListeners[:i], e.readyListeners[i+1:]...)
				return
			}
		}
	}
}

// OnceExit calls fn once when the extension terminates, with ExitErr.
// If it already has, fn runs before OnceExit returns.
func (e *Extension) OnceExit(fn func(exitErr error)) func() {
	e.mu.Lock()
	if e.state == domain.ExtensionTerminated {
		exitErr := e.exitErr
		e.mu.Unlock()
		fn(exitErr)
		return func() {}
	}

	e.nextListener++
	id := e.nextListener
	e.exitListeners = append(e.exitListeners, exitListener{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.exitListeners {
			if l.id == id {
				e.exitListeners = append(e.exitListeners[:i], e.exitListeners[i+1:]...)
				return
			}
		}
	}
}

// GetSources lists the sources the extension can search.
func (e *Extension) GetSources(ctx context.Context) ([]domain.Source, error) {
	return call(ctx, e, domain.OpGetSources, domain.Empty{})
}

// Search runs a query, optionally restricted to some sources.
func (e *Extension) Search(
	ctx context.Context, query string, sources ...domain.Source,
) ([]domain.SearchResult, error) {
	return call(ctx, e, domain.OpSearch, domain.SearchInput{Query: query, Sources: sources})
}

// Terminate kills the process and runs the exit path immediately:
// pending calls are rejected and exit listeners fire before it returns.
// Calling it more than once is safe.
func (e *Extension) Terminate() {
	if err := e.shutdown(); err != nil {
		logger.Warn("terminating extension %q: %v", e.id, err)
	}
}

// shutdown is Terminate returning cleanup errors of the first call.
func (e *Extension) shutdown() error {
	return e.finish(nil)
}

// call is the request/response algorithm shared by every operation.
func call[I, O any](ctx context.Context, e *Extension, op domain.Operation[I, O], in I) (O, error) {
	var zero O

	if state := e.State(); state != domain.ExtensionReady {
		return zero, fmt.Errorf("%w: extension %q is %s", domain.ErrNotRunning, e.id, state)
	}

	data, err := op.EncodeInput(in)
	if err != nil {
		return zero, err
	}

	id, results, err := e.correlator.Register()
	if err != nil {
		return zero, err
	}

	request := domain.RequestMessage{ID: id, Operation: op.Name(), Data: data}
	if err := e.channel.Send(request); err != nil {
		e.correlator.Release(id)
		return zero, fmt.Errorf("sending %s to extension %q: %w", op.Name(), e.id, err)
	}
	logger.Debug("extension %q: %s request %s sent", e.id, op.Name(), id)

	var timeout <-chan time.Time
	if e.requestTimeout > 0 {
		timer := time.NewTimer(e.requestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case result := <-results:
		if result.Err != nil {
			var remote *domain.RemoteError
			if errors.As(result.Err, &remote) {
				remote.Operation = op.Name()
			}
			return zero, result.Err
		}
		return op.DecodeOutput(result.Data)
	case <-ctx.Done():
		e.correlator.Release(id)
		return zero, ctx.Err()
	case <-timeout:
		e.correlator.Release(id)
		return zero, fmt.Errorf("%w: %s on extension %q after %s",
			domain.ErrRequestTimeout, op.Name(), e.id, e.requestTimeout)
	}
}

// receive processes incoming messages in arrival order until the process exits.
func (e *Extension) receive() {
	for msg := range e.channel.Messages() {
		e.handle(msg)
	}

	var cause error
	if err := e.channel.Err(); err != nil {
		cause = fmt.Errorf("extension %q process exited: %w", e.id, err)
		logger.Warn("%v", cause)
	}
	if err := e.finish(cause); err != nil {
		logger.Warn("cleaning up extension %q: %v", e.id, err)
	}
}

func (e *Extension) handle(msg domain.Message) {
	switch m := msg.(type) {
	case domain.StatusMessage:
		switch m.Status {
		case domain.StatusReady:
			e.markReady()
		case domain.StatusExit:
			logger.Debug("extension %q reported exit", e.id)
			if err := e.finish(nil); err != nil {
				logger.Warn("cleaning up extension %q: %v", e.id, err)
			}
		}
	case domain.ResponseMessage:
		if !e.correlator.Resolve(m.ID, m.Data) {
			logger.Debug("extension %q: dropping response for unknown request %s", e.id, m.ID)
		}
	case domain.ErrorResponseMessage:
		remote := &domain.RemoteError{ExtensionID: e.id, Payload: m.Error}
		if !e.correlator.Reject(m.ID, remote) {
			logger.Debug("extension %q: dropping error response for unknown request %s", e.id, m.ID)
		}
	default:
		logger.Warn("extension %q: %v: %s", e.id, domain.ErrUnexpectedMessage, msg.Type())
	}
}

func (e *Extension) markReady() {
	e.mu.Lock()
	if e.state != domain.ExtensionNotReady {
		e.mu.Unlock()
		return
	}
	e.state = domain.ExtensionReady
	listeners := e.readyListeners
	e.readyListeners = nil
	e.mu.Unlock()

	logger.Info("extension %q ready", e.id)
	if len(listeners) == 0 {
		return
	}
	// Listeners may call operations, whose replies arrive through receive.
	go func() {
		for _, l := range listeners {
			l.fn()
		}
	}()
}

// finish moves to Terminated exactly once: reject pending calls, fire exit
// listeners, drop pid bookkeeping, then make sure the process is gone.
// Later calls are no-ops returning nil.
func (e *Extension) finish(cause error) error {
	e.mu.Lock()
	if e.state == domain.ExtensionTerminated {
		e.mu.Unlock()
		return nil
	}
	e.state = domain.ExtensionTerminated
	e.exitErr = cause
	listeners := e.exitListeners
	e.exitListeners = nil
	e.readyListeners = nil
	e.mu.Unlock()
	defer close(e.done)

	reason := fmt.Errorf("%w: extension %q terminated", domain.ErrNotRunning, e.id)
	if cause != nil {
		reason = fmt.Errorf("%w: extension %q terminated: %w", domain.ErrNotRunning, e.id, cause)
	}
	if n := e.correlator.AbandonAll(reason); n > 0 {
		logger.Debug("extension %q: abandoned %d pending calls", e.id, n)
	}

	for _, l := range listeners {
		l.fn(cause)
	}

	if e.channel == nil {
		return nil
	}

	var err error
	if e.records != nil {
		if uerr := e.records.Unregister(context.Background(), e.channel.PID()); uerr != nil {
			multierr.AppendInto(&err, fmt.Errorf("unregistering pid %d: %w", e.channel.PID(), uerr))
		}
	}
	if kerr := e.channel.Kill(); kerr != nil {
		multierr.AppendInto(&err, fmt.Errorf("killing pid %d: %w", e.channel.PID(), kerr))
	}
	logger.Info("extension %q terminated", e.id)
	return err
}
