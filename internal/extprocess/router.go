// Package extprocess is the extension side of the host protocol. An
// extension executable written in Go registers typed handlers on a Router
// and calls Serve; the host's requests arrive on fd 3 and replies leave on fd 4.
package extprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

// HandlerFunc serves one raw request payload.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (json.RawMessage, error)

// Router maps operation names to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for op, replacing any earlier handler.
// Input decoding and output encoding follow op's types.
func Handle[I, O any](r *Router, op domain.Operation[I, O], fn func(ctx context.Context, in I) (O, error)) {
	r.HandleRaw(op.Name(), func(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
		in, err := op.DecodeInput(data)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return op.EncodeOutput(out)
	})
}

// HandleRaw registers an untyped handler for the named operation.
func (r *Router) HandleRaw(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Operations returns the registered operation names, sorted.
func (r *Router) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dispatch runs the handler for name. Panics become errors.
func (r *Router) dispatch(ctx context.Context, name string, data json.RawMessage) (out json.RawMessage, err error) {
	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", domain.ErrNotFound, name)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("operation %q panicked: %v", name, p)
		}
	}()
	return fn(ctx, data)
}

// Error is a handler error with a machine-readable code.
// It is sent to the host as {"message": ..., "code": ...}.
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// errorPayload encodes a handler error for the wire.
func errorPayload(err error) json.RawMessage {
	payload := &Error{Message: err.Error()}
	var typed *Error
	if errors.As(err, &typed) {
		payload = typed
	}
	data, mErr := json.Marshal(payload)
	if mErr != nil {
		data, _ = json.Marshal(&Error{Message: err.Error()})
	}
	return data
}
