package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

// CallResult is the terminal outcome of one request: a payload or an error.
type CallResult struct {
	Data json.RawMessage
	Err  error
}

// Correlator matches responses to outstanding requests by id.
// Each pending slot is completed at most once; the first Resolve, Reject,
// Release or AbandonAll that reaches it removes it from the table.
type Correlator struct {
	mu       sync.Mutex
	pending  map[string]chan CallResult
	closed   bool
	closeErr error
	newID    func() string
}

// NewCorrelator creates an empty correlator that issues UUID request ids.
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string]chan CallResult),
		newID:   func() string { return uuid.New().String() },
	}
}

// Register creates a pending slot and returns its id and result channel.
// The channel receives exactly one value unless the slot is released.
// After AbandonAll, Register fails with the abandonment reason.
func (c *Correlator) Register() (string, <-chan CallResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", nil, c.closeErr
	}

	id := c.newID()
	for _, taken := c.pending[id]; taken; _, taken = c.pending[id] {
		id = c.newID()
	}

	// Buffered so the receive loop never blocks on a caller.
	ch := make(chan CallResult, 1)
	c.pending[id] = ch
	return id, ch, nil
}

// Resolve completes the slot for id with a payload.
// Returns false if no such slot exists (stale or duplicate response).
func (c *Correlator) Resolve(id string, data json.RawMessage) bool {
	return c.complete(id, CallResult{Data: data})
}

// Reject completes the slot for id with an error.
// Returns false if no such slot exists.
func (c *Correlator) Reject(id string, err error) bool {
	return c.complete(id, CallResult{Err: err})
}

// Release removes the slot for id without completing it.
// Used when the caller stops waiting; a late response is then dropped as stale.
func (c *Correlator) Release(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// AbandonAll rejects every pending slot with reason and refuses new registrations.
// Returns the number of slots rejected.
func (c *Correlator) AbandonAll(reason error) int {
	if reason == nil {
		reason = fmt.Errorf("%w: calls abandoned", domain.ErrNotRunning)
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan CallResult)
	if !c.closed {
		c.closed = true
		c.closeErr = reason
	}
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- CallResult{Err: reason}
	}
	return len(pending)
}

// Pending returns the number of outstanding slots.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) complete(id string, result CallResult) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		ch <- result
	}
	return ok
}
