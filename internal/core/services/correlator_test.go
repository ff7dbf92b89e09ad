package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

func TestCorrelator_RegisterIssuesUniqueIDs(t *testing.T) {
	c := NewCorrelator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _, err := c.Register()
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 100, c.Pending())
}

func TestCorrelator_RegisterSkipsTakenID(t *testing.T) {
	c := NewCorrelator()
	ids := []string{"a", "a", "b"}
	c.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, _, err := c.Register()
	require.NoError(t, err)
	second, _, err := c.Register()
	require.NoError(t, err)

	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestCorrelator_Resolve(t *testing.T) {
	c := NewCorrelator()
	id, results, err := c.Register()
	require.NoError(t, err)

	assert.True(t, c.Resolve(id, json.RawMessage(`["so","docs"]`)))

	result := <-results
	require.NoError(t, result.Err)
	assert.JSONEq(t, `["so","docs"]`, string(result.Data))
	assert.Equal(t, 0, c.Pending())
}

func TestCorrelator_Reject(t *testing.T) {
	c := NewCorrelator()
	id, results, err := c.Register()
	require.NoError(t, err)

	boom := errors.New("boom")
	assert.True(t, c.Reject(id, boom))

	result := <-results
	assert.ErrorIs(t, result.Err, boom)
}

func TestCorrelator_CompletesAtMostOnce(t *testing.T) {
	c := NewCorrelator()
	id, results, err := c.Register()
	require.NoError(t, err)

	assert.True(t, c.Resolve(id, json.RawMessage(`1`)))
	assert.False(t, c.Resolve(id, json.RawMessage(`2`)), "duplicate response")
	assert.False(t, c.Reject(id, errors.New("late")), "reject after resolve")
	assert.Equal(t, 0, c.AbandonAll(nil), "already completed")

	result := <-results
	assert.JSONEq(t, `1`, string(result.Data))
	assert.Empty(t, results, "slot received more than one value")
}

func TestCorrelator_UnknownIDIsNoOp(t *testing.T) {
	c := NewCorrelator()
	_, results, err := c.Register()
	require.NoError(t, err)

	assert.False(t, c.Resolve("stale", json.RawMessage(`{}`)))
	assert.False(t, c.Reject("stale", errors.New("stale")))
	assert.Equal(t, 1, c.Pending())
	assert.Empty(t, results)
}

func TestCorrelator_Release(t *testing.T) {
	c := NewCorrelator()
	id, results, err := c.Register()
	require.NoError(t, err)

	c.Release(id)
	c.Release(id)

	assert.Equal(t, 0, c.Pending())
	assert.False(t, c.Resolve(id, json.RawMessage(`{}`)), "late reply after release is stale")
	assert.Empty(t, results)
}

func TestCorrelator_AbandonAll(t *testing.T) {
	c := NewCorrelator()
	_, first, err := c.Register()
	require.NoError(t, err)
	_, second, err := c.Register()
	require.NoError(t, err)

	reason := fmt.Errorf("%w: process exited", domain.ErrNotRunning)
	assert.Equal(t, 2, c.AbandonAll(reason))

	for _, results := range []<-chan CallResult{first, second} {
		result := <-results
		assert.ErrorIs(t, result.Err, domain.ErrNotRunning)
	}
	assert.Equal(t, 0, c.Pending())

	_, _, err = c.Register()
	assert.ErrorIs(t, err, domain.ErrNotRunning, "closed for new registrations")
}

func TestCorrelator_AbandonAll_DefaultReason(t *testing.T) {
	c := NewCorrelator()
	_, results, err := c.Register()
	require.NoError(t, err)

	c.AbandonAll(nil)

	result := <-results
	assert.ErrorIs(t, result.Err, domain.ErrNotRunning)
}

func TestCorrelator_ConcurrentCompletion(t *testing.T) {
	c := NewCorrelator()
	id, results, err := c.Register()
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var ok bool
			switch n % 3 {
			case 0:
				ok = c.Resolve(id, json.RawMessage(`{}`))
			case 1:
				ok = c.Reject(id, errors.New("rejected"))
			default:
				ok = c.AbandonAll(nil) > 0
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, results, 1)
}
