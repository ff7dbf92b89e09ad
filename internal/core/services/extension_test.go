package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-extensions/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

func testSpec(id domain.ExtensionID) domain.ProcessSpec {
	return domain.ProcessSpec{
		ExtensionID: id,
		Executable:  "/opt/extensions/" + string(id),
		ModulePath:  "/opt/extensions/" + string(id),
	}
}

// startExtension spawns a fake extension that is terminated when the test ends.
func startExtension(t *testing.T, cfg ExtensionConfig) (*Extension, *fakeChannel) {
	t.Helper()
	spawner := newFakeSpawner()
	cfg.Spawner = spawner

	ext := NewExtension(context.Background(), testSpec("stackoverflow"), cfg)
	t.Cleanup(ext.Terminate)
	return ext, spawner.channel(0)
}

// becomeReady plays the ready status and waits until the host has seen it.
func becomeReady(t *testing.T, ext *Extension, ch *fakeChannel) {
	t.Helper()
	ready := make(chan struct{})
	ext.OnceReady(func() { close(ready) })
	ch.emit(domain.StatusMessage{Status: domain.StatusReady})

	select {
	case <-ready:
	case <-time.After(waitTimeout):
		require.FailNow(t, "extension never became ready")
	}
}

func waitDone(t *testing.T, ext *Extension) {
	t.Helper()
	select {
	case <-ext.Done():
	case <-time.After(waitTimeout):
		require.FailNow(t, "extension never terminated")
	}
}

type searchOutcome struct {
	results []domain.SearchResult
	err     error
}

func searchAsync(ext *Extension, query string) <-chan searchOutcome {
	out := make(chan searchOutcome, 1)
	go func() {
		results, err := ext.Search(context.Background(), query)
		out <- searchOutcome{results: results, err: err}
	}()
	return out
}

func awaitOutcome(t *testing.T, out <-chan searchOutcome) searchOutcome {
	t.Helper()
	select {
	case o := <-out:
		return o
	case <-time.After(waitTimeout):
		require.FailNow(t, "call never completed")
		return searchOutcome{}
	}
}

func TestNewExtension_StartsNotReady(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})

	assert.Equal(t, domain.ExtensionID("stackoverflow"), ext.ID())
	assert.Equal(t, ch.PID(), ext.PID())
	assert.Equal(t, domain.ExtensionNotReady, ext.State())
	assert.False(t, ext.IsReady())
	assert.True(t, ext.IsActive())
	assert.NoError(t, ext.ExitErr())
}

func TestNewExtension_SpawnFailure(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.err = errors.New("exec: no such file")

	ext := NewExtension(context.Background(), testSpec("missing"), ExtensionConfig{Spawner: spawner})

	assert.Equal(t, domain.ExtensionTerminated, ext.State())
	assert.Equal(t, 0, ext.PID())
	assert.ErrorIs(t, ext.ExitErr(), domain.ErrSpawnFailed)

	var got error
	calls := 0
	ext.OnceExit(func(exitErr error) {
		calls++
		got = exitErr
	})
	assert.Equal(t, 1, calls, "exit listener runs immediately")
	assert.ErrorIs(t, got, domain.ErrSpawnFailed)

	readyCalled := false
	ext.OnceReady(func() { readyCalled = true })
	assert.False(t, readyCalled)

	ext.Terminate()
}

func TestExtension_SearchBeforeReady(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})

	_, err := ext.Search(context.Background(), "golang channels")

	assert.ErrorIs(t, err, domain.ErrNotRunning)
	assert.Empty(t, ch.sent, "nothing is sent before ready")
}

func TestExtension_GetSources(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	type outcome struct {
		sources []domain.Source
		err     error
	}
	out := make(chan outcome, 1)
	go func() {
		sources, err := ext.GetSources(context.Background())
		out <- outcome{sources, err}
	}()

	req := ch.nextRequest(t)
	assert.Equal(t, "getSources", req.Operation)
	assert.NotEmpty(t, req.ID)
	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`["so","docs"]`)})

	select {
	case o := <-out:
		require.NoError(t, o.err)
		assert.Equal(t, []domain.Source{"so", "docs"}, o.sources)
	case <-time.After(waitTimeout):
		require.FailNow(t, "getSources never completed")
	}
}

func TestExtension_SearchSendsInput(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	out := make(chan error, 1)
	go func() {
		_, err := ext.Search(context.Background(), "context cancel", "so")
		out <- err
	}()

	req := ch.nextRequest(t)
	assert.Equal(t, "search", req.Operation)
	assert.JSONEq(t, `{"query":"context cancel","sources":["so"]}`, string(req.Data))
	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`[]`)})

	require.NoError(t, <-out)
}

func TestExtension_ConcurrentCallsAnsweredOutOfOrder(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	first := searchAsync(ext, "first")
	req1 := ch.nextRequest(t)
	second := searchAsync(ext, "second")
	req2 := ch.nextRequest(t)
	require.NotEqual(t, req1.ID, req2.ID)

	answer := func(req domain.RequestMessage) json.RawMessage {
		var in domain.SearchInput
		require.NoError(t, json.Unmarshal(req.Data, &in))
		return json.RawMessage(`[{"title":"` + in.Query + `"}]`)
	}
	ch.emit(domain.ResponseMessage{ID: req2.ID, Data: answer(req2)})
	ch.emit(domain.ResponseMessage{ID: req1.ID, Data: answer(req1)})

	o1 := awaitOutcome(t, first)
	o2 := awaitOutcome(t, second)
	require.NoError(t, o1.err)
	require.NoError(t, o2.err)
	require.Len(t, o1.results, 1)
	require.Len(t, o2.results, 1)
	assert.Equal(t, "first", o1.results[0].Title)
	assert.Equal(t, "second", o2.results[0].Title)
}

func TestExtension_ExitRejectsPendingCalls(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	var exits atomic.Int32
	ext.OnceExit(func(error) { exits.Add(1) })

	out := searchAsync(ext, "pending")
	ch.nextRequest(t)
	ch.emit(domain.StatusMessage{Status: domain.StatusExit})

	o := awaitOutcome(t, out)
	assert.ErrorIs(t, o.err, domain.ErrNotRunning)

	waitDone(t, ext)
	ext.Terminate()
	ch.emit(domain.StatusMessage{Status: domain.StatusExit})

	assert.Equal(t, int32(1), exits.Load(), "exactly one exit event")
	assert.Equal(t, domain.ExtensionTerminated, ext.State())
	assert.NoError(t, ext.ExitErr(), "reported exit is clean")
	assert.GreaterOrEqual(t, ch.killCount(), 1, "process is killed if still alive")

	_, err := ext.Search(context.Background(), "after exit")
	assert.ErrorIs(t, err, domain.ErrNotRunning)
}

func TestExtension_StaleResponseIsDropped(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	out := searchAsync(ext, "query")
	req := ch.nextRequest(t)

	ch.emit(domain.ResponseMessage{ID: "unknown", Data: json.RawMessage(`[{"title":"stale"}]`)})
	ch.emit(domain.ErrorResponseMessage{ID: "unknown", Error: json.RawMessage(`"stale"`)})
	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`[{"title":"fresh"}]`)})
	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`[{"title":"duplicate"}]`)})

	o := awaitOutcome(t, out)
	require.NoError(t, o.err)
	require.Len(t, o.results, 1)
	assert.Equal(t, "fresh", o.results[0].Title)
	assert.True(t, ext.IsReady(), "stale messages do not affect state")
}

func TestExtension_UnexpectedMessageIsIgnored(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	ch.emit(domain.RequestMessage{ID: "x", Operation: "search"})
	ch.emit(domain.StatusMessage{Status: domain.StatusReady})

	out := searchAsync(ext, "still works")
	req := ch.nextRequest(t)
	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`[]`)})

	o := awaitOutcome(t, out)
	require.NoError(t, o.err)
	assert.True(t, ext.IsReady())
}

func TestExtension_ErrorResponse(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	out := searchAsync(ext, "query")
	req := ch.nextRequest(t)
	ch.emit(domain.ErrorResponseMessage{ID: req.ID, Error: json.RawMessage(`{"message":"rate limited"}`)})

	o := awaitOutcome(t, out)
	var remote *domain.RemoteError
	require.ErrorAs(t, o.err, &remote)
	assert.Equal(t, domain.ExtensionID("stackoverflow"), remote.ExtensionID)
	assert.Equal(t, "search", remote.Operation)
	assert.Equal(t, "rate limited", remote.Message())
	assert.True(t, ext.IsReady(), "a failed request does not terminate the extension")
}

func TestExtension_MalformedResponsePayload(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	out := searchAsync(ext, "query")
	req := ch.nextRequest(t)
	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`{"not":"a list"}`)})

	o := awaitOutcome(t, out)
	assert.ErrorIs(t, o.err, domain.ErrUnexpectedMessage)
}

func TestExtension_RequestTimeout(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{RequestTimeout: 50 * time.Millisecond})
	becomeReady(t, ext, ch)

	out := searchAsync(ext, "slow")
	req := ch.nextRequest(t)

	o := awaitOutcome(t, out)
	assert.ErrorIs(t, o.err, domain.ErrRequestTimeout)
	assert.Equal(t, 0, ext.correlator.Pending(), "slot released")

	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`[]`)})
	assert.True(t, ext.IsReady(), "late reply is a stale drop")
}

func TestExtension_ContextCancelled(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan error, 1)
	go func() {
		_, err := ext.Search(ctx, "query")
		out <- err
	}()
	ch.nextRequest(t)
	cancel()

	select {
	case err := <-out:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitTimeout):
		require.FailNow(t, "call ignored cancellation")
	}
	assert.Equal(t, 0, ext.correlator.Pending())
}

func TestExtension_SendFailureReleasesSlot(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	ch.mu.Lock()
	ch.sendErr = errors.New("broken pipe")
	ch.mu.Unlock()

	_, err := ext.Search(context.Background(), "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, 0, ext.correlator.Pending())
}

func TestExtension_OnceReady(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})

	var calls atomic.Int32
	ext.OnceReady(func() { calls.Add(1) })
	cancel := ext.OnceReady(func() { calls.Add(100) })
	cancel()

	becomeReady(t, ext, ch)
	ch.emit(domain.StatusMessage{Status: domain.StatusReady})
	assert.Equal(t, int32(1), calls.Load(), "cancelled listener never fires")

	// Already ready: the listener runs before OnceReady returns.
	immediate := false
	ext.OnceReady(func() { immediate = true })
	assert.True(t, immediate)
}

func TestExtension_OnceReady_ListenerCallsOperation(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})

	out := make(chan error, 1)
	ext.OnceReady(func() {
		_, err := ext.GetSources(context.Background())
		out <- err
	})
	ch.emit(domain.StatusMessage{Status: domain.StatusReady})

	req := ch.nextRequest(t)
	ch.emit(domain.ResponseMessage{ID: req.ID, Data: json.RawMessage(`["so"]`)})

	select {
	case err := <-out:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		require.FailNow(t, "call from ready listener never completed")
	}
}

func TestExtension_OnceExit_Cancelled(t *testing.T) {
	ext, _ := startExtension(t, ExtensionConfig{})

	called := false
	cancel := ext.OnceExit(func(error) { called = true })
	cancel()
	ext.Terminate()

	assert.False(t, called)
}

func TestExtension_TerminateIsIdempotent(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	var exits atomic.Int32
	ext.OnceExit(func(exitErr error) {
		assert.NoError(t, exitErr)
		exits.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ext.Terminate()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), exits.Load())
	assert.Equal(t, 1, ch.killCount())
	assert.False(t, ext.IsActive())
	assert.NoError(t, ext.ExitErr())

	// Exit listeners registered afterwards run immediately.
	late := false
	ext.OnceExit(func(error) { late = true })
	assert.True(t, late)
}

func TestExtension_ProcessCrash(t *testing.T) {
	ext, ch := startExtension(t, ExtensionConfig{})
	becomeReady(t, ext, ch)

	exitErrs := make(chan error, 1)
	ext.OnceExit(func(exitErr error) { exitErrs <- exitErr })

	out := searchAsync(ext, "query")
	ch.nextRequest(t)
	ch.exit(errors.New("signal: segmentation fault"))

	o := awaitOutcome(t, out)
	assert.ErrorIs(t, o.err, domain.ErrNotRunning)

	select {
	case exitErr := <-exitErrs:
		require.Error(t, exitErr)
		assert.Contains(t, exitErr.Error(), "segmentation fault")
	case <-time.After(waitTimeout):
		require.FailNow(t, "exit listener never fired")
	}
	assert.Error(t, ext.ExitErr())
}

func TestExtension_ProcessRecords(t *testing.T) {
	records := memory.NewProcessStore()
	ext, ch := startExtension(t, ExtensionConfig{Records: records})

	list, err := records.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ch.PID(), list[0].PID)
	assert.Equal(t, domain.ExtensionID("stackoverflow"), list[0].ExtensionID)
	assert.NotZero(t, list[0].HostPID)
	assert.False(t, list[0].StartedAt.IsZero())

	ext.Terminate()

	list, err = records.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
