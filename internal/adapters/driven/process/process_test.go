package process

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/services"
	"github.com/custodia-labs/sercha-extensions/internal/extprocess"
)

const waitTimeout = 5 * time.Second

// TestMain doubles as the extension executable: the spawner re-executes the
// test binary with EXTENSION_ID set, and the id picks the behaviour.
func TestMain(m *testing.M) {
	if id := os.Getenv(domain.EnvExtensionID); id != "" {
		os.Exit(runExtension(domain.ExtensionID(id)))
	}
	os.Exit(m.Run())
}

func runExtension(id domain.ExtensionID) int {
	// Serve opens fd 4 again; keep this handle reachable so its finalizer
	// does not close the descriptor underneath it.
	messages := os.NewFile(4, "messages")
	defer runtime.KeepAlive(messages)

	switch id {
	case "crash":
		fmt.Fprintln(messages, `{"type":"status","status":"ready"}`)
		return 3
	case "garbage":
		fmt.Fprintln(messages, `this is not json`)
	}

	router := extprocess.NewRouter()
	extprocess.Handle(router, domain.OpGetSources, func(context.Context, domain.Empty) ([]domain.Source, error) {
		return []domain.Source{
			domain.Source(extprocess.ID()),
			domain.Source(filepath.Base(extprocess.ModulePath())),
		}, nil
	})
	extprocess.Handle(router, domain.OpSearch, func(_ context.Context, in domain.SearchInput) ([]domain.SearchResult, error) {
		return []domain.SearchResult{{Title: in.Query, Source: "echo"}}, nil
	})
	if err := extprocess.Serve(context.Background(), router); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func testSpec(t *testing.T, id domain.ExtensionID) domain.ProcessSpec {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)
	return domain.ProcessSpec{
		ExtensionID: id,
		Executable:  self,
		ModulePath:  filepath.Join(t.TempDir(), string(id)+"-module"),
	}
}

func spawn(t *testing.T, id domain.ExtensionID) *Channel {
	t.Helper()
	pc, err := NewSpawner().Spawn(context.Background(), testSpec(t, id))
	require.NoError(t, err)
	ch := pc.(*Channel)
	t.Cleanup(func() {
		_ = ch.Kill()
		<-ch.Done()
	})
	return ch
}

func next(t *testing.T, ch *Channel) domain.Message {
	t.Helper()
	select {
	case msg, ok := <-ch.Messages():
		require.True(t, ok, "process exited")
		return msg
	case <-time.After(waitTimeout):
		require.FailNow(t, "no message from process")
		return nil
	}
}

func waitExit(t *testing.T, ch *Channel) {
	t.Helper()
	for {
		select {
		case _, ok := <-ch.Messages():
			if !ok {
				return
			}
		case <-time.After(waitTimeout):
			require.FailNow(t, "process never exited")
		}
	}
}

func TestSpawner_RoundTrip(t *testing.T) {
	ch := spawn(t, "echo")
	assert.Positive(t, ch.PID())

	assert.Equal(t, domain.StatusMessage{Status: domain.StatusReady}, next(t, ch))

	require.NoError(t, ch.Send(domain.RequestMessage{ID: "r1", Operation: "getSources", Data: json.RawMessage(`{}`)}))
	msg := next(t, ch)
	resp, ok := msg.(domain.ResponseMessage)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "r1", resp.ID)
	assert.JSONEq(t, `["echo","echo-module"]`, string(resp.Data), "environment reaches the process")
}

func TestSpawner_KillEndsStream(t *testing.T) {
	ch := spawn(t, "echo")
	next(t, ch)

	require.NoError(t, ch.Kill())
	waitExit(t, ch)

	assert.NoError(t, ch.Err(), "a requested kill is not an exit error")
	assert.NoError(t, ch.Kill(), "kill after exit is a no-op")
	assert.ErrorIs(t, ch.Send(domain.StatusMessage{Status: domain.StatusReady}), domain.ErrNotRunning)
}

func TestSpawner_HostCloseMakesExtensionExit(t *testing.T) {
	ch := spawn(t, "echo")
	next(t, ch)

	require.NoError(t, ch.in.Close())

	assert.Equal(t, domain.StatusMessage{Status: domain.StatusExit}, next(t, ch))
	waitExit(t, ch)
	assert.NoError(t, ch.Err())
}

func TestSpawner_ExitStatus(t *testing.T) {
	ch := spawn(t, "crash")

	assert.Equal(t, domain.StatusMessage{Status: domain.StatusReady}, next(t, ch))
	waitExit(t, ch)

	var exitErr *exec.ExitError
	require.ErrorAs(t, ch.Err(), &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
}

func TestSpawner_MalformedLineIsDropped(t *testing.T) {
	ch := spawn(t, "garbage")

	assert.Equal(t, domain.StatusMessage{Status: domain.StatusReady}, next(t, ch))
}

func TestSpawner_MissingExecutable(t *testing.T) {
	spec := testSpec(t, "missing")
	spec.Executable = filepath.Join(t.TempDir(), "does-not-exist")

	_, err := NewSpawner().Spawn(context.Background(), spec)

	assert.Error(t, err)
}

func TestSpawner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSpawner().Spawn(ctx, testSpec(t, "echo"))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtension_EndToEnd(t *testing.T) {
	ext := services.NewExtension(context.Background(), testSpec(t, "echo"), services.ExtensionConfig{
		Spawner:        NewSpawner(),
		RequestTimeout: waitTimeout,
	})
	t.Cleanup(ext.Terminate)

	ready := make(chan struct{})
	ext.OnceReady(func() { close(ready) })
	select {
	case <-ready:
	case <-time.After(waitTimeout):
		require.FailNow(t, "extension never became ready")
	}

	results, err := ext.Search(context.Background(), "goroutines", "so")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "goroutines", results[0].Title)

	sources, err := ext.GetSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{"echo", "echo-module"}, sources)

	exited := make(chan error, 1)
	ext.OnceExit(func(exitErr error) { exited <- exitErr })
	ext.Terminate()

	assert.NoError(t, <-exited)
	assert.Equal(t, domain.ExtensionTerminated, ext.State())
}

func TestExtension_EndToEnd_Crash(t *testing.T) {
	ext := services.NewExtension(context.Background(), testSpec(t, "crash"), services.ExtensionConfig{
		Spawner: NewSpawner(),
	})
	t.Cleanup(ext.Terminate)

	select {
	case <-ext.Done():
	case <-time.After(waitTimeout):
		require.FailNow(t, "extension never exited")
	}
	assert.Error(t, ext.ExitErr())
	assert.Contains(t, ext.ExitErr().Error(), "exit status 3")
}
