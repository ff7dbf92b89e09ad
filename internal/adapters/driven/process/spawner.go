package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// Ensure Spawner implements the interface.
var _ driven.ProcessSpawner = (*Spawner)(nil)

// Spawner starts extension processes as children of the host.
type Spawner struct{}

// NewSpawner creates a new process spawner.
func NewSpawner() *Spawner {
	return &Spawner{}
}

// Spawn starts spec's executable with the protocol pipes on fd 3 and fd 4.
// Standard streams are inherited in debug mode and discarded otherwise.
func (s *Spawner) Spawn(ctx context.Context, spec domain.ProcessSpec) (driven.ProcessChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// toChild carries host requests, fromChild carries extension messages.
	toChildR, toChildW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating request pipe: %w", err)
	}
	fromChildR, fromChildW, err := os.Pipe()
	if err != nil {
		closeAll(toChildR, toChildW)
		return nil, fmt.Errorf("creating message pipe: %w", err)
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env()...)
	cmd.ExtraFiles = []*os.File{toChildR, fromChildW}
	if spec.Debug {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	setProcGroupAttr(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(toChildR, toChildW, fromChildR, fromChildW)
		return nil, fmt.Errorf("starting %s: %w", spec.Executable, err)
	}

	// The child holds its own copies now.
	closeAll(toChildR, fromChildW)

	logger.Debug("spawned %s for extension %q (pid %d, debug=%t)",
		spec.Executable, spec.ExtensionID, cmd.Process.Pid, spec.Debug)

	ch := newChannel(cmd, fromChildR, toChildW)
	go ch.run()
	return ch, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
