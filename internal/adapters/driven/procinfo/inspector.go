// Package procinfo inspects operating system processes using gopsutil.
package procinfo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
)

// Ensure Inspector implements the interface.
var _ driven.ProcessInspector = (*Inspector)(nil)

// Inspector looks up processes in the host process table.
type Inspector struct{}

// NewInspector creates a new process inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// StartTime returns the creation time of pid.
func (i *Inspector) StartTime(ctx context.Context, pid int) (time.Time, error) {
	p, err := i.lookup(ctx, pid)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, mapError(pid, err)
	}
	return time.UnixMilli(ms), nil
}

// Kill terminates pid with SIGKILL (TerminateProcess on Windows).
func (i *Inspector) Kill(ctx context.Context, pid int) error {
	p, err := i.lookup(ctx, pid)
	if err != nil {
		return err
	}
	if err := p.KillWithContext(ctx); err != nil {
		return mapError(pid, err)
	}
	return nil
}

func (i *Inspector) lookup(ctx context.Context, pid int) (*process.Process, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("%w: pid %d", domain.ErrInvalidInput, pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return nil, mapError(pid, err)
	}
	return p, nil
}

func mapError(pid int, err error) error {
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return fmt.Errorf("%w: process %d", domain.ErrNotFound, pid)
	}
	return fmt.Errorf("process %d: %w", pid, err)
}
