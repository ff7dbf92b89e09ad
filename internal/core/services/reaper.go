package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// startTimeTolerance absorbs the gap between fork and the recorded start time.
const startTimeTolerance = 5 * time.Second

// Reaper kills extension processes left behind by a host that died without
// shutting down. A record is reaped only if its host is gone and the pid
// still names the process that was recorded.
type Reaper struct {
	records   driven.ProcessRecordStore
	inspector driven.ProcessInspector
	selfPID   int
}

// NewReaper creates a reaper for the current host process.
func NewReaper(records driven.ProcessRecordStore, inspector driven.ProcessInspector) *Reaper {
	return &Reaper{
		records:   records,
		inspector: inspector,
		selfPID:   os.Getpid(),
	}
}

// Reap sweeps the process records and returns how many processes it killed.
// Records of exited processes are dropped; records of another live host are kept.
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	records, err := r.records.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing process records: %w", err)
	}

	var (
		reaped int
		errs   error
	)
	for _, record := range records {
		if record.HostPID != r.selfPID && r.alive(ctx, record.HostPID) {
			logger.Debug("pid %d belongs to live host %d, skipping", record.PID, record.HostPID)
			continue
		}

		killed, err := r.reap(ctx, record)
		if err != nil {
			multierr.AppendInto(&errs, err)
			continue
		}
		if killed {
			reaped++
		}
		if err := r.records.Unregister(ctx, record.PID); err != nil {
			multierr.AppendInto(&errs, fmt.Errorf("unregistering pid %d: %w", record.PID, err))
		}
	}
	return reaped, errs
}

// reap kills the recorded process if it is still the same process.
func (r *Reaper) reap(ctx context.Context, record domain.ProcessRecord) (bool, error) {
	started, err := r.inspector.StartTime(ctx, record.PID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspecting pid %d: %w", record.PID, err)
	}

	if !sameStart(started, record.StartedAt) {
		logger.Debug("pid %d was reused (started %s, recorded %s)", record.PID, started, record.StartedAt)
		return false, nil
	}

	logger.Info("killing orphaned extension %q (pid %d)", record.ExtensionID, record.PID)
	if err := r.inspector.Kill(ctx, record.PID); err != nil {
		return false, fmt.Errorf("killing orphaned pid %d: %w", record.PID, err)
	}
	return true, nil
}

func (r *Reaper) alive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := r.inspector.StartTime(ctx, pid)
	return err == nil
}

func sameStart(actual, recorded time.Time) bool {
	d := actual.Sub(recorded)
	if d < 0 {
		d = -d
	}
	return d <= startTimeTolerance
}
