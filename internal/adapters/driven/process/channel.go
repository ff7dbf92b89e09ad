package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extensions/internal/ipc"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// drainTimeout bounds reading what an exited process left in the pipe.
// A grandchild holding the write end open would otherwise block forever.
const drainTimeout = 200 * time.Millisecond

// Ensure Channel implements the interface.
var _ driven.ProcessChannel = (*Channel)(nil)

// Channel is the message pipe to one running extension process.
type Channel struct {
	cmd      *exec.Cmd
	pid      int
	out      *os.File
	in       *os.File
	writer   *ipc.Writer
	messages chan domain.Message
	done     chan struct{}

	mu     sync.Mutex
	killed bool
	exited bool
	err    error
}

func newChannel(cmd *exec.Cmd, out, in *os.File) *Channel {
	return &Channel{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		out:      out,
		in:       in,
		writer:   ipc.NewWriter(in),
		messages: make(chan domain.Message, 16),
		done:     make(chan struct{}),
	}
}

// PID returns the operating system process id.
func (c *Channel) PID() int {
	return c.pid
}

// Send writes one message to the process.
func (c *Channel) Send(msg domain.Message) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: process %d has exited", domain.ErrNotRunning, c.pid)
	default:
	}
	if err := c.writer.Write(msg); err != nil {
		return fmt.Errorf("writing to process %d: %w", c.pid, err)
	}
	return nil
}

// Messages returns the messages received from the process.
// It is closed after the process has exited.
func (c *Channel) Messages() <-chan domain.Message {
	return c.messages
}

// Err returns the exit error once Messages is closed.
// A killed process reports nil; the kill was asked for.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Kill sends SIGKILL to the process group.
// It does nothing once the process has been reaped, so a reused pid is never signalled.
func (c *Channel) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exited {
		return nil
	}
	c.killed = true

	if err := killProcessGroup(c.cmd.Process); err != nil {
		return fmt.Errorf("killing process %d: %w", c.pid, err)
	}
	return nil
}

// Done is closed once the process has exited and Messages is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// run reads until the process exits, then reaps it and closes the stream.
func (c *Channel) run() {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readLoop()
	}()

	waitErr := c.cmd.Wait()

	c.mu.Lock()
	c.exited = true
	if !c.killed {
		c.err = waitErr
	}
	c.mu.Unlock()

	if err := c.out.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
		_ = c.out.Close()
	}
	<-readDone

	_ = c.out.Close()
	_ = c.in.Close()
	logger.Debug("process %d exited: %v", c.pid, waitErr)

	close(c.messages)
	close(c.done)
}

func (c *Channel) readLoop() {
	reader := ipc.NewReader(c.out)
	for {
		msg, err := reader.Read()
		switch {
		case err == nil:
			c.messages <- msg
		case errors.Is(err, domain.ErrUnexpectedMessage):
			logger.Warn("process %d: dropping message: %v", c.pid, err)
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, os.ErrClosed):
			return
		default:
			logger.Warn("process %d: reading messages: %v", c.pid, err)
			return
		}
	}
}
