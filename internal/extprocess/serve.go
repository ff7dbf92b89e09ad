package extprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/ipc"
	"github.com/custodia-labs/sercha-extensions/internal/logger"
)

// File descriptors the host hands to every extension process.
const (
	requestFD = 3
	messageFD = 4
)

// ID returns the extension id the host started this process for.
func ID() domain.ExtensionID {
	return domain.ExtensionID(os.Getenv(domain.EnvExtensionID))
}

// ModulePath returns the module entry point the host resolved.
func ModulePath() string {
	return os.Getenv(domain.EnvExtensionModulePath)
}

// Serve runs the protocol on the inherited descriptors until the host
// closes the channel or ctx ends.
func Serve(ctx context.Context, router *Router) error {
	in, err := openInherited(requestFD, "sercha-requests")
	if err != nil {
		return fmt.Errorf("extension %q was not started by a host: %w", ID(), err)
	}
	out, err := openInherited(messageFD, "sercha-messages")
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("extension %q was not started by a host: %w", ID(), err)
	}
	defer out.Close()

	return NewConn(in, out, router).Serve(ctx)
}

// Conn serves requests from one host connection.
type Conn struct {
	router *Router
	in     io.ReadCloser
	writer *ipc.Writer
}

// NewConn creates a connection reading requests from in and writing to out.
// Serve closes in when it returns.
func NewConn(in io.ReadCloser, out io.Writer, router *Router) *Conn {
	return &Conn{
		router: router,
		in:     in,
		writer: ipc.NewWriter(out),
	}
}

type readResult struct {
	msg domain.Message
	err error
}

// Serve announces ready, handles requests concurrently and announces exit
// when the host closes the channel or ctx ends. In-flight handlers are
// cancelled and awaited before exit is sent.
func (c *Conn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.writer.Write(domain.StatusMessage{Status: domain.StatusReady}); err != nil {
		_ = c.in.Close()
		return fmt.Errorf("announcing ready: %w", err)
	}
	logger.Debug("extension %q ready, serving %v", ID(), c.router.Operations())

	reads := make(chan readResult)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		reader := ipc.NewReader(c.in)
		for {
			msg, err := reader.Read()
			select {
			case reads <- readResult{msg, err}:
			case <-ctx.Done():
				return
			}
			if err != nil && !errors.Is(err, domain.ErrUnexpectedMessage) {
				return
			}
		}
	}()

	var (
		wg       sync.WaitGroup
		serveErr error
	)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case res := <-reads:
			switch {
			case res.err == nil:
			case errors.Is(res.err, domain.ErrUnexpectedMessage):
				logger.Warn("dropping message from host: %v", res.err)
				continue
			case errors.Is(res.err, io.EOF):
				break loop
			default:
				serveErr = fmt.Errorf("reading requests: %w", res.err)
				break loop
			}

			req, ok := res.msg.(domain.RequestMessage)
			if !ok {
				logger.Warn("ignoring %s message from host", res.msg.Type())
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.handle(ctx, req)
			}()
		}
	}

	cancel()
	_ = c.in.Close()
	<-readerDone
	wg.Wait()

	if err := c.writer.Write(domain.StatusMessage{Status: domain.StatusExit}); err != nil {
		logger.Debug("announcing exit: %v", err)
	}
	return serveErr
}

func (c *Conn) handle(ctx context.Context, req domain.RequestMessage) {
	out, err := c.router.dispatch(ctx, req.Operation, req.Data)

	var reply domain.Message = domain.ResponseMessage{ID: req.ID, Data: out}
	if err != nil {
		logger.Debug("%s request %s failed: %v", req.Operation, req.ID, err)
		reply = domain.ErrorResponseMessage{ID: req.ID, Error: errorPayload(err)}
	}
	if err := c.writer.Write(reply); err != nil {
		logger.Warn("replying to %s request %s: %v", req.Operation, req.ID, err)
	}
}
