// Package ipc frames extension protocol messages as newline-delimited JSON.
// The host and extension processes share it so both ends agree on framing.
package ipc

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
)

// readBufferSize is the initial read buffer; longer lines still decode.
const readBufferSize = 64 * 1024

// Writer writes one message per line. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a message writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes msg and writes it as a single line.
func (w *Writer) Write(msg domain.Message) error {
	data, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(data)
	return err
}

// Reader reads one message per line.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a message reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Read returns the next message. Blank lines are skipped.
// A malformed line fails with domain.ErrUnexpectedMessage and the reader
// stays usable; any other error comes from the underlying stream.
func (r *Reader) Read() (domain.Message, error) {
	for {
		line, err := r.r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			return domain.DecodeMessage(line)
		}
		if err != nil {
			return nil, err
		}
	}
}
