// Package wrappers guards process-wide streams like stdin and stdout with
// closable shims, so code that insists on closing its reader and writer (the
// repl does) never closes the real thing.
package wrappers

import (
	"errors"
	"io"
)

var ErrClosed = errors.New("closed")

type ReaderWrapper struct {
	isClosed bool
	wrapped  io.Reader
}

func NewReaderWrapper(wraps io.Reader) *ReaderWrapper {
	return &ReaderWrapper{wrapped: wraps}
}

// Close implements repl.ReadCloser.
func (r *ReaderWrapper) Close() error {
	r.isClosed = true
	return nil
}

// Read implements repl.ReadCloser.
func (r *ReaderWrapper) Read(p []byte) (n int, err error) {
	if r.isClosed {
		return 0, ErrClosed
	}
	return r.wrapped.Read(p)
}

type WriterWrapper struct {
	isClosed bool
	wrapped  io.Writer
}

func NewWriterWrapper(wraps io.Writer) *WriterWrapper {
	return &WriterWrapper{wrapped: wraps}
}

func (w *WriterWrapper) Close() error {
	w.isClosed = true
	return nil
}

func (w *WriterWrapper) Write(p []byte) (n int, err error) {
	if w.isClosed {
		return 0, ErrClosed
	}
	return w.wrapped.Write(p)
}
