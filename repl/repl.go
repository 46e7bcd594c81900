// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

type MessageHandler func(string, *Repl) (string, error)

// ReadCloser combines the Reader and Closer interfaces
type ReadCloser interface {
	io.Reader
	io.Closer
}

type Repl struct {
	Input  ReadCloser
	Output io.WriteCloser
	// Written before every read when not empty
	Prompt  string
	scanner *bufio.Scanner
	// writeLock guards writer: Println may run from another goroutine while
	// the Run loop writes prompts and results
	writeLock sync.Mutex
	writer    *bufio.Writer
}

// Creates a new repl
// If no input is given, stdin will be used
// If no output is given, stdout will be used
// Note: The given reader and writer will be closed if the repl is started and then stops
func NewRepl(in ReadCloser, out io.WriteCloser) Repl {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return Repl{
		Input:   in,
		Output:  out,
		Prompt:  "> ",
		scanner: bufio.NewScanner(in),
		writer:  bufio.NewWriter(out),
	}
}

// Starts the repl
// Blocks execution until the repl closes
// All input will be passed to the handler func
// If it receives an error from the message handler or during writing, it calls Close
func (r *Repl) Run(onMessage MessageHandler) error {
	r.prompt()
	for r.scanner.Scan() {
		newMessage := r.scanner.Text()
		res, err := onMessage(newMessage, r)
		if err != nil {
			r.Close()
			return fmt.Errorf("message handler errored out on message \"%s\": %w", newMessage, err)
		}
		if res != "" {
			if err = r.writeLine(res); err != nil {
				r.Close()
				return fmt.Errorf("failed to write result \"%s\": %w", res, err)
			}
		}
		r.prompt()
	}
	return nil
}

// Println writes a line outside the normal request/response flow, e.g. for
// asynchronous event output. Safe to call from other goroutines while Run
// is looping.
func (r *Repl) Println(line string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()
	if _, err := r.writer.WriteString(line + "\n"); err != nil {
		return err
	}
	return r.writer.Flush()
}

func (r *Repl) writeLine(line string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()
	_, err := r.writer.WriteString(line + "\n")
	return err
}

func (r *Repl) prompt() {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()
	if r.Prompt != "" {
		_, _ = r.writer.WriteString(r.Prompt)
	}
	_ = r.writer.Flush()
}

// Close stops the repl if it was still running
// This will also close the reader and writer
func (r *Repl) Close() {
	r.Input.Close()
	r.Output.Close()
}
