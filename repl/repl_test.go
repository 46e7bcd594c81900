package repl

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sink is a WriteCloser the tests can read back from
type sink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *sink) Close() error { return nil }

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestRunEchoesHandlerResults(t *testing.T) {
	out := &sink{}
	r := NewRepl(io.NopCloser(strings.NewReader("ping\npong\n")), out)

	err := r.Run(func(input string, r *Repl) (string, error) {
		return "got " + input, nil
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "got ping")
	assert.Contains(t, out.String(), "got pong")
}

func TestPrintlnConcurrentWithRun(t *testing.T) {
	// Println is how async event lines reach the terminal while the Run loop
	// keeps writing prompts and results; both paths share one writer and must
	// not trample each other's buffer.
	pr, pw := io.Pipe()
	out := &sink{}
	r := NewRepl(pr, out)

	runDone := make(chan error, 1)
	go func() {
		runDone <- r.Run(func(input string, r *Repl) (string, error) {
			return "got " + input, nil
		})
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = r.Println("event line")
		}
	}()

	for i := 0; i < 100; i++ {
		_, err := pw.Write([]byte("ping\n"))
		require.NoError(t, err)
	}
	wg.Wait()
	require.NoError(t, pw.Close())
	require.NoError(t, <-runDone)

	assert.Contains(t, out.String(), "got ping")
	assert.Contains(t, out.String(), "event line")
}
