package task

import (
	"bytes"
	"io"
	"sync"

	"github.com/dshills/buildium/internal/host"
)

// Capture accumulates the output of one build. Stdout and stderr are kept
// apart and every write is forwarded to a log view as it arrives.
type Capture struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	sink   host.LogView
}

// NewCapture creates a capture that tees into sink. A nil sink discards.
func NewCapture(sink host.LogView) *Capture {
	if sink == nil {
		sink = host.Nop{}
	}
	return &Capture{sink: sink}
}

// Writer returns an io.Writer for stream. Writes to the same stream keep
// their order in both the buffer and the sink.
func (c *Capture) Writer(stream host.Stream) io.Writer {
	return captureWriter{c: c, stream: stream}
}

// Stdout returns everything written to stdout so far.
func (c *Capture) Stdout() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stdout.String()
}

// Stderr returns everything written to stderr so far.
func (c *Capture) Stderr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stderr.String()
}

func (c *Capture) write(stream host.Stream, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stream == host.Stderr {
		c.stderr.Write(p)
	} else {
		c.stdout.Write(p)
	}
	c.sink.Write(stream, p)
}

type captureWriter struct {
	c      *Capture
	stream host.Stream
}

func (w captureWriter) Write(p []byte) (int, error) {
	w.c.write(w.stream, p)
	return len(p), nil
}
