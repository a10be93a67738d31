package task

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/buildium/internal/host"
)

type recordingLog struct {
	host.Nop
	mu     sync.Mutex
	chunks []string
}

func (r *recordingLog) Write(stream host.Stream, p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, stream.String()+":"+string(p))
}

func TestCapture_SeparatesStreams(t *testing.T) {
	log := &recordingLog{}
	c := NewCapture(log)

	_, err := fmt.Fprint(c.Writer(host.Stdout), "out1\n")
	require.NoError(t, err)
	_, err = fmt.Fprint(c.Writer(host.Stderr), "err1\n")
	require.NoError(t, err)
	_, err = fmt.Fprint(c.Writer(host.Stdout), "out2\n")
	require.NoError(t, err)

	assert.Equal(t, "out1\nout2\n", c.Stdout())
	assert.Equal(t, "err1\n", c.Stderr())
	assert.Equal(t, []string{"stdout:out1\n", "stderr:err1\n", "stdout:out2\n"}, log.chunks)
}

func TestCapture_NilSink(t *testing.T) {
	c := NewCapture(nil)
	n, err := c.Writer(host.Stderr).Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "x", c.Stderr())
}

func TestCapture_ConcurrentWriters(t *testing.T) {
	c := NewCapture(nil)
	var wg sync.WaitGroup
	for _, s := range []host.Stream{host.Stdout, host.Stderr} {
		wg.Add(1)
		go func(s host.Stream) {
			defer wg.Done()
			w := c.Writer(s)
			for i := 0; i < 100; i++ {
				fmt.Fprintf(w, "%d\n", i)
			}
		}(s)
	}
	wg.Wait()

	var want string
	for i := 0; i < 100; i++ {
		want += fmt.Sprintf("%d\n", i)
	}
	assert.Equal(t, want, c.Stdout())
	assert.Equal(t, want, c.Stderr())
}
