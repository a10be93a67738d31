package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State is the lifecycle stage of a Process.
type State int

const (
	StateCreated State = iota
	StateRunning
	// StateExited covers any exit that was not caused by a signal.
	StateExited
	// StateKilled means a signal ended the process.
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	}
	return fmt.Sprintf("unknown(%d)", s)
}

// Process is a child command running in its own process group, with the
// ordered queue of signals used to stop it.
type Process struct {
	ID      string
	Name    string
	Cmd     *exec.Cmd
	Started time.Time

	done  chan struct{}
	state atomic.Int32
	code  atomic.Int32
	ended atomic.Int64

	mu      sync.Mutex
	waitErr error
	queue   []syscall.Signal
	killed  bool
}

// NewProcess wraps an unstarted cmd. An empty signals list means
// DefaultSignals.
func NewProcess(id, name string, cmd *exec.Cmd, signals ...syscall.Signal) *Process {
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	p := &Process{
		ID:    id,
		Name:  name,
		Cmd:   cmd,
		done:  make(chan struct{}),
		queue: append([]syscall.Signal(nil), signals...),
	}
	p.code.Store(-1)
	return p
}

func (p *Process) State() State { return State(p.state.Load()) }

// ExitCode is -1 until the process exits, and stays -1 when a signal
// ended it.
func (p *Process) ExitCode() int { return int(p.code.Load()) }

// ExitError returns what exec.Cmd.Wait returned.
func (p *Process) ExitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process exits or ctx ends.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) IsRunning() bool { return p.State() == StateRunning }

func (p *Process) HasExited() bool {
	s := p.State()
	return s == StateExited || s == StateKilled
}

// Killed reports whether SIGKILL was sent.
func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// RemainingSignals returns the unsent part of the queue.
func (p *Process) RemainingSignals() []syscall.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]syscall.Signal(nil), p.queue...)
}

// PID is -1 before start.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// SendNextSignal sends the head of the queue to the process group and
// reports which signal went out. Nothing is sent once the queue is empty,
// SIGKILL has gone out, or the process has exited.
func (p *Process) SendNextSignal() (syscall.Signal, bool, error) {
	p.mu.Lock()
	if p.killed || len(p.queue) == 0 || p.HasExited() {
		p.mu.Unlock()
		return 0, false, nil
	}
	sig := p.queue[0]
	p.queue = p.queue[1:]
	p.killed = sig == syscall.SIGKILL
	p.mu.Unlock()

	if err := p.Signal(sig); err != nil {
		return sig, false, err
	}
	return sig, true, nil
}

// Signal sends sig to the process group. A group that vanished in the
// meantime is not an error.
func (p *Process) Signal(sig syscall.Signal) error {
	if !p.IsRunning() || p.Cmd.Process == nil {
		return fmt.Errorf("signal %v: %w", sig, ErrProcessNotStarted)
	}
	err := signalGroup(p.Cmd.Process, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) || p.HasExited() {
		return nil
	}
	return fmt.Errorf("signal %v: %w", sig, err)
}

// Kill skips the rest of the queue and sends SIGKILL.
func (p *Process) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.queue = nil
	p.mu.Unlock()
	return p.Signal(syscall.SIGKILL)
}

func (p *Process) start() error {
	if !p.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrProcessAlreadyStarted
	}
	setProcessGroup(p.Cmd)
	if err := p.Cmd.Start(); err != nil {
		p.state.Store(int32(StateCreated))
		return fmt.Errorf("start %s: %w", p.Name, err)
	}
	p.Started = time.Now()
	go p.reap()
	return nil
}

func (p *Process) reap() {
	err := p.Cmd.Wait()

	code, state := 0, StateExited
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			state = StateKilled
		}
	case err != nil:
		code = -1
	}

	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	p.code.Store(int32(code))
	p.ended.Store(time.Now().UnixNano())
	p.state.Store(int32(state))
	close(p.done)
}

// Runtime is the time since start, frozen at exit.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	if ended := p.ended.Load(); ended != 0 {
		return time.Unix(0, ended).Sub(p.Started)
	}
	return time.Since(p.Started)
}

var (
	ErrProcessNotStarted     = errors.New("process not started")
	ErrProcessAlreadyStarted = errors.New("process already started")
)
