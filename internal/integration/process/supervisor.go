package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Supervisor starts processes, tracks them until they exit, and can cap
// how many run at once. It is safe for concurrent use.
type Supervisor struct {
	mu      sync.Mutex
	running map[string]*Process
	closed  bool

	limit     int
	waitDelay time.Duration
	onExit    func(p *Process)
	logger    *slog.Logger
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithMaxProcesses caps concurrently running processes. Zero means no cap.
func WithMaxProcesses(n int) SupervisorOption {
	return func(s *Supervisor) { s.limit = n }
}

// WithProcessExitCallback registers fn to run after each exit. The
// process is untracked first, so fn may start its successor.
func WithProcessExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) { s.onExit = fn }
}

// WithWaitDelay bounds how long output pipes held by grandchildren are
// drained after the child exits. Commands with their own WaitDelay keep it.
func WithWaitDelay(d time.Duration) SupervisorOption {
	return func(s *Supervisor) { s.waitDelay = d }
}

func WithLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l }
}

func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		running:   make(map[string]*Process),
		waitDelay: 2 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")
	return s
}

// StartWithID runs cmd as process id with the given termination queue. An
// empty id is replaced by a fresh one. Output the caller did not redirect
// is discarded. A command that fails to start is never tracked.
func (s *Supervisor) StartWithID(id, name string, cmd *exec.Cmd, signals ...syscall.Signal) (*Process, error) {
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return nil, ErrSupervisorShutdown
	case s.limit > 0 && len(s.running) >= s.limit:
		return nil, fmt.Errorf("%w: %d", ErrProcessLimit, s.limit)
	case s.running[id] != nil:
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = s.waitDelay
	}
	p := NewProcess(id, name, cmd, signals...)
	if err := p.start(); err != nil {
		return nil, err
	}
	s.running[id] = p
	s.logger.Debug("process started", "id", id, "name", name, "pid", p.PID())

	go s.untrackOnExit(p)
	return p, nil
}

func (s *Supervisor) untrackOnExit(p *Process) {
	<-p.Done()

	s.mu.Lock()
	delete(s.running, p.ID)
	s.mu.Unlock()

	s.logger.Debug("process exited",
		"id", p.ID,
		"name", p.Name,
		"code", p.ExitCode(),
		"state", p.State().String(),
		"runtime", p.Runtime(),
	)
	if s.onExit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("process exit callback panicked", "id", p.ID, "panic", r)
		}
	}()
	s.onExit(p)
}

// Kill sends SIGKILL to process id.
func (s *Supervisor) Kill(id string) error {
	s.mu.Lock()
	p := s.running[id]
	s.mu.Unlock()
	if p == nil {
		return ErrProcessNotFound
	}
	if !p.IsRunning() {
		return nil
	}
	return p.Kill()
}

// Shutdown refuses further starts, sends SIGTERM to every running process
// and waits up to timeout before killing the survivors. It returns once
// all of them have exited.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	procs := s.snapshot()
	if len(procs) == 0 {
		return
	}
	for _, p := range procs {
		_ = p.Signal(syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, p := range procs {
			<-p.Done()
		}
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		for _, p := range procs {
			if p.IsRunning() {
				_ = p.Kill()
			}
		}
		<-done
	}
}

func (s *Supervisor) snapshot() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Process, 0, len(s.running))
	for _, p := range s.running {
		out = append(out, p)
	}
	return out
}

var (
	ErrProcessNotFound    = errors.New("process not found")
	ErrProcessLimit       = errors.New("process limit reached")
	ErrDuplicateID        = errors.New("duplicate process id")
	ErrSupervisorShutdown = errors.New("supervisor is shutting down")

	// ErrUnknownSignal is returned by ParseSignal.
	ErrUnknownSignal = errors.New("unknown signal")
)
