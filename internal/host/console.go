package host

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Console renders notifications and build output as plain lines.
// It implements Notifier, LogView, FileOpener, Busy, StatusBar, Linter and
// Beeper.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	err    io.Writer
	logger *slog.Logger
	lint   []LintMessage
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithConsoleLogger sets the logger used for busy-indicator tracing.
func WithConsoleLogger(l *slog.Logger) ConsoleOption {
	return func(c *Console) {
		c.logger = l
	}
}

// NewConsole writes build output to out and everything else to errOut.
func NewConsole(out, errOut io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{out: out, err: errOut, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "console")
	return c
}

func (c *Console) printf(w io.Writer, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(w, format, args...)
}

// Notify prints the notification to the error writer.
func (c *Console) Notify(n Notification) {
	line := fmt.Sprintf("[%s] %s", n.Level, n.Title)
	if n.Detail != "" {
		line += ": " + n.Detail
	}
	c.printf(c.err, "%s\n", line)
	if n.Stack != "" {
		c.printf(c.err, "%s\n", n.Stack)
	}
}

// Open prints the location it was asked to open (one-based).
func (c *Console) Open(path string, line, column int) error {
	c.printf(c.err, "open %s:%d:%d\n", path, line+1, column+1)
	return nil
}

func (c *Console) Begin(id, title string) {
	c.logger.Debug("busy", "id", id, "title", title)
}

func (c *Console) End(id string, success bool) {
	c.logger.Debug("idle", "id", id, "success", success)
}

func (c *Console) SetTarget(name string) {
	c.logger.Debug("active target", "target", name)
}

func (c *Console) SetStatus(status BuildStatus, elapsed time.Duration) {
	if status == StatusRunning || status == StatusIdle {
		return
	}
	c.printf(c.err, "build %s in %.1fs\n", status, elapsed.Seconds())
}

// SetMessages records and prints lint messages.
func (c *Console) SetMessages(msgs []LintMessage) {
	c.mu.Lock()
	c.lint = append([]LintMessage(nil), msgs...)
	c.mu.Unlock()

	for _, m := range msgs {
		loc := m.FilePath
		if m.Range != nil {
			loc = fmt.Sprintf("%s:%d:%d", m.FilePath, m.Range[0].Line+1, m.Range[0].Column+1)
		}
		sev := m.Severity
		if sev == "" {
			sev = m.Type
		}
		c.printf(c.err, "%s: %s: %s\n", loc, sev, m.Text)
	}
}

// Messages returns the last lint messages set.
func (c *Console) Messages() []LintMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LintMessage(nil), c.lint...)
}

func (c *Console) DeleteMessages() {
	c.mu.Lock()
	c.lint = nil
	c.mu.Unlock()
}

func (c *Console) Dispose() { c.DeleteMessages() }

func (c *Console) Reset()    {}
func (c *Console) Show(bool) {}
func (c *Console) Hide()     {}

func (c *Console) SetHeading(heading string) {
	c.printf(c.err, "==> %s\n", heading)
}

// Write copies build output to the output writer.
func (c *Console) Write(_ Stream, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.out.Write(p)
}

func (c *Console) BuildStarted() {}

func (c *Console) BuildFinished(success bool) {
	if success {
		c.printf(c.err, "==> Build finished.\n")
		return
	}
	c.printf(c.err, "==> Build failed.\n")
}

func (c *Console) BuildAbortInitiated() {
	c.printf(c.err, "==> Aborting build...\n")
}

func (c *Console) BuildAborted() {
	c.printf(c.err, "==> Build aborted.\n")
}

func (c *Console) ScrollTo(string) {}

// Beep writes a BEL character.
func (c *Console) Beep() {
	c.printf(c.err, "\a")
}

// Registry is an in-memory command and keymap registry.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	commands map[string]command
	keymaps  map[string]string
}

type command struct {
	id uint64
	fn func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]command),
		keymaps:  make(map[string]string),
	}
}

// Register adds a command. A later registration of the same name replaces
// the earlier one; disposing an outdated registration is a no-op.
func (r *Registry) Register(name string, fn func()) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.commands[name] = command{id: id, fn: fn}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if cur, ok := r.commands[name]; ok && cur.id == id {
				delete(r.commands, name)
			}
		})
	}
}

// Bind maps a keystroke to a command.
func (r *Registry) Bind(keystroke, command string) func() {
	r.mu.Lock()
	r.keymaps[keystroke] = command
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.keymaps[keystroke] == command {
				delete(r.keymaps, keystroke)
			}
		})
	}
}

// Dispatch runs the named command and reports whether it exists.
func (r *Registry) Dispatch(name string) bool {
	r.mu.Lock()
	cmd, ok := r.commands[name]
	r.mu.Unlock()
	if ok {
		cmd.fn()
	}
	return ok
}

// Commands returns the registered command names, sorted.
func (r *Registry) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keymap returns the command bound to keystroke.
func (r *Registry) Keymap(keystroke string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.keymaps[keystroke]
	return cmd, ok
}
