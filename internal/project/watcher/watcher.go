// Package watcher reports changes to build declaration files and project
// trees.
//
// Two implementations share the Watcher interface: Notify, built on
// fsnotify, and Poller, which compares file stamps on an interval for file
// systems where change notification is unavailable or unreliable. New
// picks one of them.
//
// A watched file is observed through its parent directory so editors that
// save by writing a temporary file and renaming it over the original keep
// producing events.
package watcher

import (
	"errors"
	"log/slog"
	"path/filepath"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Op is a set of file system operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// String returns the operation names joined by "|".
func (op Op) String() string {
	names := []struct {
		op   Op
		name string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{OpChmod, "CHMOD"},
	}
	out := ""
	for _, n := range names {
		if op.Has(n.op) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "UNKNOWN"
	}
	return out
}

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a change to one path.
type Event struct {
	Path string
	Op   Op
}

// Watcher observes files and directory trees.
type Watcher interface {
	// Add watches a single file. The file does not need to exist yet;
	// its parent directory does.
	Add(path string) error

	// AddRecursive watches every file below root. Directories matching
	// an ignore pattern are skipped.
	AddRecursive(root string) error

	// Events delivers changes. It is closed by Close.
	Events() <-chan Event

	// Errors delivers watcher failures. It is closed by Close.
	Errors() <-chan error

	// Close stops the watcher.
	Close() error
}

// Config holds watcher options.
type Config struct {
	// BufferSize is the capacity of the event and error channels.
	BufferSize int
	// Ignore lists base-name glob patterns, e.g. ".git" or "*.tmp".
	Ignore []string
	// Interval is the Poller scan interval.
	Interval time.Duration
	Logger   *slog.Logger
}

// DefaultIgnore are directory and file names skipped by AddRecursive.
var DefaultIgnore = []string{".git", ".hg", ".svn", "node_modules", "*.swp", "*~"}

// DefaultConfig returns the default options.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Ignore:     DefaultIgnore,
		Interval:   500 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel capacity.
func WithBufferSize(n int) Option {
	return func(c *Config) {
		c.BufferSize = n
	}
}

// WithIgnore replaces the ignore patterns.
func WithIgnore(patterns ...string) Option {
	return func(c *Config) {
		c.Ignore = patterns
	}
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// New returns a Poller when polling is set and a Notify watcher otherwise.
// If fsnotify cannot be initialised New falls back to polling.
func New(polling bool, opts ...Option) (Watcher, error) {
	if polling {
		return NewPoller(opts...), nil
	}
	w, err := NewNotify(opts...)
	if err != nil {
		cfg := buildConfig(opts)
		cfg.Logger.Warn("fsnotify unavailable, polling instead", "error", err)
		return NewPoller(opts...), nil
	}
	return w, nil
}

func buildConfig(opts []Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "watcher")
	return cfg
}

// ignored reports whether the base name of path matches a pattern.
func ignored(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}
