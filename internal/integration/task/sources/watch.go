// Package sources contains the built-in target providers: build
// declaration files (.atom-build.*), Makefiles and package.json scripts.
package sources

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dshills/buildium/internal/config"
	"github.com/dshills/buildium/internal/config/loader"
	"github.com/dshills/buildium/internal/integration"
	"github.com/dshills/buildium/internal/project/watcher"
)

// Options are shared by every provider in this package.
type Options struct {
	// ConfigName is the base name of build declaration files, without the
	// leading dot and extension.
	ConfigName string
	// HomeDir is searched after the project root. Defaults to the user's
	// home directory.
	HomeDir string
	// Debounce coalesces file events into one refresh request.
	Debounce time.Duration
	// Polling watches files by polling instead of fsnotify.
	Polling bool
	// FS reads declaration files. Defaults to loader.DefaultFS().
	FS     loader.FileSystem
	Logger *slog.Logger
}

// OptionsFrom derives provider options from the plugin settings.
func OptionsFrom(s config.Settings) Options {
	return Options{
		ConfigName: s.ConfigName,
		Debounce:   s.RefreshDebounce.Std(),
		Polling:    s.ForcePolling,
	}
}

func (o Options) withDefaults() Options {
	if o.ConfigName == "" {
		o.ConfigName = config.Default().ConfigName
	}
	if o.HomeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			o.HomeDir = home
		}
	}
	if o.FS == nil {
		o.FS = loader.DefaultFS()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// refreshWatch turns changes of a set of files into debounced refresh
// notifications for the listeners of one provider.
type refreshWatch struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	listeners map[uint64]func()
	nextID    uint64
	watcher   watcher.Watcher
	stop      chan struct{}
	wg        sync.WaitGroup
	debounce  *integration.Debouncer
	closed    bool
}

func newRefreshWatch(opts Options, logger *slog.Logger) *refreshWatch {
	rw := &refreshWatch{
		opts:      opts,
		logger:    logger,
		listeners: make(map[uint64]func()),
	}
	rw.debounce = integration.NewDebouncer(opts.Debounce, rw.notify)
	return rw
}

// subscribe registers fn for refresh notifications.
func (rw *refreshWatch) subscribe(fn func()) (unsubscribe func()) {
	rw.mu.Lock()
	id := rw.nextID
	rw.nextID++
	rw.listeners[id] = fn
	rw.mu.Unlock()

	return func() {
		rw.mu.Lock()
		delete(rw.listeners, id)
		rw.mu.Unlock()
	}
}

func (rw *refreshWatch) notify() {
	rw.mu.Lock()
	fns := make([]func(), 0, len(rw.listeners))
	for _, fn := range rw.listeners {
		fns = append(fns, fn)
	}
	rw.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// watch replaces the watched set with files.
func (rw *refreshWatch) watch(files []string) error {
	rw.mu.Lock()
	if rw.closed {
		rw.mu.Unlock()
		return watcher.ErrWatcherClosed
	}
	old, oldStop := rw.watcher, rw.stop
	rw.watcher, rw.stop = nil, nil
	rw.mu.Unlock()
	rw.shutdown(old, oldStop)

	if len(files) == 0 {
		return nil
	}

	w, err := watcher.New(rw.opts.Polling, watcher.WithLogger(rw.logger))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := w.Add(f); err != nil {
			_ = w.Close()
			return err
		}
	}

	stop := make(chan struct{})
	rw.mu.Lock()
	if rw.closed {
		rw.mu.Unlock()
		_ = w.Close()
		return watcher.ErrWatcherClosed
	}
	rw.watcher, rw.stop = w, stop
	rw.wg.Add(1)
	rw.mu.Unlock()

	go rw.forward(w, stop)
	return nil
}

func (rw *refreshWatch) forward(w watcher.Watcher, stop chan struct{}) {
	defer rw.wg.Done()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			rw.logger.Debug("build file changed", "path", ev.Path, "op", ev.Op)
			rw.debounce.Trigger()
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			rw.logger.Warn("watch failed", "error", err)
		}
	}
}

func (rw *refreshWatch) shutdown(w watcher.Watcher, stop chan struct{}) {
	if w == nil {
		return
	}
	close(stop)
	if err := w.Close(); err != nil {
		rw.logger.Warn("close watcher", "error", err)
	}
}

// close stops watching and drops pending refreshes.
func (rw *refreshWatch) close() error {
	rw.mu.Lock()
	if rw.closed {
		rw.mu.Unlock()
		return nil
	}
	rw.closed = true
	w, stop := rw.watcher, rw.stop
	rw.watcher, rw.stop = nil, nil
	rw.listeners = make(map[uint64]func())
	rw.mu.Unlock()

	rw.debounce.Stop()
	rw.shutdown(w, stop)
	rw.wg.Wait()
	return nil
}
