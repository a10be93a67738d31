package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Notify implements Watcher using fsnotify. Files are watched through their
// parent directory and events for siblings are dropped.
type Notify struct {
	mu    sync.Mutex
	fsw   *fsnotify.Watcher
	cfg   Config
	files map[string]bool
	dirs  map[string]bool
	trees []string

	events chan Event
	errors chan error
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewNotify creates an fsnotify based watcher.
func NewNotify(opts ...Option) (*Notify, error) {
	cfg := buildConfig(opts)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Notify{
		fsw:    fsw,
		cfg:    cfg,
		files:  make(map[string]bool),
		dirs:   make(map[string]bool),
		events: make(chan Event, cfg.BufferSize),
		errors: make(chan error, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Add watches a single file.
func (w *Notify) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrPathNotExist, dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if err := w.addDirLocked(dir); err != nil {
		return err
	}
	w.files[abs] = true
	return nil
}

// AddRecursive watches root and every directory below it.
func (w *Notify) AddRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPathNotExist, abs)
	}
	if !info.IsDir() {
		return w.Add(abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if !slices.Contains(w.trees, abs) {
		w.trees = append(w.trees, abs)
	}
	return w.walkLocked(abs)
}

func (w *Notify) walkLocked(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && ignored(w.cfg.Ignore, p) {
			return filepath.SkipDir
		}
		return w.addDirLocked(p)
	})
}

func (w *Notify) addDirLocked(dir string) error {
	if w.dirs[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

// Events returns the event channel.
func (w *Notify) Events() <-chan Event { return w.events }

// Errors returns the error channel.
func (w *Notify) Errors() <-chan error { return w.errors }

// Close stops the watcher and closes both channels.
func (w *Notify) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsw.Close()
}

func (w *Notify) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.cfg.Logger.Warn("watch error", "error", err)
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

func (w *Notify) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 {
		return
	}

	w.mu.Lock()
	wanted := w.files[ev.Name]
	inTree := false
	if !ignored(w.cfg.Ignore, ev.Name) {
		for _, root := range w.trees {
			if within(root, ev.Name) {
				inTree = true
				break
			}
		}
	}
	if inTree && op.Has(OpCreate) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.walkLocked(ev.Name); err != nil {
				w.cfg.Logger.Warn("watch new directory", "path", ev.Name, "error", err)
			}
		}
	}
	w.mu.Unlock()

	if !wanted && !inTree {
		return
	}
	select {
	case w.events <- Event{Path: ev.Name, Op: op}:
	case <-w.done:
	}
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !hasParentPrefix(rel))
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

var _ Watcher = (*Notify)(nil)
