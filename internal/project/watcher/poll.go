package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"
)

// Poller implements Watcher by comparing modification time and size of
// every watched file on an interval.
type Poller struct {
	mu     sync.Mutex
	cfg    Config
	files  map[string]bool
	trees  []string
	stamps map[string]stamp

	events chan Event
	errors chan error
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

type stamp struct {
	mod  time.Time
	size int64
}

// NewPoller creates a polling watcher.
func NewPoller(opts ...Option) *Poller {
	cfg := buildConfig(opts)
	p := &Poller{
		cfg:    cfg,
		files:  make(map[string]bool),
		stamps: make(map[string]stamp),
		events: make(chan Event, cfg.BufferSize),
		errors: make(chan error, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Add watches a single file.
func (p *Poller) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if info, err := os.Stat(filepath.Dir(abs)); err != nil || !info.IsDir() {
		return ErrPathNotExist
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrWatcherClosed
	}
	p.files[abs] = true
	if s, ok := statStamp(abs); ok {
		p.stamps[abs] = s
	}
	return nil
}

// AddRecursive watches every file below root.
func (p *Poller) AddRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ErrPathNotExist
	}
	if !info.IsDir() {
		return p.Add(abs)
	}

	seed := p.walk(abs)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrWatcherClosed
	}
	if !slices.Contains(p.trees, abs) {
		p.trees = append(p.trees, abs)
	}
	for path, s := range seed {
		p.stamps[path] = s
	}
	return nil
}

// Events returns the event channel.
func (p *Poller) Events() <-chan Event { return p.events }

// Errors returns the error channel.
func (p *Poller) Errors() <-chan error { return p.errors }

// Close stops polling and closes both channels.
func (p *Poller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.events)
	close(p.errors)
	return nil
}

func (p *Poller) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			for _, ev := range p.scan() {
				select {
				case p.events <- ev:
				case <-p.done:
					return
				}
			}
		}
	}
}

// scan compares the current stamps with the previous ones.
func (p *Poller) scan() []Event {
	p.mu.Lock()
	files := make([]string, 0, len(p.files))
	for f := range p.files {
		files = append(files, f)
	}
	trees := slices.Clone(p.trees)
	p.mu.Unlock()

	current := make(map[string]stamp)
	for _, f := range files {
		if s, ok := statStamp(f); ok {
			current[f] = s
		}
	}
	for _, root := range trees {
		for path, s := range p.walk(root) {
			current[path] = s
		}
	}

	covered := func(path string) bool {
		if slices.Contains(files, path) {
			return true
		}
		for _, root := range trees {
			if within(root, path) {
				return true
			}
		}
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var events []Event
	for path, s := range current {
		old, ok := p.stamps[path]
		switch {
		case !ok:
			events = append(events, Event{Path: path, Op: OpCreate})
		case !old.mod.Equal(s.mod) || old.size != s.size:
			events = append(events, Event{Path: path, Op: OpWrite})
		}
	}
	next := current
	for path, s := range p.stamps {
		if _, ok := current[path]; ok {
			continue
		}
		if covered(path) {
			events = append(events, Event{Path: path, Op: OpRemove})
			continue
		}
		// Added after the snapshot was taken.
		next[path] = s
	}
	p.stamps = next

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	return events
}

func (p *Poller) walk(root string) map[string]stamp {
	out := make(map[string]stamp)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != root && ignored(p.cfg.Ignore, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if s, ok := statStamp(path); ok {
			out[path] = s
		}
		return nil
	})
	return out
}

func statStamp(path string) (stamp, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return stamp{}, false
	}
	return stamp{mod: info.ModTime(), size: info.Size()}, true
}

var _ Watcher = (*Poller)(nil)
