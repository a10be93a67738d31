package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/buildium/internal/config/loader"
	"github.com/dshills/buildium/internal/integration/script"
	"github.com/dshills/buildium/internal/integration/task"
)

// ConfigFileName is the provider name shown in notifications.
const ConfigFileName = "Custom file"

// ConfigFile provides targets declared in .<ConfigName>.<ext> files found
// in the project root or the home directory. Besides the declaration
// formats of the loader package it reads Lua build scripts (.lua).
type ConfigFile struct {
	root   string
	opts   Options
	logger *slog.Logger
	watch  *refreshWatch

	mu      sync.Mutex
	files   []string
	scripts []*script.Script
	closed  bool
}

// luaExtension is the extension of Lua build scripts, searched after the
// declaration formats.
const luaExtension = "lua"

// NewConfigFile creates the provider for root.
func NewConfigFile(root string, opts Options) *ConfigFile {
	opts = opts.withDefaults()
	logger := opts.Logger.With("component", "config-file-provider", "root", root)
	return &ConfigFile{
		root:   root,
		opts:   opts,
		logger: logger,
		watch:  newRefreshWatch(opts, logger),
	}
}

// ConfigFileFactory returns a factory for the Manager.
func ConfigFileFactory(opts Options) task.ProviderFactory {
	return func(root string) task.Provider {
		return NewConfigFile(root, opts)
	}
}

// Name implements task.Provider.
func (p *ConfigFile) Name() string { return ConfigFileName }

// Candidates lists the file names checked per extension, root first.
func (p *ConfigFile) Candidates() [][]string {
	exts := append(append([]string(nil), loader.Extensions...), luaExtension)
	out := make([][]string, 0, len(exts))
	for _, ext := range exts {
		base := "." + p.opts.ConfigName + "." + ext
		dirs := []string{filepath.Join(p.root, base)}
		if p.opts.HomeDir != "" && filepath.Clean(p.opts.HomeDir) != filepath.Clean(p.root) {
			dirs = append(dirs, filepath.Join(p.opts.HomeDir, base))
		}
		out = append(out, dirs)
	}
	return out
}

// IsEligible reports whether any declaration file exists. The first
// existing candidate of every extension is remembered for Settings.
func (p *ConfigFile) IsEligible(context.Context) bool {
	var files []string
	for _, candidates := range p.Candidates() {
		for _, c := range candidates {
			if _, err := p.opts.FS.Stat(c); err == nil {
				files = append(files, c)
				break
			}
		}
	}

	p.mu.Lock()
	p.files = files
	p.mu.Unlock()
	return len(files) > 0
}

// Files returns the declaration files found by IsEligible.
func (p *ConfigFile) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

// Settings parses every declaration file and (re)starts watching them.
// A file that fails to parse contributes nothing; its error is joined into
// the returned error while the targets of the other files are returned.
func (p *ConfigFile) Settings(ctx context.Context) ([]task.Target, error) {
	files := p.Files()
	if err := p.watch.watch(files); err != nil {
		p.logger.Warn("cannot watch build files", "error", err)
	}

	var targets []task.Target
	var scripts []*script.Script
	var errs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			p.swapScripts(scripts)
			return targets, err
		}
		f, err := p.load(ctx, file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f.script != nil {
			scripts = append(scripts, f.script)
		}
		ts, err := decodeDocument(file, f.doc, f.order)
		targets = append(targets, ts...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	p.swapScripts(scripts)
	p.logger.Debug("parsed build files", "files", len(files), "targets", len(targets))
	return targets, errors.Join(errs...)
}

// buildFile is one parsed declaration file.
type buildFile struct {
	doc map[string]any
	// order lists the "targets" keys as declared; nil when unknown.
	order []string
	// script is set for Lua files. Its functions live as long as it does.
	script *script.Script
}

// load parses one declaration file.
func (p *ConfigFile) load(ctx context.Context, file string) (buildFile, error) {
	ext := strings.TrimPrefix(filepath.Ext(file), ".")
	data, err := p.opts.FS.ReadFile(file)
	if err != nil {
		return buildFile{}, fmt.Errorf("reading build file %s: %w", file, err)
	}

	if ext == luaExtension {
		s, err := script.Load(ctx, file, data)
		if err != nil {
			return buildFile{}, err
		}
		return buildFile{doc: s.Document(), script: s}, nil
	}

	format, err := loader.FormatFromPath(file)
	if err != nil {
		return buildFile{}, err
	}
	doc, err := loader.Load(format, file, data)
	if err != nil {
		return buildFile{}, err
	}
	order, err := loader.KeyOrder(format, data, "targets")
	if err != nil {
		p.logger.Debug("cannot read target order", "file", file, "error", err)
	}
	return buildFile{doc: doc, order: order}, nil
}

// swapScripts keeps the scripts of the latest parse and closes the others.
// Once the provider is closed every script handed in is closed at once.
func (p *ConfigFile) swapScripts(scripts []*script.Script) {
	p.mu.Lock()
	old := p.scripts
	if p.closed {
		old = append(old, scripts...)
		scripts = nil
	}
	p.scripts = scripts
	p.mu.Unlock()

	for _, s := range old {
		_ = s.Close()
	}
}

// OnRefresh implements task.Provider.
func (p *ConfigFile) OnRefresh(fn func()) (unsubscribe func()) {
	return p.watch.subscribe(fn)
}

// Close stops watching and releases Lua scripts.
func (p *ConfigFile) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.swapScripts(nil)
	return p.watch.close()
}

var _ task.Provider = (*ConfigFile)(nil)
