package sources

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dshills/buildium/internal/config/loader"
	"github.com/dshills/buildium/internal/integration/task"
)

// NPMName is the provider name shown in notifications.
const NPMName = "npm scripts"

// lockFiles select the package manager, most specific first.
var lockFiles = []struct {
	file    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
}

// NPM provides one target per script in package.json, in declaration
// order, run with the package manager whose lock file is present.
type NPM struct {
	root   string
	opts   Options
	logger *slog.Logger
	watch  *refreshWatch
}

// NewNPM creates the provider for root.
func NewNPM(root string, opts Options) *NPM {
	opts = opts.withDefaults()
	logger := opts.Logger.With("component", "npm-provider", "root", root)
	return &NPM{
		root:   root,
		opts:   opts,
		logger: logger,
		watch:  newRefreshWatch(opts, logger),
	}
}

// NPMFactory returns a factory for the Manager.
func NPMFactory(opts Options) task.ProviderFactory {
	return func(root string) task.Provider {
		return NewNPM(root, opts)
	}
}

// Name implements task.Provider.
func (p *NPM) Name() string { return NPMName }

func (p *NPM) packageFile() string {
	return filepath.Join(p.root, "package.json")
}

// IsEligible reports whether the root has a package.json.
func (p *NPM) IsEligible(context.Context) bool {
	_, err := p.opts.FS.Stat(p.packageFile())
	return err == nil
}

// Settings reads the scripts of package.json.
func (p *NPM) Settings(context.Context) ([]task.Target, error) {
	file := p.packageFile()
	if err := p.watch.watch([]string{file}); err != nil {
		p.logger.Warn("cannot watch package.json", "error", err)
	}

	data, err := p.opts.FS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	doc, err := loader.Load(loader.FormatJSON5, file, data)
	if err != nil {
		return nil, err
	}
	raw, ok := doc["scripts"]
	if !ok || raw == nil {
		return nil, nil
	}
	scripts, ok := raw.(map[string]any)
	if !ok {
		return nil, fieldError(file, "scripts", fmt.Errorf("expected a mapping, got %T", raw))
	}

	order, err := loader.KeyOrder(loader.FormatJSON5, data, "scripts")
	if err != nil {
		p.logger.Debug("cannot read script order", "error", err)
	}
	names := orderedKeys(scripts, order)

	manager := p.manager()
	_, hasTypeScript := devDependency(doc, "typescript")
	targets := make([]task.Target, 0, len(names))
	for _, name := range names {
		script, _ := asString(scripts[name])
		t := task.Target{
			Name:       manager + ": " + name,
			Exec:       manager,
			Args:       []string{"run", name},
			Sh:         task.Bool(false),
			SourceFile: file,
		}
		if preset := scriptPreset(name, script, hasTypeScript); preset != "" {
			t.ErrorMatch = []string{preset}
			t.WarningMatch = []string{preset}
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (p *NPM) manager() string {
	for _, lf := range lockFiles {
		if _, err := p.opts.FS.Stat(filepath.Join(p.root, lf.file)); err == nil {
			return lf.manager
		}
	}
	return "npm"
}

func devDependency(doc map[string]any, name string) (any, bool) {
	deps, ok := doc["devDependencies"].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := deps[name]
	return v, ok
}

// scriptPreset guesses a matcher preset from the script body.
func scriptPreset(name, script string, hasTypeScript bool) string {
	s := strings.ToLower(script)
	switch {
	case strings.Contains(s, "tsc"):
		return "$tsc"
	case strings.Contains(s, "eslint"):
		return "$eslint-compact"
	case hasTypeScript && (name == "build" || name == "compile"):
		return "$tsc"
	default:
		return ""
	}
}

// OnRefresh implements task.Provider.
func (p *NPM) OnRefresh(fn func()) (unsubscribe func()) {
	return p.watch.subscribe(fn)
}

// Close stops watching.
func (p *NPM) Close() error {
	return p.watch.close()
}

var _ task.Provider = (*NPM)(nil)
