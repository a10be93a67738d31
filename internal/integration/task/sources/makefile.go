package sources

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/dshills/buildium/internal/integration/task"
)

// MakefileName is the provider name shown in notifications.
const MakefileName = "GNU Make"

// makefileNames are checked in the order GNU make uses.
var makefileNames = []string{"GNUmakefile", "makefile", "Makefile"}

var (
	makeRulePattern  = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_./-]*)\s*:(?:[^=]|$)`)
	makePhonyPattern = regexp.MustCompile(`^\.PHONY\s*:\s*(.+)$`)
)

// Makefile provides one target per runnable Makefile rule plus a default
// target that runs make without arguments.
type Makefile struct {
	root   string
	opts   Options
	logger *slog.Logger
	watch  *refreshWatch

	mu   sync.Mutex
	file string
}

// NewMakefile creates the provider for root.
func NewMakefile(root string, opts Options) *Makefile {
	opts = opts.withDefaults()
	logger := opts.Logger.With("component", "makefile-provider", "root", root)
	return &Makefile{
		root:   root,
		opts:   opts,
		logger: logger,
		watch:  newRefreshWatch(opts, logger),
	}
}

// MakefileFactory returns a factory for the Manager.
func MakefileFactory(opts Options) task.ProviderFactory {
	return func(root string) task.Provider {
		return NewMakefile(root, opts)
	}
}

// Name implements task.Provider.
func (p *Makefile) Name() string { return MakefileName }

// IsEligible reports whether the root has a makefile.
func (p *Makefile) IsEligible(context.Context) bool {
	for _, name := range makefileNames {
		path := filepath.Join(p.root, name)
		if _, err := p.opts.FS.Stat(path); err == nil {
			p.mu.Lock()
			p.file = path
			p.mu.Unlock()
			return true
		}
	}
	return false
}

// Settings parses the makefile.
func (p *Makefile) Settings(ctx context.Context) ([]task.Target, error) {
	p.mu.Lock()
	file := p.file
	p.mu.Unlock()
	if file == "" {
		return nil, nil
	}
	if err := p.watch.watch([]string{file}); err != nil {
		p.logger.Warn("cannot watch makefile", "error", err)
	}

	data, err := p.opts.FS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	rules, err := makeRules(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}

	targets := []task.Target{p.target("default", nil, file)}
	for _, rule := range rules {
		targets = append(targets, p.target(rule, []string{rule}, file))
	}
	return targets, nil
}

func (p *Makefile) target(name string, args []string, file string) task.Target {
	return task.Target{
		Name:       MakefileName + ": " + name,
		Exec:       "make",
		Args:       args,
		Sh:         task.Bool(false),
		ErrorMatch: []string{"$gcc"},
		SourceFile: file,
	}
}

// makeRules returns the rule names worth running: the .PHONY rules when
// any are declared, otherwise every explicit rule. Special, private and
// pattern rules are skipped.
func makeRules(ctx context.Context, data []byte) ([]string, error) {
	phony := make(map[string]bool)
	var rules []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Text()
		if m := makePhonyPattern.FindStringSubmatch(line); m != nil {
			for _, name := range strings.Fields(m[1]) {
				phony[name] = true
			}
			continue
		}
		m := makeRulePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || seen[name] {
			continue
		}
		seen[name] = true
		rules = append(rules, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(phony) == 0 {
		return rules, nil
	}
	out := rules[:0]
	for _, r := range rules {
		if phony[r] {
			out = append(out, r)
		}
	}
	return out, nil
}

// OnRefresh implements task.Provider.
func (p *Makefile) OnRefresh(fn func()) (unsubscribe func()) {
	return p.watch.subscribe(fn)
}

// Close stops watching.
func (p *Makefile) Close() error {
	return p.watch.close()
}

var _ task.Provider = (*Makefile)(nil)
