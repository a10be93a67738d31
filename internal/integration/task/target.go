package task

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Target is a normalized build definition.
type Target struct {
	// Name is unique within its project root after Uniquify.
	Name string

	// Exec is the command to run. With Sh it is a shell command line.
	Exec string

	// Args are appended to Exec.
	Args []string

	// Cwd is the working directory. ApplyDefaults sets it to the root.
	Cwd string

	// Env overrides the process environment.
	Env map[string]string

	// EnvFile is a dotenv file, relative to Cwd, merged beneath Env.
	EnvFile string

	// Sh runs Exec through /bin/sh -c when true. Nil means true after
	// ApplyDefaults.
	Sh *bool

	// ErrorMatch and WarningMatch are XRegExp-style patterns with named
	// groups (file, line, col, line_end, col_end, message). An entry of
	// the form $name refers to a built-in preset.
	ErrorMatch   []string
	WarningMatch []string

	// FunctionMatch are matchers run before the patterns.
	FunctionMatch []MatchFunc

	// FunctionMatchNames refer to functions in a FunctionRegistry.
	FunctionMatchNames []string

	// PreBuild runs before the process is spawned.
	PreBuild Hook

	// PostBuild runs after the process exits, before UI side effects.
	PostBuild PostHook

	// CommandName is a host command that triggers this target.
	CommandName string

	// Keymap is a keystroke bound to CommandName.
	Keymap string

	// KillSignals is the termination-signal queue, e.g. ["SIGINT","SIGKILL"].
	KillSignals []string

	// Provider names the provider that produced the target.
	Provider string

	// SourceFile is the declaration file the target came from, if any.
	SourceFile string
}

// Shell reports whether the target runs through a shell.
func (t Target) Shell() bool {
	return t.Sh == nil || *t.Sh
}

// Clone returns a deep copy of the slices and maps of t.
func (t Target) Clone() Target {
	c := t
	c.Args = slices.Clone(t.Args)
	c.Env = maps.Clone(t.Env)
	c.ErrorMatch = slices.Clone(t.ErrorMatch)
	c.WarningMatch = slices.Clone(t.WarningMatch)
	c.FunctionMatch = slices.Clone(t.FunctionMatch)
	c.FunctionMatchNames = slices.Clone(t.FunctionMatchNames)
	c.KillSignals = slices.Clone(t.KillSignals)
	if t.Sh != nil {
		sh := *t.Sh
		c.Sh = &sh
	}
	return c
}

// Bool returns a pointer to b, for Target.Sh.
func Bool(b bool) *bool { return &b }

// ApplyDefaults fills unset fields: Env to an empty map, Args and
// ErrorMatch to empty lists, Cwd to root and Sh to true. Fields already set
// are preserved, so applying it twice changes nothing.
func ApplyDefaults(root string, t Target) Target {
	t = t.Clone()
	if t.Env == nil {
		t.Env = map[string]string{}
	}
	if t.Args == nil {
		t.Args = []string{}
	}
	if t.Cwd == "" {
		t.Cwd = root
	}
	if t.Sh == nil {
		t.Sh = Bool(true)
	}
	if t.ErrorMatch == nil {
		t.ErrorMatch = []string{}
	}
	return t
}

// Uniquify renames targets so every name is unique. The first occurrence
// keeps its name; later ones get " - 1", " - 2" and so on, skipping names
// already taken.
func Uniquify(targets []Target) []Target {
	out := make([]Target, 0, len(targets))
	taken := make(map[string]bool, len(targets))
	for _, t := range targets {
		name := t.Name
		for i := 1; taken[name]; i++ {
			name = fmt.Sprintf("%s - %d", t.Name, i)
		}
		taken[name] = true
		t.Name = name
		out = append(out, t)
	}
	return out
}

// HookContext is what a build hook runs with.
type HookContext struct {
	// Target is the resolved target.
	Target Target
	// Cwd is the substituted working directory.
	Cwd string
	// Env is the full child environment in KEY=VALUE form.
	Env []string
	// Output receives anything the hook prints.
	Output io.Writer
}

// Result is the outcome of a finished build handed to PostBuild.
type Result struct {
	Success bool
	Stdout  string
	Stderr  string
}

// Hook runs before a build.
type Hook func(ctx context.Context, hc HookContext) error

// PostHook runs after a build.
type PostHook func(ctx context.Context, hc HookContext, r Result) error
