package build

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dshills/buildium/internal/integration/task"
)

// extraPath is appended to the child PATH on non-Windows hosts, where GUI
// launched editors often miss it.
const extraPath = "/usr/local/bin"

// command is a target with every placeholder expanded, ready to spawn.
type command struct {
	exec  string
	args  []string
	cwd   string
	env   []string
	shell bool
}

// shellInvocation returns the shell and its command flag for this OS.
func shellInvocation() (string, string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "/bin/sh", "-c"
}

// prepare expands the command, arguments, working directory and declared
// environment of t. Each value is expanded with t.Env as the override for
// $NAME references. The env file is read only when withEnvFile is set,
// since a preBuild hook may be what creates it.
func (b *Builder) prepare(t task.Target, withEnvFile bool) (command, error) {
	c := command{
		exec:  b.subst.Substitute(t.Exec, t.Env),
		cwd:   b.subst.Substitute(t.Cwd, t.Env),
		shell: t.Shell(),
	}
	c.args = make([]string, len(t.Args))
	for i, arg := range t.Args {
		c.args[i] = b.subst.Substitute(arg, t.Env)
	}

	env := task.EnvMap(b.environ())
	if withEnvFile && t.EnvFile != "" {
		path := b.subst.Substitute(t.EnvFile, t.Env)
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.cwd, path)
		}
		fileEnv, err := godotenv.Read(path)
		if err != nil {
			return c, fmt.Errorf("read env file %s: %w", path, err)
		}
		for k, v := range fileEnv {
			env[k] = b.subst.Substitute(v, t.Env)
		}
	}
	for k, v := range t.Env {
		env[k] = b.subst.Substitute(v, t.Env)
	}
	if runtime.GOOS != "windows" {
		if p := env["PATH"]; p != "" {
			env["PATH"] = p + string(os.PathListSeparator) + extraPath
		} else {
			env["PATH"] = extraPath
		}
	}
	c.env = flattenEnv(env)
	return c, nil
}

// title is the heading shown above the build output.
func (c command) title() string {
	parts := make([]string, 0, len(c.args)+2)
	if c.shell {
		sh, flag := shellInvocation()
		parts = append(parts, sh+" "+flag+" "+c.exec)
	} else {
		parts = append(parts, c.exec)
	}
	parts = append(parts, c.args...)
	return strings.Join(parts, " ")
}

// cmd builds the exec.Cmd. With a shell the command and arguments are
// joined into one command line, unquoted, so the target may use pipes and
// redirection.
func (c command) cmd() *exec.Cmd {
	var cmd *exec.Cmd
	if c.shell {
		sh, flag := shellInvocation()
		line := strings.Join(append([]string{c.exec}, c.args...), " ")
		cmd = exec.Command(sh, flag, line)
	} else {
		cmd = exec.Command(c.exec, c.args...)
	}
	cmd.Dir = c.cwd
	cmd.Env = c.env
	return cmd
}

// flattenEnv converts env to sorted KEY=VALUE entries.
func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// spawnHints is the diagnostic written to the log when a command could not
// be launched.
func spawnHints(c command, err error, path string) string {
	var sb strings.Builder
	if c.shell {
		sb.WriteString("Unable to execute with shell: " + c.exec + "\n")
	} else {
		sb.WriteString("Unable to execute: " + c.exec + "\n")
	}
	if !c.shell && strings.ContainsAny(c.exec, " \t") {
		sb.WriteString("`cmd` cannot contain space. Use `args` for arguments.\n")
	}
	if isNotFound(err) {
		fmt.Fprintf(&sb, "Make sure cmd:'%s' and cwd:'%s' exists and have correct access permissions.\n", c.exec, c.cwd)
		fmt.Fprintf(&sb, "Binaries are found in these folders: %s\n", path)
	}
	return sb.String()
}
