package task

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// ShellHook returns a PreBuild hook running command through /bin/sh in the
// target's working directory.
func ShellHook(command string) Hook {
	return func(ctx context.Context, hc HookContext) error {
		return runShell(ctx, command, hc, nil)
	}
}

// ShellPostHook returns a PostBuild hook running command through /bin/sh.
// The build outcome is exported as BUILD_SUCCESS (true/false). The captured
// output is written to files named by BUILD_STDOUT_FILE and
// BUILD_STDERR_FILE, which are removed once the hook returns; build output
// can exceed what a single environment string may hold.
func ShellPostHook(command string) PostHook {
	return func(ctx context.Context, hc HookContext, r Result) error {
		dir, err := os.MkdirTemp("", "buildium-hook-")
		if err != nil {
			return fmt.Errorf("hook %q: %w", command, err)
		}
		defer os.RemoveAll(dir)

		stdout := filepath.Join(dir, "stdout")
		stderr := filepath.Join(dir, "stderr")
		if err := os.WriteFile(stdout, []byte(r.Stdout), 0o600); err != nil {
			return fmt.Errorf("hook %q: %w", command, err)
		}
		if err := os.WriteFile(stderr, []byte(r.Stderr), 0o600); err != nil {
			return fmt.Errorf("hook %q: %w", command, err)
		}

		extra := []string{
			"BUILD_SUCCESS=" + strconv.FormatBool(r.Success),
			"BUILD_STDOUT_FILE=" + stdout,
			"BUILD_STDERR_FILE=" + stderr,
		}
		return runShell(ctx, command, hc, extra)
	}
}

func runShell(ctx context.Context, command string, hc HookContext, extra []string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = hc.Cwd
	cmd.Env = append(append([]string(nil), hc.Env...), extra...)
	cmd.Stdout = hc.Output
	cmd.Stderr = hc.Output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("hook %q: %w", command, err)
	}
	return nil
}
