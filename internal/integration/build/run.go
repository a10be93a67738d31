package build

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dshills/buildium/internal/config"
	"github.com/dshills/buildium/internal/host"
	"github.com/dshills/buildium/internal/integration/process"
	"github.com/dshills/buildium/internal/integration/task"
)

// start launches rb, which already occupies the slot. On failure the slot
// is released and the error reported.
func (b *Builder) start(ctx context.Context, rb *running) error {
	err := b.launch(ctx, rb)
	if err != nil {
		b.fail(rb, err)
	}
	return err
}

// resolve picks the target for req: the one registered under req.command,
// else the active target of the active root.
func (b *Builder) resolve(ctx context.Context, req request) (string, task.Target, error) {
	root, ok := task.ActiveRoot(b.host.Editor, b.manager.Roots())
	if !ok {
		return "", task.Target{}, task.NoEligibleTarget()
	}

	targets, err := b.manager.Targets(ctx, root)
	if err != nil {
		return root, task.Target{}, err
	}
	if len(targets) == 0 {
		return root, task.Target{}, task.NoEligibleTarget()
	}

	var target task.Target
	found := false
	if req.command != "" {
		if i := slices.IndexFunc(targets, func(t task.Target) bool { return t.CommandName == req.command }); i >= 0 {
			target, found = targets[i], true
		}
	}
	if !found {
		target, found = b.manager.ActiveTarget(root)
	}
	if !found {
		return root, task.Target{}, task.NoEligibleTarget()
	}
	if strings.TrimSpace(target.Exec) == "" {
		return root, target, task.InvalidTarget()
	}
	return root, target, nil
}

func (b *Builder) launch(ctx context.Context, rb *running) error {
	root, target, err := b.resolve(ctx, rb.req)
	b.mu.Lock()
	rb.root, rb.target = root, target
	b.mu.Unlock()
	if err != nil {
		return err
	}

	signals, err := process.ParseSignals(target.KillSignals)
	if err != nil {
		return &task.BuildError{
			Kind:   task.KindInvalidTarget,
			Title:  "Invalid build file.",
			Detail: "Invalid killSignals: " + err.Error(),
		}
	}

	settings := b.settings.Get()
	log := b.host.Log

	b.host.Linter.DeleteMessages()
	b.matcher.Clear()
	b.host.StatusBar.SetTarget(target.Name)
	b.host.StatusBar.SetStatus(host.StatusRunning, 0)
	b.host.Busy.Begin(rb.id, "Build: "+target.Name)
	log.Reset()
	if settings.PanelVisibility == config.PanelToggle || settings.PanelVisibility == config.PanelKeepVisible {
		log.Show(settings.StealFocus)
	}
	log.BuildStarted()

	b.mu.Lock()
	rb.busy = true
	b.mu.Unlock()

	if target.PreBuild != nil {
		log.SetHeading("Running preBuild...")
		pre, err := b.prepare(target, false)
		if err != nil {
			return err
		}
		preCtx, cancelPre := context.WithCancel(rb.ctx)
		b.mu.Lock()
		rb.cancelPre = cancelPre
		aborted := rb.aborted
		b.mu.Unlock()
		if aborted {
			cancelPre()
			return ErrAborted
		}

		err = target.PreBuild(preCtx, b.hookContext(target, pre))
		cancelPre()
		b.mu.Lock()
		rb.cancelPre = nil
		aborted = rb.aborted
		b.mu.Unlock()
		if aborted {
			return ErrAborted
		}
		if err != nil {
			return fmt.Errorf("preBuild: %w", err)
		}
	}

	c, err := b.prepare(target, true)
	if err != nil {
		return err
	}
	title := c.title()
	log.SetHeading(title)

	capture := task.NewCapture(log)
	cmd := c.cmd()
	cmd.Stdout = capture.Writer(host.Stdout)
	cmd.Stderr = capture.Writer(host.Stderr)

	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		return ErrClosed
	case rb.aborted:
		b.mu.Unlock()
		return ErrAborted
	}
	rb.cmd, rb.title, rb.capture = c, title, capture
	proc, err := b.supervisor.StartWithID(rb.id, target.Name, cmd, signals...)
	if err == nil {
		rb.proc = proc
	}
	b.mu.Unlock()

	if err != nil {
		log.Write(host.Stderr, []byte(spawnHints(c, err, pathOf(c.env))))
		return &task.SpawnError{Command: c.exec, Cwd: c.cwd, Shell: c.shell, Err: err}
	}

	b.logger.Info("build started",
		"id", rb.id,
		"target", target.Name,
		"root", root,
		"source", string(rb.req.source),
		"pid", proc.PID(),
	)
	return nil
}

func (b *Builder) hookContext(t task.Target, c command) task.HookContext {
	return task.HookContext{
		Target: t,
		Cwd:    c.cwd,
		Env:    c.env,
		Output: host.LogWriter(b.host.Log, host.Stdout),
	}
}

// fail finishes a build that never got a running process.
func (b *Builder) fail(rb *running, err error) {
	b.mu.Lock()
	busy, aborted, target, root := rb.busy, rb.aborted, rb.target, rb.root
	b.mu.Unlock()

	elapsed := time.Since(rb.started)
	if busy {
		b.host.Busy.End(rb.id, false)
		b.host.Log.BuildFinished(false)
		if aborted || errors.Is(err, ErrAborted) {
			b.host.Log.BuildAborted()
			b.host.StatusBar.SetStatus(host.StatusAborted, elapsed)
		} else {
			b.host.StatusBar.SetStatus(host.StatusFailed, elapsed)
		}
	}

	if b.ctx.Err() == nil {
		b.report(rb.req.source, err)
	}
	b.logger.Debug("build did not start", "id", rb.id, "source", string(rb.req.source), "error", err)

	b.emit(Outcome{
		ID:       rb.id,
		Source:   rb.req.source,
		Root:     root,
		Target:   target,
		ExitCode: -1,
		Aborted:  aborted || errors.Is(err, ErrAborted),
		Elapsed:  elapsed,
		Err:      err,
	})
	b.release(rb)
}

// processExited is the supervisor's exit callback. The supervisor no longer
// tracks p, so the queued build may start from here.
func (b *Builder) processExited(p *process.Process) {
	b.mu.Lock()
	rb := b.slot
	b.mu.Unlock()
	if rb == nil || rb.id != p.ID {
		b.logger.Warn("exit of unknown build process", "id", p.ID)
		return
	}
	b.finish(rb)
}

// finish matches the output of an exited build, runs postBuild, updates the
// host, and releases the slot.
func (b *Builder) finish(rb *running) {
	b.mu.Lock()
	proc, target, cmd, title, capture := rb.proc, rb.target, rb.cmd, rb.title, rb.capture
	b.mu.Unlock()

	settings := b.settings.Get()
	log := b.host.Log
	stdout, stderr := capture.Stdout(), capture.Stderr()
	code := proc.ExitCode()

	for _, err := range b.matcher.Set(target, cmd.cwd, stdout+stderr) {
		b.report(rb.req.source, err)
	}
	matches := b.matcher.Matches()
	success := Succeeded(code, matches, settings.MatchedErrorFailsBuild)

	b.host.Linter.SetMessages(task.LintMessages(cmd.cwd, matches))
	if settings.BeepWhenDone {
		b.host.Beeper.Beep()
	}

	if target.PostBuild != nil {
		log.SetHeading("Running postBuild...")
		result := task.Result{Success: success, Stdout: stdout, Stderr: stderr}
		if err := target.PostBuild(rb.ctx, b.hookContext(target, cmd), result); err != nil && rb.ctx.Err() == nil {
			b.logger.Warn("postBuild failed", "target", target.Name, "error", err)
			b.host.Notifier.Notify(host.Notification{
				Level:  host.LevelError,
				Title:  "postBuild failed.",
				Detail: err.Error(),
			})
		}
		log.SetHeading(title)
	}

	b.mu.Lock()
	aborted := rb.aborted
	b.mu.Unlock()

	elapsed := proc.Runtime()
	b.host.Busy.End(rb.id, success)
	log.BuildFinished(success)

	switch {
	case aborted:
		log.BuildAborted()
		b.host.StatusBar.SetStatus(host.StatusAborted, elapsed)
	case success:
		b.host.StatusBar.SetStatus(host.StatusSucceeded, elapsed)
		if settings.PanelVisibility == config.PanelToggle {
			b.scheduleHide(settings.AutoToggleInterval.Std())
		}
	default:
		b.host.StatusBar.SetStatus(host.StatusFailed, elapsed)
		if settings.PanelVisibility == config.PanelShowOnError {
			log.Show(settings.StealFocus)
		}
		if settings.ScrollOnError && len(matches) > 0 {
			_ = b.FirstMatch()
		}
	}

	b.logger.Info("build finished",
		"id", rb.id,
		"target", target.Name,
		"code", code,
		"success", success,
		"aborted", aborted,
		"matches", len(matches),
		"elapsed", elapsed,
	)

	b.emit(Outcome{
		ID:       rb.id,
		Source:   rb.req.source,
		Root:     rb.root,
		Target:   target,
		ExitCode: code,
		Success:  success,
		Aborted:  aborted,
		Matches:  matches,
		Stdout:   stdout,
		Stderr:   stderr,
		Elapsed:  elapsed,
	})
	b.release(rb)
}

// scheduleHide hides the log view after d unless another build starts.
func (b *Builder) scheduleHide(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.stopHideTimerLocked()
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		b.mu.Lock()
		current := b.hideTimer == t
		if current {
			b.hideTimer = nil
		}
		b.mu.Unlock()
		if current {
			b.host.Log.Hide()
		}
	})
	b.hideTimer = t
}

func pathOf(env []string) string {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			return v
		}
	}
	return ""
}
