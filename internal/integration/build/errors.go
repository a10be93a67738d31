package build

import (
	"errors"
	"io/fs"
	"os/exec"
	"syscall"

	"github.com/dshills/buildium/internal/host"
	"github.com/dshills/buildium/internal/integration/task"
)

// Sentinel errors.
var (
	// ErrClosed is returned after Builder.Close.
	ErrClosed = errors.New("builder is closed")

	// ErrAborted is returned by Build when the build was stopped before its
	// process was spawned.
	ErrAborted = errors.New("build aborted")
)

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT)
}

// report surfaces a failed build attempt to the user. A missing or invalid
// target is not reported for builds started by saving a file.
func (b *Builder) report(source Source, err error) {
	if err == nil || errors.Is(err, ErrAborted) || errors.Is(err, ErrClosed) {
		return
	}

	switch kind := task.KindOf(err); kind {
	case task.KindNoEligibleTarget, task.KindInvalidTarget:
		if source == SourceSave {
			b.logger.Debug("build on save skipped", "reason", kind.String())
			return
		}
		n := host.Notification{Level: host.LevelWarning, Title: "Build failed.", Detail: err.Error()}
		var be *task.BuildError
		if errors.As(err, &be) {
			n.Title, n.Detail = be.Title, be.Detail
		}
		b.host.Notifier.Notify(n)
	case task.KindConfigParse, task.KindProvider:
		b.host.Notifier.Notify(host.Notification{
			Level:  host.LevelError,
			Title:  "Failed to load build targets.",
			Detail: err.Error(),
		})
	case task.KindMatchRule:
		b.host.Notifier.Notify(host.Notification{
			Level:  host.LevelError,
			Title:  "Error matching failed!",
			Detail: err.Error(),
		})
	case task.KindSpawn, task.KindUnknown:
		b.host.Notifier.Notify(host.Notification{
			Level:  host.LevelError,
			Title:  "Failed to build.",
			Detail: err.Error(),
		})
	}
}
