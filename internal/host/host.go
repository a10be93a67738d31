// Package host defines the narrow interfaces buildium consumes from the
// application embedding it.
//
// The embedding host owns rendering, dialogs, and key bindings. buildium
// only calls through these interfaces, so any front end (an editor, a
// terminal UI, the buildium CLI) can drive the same build core. Nop
// implementations are provided for every interface, and Console offers a
// line-oriented implementation suitable for terminals.
package host

import (
	"context"
	"io"
	"time"
)

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a user-facing toast.
type Notification struct {
	Level  Level
	Title  string
	Detail string
	Stack  string
}

// Notifier shows notifications.
type Notifier interface {
	Notify(n Notification)
}

// Cursor is a zero-based position in the active editor.
type Cursor struct {
	Row    int
	Column int
}

// EditorContext exposes the state of the active editor. Every accessor
// reports false when there is no active editor or the value is unknown.
type EditorContext interface {
	ActiveFilePath() (string, bool)
	SelectionText() (string, bool)
	CursorPosition() (Cursor, bool)
}

// BranchResolver looks up the short source-control branch for a root.
type BranchResolver interface {
	ShortBranch(root string) (string, error)
}

// UnsavedEditor is an editor with modifications not yet written to disk.
type UnsavedEditor interface {
	Path() string
	Save() error
}

// Editors enumerates open editors.
type Editors interface {
	Unsaved() []UnsavedEditor
}

// SaveChoice is the answer to the unsaved-editors question.
type SaveChoice int

const (
	// SaveAndBuild saves every modified editor, then builds.
	SaveAndBuild SaveChoice = iota
	// BuildWithoutSave builds the files as they are on disk.
	BuildWithoutSave
	// CancelBuild abandons the build request.
	CancelBuild
)

// SaveConfirmer asks the user what to do with unsaved editors. It blocks
// until the user answers or ctx is done.
type SaveConfirmer interface {
	ConfirmSave(ctx context.Context, paths []string) (SaveChoice, error)
}

// FileOpener opens a file at a zero-based line and column.
type FileOpener interface {
	Open(path string, line, column int) error
}

// Busy shows a busy indicator while work identified by id is in progress.
type Busy interface {
	Begin(id, title string)
	End(id string, success bool)
}

// BuildStatus is what the status bar tile shows.
type BuildStatus int

const (
	StatusIdle BuildStatus = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusAborted
)

// String returns the status name.
func (s BuildStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// StatusBar renders the target name and last build result.
type StatusBar interface {
	SetTarget(name string)
	SetStatus(status BuildStatus, elapsed time.Duration)
}

// Point is a zero-based line and column.
type Point struct {
	Line   int
	Column int
}

// Range is a span between two points.
type Range [2]Point

// LintTrace is a secondary location attached to a lint message.
type LintTrace struct {
	Type     string
	Text     string
	HTML     string
	FilePath string
	Range    *Range
	Severity string
}

// LintMessage is one entry in the host linter.
type LintMessage struct {
	Type     string
	Text     string
	HTML     string
	FilePath string
	Range    *Range
	Severity string
	Trace    []LintTrace
}

// Linter is a host linter registry channel owned by buildium.
type Linter interface {
	SetMessages(msgs []LintMessage)
	DeleteMessages()
	Dispose()
}

// Stream identifies the origin of build output.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// String returns "stdout" or "stderr".
func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// LogView renders build output and lifecycle markers.
type LogView interface {
	// Reset clears the view for a new build.
	Reset()
	// Show opens the view; focus reports whether it should take focus.
	Show(focus bool)
	Hide()
	SetHeading(heading string)
	Write(stream Stream, p []byte)
	BuildStarted()
	BuildFinished(success bool)
	BuildAbortInitiated()
	BuildAborted()
	// ScrollTo scrolls to the first occurrence of text in the output.
	ScrollTo(text string)
}

// Commands is the host command registry.
type Commands interface {
	Register(name string, fn func()) (dispose func())
}

// Keymaps is the host keymap registry.
type Keymaps interface {
	Bind(keystroke, command string) (dispose func())
}

// Beeper makes an audible signal.
type Beeper interface {
	Beep()
}

// Host bundles every collaborator. Nil fields are replaced by Nop
// implementations in WithDefaults.
type Host struct {
	Notifier      Notifier
	Editor        EditorContext
	Branches      BranchResolver
	Editors       Editors
	SaveConfirmer SaveConfirmer
	Opener        FileOpener
	Busy          Busy
	StatusBar     StatusBar
	Linter        Linter
	Log           LogView
	Commands      Commands
	Keymaps       Keymaps
	Beeper        Beeper
}

// WithDefaults returns a copy of h with every nil collaborator set to Nop.
func (h Host) WithDefaults() Host {
	if h.Notifier == nil {
		h.Notifier = Nop{}
	}
	if h.Editor == nil {
		h.Editor = Nop{}
	}
	if h.Branches == nil {
		h.Branches = Nop{}
	}
	if h.Editors == nil {
		h.Editors = Nop{}
	}
	if h.SaveConfirmer == nil {
		h.SaveConfirmer = Nop{}
	}
	if h.Opener == nil {
		h.Opener = Nop{}
	}
	if h.Busy == nil {
		h.Busy = Nop{}
	}
	if h.StatusBar == nil {
		h.StatusBar = Nop{}
	}
	if h.Linter == nil {
		h.Linter = Nop{}
	}
	if h.Log == nil {
		h.Log = Nop{}
	}
	if h.Commands == nil {
		h.Commands = Nop{}
	}
	if h.Keymaps == nil {
		h.Keymaps = Nop{}
	}
	if h.Beeper == nil {
		h.Beeper = Nop{}
	}
	return h
}

// LogWriter adapts one stream of a LogView to io.Writer.
func LogWriter(v LogView, stream Stream) io.Writer {
	return logWriter{view: v, stream: stream}
}

type logWriter struct {
	view   LogView
	stream Stream
}

func (w logWriter) Write(p []byte) (int, error) {
	w.view.Write(w.stream, p)
	return len(p), nil
}
