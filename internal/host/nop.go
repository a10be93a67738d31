package host

import (
	"context"
	"errors"
	"time"
)

// ErrNoEditor is returned by Nop.Open.
var ErrNoEditor = errors.New("no editor available")

// Nop implements every collaborator interface and does nothing.
// ConfirmSave answers BuildWithoutSave.
type Nop struct{}

var (
	_ Notifier       = Nop{}
	_ EditorContext  = Nop{}
	_ BranchResolver = Nop{}
	_ Editors        = Nop{}
	_ SaveConfirmer  = Nop{}
	_ FileOpener     = Nop{}
	_ Busy           = Nop{}
	_ StatusBar      = Nop{}
	_ Linter         = Nop{}
	_ LogView        = Nop{}
	_ Commands       = Nop{}
	_ Keymaps        = Nop{}
	_ Beeper         = Nop{}
)

func (Nop) Notify(Notification) {}

func (Nop) ActiveFilePath() (string, bool) { return "", false }
func (Nop) SelectionText() (string, bool)  { return "", false }
func (Nop) CursorPosition() (Cursor, bool) { return Cursor{}, false }

func (Nop) ShortBranch(string) (string, error) { return "", errors.New("no source control") }

func (Nop) Unsaved() []UnsavedEditor { return nil }

func (Nop) ConfirmSave(context.Context, []string) (SaveChoice, error) {
	return BuildWithoutSave, nil
}

func (Nop) Open(string, int, int) error { return ErrNoEditor }

func (Nop) Begin(string, string) {}
func (Nop) End(string, bool)     {}

func (Nop) SetTarget(string)                     {}
func (Nop) SetStatus(BuildStatus, time.Duration) {}

func (Nop) SetMessages([]LintMessage) {}
func (Nop) DeleteMessages()           {}
func (Nop) Dispose()                  {}

func (Nop) Reset()               {}
func (Nop) Show(bool)            {}
func (Nop) Hide()                {}
func (Nop) SetHeading(string)    {}
func (Nop) Write(Stream, []byte) {}
func (Nop) BuildStarted()        {}
func (Nop) BuildFinished(bool)   {}
func (Nop) BuildAbortInitiated() {}
func (Nop) BuildAborted()        {}
func (Nop) ScrollTo(string)      {}

func (Nop) Register(string, func()) func() { return func() {} }
func (Nop) Bind(string, string) func()     { return func() {} }

func (Nop) Beep() {}
