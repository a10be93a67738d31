package host

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDefaults(t *testing.T) {
	h := Host{}.WithDefaults()

	require.NotNil(t, h.Notifier)
	require.NotNil(t, h.Log)
	require.NotNil(t, h.Commands)

	_, ok := h.Editor.ActiveFilePath()
	assert.False(t, ok)

	choice, err := h.SaveConfirmer.ConfirmSave(context.Background(), []string{"a.go"})
	require.NoError(t, err)
	assert.Equal(t, BuildWithoutSave, choice)

	assert.ErrorIs(t, h.Opener.Open("x", 0, 0), ErrNoEditor)
}

func TestWithDefaults_KeepsProvided(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, &bytes.Buffer{})
	h := Host{Notifier: c, Log: c}.WithDefaults()
	assert.Same(t, c, h.Notifier)
	assert.Same(t, c, h.Log)
}

func TestConsole_Notify(t *testing.T) {
	var errOut bytes.Buffer
	c := NewConsole(&bytes.Buffer{}, &errOut)

	c.Notify(Notification{Level: LevelError, Title: "Failed to build.", Detail: "exit 2"})
	assert.Equal(t, "[error] Failed to build.: exit 2\n", errOut.String())
}

func TestConsole_LogWriter(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewConsole(&out, &errOut)

	w := LogWriter(c, Stderr)
	n, err := fmt.Fprint(w, "warning: x\n")
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "warning: x\n", out.String())

	c.SetHeading("make all")
	c.BuildFinished(false)
	assert.Equal(t, "==> make all\n==> Build failed.\n", errOut.String())
}

func TestConsole_LintMessages(t *testing.T) {
	var errOut bytes.Buffer
	c := NewConsole(&bytes.Buffer{}, &errOut)

	c.SetMessages([]LintMessage{{
		Type:     "Error",
		Text:     "undefined: x",
		FilePath: "/p/main.go",
		Range:    &Range{{Line: 4, Column: 1}, {Line: 4, Column: 1}},
		Severity: "error",
	}})
	assert.Len(t, c.Messages(), 1)
	assert.True(t, strings.HasPrefix(errOut.String(), "/p/main.go:5:2: error: undefined: x"))

	c.DeleteMessages()
	assert.Empty(t, c.Messages())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	calls := 0
	dispose := r.Register("build:trigger:all", func() { calls++ })
	unbind := r.Bind("ctrl-alt-b", "build:trigger:all")

	assert.True(t, r.Dispatch("build:trigger:all"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"build:trigger:all"}, r.Commands())

	cmd, ok := r.Keymap("ctrl-alt-b")
	require.True(t, ok)
	assert.Equal(t, "build:trigger:all", cmd)

	dispose()
	unbind()
	assert.False(t, r.Dispatch("build:trigger:all"))
	_, ok = r.Keymap("ctrl-alt-b")
	assert.False(t, ok)
}

func TestRegistry_StaleDisposeKeepsNewer(t *testing.T) {
	r := NewRegistry()

	old := r.Register("cmd", func() {})
	calls := 0
	r.Register("cmd", func() { calls++ })

	old()
	assert.True(t, r.Dispatch("cmd"))
	assert.Equal(t, 1, calls)
}
