package process

import (
	"context"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcess(t *testing.T) {
	proc := NewProcess("test-id", "test-process", exec.Command("echo", "hello"))

	assert.Equal(t, "test-id", proc.ID)
	assert.Equal(t, "test-process", proc.Name)
	assert.Equal(t, StateCreated, proc.State())
	assert.Equal(t, -1, proc.ExitCode())
	assert.Equal(t, -1, proc.PID())
	assert.False(t, proc.IsRunning())
	assert.False(t, proc.HasExited())
	assert.Equal(t, DefaultSignals(), proc.RemainingSignals())
}

func TestProcess_Start(t *testing.T) {
	proc := NewProcess("id", "echo", exec.Command("echo", "hello"))

	require.NoError(t, proc.start())
	assert.Greater(t, proc.PID(), 0)
	assert.False(t, proc.Started.IsZero())
	require.NotNil(t, proc.Cmd.SysProcAttr)
	assert.True(t, proc.Cmd.SysProcAttr.Setpgid)

	require.NoError(t, proc.Wait(context.Background()))
	assert.Equal(t, StateExited, proc.State())
	assert.Equal(t, 0, proc.ExitCode())
	assert.True(t, proc.HasExited())

	assert.ErrorIs(t, proc.start(), ErrProcessAlreadyStarted)
}

func TestProcess_ExitCode(t *testing.T) {
	proc := NewProcess("id", "fail", exec.Command("/bin/sh", "-c", "exit 3"))
	require.NoError(t, proc.start())
	<-proc.Done()

	assert.Equal(t, 3, proc.ExitCode())
	assert.Equal(t, StateExited, proc.State())
	assert.Error(t, proc.ExitError())
}

func TestProcess_Wait_Context(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "10"))
	require.NoError(t, proc.start())
	defer func() { _ = proc.Kill() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, proc.Wait(ctx), context.DeadlineExceeded)
}

func TestProcess_SendNextSignal_Escalates(t *testing.T) {
	// The shell ignores INT and TERM so only KILL ends it.
	cmd := exec.Command("/bin/sh", "-c", "trap '' INT TERM; while true; do sleep 0.05; done")
	proc := NewProcess("id", "stubborn", cmd)
	require.NoError(t, proc.start())

	sig, sent, err := proc.SendNextSignal()
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, syscall.SIGINT, sig)

	sig, sent, err = proc.SendNextSignal()
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, syscall.SIGTERM, sig)

	select {
	case <-proc.Done():
		t.Fatal("process exited before SIGKILL")
	case <-time.After(100 * time.Millisecond):
	}

	sig, sent, err = proc.SendNextSignal()
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, syscall.SIGKILL, sig)
	assert.True(t, proc.Killed())

	_, sent, err = proc.SendNextSignal()
	require.NoError(t, err)
	assert.False(t, sent, "queue exhausted")

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after SIGKILL")
	}
	assert.Equal(t, StateKilled, proc.State())
}

func TestProcess_SendNextSignal_CustomQueue(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "10"), syscall.SIGTERM)
	require.NoError(t, proc.start())

	sig, sent, err := proc.SendNextSignal()
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, syscall.SIGTERM, sig)

	<-proc.Done()
	_, sent, _ = proc.SendNextSignal()
	assert.False(t, sent)
}

func TestProcess_SendNextSignal_AfterExit(t *testing.T) {
	proc := NewProcess("id", "true", exec.Command("true"))
	require.NoError(t, proc.start())
	<-proc.Done()

	_, sent, err := proc.SendNextSignal()
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, proc.RemainingSignals(), 3, "nothing consumed after exit")
}

func TestProcess_SignalReachesGroup(t *testing.T) {
	// The grandchild sleep must die with its parent shell.
	cmd := exec.Command("/bin/sh", "-c", "sleep 30 & wait")
	proc := NewProcess("id", "group", cmd)
	require.NoError(t, proc.start())

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, proc.Signal(syscall.SIGTERM))

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process group did not exit")
	}
}

func TestProcess_Kill(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "10"))
	require.NoError(t, proc.start())

	require.NoError(t, proc.Kill())
	<-proc.Done()

	assert.Equal(t, StateKilled, proc.State())
	assert.True(t, proc.Killed())
	assert.Empty(t, proc.RemainingSignals())
}

func TestProcess_SignalBeforeStart(t *testing.T) {
	proc := NewProcess("id", "echo", exec.Command("echo"))
	assert.ErrorIs(t, proc.Signal(syscall.SIGINT), ErrProcessNotStarted)
}

func TestProcess_Runtime(t *testing.T) {
	proc := NewProcess("id", "sleep", exec.Command("sleep", "0.05"))
	assert.Zero(t, proc.Runtime())

	require.NoError(t, proc.start())
	<-proc.Done()

	first := proc.Runtime()
	assert.GreaterOrEqual(t, first, 40*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, first, proc.Runtime(), "runtime is frozen after exit")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "exited", StateExited.String())
	assert.Equal(t, "killed", StateKilled.String())
	assert.Equal(t, "unknown(99)", State(99).String())
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in   string
		want syscall.Signal
	}{
		{"SIGINT", syscall.SIGINT},
		{"int", syscall.SIGINT},
		{" SIGTERM ", syscall.SIGTERM},
		{"KILL", syscall.SIGKILL},
		{"sighup", syscall.SIGHUP},
		{"9", syscall.Signal(9)},
	}
	for _, tt := range tests {
		got, err := ParseSignal(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseSignal("SIGBOGUS")
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestParseSignals(t *testing.T) {
	got, err := ParseSignals(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSignals(), got)

	got, err = ParseSignals([]string{"SIGTERM", "SIGKILL"})
	require.NoError(t, err)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, got)

	_, err = ParseSignals([]string{"SIGTERM", "nope"})
	assert.ErrorIs(t, err, ErrUnknownSignal)
}
