package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, w Watcher, path string, op Op) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "events channel closed")
			if ev.Path == path && ev.Op.Has(op) {
				return
			}
		case <-deadline:
			t.Fatalf("no %s event for %s", op, path)
		}
	}
}

func assertQuiet(t *testing.T, w Watcher, path string, d time.Duration) {
	t.Helper()
	timeout := time.After(d)
	for {
		select {
		case ev := <-w.Events():
			assert.NotEqual(t, path, ev.Path, "unexpected event %v", ev)
		case <-timeout:
			return
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "WRITE|REMOVE", (OpWrite | OpRemove).String())
	assert.Equal(t, "UNKNOWN", Op(0).String())
	assert.True(t, (OpCreate | OpWrite).Has(OpWrite))
	assert.False(t, OpCreate.Has(OpWrite))
}

func TestIgnored(t *testing.T) {
	assert.True(t, ignored(DefaultIgnore, "/a/b/.git"))
	assert.True(t, ignored(DefaultIgnore, "/a/node_modules"))
	assert.True(t, ignored(DefaultIgnore, "/a/main.go.swp"))
	assert.False(t, ignored(DefaultIgnore, "/a/main.go"))
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/a", "/a"))
	assert.True(t, within("/a", "/a/b/c"))
	assert.False(t, within("/a", "/ab"))
	assert.False(t, within("/a/b", "/a"))
}

func watchers(t *testing.T) map[string]func() Watcher {
	return map[string]func() Watcher{
		"notify": func() Watcher {
			w, err := NewNotify()
			require.NoError(t, err)
			return w
		},
		"poll": func() Watcher {
			return NewPoller(WithInterval(20 * time.Millisecond))
		},
	}
}

func TestWatcher_File(t *testing.T) {
	for name, mk := range watchers(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, ".atom-build.yml")
			sibling := filepath.Join(dir, "other.txt")
			writeFile(t, target, "cmd: make\n")

			w := mk()
			defer w.Close()
			require.NoError(t, w.Add(target))

			writeFile(t, sibling, "ignored")
			assertQuiet(t, w, sibling, 200*time.Millisecond)

			writeFile(t, target, "cmd: make all\n")
			waitFor(t, w, target, OpWrite)

			require.NoError(t, os.Remove(target))
			waitFor(t, w, target, OpRemove)
		})
	}
}

func TestWatcher_FileCreatedLater(t *testing.T) {
	for name, mk := range watchers(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, ".atom-build.json")

			w := mk()
			defer w.Close()
			require.NoError(t, w.Add(target))

			writeFile(t, target, `{"cmd": "make"}`)
			waitFor(t, w, target, OpCreate)
		})
	}
}

func TestWatcher_AtomicSave(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, ".atom-build.toml")
	writeFile(t, target, "cmd = 'make'\n")

	w, err := NewNotify()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(target))

	tmp := filepath.Join(dir, ".atom-build.toml.new")
	writeFile(t, tmp, "cmd = 'make all'\n")
	require.NoError(t, os.Rename(tmp, target))
	waitFor(t, w, target, OpCreate)
}

func TestWatcher_Recursive(t *testing.T) {
	for name, mk := range watchers(t) {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			sub := filepath.Join(root, "src")
			require.NoError(t, os.Mkdir(sub, 0o755))
			require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

			w := mk()
			defer w.Close()
			require.NoError(t, w.AddRecursive(root))

			gitFile := filepath.Join(root, ".git", "HEAD")
			writeFile(t, gitFile, "ref")
			assertQuiet(t, w, gitFile, 200*time.Millisecond)

			file := filepath.Join(sub, "main.c")
			writeFile(t, file, "int main;")
			waitFor(t, w, file, OpCreate)
		})
	}
}

func TestWatcher_RecursiveNewDirectory(t *testing.T) {
	root := t.TempDir()
	w, err := NewNotify()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.AddRecursive(root))

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, w, sub, OpCreate)

	// The new directory is watched once its create event was handled.
	file := filepath.Join(sub, "a.go")
	require.Eventually(t, func() bool {
		writeFile(t, file, time.Now().String())
		select {
		case ev := <-w.Events():
			return ev.Path == file
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_Errors(t *testing.T) {
	for name, mk := range watchers(t) {
		t.Run(name, func(t *testing.T) {
			w := mk()
			assert.ErrorIs(t, w.Add("/does/not/exist/file"), ErrPathNotExist)
			assert.ErrorIs(t, w.AddRecursive("/does/not/exist"), ErrPathNotExist)

			require.NoError(t, w.Close())
			require.NoError(t, w.Close())
			assert.ErrorIs(t, w.Add(filepath.Join(t.TempDir(), "x")), ErrWatcherClosed)

			_, ok := <-w.Events()
			assert.False(t, ok)
		})
	}
}

func TestNew(t *testing.T) {
	w, err := New(true)
	require.NoError(t, err)
	_, isPoller := w.(*Poller)
	assert.True(t, isPoller)
	require.NoError(t, w.Close())

	w, err = New(false)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}
