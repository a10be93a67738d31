package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/buildium/internal/config/loader"
	"github.com/dshills/buildium/internal/integration/task"
)

func testOptions(t *testing.T) Options {
	return Options{
		HomeDir:  t.TempDir(),
		Debounce: 10 * time.Millisecond,
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func names(targets []task.Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Name
	}
	return out
}

func TestConfigFile_NotEligible(t *testing.T) {
	p := NewConfigFile(t.TempDir(), testOptions(t))
	defer p.Close()
	assert.False(t, p.IsEligible(context.Background()))
	assert.Equal(t, ConfigFileName, p.Name())
}

func TestConfigFile_Settings(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".atom-build.yml"), `
cmd: make
name: Build
args: [-j, 4]
sh: false
env:
  CC: clang
  JOBS: 4
errorMatch: $gcc
keymap: ctrl-alt-b
killSignals: [SIGTERM, SIGKILL]
preBuild: echo pre
targets:
  test:
    cmd: make test
  clean:
    cmd: make clean
    atomCommandName: build:clean
`)

	p := NewConfigFile(root, testOptions(t))
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))

	targets, err := p.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Custom: Build", "Custom: test", "Custom: clean"}, names(targets))

	top := targets[0]
	assert.Equal(t, "make", top.Exec)
	assert.Equal(t, []string{"-j", "4"}, top.Args)
	assert.False(t, top.Shell())
	assert.Equal(t, map[string]string{"CC": "clang", "JOBS": "4"}, top.Env)
	assert.Equal(t, []string{"$gcc"}, top.ErrorMatch)
	assert.Equal(t, "ctrl-alt-b", top.Keymap)
	assert.Equal(t, []string{"SIGTERM", "SIGKILL"}, top.KillSignals)
	assert.NotNil(t, top.PreBuild)
	assert.Nil(t, top.PostBuild)
	assert.Equal(t, filepath.Join(root, ".atom-build.yml"), top.SourceFile)

	assert.Equal(t, "make test", targets[1].Exec)
	assert.Equal(t, "build:clean", targets[2].CommandName)
}

func TestConfigFile_DefaultName(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".atom-build.json"), `{"cmd": "echo hi"}`)

	p := NewConfigFile(root, testOptions(t))
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))
	targets, err := p.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Custom: default"}, names(targets))
}

func TestConfigFile_AllFormatsLoaded(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".atom-build.json"), `{"name": "json", "cmd": "a"}`)
	write(t, filepath.Join(root, ".atom-build.toml"), "name = 'toml'\ncmd = 'b'\n")
	write(t, filepath.Join(root, ".atom-build.cson"), "name: 'cson'\ncmd: 'c'\n")

	p := NewConfigFile(root, testOptions(t))
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))
	assert.Len(t, p.Files(), 3)

	targets, err := p.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Custom: json", "Custom: cson", "Custom: toml"}, names(targets))
}

func TestConfigFile_TargetsKeepDeclarationOrder(t *testing.T) {
	tests := []struct {
		file    string
		content string
	}{
		{".atom-build.json", `{
  // comment
  "cmd": "make",
  "targets": {"zeta": {"cmd": "z"}, alpha: {cmd: 'a'}, "mid": {"cmd": "m",},},
}`},
		{".atom-build.toml", `cmd = "make"

[targets.zeta]
cmd = "z"

[targets.alpha]
cmd = "a"

[targets.mid]
cmd = "m"
`},
		{".atom-build.yml", `cmd: make
targets:
  zeta:
    cmd: z
  alpha:
    cmd: a
  mid:
    cmd: m
`},
		{".atom-build.cson", `cmd: 'make'
targets:
  zeta:
    cmd: 'z'
  alpha:
    cmd: 'a'
  mid:
    cmd: 'm'
`},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			root := t.TempDir()
			write(t, filepath.Join(root, tt.file), tt.content)

			p := NewConfigFile(root, testOptions(t))
			defer p.Close()
			require.True(t, p.IsEligible(context.Background()))

			targets, err := p.Settings(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"Custom: default", "Custom: zeta", "Custom: alpha", "Custom: mid"}, names(targets))
		})
	}
}

func TestConfigFile_MalformedFileIsolated(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".atom-build.json"), `{"cmd": `)
	write(t, filepath.Join(root, ".atom-build.yaml"), "name: good\ncmd: make\n")

	p := NewConfigFile(root, testOptions(t))
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))

	targets, err := p.Settings(context.Background())
	require.Error(t, err)
	var parseErr *loader.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, filepath.Join(root, ".atom-build.json"), parseErr.Path)
	assert.Equal(t, task.KindConfigParse, task.KindOf(err))
	assert.Equal(t, []string{"Custom: good"}, names(targets))
}

func TestConfigFile_RootBeforeHome(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(t)
	write(t, filepath.Join(root, ".atom-build.yml"), "name: root\ncmd: a\n")
	write(t, filepath.Join(opts.HomeDir, ".atom-build.yml"), "name: home\ncmd: b\n")
	write(t, filepath.Join(opts.HomeDir, ".atom-build.toml"), "name = 'hometoml'\ncmd = 'c'\n")

	p := NewConfigFile(root, opts)
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))
	assert.Equal(t, []string{
		filepath.Join(opts.HomeDir, ".atom-build.toml"),
		filepath.Join(root, ".atom-build.yml"),
	}, p.Files())
}

func TestConfigFile_CustomConfigName(t *testing.T) {
	root := t.TempDir()
	opts := testOptions(t)
	opts.ConfigName = "buildium"
	write(t, filepath.Join(root, ".buildium.yml"), "cmd: make\n")
	write(t, filepath.Join(root, ".atom-build.yml"), "cmd: other\n")

	p := NewConfigFile(root, opts)
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))
	assert.Equal(t, []string{filepath.Join(root, ".buildium.yml")}, p.Files())
}

func TestConfigFile_FieldTypeError(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, ".atom-build.yml"), "cmd: make\nsh: sometimes\n")

	p := NewConfigFile(root, testOptions(t))
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))
	_, err := p.Settings(context.Background())
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "sh", fieldErr.Field)
}

func TestConfigFile_RefreshOnChange(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, ".atom-build.yml")
	write(t, file, "cmd: make\n")

	for _, polling := range []bool{false, true} {
		opts := testOptions(t)
		opts.Polling = polling
		p := NewConfigFile(root, opts)
		require.True(t, p.IsEligible(context.Background()))

		var refreshes atomic.Int32
		unsub := p.OnRefresh(func() { refreshes.Add(1) })
		_, err := p.Settings(context.Background())
		require.NoError(t, err)

		write(t, file, fmt.Sprintf("cmd: make all # polling=%v\n", polling))
		require.Eventually(t, func() bool { return refreshes.Load() > 0 }, 5*time.Second, 10*time.Millisecond, "polling=%v", polling)

		unsub()
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())
	}
}

func TestDecodeDocument_TargetsNotMapping(t *testing.T) {
	targets, err := decodeDocument("f.yml", map[string]any{"cmd": "make", "targets": []any{"x"}}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"Custom: default"}, names(targets))
}

func TestAsStringList(t *testing.T) {
	l, err := asStringList("single")
	require.NoError(t, err)
	assert.Equal(t, []string{"single"}, l)

	l, err = asStringList([]any{"a", int64(2), 1.5, true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "2", "1.5", "true"}, l)

	_, err = asStringList([]any{map[string]any{}})
	assert.Error(t, err)
}

func TestMakefile(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "Makefile"), `
CC := gcc
.PHONY: all test clean

all: app
app: main.o
	$(CC) -o app main.o
test:
	./run-tests
clean:
	rm -f app
_private:
	true
%.o: %.c
	$(CC) -c $<
`)

	p := NewMakefile(root, testOptions(t))
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))

	targets, err := p.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"GNU Make: default", "GNU Make: all", "GNU Make: test", "GNU Make: clean"}, names(targets))
	assert.Equal(t, []string{"test"}, targets[2].Args)
	assert.Equal(t, "make", targets[2].Exec)
	assert.False(t, targets[2].Shell())
	assert.Equal(t, []string{"$gcc"}, targets[2].ErrorMatch)
}

func TestMakefile_NoPhony(t *testing.T) {
	rules, err := makeRules(context.Background(), []byte("build:\n\tgo build\nlint: build\n\tgo vet\nbuild:\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "lint"}, rules)
}

func TestMakefile_NotEligible(t *testing.T) {
	p := NewMakefile(t.TempDir(), testOptions(t))
	defer p.Close()
	assert.False(t, p.IsEligible(context.Background()))
}

func TestNPM(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "package.json"), `{
  "name": "app",
  "scripts": {"lint": "eslint .", "build": "webpack", "typecheck": "tsc --noEmit"},
  "devDependencies": {"typescript": "^5"}
}`)
	write(t, filepath.Join(root, "yarn.lock"), "")

	p := NewNPM(root, testOptions(t))
	defer p.Close()
	require.True(t, p.IsEligible(context.Background()))

	targets, err := p.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"yarn: lint", "yarn: build", "yarn: typecheck"}, names(targets))
	assert.Equal(t, []string{"run", "build"}, targets[1].Args)
	assert.Equal(t, []string{"$eslint-compact"}, targets[0].ErrorMatch)
	assert.Equal(t, []string{"$tsc"}, targets[1].ErrorMatch)
	assert.Equal(t, []string{"$tsc"}, targets[2].ErrorMatch)
}

func TestNPM_NoScripts(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "package.json"), `{"name": "x"}`)
	p := NewNPM(root, testOptions(t))
	defer p.Close()
	targets, err := p.Settings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestNPM_Malformed(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "package.json"), `{"scripts": `)
	p := NewNPM(root, testOptions(t))
	defer p.Close()
	_, err := p.Settings(context.Background())
	assert.Equal(t, task.KindConfigParse, task.KindOf(err))
}
