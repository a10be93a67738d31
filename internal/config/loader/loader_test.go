package loader

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	if data, ok := m.files[path]; ok {
		return data, nil
	}
	return nil, fs.ErrNotExist
}

func (m *MemFS) Stat(path string) (fs.FileInfo, error) {
	if _, ok := m.files[path]; ok {
		return &memFileInfo{name: filepath.Base(path)}, nil
	}
	return nil, fs.ErrNotExist
}

type memFileInfo struct {
	name string
}

func (f *memFileInfo) Name() string       { return f.name }
func (f *memFileInfo) Size() int64        { return 0 }
func (f *memFileInfo) Mode() fs.FileMode  { return 0644 }
func (f *memFileInfo) ModTime() time.Time { return time.Now() }
func (f *memFileInfo) IsDir() bool        { return false }
func (f *memFileInfo) Sys() any           { return nil }

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"/p/.atom-build.json", FormatJSON5},
		{"/p/.atom-build.json5", FormatJSON5},
		{"/p/.atom-build.cson", FormatCSON},
		{"/p/.atom-build.toml", FormatTOML},
		{"/p/.atom-build.yaml", FormatYAML},
		{"/p/.atom-build.YML", FormatYAML},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatFromPath("/p/.atom-build.js")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_JSON5(t *testing.T) {
	src := `{
		// comment
		cmd: "make",
		"args": ["-j", "4",],
		"env": {"CC": "clang"},
	}`
	tree, err := Load(FormatJSON5, "x.json", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "make", tree["cmd"])
	assert.Equal(t, []any{"-j", "4"}, tree["args"])
	assert.Equal(t, map[string]any{"CC": "clang"}, tree["env"])
}

func TestLoad_TOML(t *testing.T) {
	src := `
cmd = "make"
args = ["all"]
sh = false

[targets.test]
cmd = "make"
args = ["test"]
`
	tree, err := Load(FormatTOML, "x.toml", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "make", tree["cmd"])
	assert.Equal(t, false, tree["sh"])
	targets, ok := tree["targets"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, targets, "test")
}

func TestLoad_YAML(t *testing.T) {
	src := "cmd: echo\nargs:\n  - hello\nerrorMatch: '(?<file>\\S+):(?<line>\\d+)'\n"
	tree, err := Load(FormatYAML, "x.yml", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "echo", tree["cmd"])
	assert.Equal(t, []any{"hello"}, tree["args"])
	assert.Equal(t, `(?<file>\S+):(?<line>\d+)`, tree["errorMatch"])
}

func TestLoad_CSON(t *testing.T) {
	src := `# build file
cmd: 'make'
name:'Build all'
args: [
  '-j'
  "4"
]
errorMatch: [
  '(?<file>[\\/0-9a-zA-Z\\._]+):(?<line>\\d+)'
]
env:
  CC: 'it\'s "clang"'
`
	tree, err := Load(FormatCSON, "x.cson", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "make", tree["cmd"])
	assert.Equal(t, "Build all", tree["name"])
	assert.Equal(t, []any{"-j", "4"}, tree["args"])
	assert.Equal(t, []any{`(?<file>[\/0-9a-zA-Z\._]+):(?<line>\d+)`}, tree["errorMatch"])
	assert.Equal(t, map[string]any{"CC": `it's "clang"`}, tree["env"])
}

func TestLoad_CSONBlockStringRejected(t *testing.T) {
	_, err := Load(FormatCSON, "x.cson", []byte("cmd: '''\nmake\n'''\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FormatCSON, perr.Format)
	assert.Equal(t, 1, perr.Line)
}

func TestLoad_EmptyDocument(t *testing.T) {
	for _, format := range []Format{FormatJSON5, FormatTOML, FormatYAML, FormatCSON} {
		tree, err := Load(format, "empty", []byte(""))
		require.NoError(t, err, format)
		assert.NotNil(t, tree, format)
		assert.Empty(t, tree, format)
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := []struct {
		format Format
		src    string
	}{
		{FormatJSON5, `{"cmd": }`},
		{FormatTOML, "cmd = \n"},
		{FormatYAML, "cmd: [unclosed\n"},
	}
	for _, tt := range tests {
		_, err := Load(tt.format, "/p/bad", []byte(tt.src))
		var perr *ParseError
		require.ErrorAs(t, err, &perr, tt.format)
		assert.Equal(t, "/p/bad", perr.Path)
		assert.Equal(t, tt.format, perr.Format)
		assert.Contains(t, perr.Error(), "/p/bad")
	}
}

func TestLoad_TOMLErrorPosition(t *testing.T) {
	_, err := Load(FormatTOML, "x.toml", []byte("cmd = \"make\"\nargs = [\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Greater(t, perr.Line, 0)
}

func TestLoadFile(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/p/.atom-build.yml", "cmd: make\n")

	tree, err := LoadFile(memfs, "/p/.atom-build.yml")
	require.NoError(t, err)
	assert.Equal(t, "make", tree["cmd"])

	_, err = LoadFile(memfs, "/p/.atom-build.toml")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestOSFS_FollowsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.yml")
	require.NoError(t, os.WriteFile(target, []byte("cmd: make\n"), 0o644))
	link := filepath.Join(dir, ".atom-build.yml")
	require.NoError(t, os.Symlink(target, link))

	tree, err := LoadFile(DefaultFS(), link)
	require.NoError(t, err)
	assert.Equal(t, "make", tree["cmd"])
}
