// Package loader parses build declaration files into plain settings trees.
//
// One loader exists per supported format: TOML, YAML, JSON/JSON5 (comments and
// trailing commas allowed) and CSON. Loaders are pure: they turn bytes into a
// map[string]any and never touch the file system themselves. Failures are
// reported as *ParseError carrying the file path and format.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a build declaration file format.
type Format string

const (
	// FormatJSON5 is JSON with comments, trailing commas and unquoted keys.
	// Plain JSON files are parsed with the same loader.
	FormatJSON5 Format = "json5"
	// FormatCSON is CoffeeScript object notation.
	FormatCSON Format = "cson"
	// FormatTOML is TOML.
	FormatTOML Format = "toml"
	// FormatYAML is YAML.
	FormatYAML Format = "yaml"
	// FormatLua is a Lua build script. It has no loader here: scripts
	// return functions, which a settings tree cannot hold.
	FormatLua Format = "lua"
)

// Extensions lists the recognized file extensions in search order.
var Extensions = []string{"json", "json5", "cson", "toml", "yaml", "yml"}

// ErrUnsupportedFormat is returned for extensions without a loader.
var ErrUnsupportedFormat = fmt.Errorf("unsupported config format")

// Func parses raw content from path into a settings tree.
type Func func(path string, data []byte) (map[string]any, error)

var loaders = map[Format]Func{
	FormatJSON5: parseJSON5,
	FormatCSON:  parseCSON,
	FormatTOML:  parseTOML,
	FormatYAML:  parseYAML,
}

// FormatFromPath returns the format for a file based on its extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "json", "json5":
		return FormatJSON5, nil
	case "cson":
		return FormatCSON, nil
	case "toml":
		return FormatTOML, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Load parses data in the given format.
// An empty document yields an empty, non-nil map.
func Load(format Format, path string, data []byte) (map[string]any, error) {
	fn, ok := loaders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	tree, err := fn(path, data)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		tree = make(map[string]any)
	}
	return tree, nil
}

// LoadFile reads path from fsys and parses it according to its extension.
func LoadFile(fsys FileSystem, path string) (map[string]any, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	return Load(format, path, data)
}

// FileSystem is an abstraction for file system operations.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path, following symlinks.
func (OSFS) ReadFile(path string) ([]byte, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}
