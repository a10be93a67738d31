package script

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/buildium/internal/config/loader"
)

// errLine finds the line number in gopher-lua compile and runtime errors,
// e.g. "file.lua:3: ..." or "line:3(column:7)".
var errLine = regexp.MustCompile(`(?:line:|:)(\d+)(?:\(column:(\d+)\))?[:\s]`)

// Script is a loaded build script. Functions in its document stay callable
// until Close.
type Script struct {
	path  string
	state *State
	doc   map[string]any
}

// Load runs the chunk in data and returns the table it evaluates to.
// Failures are *loader.ParseError.
func Load(ctx context.Context, path string, data []byte, opts ...Option) (*Script, error) {
	state := NewState(opts...)

	value, err := state.eval(ctx, path, string(data))
	if err != nil {
		_ = state.Close()
		return nil, parseError(path, err)
	}

	doc, ok := state.toGo(value, map[*lua.LTable]bool{}).(map[string]any)
	if !ok {
		_ = state.Close()
		return nil, parseError(path, fmt.Errorf("%w, got %s", ErrNotTable, value.Type()))
	}
	return &Script{path: path, state: state, doc: doc}, nil
}

// Path is the file the script was loaded from.
func (s *Script) Path() string { return s.path }

// Document is the table returned by the script.
func (s *Script) Document() map[string]any { return s.doc }

// Close releases the Lua state.
func (s *Script) Close() error { return s.state.Close() }

func parseError(path string, err error) error {
	pe := &loader.ParseError{
		Path:    path,
		Format:  loader.FormatLua,
		Message: err.Error(),
		Err:     err,
	}
	if errors.Is(err, ErrNotTable) {
		return pe
	}
	if m := errLine.FindStringSubmatch(err.Error()); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			pe.Column, _ = strconv.Atoi(m[2])
		}
	}
	return pe
}
