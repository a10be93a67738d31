package task

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fileLineCol = `(?<file>[\w.]+):(?<line>\d+):(?<col>\d+)`

type opened struct {
	path      string
	line, col int
}

type recordingOpener struct {
	mu    sync.Mutex
	calls []opened
}

func (o *recordingOpener) Open(path string, line, col int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, opened{path, line, col})
	return nil
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
}

func TestMatcher_OrderByOffset(t *testing.T) {
	m := NewMatcher()
	text := "a.js:2:3 error\nb.js:1:1 error"
	errs := m.Set(Target{ErrorMatch: []string{fileLineCol}}, "/tmp", text)
	require.Empty(t, errs)

	matches := m.Matches()
	require.Len(t, matches, 2)
	assert.Equal(t, "a.js", matches[0].File)
	assert.Equal(t, 2, matches[0].Line)
	assert.Equal(t, 3, matches[0].Col)
	assert.Equal(t, "b.js", matches[1].File)
	assert.Equal(t, "error-match-0-0", matches[0].ID)
	assert.Equal(t, "error-match-0-1", matches[1].ID)
}

func TestMatcher_OrderAcrossRules(t *testing.T) {
	m := NewMatcher()
	text := "z.c:1:1 warning: unused\na.c:5:2 error: boom\n"
	m.Set(Target{
		ErrorMatch:   []string{`(?<file>[\w.]+):(?<line>\d+):(?<col>\d+) error: (?<message>.+)`},
		WarningMatch: []string{`(?<file>[\w.]+):(?<line>\d+):(?<col>\d+) warning: (?<message>.+)`},
	}, "", text)

	matches := m.Matches()
	require.Len(t, matches, 2)
	assert.Equal(t, MatchKindWarning, matches[0].Kind)
	assert.Equal(t, "warning-match-0-0", matches[0].ID)
	assert.Equal(t, "unused", matches[0].Message)
	assert.Equal(t, MatchKindError, matches[1].Kind)
	assert.Equal(t, "boom", matches[1].Message)
	assert.True(t, m.HasError())
}

func TestMatcher_UnicodeOffsets(t *testing.T) {
	m := NewMatcher()
	text := "héllo wörld\nb.go:1:1\nä.go:2:2"
	m.Set(Target{ErrorMatch: []string{`(?<file>[\w.]+\.go):(?<line>\d+):(?<col>\d+)`}}, "", text)
	matches := m.Matches()
	require.Len(t, matches, 2)
	assert.Equal(t, "b.go:1:1", text[matches[0].Offset:matches[0].Offset+len("b.go:1:1")])
	assert.Equal(t, "ä.go", matches[1].File)
	assert.Equal(t, "ä.go:2:2", matches[1].Text)
}

func TestMatcher_FunctionMatchFirst(t *testing.T) {
	reg := NewFunctionRegistry()
	reg.Register("custom", func(output string) []Match {
		return []Match{{File: "f.txt", Line: 1, Message: "from function", Kind: "Info"}}
	})
	m := NewMatcher(WithFunctions(reg))

	direct := func(string) []Match { return []Match{{File: "d.txt", Message: "direct"}} }
	errs := m.Set(Target{
		FunctionMatch:      []MatchFunc{direct},
		FunctionMatchNames: []string{"custom", "missing"},
		ErrorMatch:         []string{fileLineCol},
	}, "", "x.go:1:1")

	require.Len(t, errs, 1)
	var ruleErr *MatchRuleError
	require.ErrorAs(t, errs[0], &ruleErr)
	assert.Equal(t, "missing", ruleErr.Pattern)
	assert.Equal(t, KindMatchRule, KindOf(errs[0]))

	matches := m.Matches()
	require.Len(t, matches, 3)
	assert.Equal(t, "error-match-function-0-0", matches[0].ID)
	assert.Equal(t, MatchKindError, matches[0].Kind, "function kind defaults to Error")
	assert.Equal(t, "error-match-function-1-0", matches[1].ID)
	assert.Equal(t, "Info", matches[1].Kind)
	assert.Equal(t, "x.go", matches[2].File)
}

func TestMatcher_FunctionMatchPlacedByText(t *testing.T) {
	m := NewMatcher()
	text := "start\na.go:1:1\nlate failure here\n"
	fn := func(string) []Match {
		return []Match{
			{File: "late.txt", Message: "late", Text: "late failure"},
			{File: "placed.txt", Message: "placed", Offset: 2},
		}
	}
	m.Set(Target{FunctionMatch: []MatchFunc{fn}, ErrorMatch: []string{fileLineCol}}, "", text)

	matches := m.Matches()
	require.Len(t, matches, 3)
	assert.Equal(t, "placed.txt", matches[0].File)
	assert.Equal(t, "a.go", matches[1].File)
	assert.Equal(t, "late.txt", matches[2].File)
	assert.Equal(t, strings.Index(text, "late failure"), matches[2].Offset)
}

func TestMatcher_HasErrorIgnoresCase(t *testing.T) {
	m := NewMatcher()
	m.Set(Target{FunctionMatch: []MatchFunc{func(string) []Match {
		return []Match{{File: "x", Kind: "error"}}
	}}}, "", "")
	assert.True(t, m.HasError())

	m.Set(Target{FunctionMatch: []MatchFunc{func(string) []Match {
		return []Match{{File: "x", Kind: "Warning"}}
	}}}, "", "")
	assert.False(t, m.HasError())
}

func TestMatcher_BadPatternIsolated(t *testing.T) {
	m := NewMatcher()
	errs := m.Set(Target{ErrorMatch: []string{`(?<file>[unclosed`, fileLineCol, "$nope"}}, "", "a.c:1:2")
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.Contains(t, err.Error(), "Error parsing regex.")
	}
	assert.Len(t, m.Matches(), 1)
}

func TestMatcher_Presets(t *testing.T) {
	tests := []struct {
		preset string
		kind   string
		text   string
		file   string
		line   int
		col    int
		msg    string
	}{
		{"$gcc", MatchKindError, "main.c:10:5: error: expected ';'", "main.c", 10, 5, "expected ';'"},
		{"$gcc", MatchKindWarning, "main.c:3:1: warning: unused variable", "main.c", 3, 1, "unused variable"},
		{"$go", MatchKindError, "./cmd/main.go:12:2: undefined: foo", "./cmd/main.go", 12, 2, "undefined: foo"},
		{"$tsc", MatchKindError, "src/a.ts(4,7): error TS2322: Type mismatch", "src/a.ts", 4, 7, "Type mismatch"},
		{"$eslint-compact", MatchKindError, "/p/a.js: line 1, col 2, Error - no-undef", "/p/a.js", 1, 2, "no-undef"},
		{"$pylint", MatchKindError, "mod.py:7:0: E0602: Undefined variable", "mod.py", 7, 0, "Undefined variable"},
		{"$rustc", MatchKindError, "error[E0425]: cannot find value\n  --> src/main.rs:2:5", "src/main.rs", 2, 5, "cannot find value"},
		{"$generic", MatchKindError, "build.sh:3: command not found", "build.sh", 3, 0, "command not found"},
	}
	for _, tt := range tests {
		t.Run(tt.preset+"/"+tt.kind, func(t *testing.T) {
			target := Target{}
			if tt.kind == MatchKindWarning {
				target.WarningMatch = []string{tt.preset}
			} else {
				target.ErrorMatch = []string{tt.preset}
			}
			m := NewMatcher()
			require.Empty(t, m.Set(target, "", tt.text))
			matches := m.Matches()
			require.Len(t, matches, 1)
			assert.Equal(t, tt.file, matches[0].File)
			assert.Equal(t, tt.line, matches[0].Line)
			assert.Equal(t, tt.col, matches[0].Col)
			assert.Equal(t, tt.msg, matches[0].Message)
			assert.Equal(t, tt.kind, matches[0].Kind)
		})
	}
	assert.Contains(t, PresetNames(), "$gcc")
}

func TestMatcher_GotoNextCycles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.go", "b.go", "c.go")
	opener := &recordingOpener{}
	m := NewMatcher(WithOpener(opener))
	m.Set(Target{ErrorMatch: []string{fileLineCol}}, dir, "a.go:1:1\nb.go:2:2\nc.go:3:3\n")

	var seen []string
	unsub := m.OnMatched(func(match Match) { seen = append(seen, match.File) })
	defer unsub()

	for i := 0; i < 4; i++ {
		require.NoError(t, m.GotoNext())
	}
	assert.Equal(t, []string{"a.go", "b.go", "c.go", "a.go"}, seen)
	require.Len(t, opener.calls, 4)
	assert.Equal(t, opened{filepath.Join(dir, "b.go"), 1, 1}, opener.calls[1], "zero-based position")
}

func TestMatcher_GotoFirst(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.go", "b.go")
	opener := &recordingOpener{}
	m := NewMatcher(WithOpener(opener))

	require.NoError(t, m.GotoFirst(), "no matches is not an error")
	require.NoError(t, m.GotoNext())

	m.Set(Target{ErrorMatch: []string{fileLineCol}}, dir, "b.go:1:1\na.go:1:1\n")
	require.NoError(t, m.GotoNext())
	require.NoError(t, m.GotoFirst())
	require.Len(t, opener.calls, 2)
	assert.Equal(t, filepath.Join(dir, "b.go"), opener.calls[1].path)
}

func TestMatcher_GotoErrors(t *testing.T) {
	dir := t.TempDir()
	m := NewMatcher(WithOpener(&recordingOpener{}))
	m.Set(Target{
		ErrorMatch:   []string{fileLineCol},
		WarningMatch: []string{`(?<message>warn \w+)`},
	}, dir, "gone.go:1:1\nwarn here")

	assert.ErrorIs(t, m.Goto("error-match-0-0"), ErrMatchedFileMissing)
	assert.ErrorIs(t, m.Goto("warning-match-0-0"), ErrMatchWithoutFile)
	assert.ErrorIs(t, m.Goto("nope"), ErrMatchNotFound)
}

func TestMatcher_Clear(t *testing.T) {
	m := NewMatcher()
	m.Set(Target{ErrorMatch: []string{fileLineCol}}, "", "a.go:1:1")
	require.True(t, m.HasMatch())
	m.Clear()
	assert.False(t, m.HasMatch())
	assert.Empty(t, m.Matches())
}

func TestMatcher_CompiledPatternCached(t *testing.T) {
	m := NewMatcher()
	m.Set(Target{ErrorMatch: []string{fileLineCol}}, "", "a.go:1:1")
	m.Set(Target{ErrorMatch: []string{fileLineCol}}, "", "b.go:1:1")
	assert.Equal(t, 1, m.cache.Len())
}
