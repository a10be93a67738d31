package task

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/buildium/internal/host"
)

// Match kinds produced by the built-in rules.
const (
	MatchKindError   = "Error"
	MatchKindWarning = "Warning"
)

// Match is a located reference extracted from build output.
type Match struct {
	// ID encodes the rule that produced the match and is stable for one
	// Set call: "error-match-<rule>-<n>", "warning-match-<rule>-<n>" or
	// "error-match-function-<fn>-<n>".
	ID string

	// Kind is Error, Warning or a custom kind set by a function matcher.
	Kind string

	File    string
	Line    int // 1-based, 0 when unknown
	Col     int // 1-based, 0 when unknown
	LineEnd int
	ColEnd  int

	Message     string
	HTMLMessage string

	// Trace holds secondary locations. Only function matchers set it.
	Trace []Match

	// Offset is the byte offset of the match in the output. A function
	// match that leaves it zero is placed at the first occurrence of Text.
	Offset int

	// Text is the matched output text.
	Text string
}

// MatchFunc extracts matches from the full build output.
type MatchFunc func(output string) []Match

// Errors returned when opening a match.
var (
	ErrMatchNotFound      = errors.New("can't find match with id")
	ErrMatchWithoutFile   = errors.New("did not match any file, don't know what to open")
	ErrMatchedFileMissing = errors.New("matched file does not exist")
)

// FunctionRegistry maps names used in build files to match functions.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]MatchFunc
}

// NewFunctionRegistry creates an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{funcs: make(map[string]MatchFunc)}
}

// Register adds fn under name, replacing any previous function.
func (r *FunctionRegistry) Register(name string, fn MatchFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the function registered under name.
func (r *FunctionRegistry) Lookup(name string) (MatchFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Matcher computes and navigates the matches of one build's output.
// It is safe for concurrent use.
type Matcher struct {
	mu        sync.Mutex
	cache     *lru.Cache[string, *regexp2.Regexp]
	timeout   time.Duration
	functions *FunctionRegistry
	opener    host.FileOpener
	logger    *slog.Logger

	cwd     string
	matches []Match
	next    int
	firstID string

	listenerMu sync.RWMutex
	listeners  map[uint64]func(Match)
	nextID     uint64
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithMatchTimeout bounds a single pattern evaluation.
func WithMatchTimeout(d time.Duration) MatcherOption {
	return func(m *Matcher) {
		m.timeout = d
	}
}

// WithFunctions sets the registry used for FunctionMatchNames.
func WithFunctions(r *FunctionRegistry) MatcherOption {
	return func(m *Matcher) {
		m.functions = r
	}
}

// WithOpener sets the host file opener.
func WithOpener(o host.FileOpener) MatcherOption {
	return func(m *Matcher) {
		m.opener = o
	}
}

// WithMatcherLogger sets the logger.
func WithMatcherLogger(l *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		m.logger = l
	}
}

// patternCacheSize bounds the compiled-pattern cache.
const patternCacheSize = 256

// NewMatcher creates a matcher.
func NewMatcher(opts ...MatcherOption) *Matcher {
	cache, _ := lru.New[string, *regexp2.Regexp](patternCacheSize)
	m := &Matcher{
		cache:     cache,
		timeout:   2 * time.Second,
		opener:    host.Nop{},
		logger:    slog.Default(),
		listeners: make(map[uint64]func(Match)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "matcher")
	return m
}

// OnMatched registers fn to be called after a match was opened.
func (m *Matcher) OnMatched(fn func(Match)) (unsubscribe func()) {
	m.listenerMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenerMu.Unlock()

	return func() {
		m.listenerMu.Lock()
		delete(m.listeners, id)
		m.listenerMu.Unlock()
	}
}

// Set replaces the current matches with those found in output using the
// rules of target. Rules that cannot be used are returned as
// *MatchRuleError; the remaining rules still apply.
func (m *Matcher) Set(target Target, cwd, output string) []error {
	var errs []error
	var found []Match

	// Function matchers run first.
	funcs := append([]MatchFunc(nil), target.FunctionMatch...)
	for i, name := range target.FunctionMatchNames {
		fn, ok := m.functions.Lookup(name)
		if !ok {
			errs = append(errs, &MatchRuleError{
				Kind:    "function",
				Index:   len(target.FunctionMatch) + i,
				Pattern: name,
				Err:     fmt.Errorf("no match function registered as %q", name),
			})
			continue
		}
		funcs = append(funcs, fn)
	}
	for fi, fn := range funcs {
		if fn == nil {
			continue
		}
		for mi, match := range fn(output) {
			match.ID = fmt.Sprintf("error-match-function-%d-%d", fi, mi)
			if match.Kind == "" {
				match.Kind = MatchKindError
			}
			if match.Offset == 0 && match.Text != "" {
				if i := strings.Index(output, match.Text); i > 0 {
					match.Offset = i
				}
			}
			found = append(found, match)
		}
	}

	offsets := newRuneIndex(output)
	rules := []struct {
		kind     string
		patterns []string
	}{
		{MatchKindError, target.ErrorMatch},
		{MatchKindWarning, target.WarningMatch},
	}
	for _, rule := range rules {
		for i, pattern := range rule.patterns {
			if pattern == "" {
				continue
			}
			matches, err := m.runPattern(rule.kind, i, pattern, output, offsets)
			if err != nil {
				errs = append(errs, err)
			}
			found = append(found, matches...)
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Offset < found[j].Offset })

	m.mu.Lock()
	m.cwd = cwd
	m.matches = found
	m.next = 0
	m.firstID = ""
	if len(found) > 0 {
		m.firstID = found[0].ID
	}
	m.mu.Unlock()

	m.logger.Debug("matched output", "target", target.Name, "matches", len(found), "rule_errors", len(errs))
	return errs
}

func (m *Matcher) runPattern(kind string, index int, pattern, output string, offsets *runeIndex) ([]Match, error) {
	ruleErr := func(err error) *MatchRuleError {
		return &MatchRuleError{Kind: kind, Index: index, Pattern: pattern, Err: err}
	}

	re, err := m.compile(kind, pattern)
	if err != nil {
		return nil, ruleErr(err)
	}

	prefix := strings.ToLower(kind)
	var out []Match
	match, err := re.FindStringMatch(output)
	for n := 0; match != nil; n++ {
		out = append(out, Match{
			ID:          fmt.Sprintf("%s-match-%d-%d", prefix, index, n),
			Kind:        kind,
			File:        group(match, "file"),
			Line:        intGroup(match, "line"),
			Col:         intGroup(match, "col"),
			LineEnd:     intGroup(match, "line_end"),
			ColEnd:      intGroup(match, "col_end"),
			Message:     group(match, "message"),
			HTMLMessage: group(match, "html_message"),
			Offset:      offsets.byteOffset(match.Index),
			Text:        match.String(),
		})
		match, err = re.FindNextMatch(match)
	}
	if err != nil {
		return out, ruleErr(err)
	}
	return out, nil
}

// compile resolves presets and returns a cached compiled pattern.
func (m *Matcher) compile(kind, pattern string) (*regexp2.Regexp, error) {
	source := pattern
	if strings.HasPrefix(pattern, "$") {
		preset, ok := LookupPreset(pattern, kind)
		if !ok {
			return nil, fmt.Errorf("unknown preset %s", pattern)
		}
		source = preset
	}

	key := m.timeout.String() + "\x00" + source
	if re, ok := m.cache.Get(key); ok {
		return re, nil
	}

	re, err := regexp2.Compile(source, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = m.timeout
	m.cache.Add(key, re)
	return re, nil
}

func group(m *regexp2.Match, name string) string {
	g := m.GroupByName(name)
	if g == nil || len(g.Captures) == 0 {
		return ""
	}
	return g.String()
}

func intGroup(m *regexp2.Match, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(group(m, name)))
	if err != nil {
		return 0
	}
	return n
}

// Matches returns the current matches ordered by position in the output.
func (m *Matcher) Matches() []Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Match(nil), m.matches...)
}

// HasMatch reports whether there is at least one match.
func (m *Matcher) HasMatch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matches) > 0
}

// IsErrorKind reports whether kind names the Error kind, ignoring case.
func IsErrorKind(kind string) bool { return strings.EqualFold(kind, MatchKindError) }

// HasError reports whether any match has the Error kind.
func (m *Matcher) HasError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, match := range m.matches {
		if IsErrorKind(match.Kind) {
			return true
		}
	}
	return false
}

// Clear drops all matches.
func (m *Matcher) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = nil
	m.next = 0
	m.firstID = ""
}

// GotoNext opens the next match, wrapping after the last one.
// It does nothing when there are no matches.
func (m *Matcher) GotoNext() error {
	m.mu.Lock()
	if len(m.matches) == 0 {
		m.mu.Unlock()
		return nil
	}
	id := m.matches[m.next].ID
	m.mu.Unlock()
	return m.Goto(id)
}

// GotoFirst opens the first match of the last Set, if any.
func (m *Matcher) GotoFirst() error {
	m.mu.Lock()
	id := m.firstID
	m.mu.Unlock()
	if id == "" {
		return nil
	}
	return m.Goto(id)
}

// Goto opens the match with id. The match following it becomes the next
// one visited by GotoNext.
func (m *Matcher) Goto(id string) error {
	m.mu.Lock()
	idx := -1
	for i, match := range m.matches {
		if match.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w %s", ErrMatchNotFound, id)
	}
	match := m.matches[idx]
	m.next = (idx + 1) % len(m.matches)
	cwd := m.cwd
	m.mu.Unlock()

	if match.File == "" {
		return ErrMatchWithoutFile
	}

	file := resolveFile(cwd, match.File)
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("%w: %s", ErrMatchedFileMissing, file)
	}

	if err := m.opener.Open(file, zeroBased(match.Line), zeroBased(match.Col)); err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}

	m.listenerMu.RLock()
	listeners := make([]func(Match), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(match)
	}
	return nil
}

func resolveFile(cwd, file string) string {
	if filepath.IsAbs(file) || cwd == "" {
		return file
	}
	return filepath.Join(cwd, file)
}

func zeroBased(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// runeIndex converts regexp2 rune offsets to byte offsets.
type runeIndex struct {
	ascii bool
	bytes []int
}

func newRuneIndex(s string) *runeIndex {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			idx := make([]int, 0, len(s))
			for b := range s {
				idx = append(idx, b)
			}
			return &runeIndex{bytes: append(idx, len(s))}
		}
	}
	return &runeIndex{ascii: true}
}

func (r *runeIndex) byteOffset(runeOffset int) int {
	if r.ascii {
		return runeOffset
	}
	if runeOffset < len(r.bytes) {
		return r.bytes[runeOffset]
	}
	return r.bytes[len(r.bytes)-1]
}
