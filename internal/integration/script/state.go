package script

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds every call into a script.
const DefaultTimeout = 5 * time.Second

// State is a sandboxed Lua state. gopher-lua states are not goroutine-safe;
// every entry point holds mu.
type State struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	closed  bool
}

// Option configures a State.
type Option func(*State)

// WithTimeout sets the limit for each call. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *State) {
		s.timeout = d
	}
}

// NewState creates a sandboxed state.
func NewState(opts ...Option) *State {
	s := &State{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}

	s.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(s.L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	return s
}

// openSafeLibraries opens the libraries without file, process or debug
// access.
func openSafeLibraries(L *lua.LState) {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// eval runs src as a chunk named name and returns its first result.
func (s *State) eval(ctx context.Context, name, src string) (lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil, ErrClosed
	}

	fn, err := s.L.Load(strings.NewReader(src), name)
	if err != nil {
		return lua.LNil, err
	}
	results, err := s.callLocked(ctx, fn, nil, 1)
	if err != nil {
		return lua.LNil, err
	}
	if len(results) == 0 {
		return lua.LNil, nil
	}
	return results[0], nil
}

// call invokes fn with args. While it runs, print writes to out when out is
// set.
func (s *State) call(ctx context.Context, fn *lua.LFunction, out io.Writer, args ...any) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if out != nil {
		prev := s.L.GetGlobal("print")
		s.L.SetGlobal("print", s.L.NewFunction(printTo(out)))
		defer s.L.SetGlobal("print", prev)
	}

	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = s.toLua(a)
	}
	results, err := s.callLocked(ctx, fn, largs, lua.MultRet)
	if err != nil {
		return nil, err
	}

	out2 := make([]any, len(results))
	for i, r := range results {
		out2[i] = s.toGo(r, map[*lua.LTable]bool{})
	}
	return out2, nil
}

func (s *State) callLocked(ctx context.Context, fn *lua.LFunction, args []lua.LValue, nret int) (results []lua.LValue, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	top := s.L.GetTop()
	defer func() {
		if r := recover(); r != nil {
			s.L.SetTop(top)
			results, err = nil, fmt.Errorf("lua panic: %v", r)
		}
	}()

	s.L.Push(fn)
	for _, a := range args {
		s.L.Push(a)
	}
	if err := s.L.PCall(len(args), nret, nil); err != nil {
		s.L.SetTop(top)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, err
	}

	n := s.L.GetTop() - top
	results = make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.SetTop(top)
	return results, nil
}

// Close releases the state. Later calls fail with ErrClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.L.Close()
	return nil
}

func printTo(w io.Writer) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		fmt.Fprintln(w, strings.Join(parts, "\t"))
		return 0
	}
}
