package script

import (
	"context"
	"fmt"
	"io"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// Func is a Lua function returned by a script.
type Func struct {
	state *State
	fn    *lua.LFunction
}

// Call invokes the function. Lua print output goes to out when it is set.
func (f *Func) Call(ctx context.Context, out io.Writer, args ...any) ([]any, error) {
	return f.state.call(ctx, f.fn, out, args...)
}

// toGo converts a Lua value. Tables become []any when their keys are
// exactly 1..n and map[string]any otherwise; functions become *Func.
func (s *State) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return s.tableToGo(v, visited)
	case *lua.LFunction:
		return &Func{state: s, fn: v}
	default:
		return nil
	}
}

func (s *State) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	count, maxN := 0, 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		n, ok := k.(lua.LNumber)
		if !ok || float64(n) != float64(int(n)) || n < 1 {
			isArray = false
			return
		}
		if int(n) > maxN {
			maxN = int(n)
		}
	})

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = s.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = s.toGo(v, visited)
	})
	return m
}

// toLua converts the Go values passed to script functions.
func (s *State) toLua(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		t := s.L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, lua.LString(item))
		}
		return t
	case []any:
		t := s.L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, s.toLua(item))
		}
		return t
	case map[string]string:
		t := s.L.NewTable()
		for _, k := range sortedKeys(val) {
			t.RawSetString(k, lua.LString(val[k]))
		}
		return t
	case map[string]any:
		t := s.L.NewTable()
		for _, k := range sortedKeys(val) {
			t.RawSetString(k, s.toLua(val[k]))
		}
		return t
	case lua.LValue:
		return val
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
