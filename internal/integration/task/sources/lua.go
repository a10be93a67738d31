package sources

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/dshills/buildium/internal/integration/script"
	"github.com/dshills/buildium/internal/integration/task"
)

// luaPreBuild calls fn(ctx) where ctx holds the target name, cwd and env.
// The hook fails when fn raises an error or returns false, optionally
// followed by a message.
func luaPreBuild(fn *script.Func) task.Hook {
	return func(ctx context.Context, hc task.HookContext) error {
		res, err := fn.Call(ctx, hc.Output, hookTable(hc))
		if err != nil {
			return err
		}
		return hookResult(res)
	}
}

// luaPostBuild calls fn(success, stdout, stderr, ctx).
func luaPostBuild(fn *script.Func) task.PostHook {
	return func(ctx context.Context, hc task.HookContext, r task.Result) error {
		res, err := fn.Call(ctx, hc.Output, r.Success, r.Stdout, r.Stderr, hookTable(hc))
		if err != nil {
			return err
		}
		return hookResult(res)
	}
}

func hookTable(hc task.HookContext) map[string]any {
	return map[string]any{
		"name": hc.Target.Name,
		"cwd":  hc.Cwd,
		"env":  task.EnvMap(hc.Env),
	}
}

func hookResult(res []any) error {
	if len(res) == 0 {
		return nil
	}
	if ok, isBool := res[0].(bool); !isBool || ok {
		return nil
	}
	if len(res) > 1 {
		if msg, _ := res[1].(string); msg != "" {
			return errors.New(msg)
		}
	}
	return errors.New("hook returned false")
}

// luaMatcher calls fn(output), which returns a list of match tables with
// the keys file, line, col, line_end, col_end, message, html_message, type
// and trace.
func luaMatcher(fn *script.Func) task.MatchFunc {
	return func(output string) []task.Match {
		res, err := fn.Call(context.Background(), nil, output)
		if err != nil {
			slog.Default().Warn("functionMatch failed", "component", "lua-match", "error", err)
			return nil
		}
		if len(res) == 0 {
			return nil
		}
		items, _ := res[0].([]any)
		matches := make([]task.Match, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				matches = append(matches, matchFrom(m))
			}
		}
		return matches
	}
}

func matchFrom(m map[string]any) task.Match {
	match := task.Match{
		Kind:        text(m["type"]),
		File:        text(m["file"]),
		Line:        number(m["line"]),
		Col:         number(m["col"]),
		LineEnd:     number(m["line_end"]),
		ColEnd:      number(m["col_end"]),
		Message:     text(m["message"]),
		HTMLMessage: text(m["html_message"]),
	}
	trace, _ := m["trace"].([]any)
	for _, item := range trace {
		if tm, ok := item.(map[string]any); ok {
			match.Trace = append(match.Trace, matchFrom(tm))
		}
	}
	return match
}

func text(v any) string {
	if v == nil {
		return ""
	}
	s, err := asString(v)
	if err != nil {
		return ""
	}
	return s
}

func number(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
