package sources

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/dshills/buildium/internal/integration/script"
	"github.com/dshills/buildium/internal/integration/task"
)

// decodeDocument turns one parsed build file into targets: the top-level
// definition first, then one per entry of "targets". Entries follow order,
// the declaration order of the file; keys it does not list come after it
// sorted, which is all a Lua table can offer.
func decodeDocument(path string, doc map[string]any, order []string) ([]task.Target, error) {
	name := "default"
	if n, ok := doc["name"]; ok {
		s, err := asString(n)
		if err != nil {
			return nil, fieldError(path, "name", err)
		}
		if s != "" {
			name = s
		}
	}

	top, err := decodeBuild(path, "", doc)
	if err != nil {
		return nil, err
	}
	top.Name = "Custom: " + name
	targets := []task.Target{top}

	raw, ok := doc["targets"]
	if !ok || raw == nil {
		return targets, nil
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return targets, fieldError(path, "targets", fmt.Errorf("expected a mapping, got %T", raw))
	}
	keys := orderedKeys(entries, order)

	for _, key := range keys {
		body, ok := entries[key].(map[string]any)
		if !ok {
			return targets, fieldError(path, "targets."+key, fmt.Errorf("expected a mapping, got %T", entries[key]))
		}
		t, err := decodeBuild(path, "targets."+key+".", body)
		if err != nil {
			return targets, err
		}
		t.Name = "Custom: " + key
		targets = append(targets, t)
	}
	return targets, nil
}

func orderedKeys(m map[string]any, order []string) []string {
	keys := make([]string, 0, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range m {
		if !slices.Contains(keys, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// decodeBuild reads the fields of one build definition. prefix qualifies
// field names in errors.
func decodeBuild(path, prefix string, m map[string]any) (task.Target, error) {
	t := task.Target{SourceFile: path}
	var err error
	str := func(key string, dst *string) {
		if err != nil {
			return
		}
		if v, ok := m[key]; ok && v != nil {
			var s string
			if s, err = asString(v); err != nil {
				err = fieldError(path, prefix+key, err)
				return
			}
			*dst = s
		}
	}
	list := func(key string, dst *[]string) {
		if err != nil {
			return
		}
		if v, ok := m[key]; ok && v != nil {
			var l []string
			if l, err = asStringList(v); err != nil {
				err = fieldError(path, prefix+key, err)
				return
			}
			*dst = l
		}
	}

	str("cmd", &t.Exec)
	str("cwd", &t.Cwd)
	str("envFile", &t.EnvFile)
	str("atomCommandName", &t.CommandName)
	str("keymap", &t.Keymap)
	list("args", &t.Args)
	list("errorMatch", &t.ErrorMatch)
	list("warningMatch", &t.WarningMatch)
	list("killSignals", &t.KillSignals)
	if err != nil {
		return t, err
	}
	if err := decodeHooks(path, prefix, m, &t); err != nil {
		return t, err
	}

	if v, ok := m["sh"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return t, fieldError(path, prefix+"sh", fmt.Errorf("expected a boolean, got %T", v))
		}
		t.Sh = task.Bool(b)
	}

	if v, ok := m["env"]; ok && v != nil {
		env, ok := v.(map[string]any)
		if !ok {
			return t, fieldError(path, prefix+"env", fmt.Errorf("expected a mapping, got %T", v))
		}
		t.Env = make(map[string]string, len(env))
		for k, ev := range env {
			s, err := asString(ev)
			if err != nil {
				return t, fieldError(path, prefix+"env."+k, err)
			}
			t.Env[k] = s
		}
	}
	return t, nil
}

// decodeHooks reads preBuild, postBuild and functionMatch. Declaration
// files give shell commands and function names; Lua scripts may give
// functions instead.
func decodeHooks(path, prefix string, m map[string]any, t *task.Target) error {
	switch v := m["preBuild"].(type) {
	case nil:
	case *script.Func:
		t.PreBuild = luaPreBuild(v)
	default:
		cmd, err := asString(v)
		if err != nil {
			return fieldError(path, prefix+"preBuild", err)
		}
		if cmd != "" {
			t.PreBuild = task.ShellHook(cmd)
		}
	}

	switch v := m["postBuild"].(type) {
	case nil:
	case *script.Func:
		t.PostBuild = luaPostBuild(v)
	default:
		cmd, err := asString(v)
		if err != nil {
			return fieldError(path, prefix+"postBuild", err)
		}
		if cmd != "" {
			t.PostBuild = task.ShellPostHook(cmd)
		}
	}

	var items []any
	switch v := m["functionMatch"].(type) {
	case nil:
	case []any:
		items = v
	default:
		items = []any{v}
	}
	for i, item := range items {
		if fn, ok := item.(*script.Func); ok {
			t.FunctionMatch = append(t.FunctionMatch, luaMatcher(fn))
			continue
		}
		name, err := asString(item)
		if err != nil {
			return fieldError(path, fmt.Sprintf("%sfunctionMatch[%d]", prefix, i), err)
		}
		t.FunctionMatchNames = append(t.FunctionMatchNames, name)
	}
	return nil
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("expected a string, got %T", v)
	}
}

// asStringList accepts a single scalar or a list of scalars.
func asStringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		s, err := asString(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := asString(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// FieldError is a build file whose content parsed but has a field of the
// wrong type.
type FieldError struct {
	Path  string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %s: %v", e.Path, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldError(path, field string, err error) error {
	return &FieldError{Path: path, Field: field, Err: err}
}
