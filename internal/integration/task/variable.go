package task

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/buildium/internal/host"
)

// envRef matches $NAME references.
var envRef = regexp.MustCompile(`\$(\w+)`)

// Substituter expands environment references and editor placeholders in
// build commands.
//
// Placeholders:
//
//	{FILE_ACTIVE}                absolute path of the active file
//	{FILE_ACTIVE_PATH}           its directory
//	{FILE_ACTIVE_NAME}           its base name
//	{FILE_ACTIVE_NAME_BASE}      its base name without extension
//	{SELECTION}                  selected text
//	{FILE_ACTIVE_CURSOR_ROW}     cursor row, 1-based
//	{FILE_ACTIVE_CURSOR_COLUMN}  cursor column, 1-based
//	{PROJECT_PATH}               root owning the active file, else the first root
//	{REPO_BRANCH_SHORT}          branch of the first root
//
// Placeholders without a value are left untouched.
type Substituter struct {
	Editor   host.EditorContext
	Branches host.BranchResolver
	// Roots lists the project roots in workspace order.
	Roots func() []string
	// Environ returns the base process environment. Defaults to os.Environ.
	Environ func() []string
}

// Substitute expands value. Text without references comes back unchanged.
func (s *Substituter) Substitute(value string, targetEnv map[string]string) string {
	value = s.expandEnv(value, targetEnv)

	var roots []string
	if s.Roots != nil {
		roots = realPaths(s.Roots())
	}

	projectPath := ""
	if len(roots) > 0 {
		projectPath = roots[0]
	}

	if s.Editor != nil {
		if file, ok := s.Editor.ActiveFilePath(); ok && file != "" {
			if real, err := filepath.EvalSymlinks(file); err == nil {
				file = real
			}
			dir := filepath.Dir(file)
			if root, ok := owningRoot(roots, dir); ok {
				projectPath = root
			}

			base := filepath.Base(file)
			value = strings.ReplaceAll(value, "{FILE_ACTIVE}", file)
			value = strings.ReplaceAll(value, "{FILE_ACTIVE_PATH}", dir)
			value = strings.ReplaceAll(value, "{FILE_ACTIVE_NAME}", base)
			value = strings.ReplaceAll(value, "{FILE_ACTIVE_NAME_BASE}", strings.TrimSuffix(base, filepath.Ext(base)))
		}
		if sel, ok := s.Editor.SelectionText(); ok {
			value = strings.ReplaceAll(value, "{SELECTION}", sel)
		}
		if cur, ok := s.Editor.CursorPosition(); ok {
			value = strings.ReplaceAll(value, "{FILE_ACTIVE_CURSOR_ROW}", strconv.Itoa(cur.Row+1))
			value = strings.ReplaceAll(value, "{FILE_ACTIVE_CURSOR_COLUMN}", strconv.Itoa(cur.Column+1))
		}
	}

	if projectPath != "" {
		value = strings.ReplaceAll(value, "{PROJECT_PATH}", projectPath)
	}

	if len(roots) > 0 && s.Branches != nil && strings.Contains(value, "{REPO_BRANCH_SHORT}") {
		if branch, err := s.Branches.ShortBranch(roots[0]); err == nil && branch != "" {
			value = strings.ReplaceAll(value, "{REPO_BRANCH_SHORT}", branch)
		}
	}

	return value
}

// expandEnv resolves $NAME against the process environment overlaid with
// targetEnv. Unknown names stay verbatim.
func (s *Substituter) expandEnv(value string, targetEnv map[string]string) string {
	if !strings.Contains(value, "$") {
		return value
	}

	environ := os.Environ
	if s.Environ != nil {
		environ = s.Environ
	}
	env := EnvMap(environ())
	for k, v := range targetEnv {
		env[k] = v
	}

	return envRef.ReplaceAllStringFunc(value, func(ref string) string {
		if v, ok := env[ref[1:]]; ok {
			return v
		}
		return ref
	})
}

// EnvMap converts KEY=VALUE entries to a map. Later entries win.
func EnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// ActiveRoot returns the root owning the active file, or the first root
// when there is no active file or no root contains it. ok is false when
// there are no roots.
func ActiveRoot(editor host.EditorContext, roots []string) (string, bool) {
	if len(roots) == 0 {
		return "", false
	}
	if editor != nil {
		if file, ok := editor.ActiveFilePath(); ok && file != "" {
			if real, err := filepath.EvalSymlinks(file); err == nil {
				file = real
			}
			if root, ok := owningRoot(roots, file); ok {
				return root, true
			}
		}
	}
	return roots[0], true
}

// owningRoot picks the longest root containing path.
func owningRoot(roots []string, path string) (string, bool) {
	sorted := append([]string(nil), roots...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, root := range sorted {
		real := root
		if r, err := filepath.EvalSymlinks(root); err == nil {
			real = r
		}
		if within(real, path) {
			return root, true
		}
	}
	return "", false
}

func within(root, path string) bool {
	if root == path {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func realPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			p = real
		}
		out = append(out, p)
	}
	return out
}
