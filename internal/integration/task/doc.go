// Package task discovers build targets and interprets build output.
//
// # Targets
//
// A Target is a normalized build definition: a command, its arguments and
// environment, the working directory, match rules for build output, and
// optional hooks. Providers produce targets for one project root each;
// the Manager owns the targets of every root:
//
//	m := task.NewManager(task.WithHost(h), task.WithSettings(store))
//	m.RegisterProvider(sources.ConfigFileFactory(opts))
//	m.RegisterProvider(sources.MakefileFactory(opts))
//	if err := m.SetRoots(ctx, []string{"/path/to/project"}); err != nil {
//	    return err
//	}
//	targets, err := m.Targets(ctx, "/path/to/project")
//
// Roots refresh concurrently. A provider that fails or panics is reported
// to the host and its targets are left out; the other providers of the
// root are unaffected. Target names are made unique per root, and each
// root keeps one active target that survives refreshes while a target of
// that name still exists.
//
// # Substitution
//
// Substituter expands {FILE_ACTIVE}, {PROJECT_PATH}, {REPO_BRANCH_SHORT}
// and the other placeholders, then $VAR references, in the
// command, arguments, working directory and environment of a target just
// before it runs.
//
// # Matching
//
// Matcher runs a target's function matchers and error and warning
// patterns over the captured output of a build. Patterns use named groups
// (file, line, col, line_end, col_end, message) and may name a built-in
// preset with a leading $, such as $gcc or $go. Matches are ordered by
// their position in the output and can be walked with GotoNext.
// LintMessages turns them into host linter entries.
//
// # Subpackages
//
//   - sources: target providers for build files, Makefiles and npm scripts
package task
