// Package integration holds the building blocks buildium uses to talk to
// the outside world: child processes, build targets and their providers,
// the build orchestrator, and source-control lookups.
//
// # Sub-packages
//
//   - process: child processes with process-group signalling and a
//     single-slot supervisor
//   - task: targets, providers, the target manager, variable substitution,
//     and error matching
//   - task/sources: built-in target providers (build files, Make, npm)
//   - build: the build orchestrator state machine
//   - git: short branch names for {REPO_BRANCH_SHORT}
//   - script: sandboxed Lua build scripts
//
// This package itself provides Debouncer, shared by the providers to
// coalesce file-watcher events.
package integration
