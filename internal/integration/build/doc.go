// Package build runs build targets and reports their results to the host.
//
// A Builder resolves the target to run (a target's own command name, else
// the active target of the project root owning the active file), expands
// placeholders and environment references, runs the preBuild hook, and
// spawns the command either through /bin/sh -c or directly. Output streams
// into the host log view while it is captured for the matcher. When the
// process exits the captured text is matched, lint messages are published,
// the postBuild hook runs, and the host is told whether the build
// succeeded.
//
// At most one build process exists at a time:
//
//	b := build.New(manager, build.WithHost(h), build.WithSettings(store))
//	defer b.Close()
//
//	_ = b.Build(ctx, build.SourceTrigger, "")
//	_ = b.Build(ctx, build.SourceTrigger, "") // aborts the first, then runs
//	b.Stop()                                  // SIGINT, then SIGTERM, then SIGKILL
//
// A request made while a build runs aborts it and waits for its process to
// exit; only the latest such request survives.
package build
