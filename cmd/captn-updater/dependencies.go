package main

// Deps is the fully-wired object graph a single run needs, built by
// Initialize (build.go), following the teacher's own Deps{Updater,
// HealthChecker} shape in build.go.
type Deps struct {
	Runner *Runner
}
