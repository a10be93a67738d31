package git

import "errors"

// Error types for git lookups.
var (
	// ErrNotRepository indicates the path is not inside a git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNoHead indicates the repository has no HEAD (no commits yet).
	ErrNoHead = errors.New("repository has no HEAD")
)
