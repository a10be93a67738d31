package script

import "errors"

var (
	// ErrClosed is returned when calling into a closed script.
	ErrClosed = errors.New("lua script is closed")

	// ErrNotTable is returned when a build script does not return a table.
	ErrNotTable = errors.New("build script must return a table")
)
