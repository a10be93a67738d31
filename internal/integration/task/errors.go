package task

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/dshills/buildium/internal/config/loader"
)

// ErrorKind classifies failures surfaced by target discovery and builds.
type ErrorKind int

const (
	// KindUnknown is any failure outside the taxonomy.
	KindUnknown ErrorKind = iota
	// KindConfigParse is a malformed build declaration file.
	KindConfigParse
	// KindNoEligibleTarget means no target resolves for the current context.
	KindNoEligibleTarget
	// KindInvalidTarget means the resolved target lacks an executable command.
	KindInvalidTarget
	// KindProvider is a provider failing during discovery.
	KindProvider
	// KindSpawn is a build process that could not be launched.
	KindSpawn
	// KindMatchRule is a match rule that could not be compiled or resolved.
	KindMatchRule
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindConfigParse:
		return "config-parse"
	case KindNoEligibleTarget:
		return "no-eligible-target"
	case KindInvalidTarget:
		return "invalid-target"
	case KindProvider:
		return "provider"
	case KindSpawn:
		return "spawn"
	case KindMatchRule:
		return "match-rule"
	default:
		return "unknown"
	}
}

// Sentinel errors for target resolution.
var (
	// ErrNoEligibleTarget is returned when no target exists for the context.
	ErrNoEligibleTarget = errors.New("no eligible build target")

	// ErrInvalidTarget is returned when a target has no executable command.
	ErrInvalidTarget = errors.New("invalid build target")

	// ErrUnknownRoot is returned for operations on a root the manager
	// does not track.
	ErrUnknownRoot = errors.New("unknown project root")

	// ErrUnknownTarget is returned when a named target does not exist.
	ErrUnknownTarget = errors.New("unknown build target")

	// ErrManagerClosed is returned after Manager.Close.
	ErrManagerClosed = errors.New("target manager is closed")
)

// BuildError is a target-resolution failure shown to the user with a short
// title and a longer detail.
type BuildError struct {
	Kind   ErrorKind
	Title  string
	Detail string
}

func (e *BuildError) Error() string {
	return e.Title + " " + e.Detail
}

// Is matches the sentinel for the error's kind.
func (e *BuildError) Is(target error) bool {
	switch e.Kind {
	case KindNoEligibleTarget:
		return target == ErrNoEligibleTarget
	case KindInvalidTarget:
		return target == ErrInvalidTarget
	}
	return false
}

// NoEligibleTarget returns the error for a context without targets.
func NoEligibleTarget() *BuildError {
	return &BuildError{
		Kind:   KindNoEligibleTarget,
		Title:  "No eligible build target.",
		Detail: "No configuration to build this project exists.",
	}
}

// InvalidTarget returns the error for a target without a command.
func InvalidTarget() *BuildError {
	return &BuildError{
		Kind:   KindInvalidTarget,
		Title:  "Invalid build file.",
		Detail: "No executable command specified.",
	}
}

// ProviderError wraps a failure of one provider.
type ProviderError struct {
	Provider string
	Root     string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s at %s: %v", e.Provider, e.Root, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SpawnError is a process launch failure.
type SpawnError struct {
	Command string
	Cwd     string
	Shell   bool
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q in %s: %v", e.Command, e.Cwd, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Code returns the OS error number when one is available.
func (e *SpawnError) Code() (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno, true
	}
	return 0, false
}

// MatchRuleError reports one match rule that could not be used.
type MatchRuleError struct {
	Kind    string
	Index   int
	Pattern string
	Err     error
}

func (e *MatchRuleError) Error() string {
	return fmt.Sprintf("Error parsing regex. %s rule %d %q: %v", e.Kind, e.Index, e.Pattern, e.Err)
}

func (e *MatchRuleError) Unwrap() error { return e.Err }

// KindOf classifies err. Wrapped errors are unwrapped.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var (
		parseErr    *loader.ParseError
		buildErr    *BuildError
		providerErr *ProviderError
		spawnErr    *SpawnError
		ruleErr     *MatchRuleError
	)
	switch {
	case errors.As(err, &buildErr):
		return buildErr.Kind
	case errors.As(err, &parseErr):
		return KindConfigParse
	case errors.As(err, &spawnErr):
		return KindSpawn
	case errors.As(err, &ruleErr):
		return KindMatchRule
	case errors.As(err, &providerErr):
		return KindProvider
	case errors.Is(err, ErrNoEligibleTarget):
		return KindNoEligibleTarget
	case errors.Is(err, ErrInvalidTarget):
		return KindInvalidTarget
	default:
		return KindUnknown
	}
}
