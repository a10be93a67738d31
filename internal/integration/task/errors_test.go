package task

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/buildium/internal/config/loader"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("x"), KindUnknown},
		{"parse", fmt.Errorf("wrap: %w", &loader.ParseError{Path: "f", Format: loader.FormatTOML}), KindConfigParse},
		{"no target", NoEligibleTarget(), KindNoEligibleTarget},
		{"invalid", InvalidTarget(), KindInvalidTarget},
		{"sentinel", fmt.Errorf("x: %w", ErrInvalidTarget), KindInvalidTarget},
		{"provider", &ProviderError{Provider: "p", Err: errors.New("boom")}, KindProvider},
		{"provider parse", &ProviderError{Provider: "p", Err: &loader.ParseError{}}, KindConfigParse},
		{"spawn", &SpawnError{Command: "x", Err: exec.ErrNotFound}, KindSpawn},
		{"rule", &MatchRuleError{Kind: "Error", Pattern: "("}, KindMatchRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestBuildError(t *testing.T) {
	err := NoEligibleTarget()
	assert.ErrorIs(t, err, ErrNoEligibleTarget)
	assert.NotErrorIs(t, err, ErrInvalidTarget)
	assert.Equal(t, "No eligible build target.", err.Title)
	assert.Equal(t, "No configuration to build this project exists.", err.Detail)

	inv := InvalidTarget()
	assert.ErrorIs(t, inv, ErrInvalidTarget)
	assert.Equal(t, "Invalid build file.", inv.Title)
	assert.Equal(t, "No executable command specified.", inv.Detail)
}

func TestSpawnError_Code(t *testing.T) {
	err := &SpawnError{Command: "nope", Err: &exec.Error{Name: "nope", Err: syscall.ENOENT}}
	code, ok := err.Code()
	assert.True(t, ok)
	assert.Equal(t, syscall.ENOENT, code)

	_, ok = (&SpawnError{Err: errors.New("x")}).Code()
	assert.False(t, ok)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "config-parse", KindConfigParse.String())
	assert.Equal(t, "unknown", ErrorKind(99).String())
}
