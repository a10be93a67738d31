package process

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

// DefaultSignals is the termination queue used when a target declares none.
func DefaultSignals() []syscall.Signal {
	return []syscall.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGKILL}
}

var signalNames = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"TERM": syscall.SIGTERM,
	"ABRT": syscall.SIGABRT,
	"ALRM": syscall.SIGALRM,
}

// ParseSignal accepts "SIGINT", "INT", "int" or a signal number.
func ParseSignal(name string) (syscall.Signal, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return syscall.Signal(n), nil
	}
	if sig, ok := signalNames[strings.TrimPrefix(s, "SIG")]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
}

// ParseSignals parses a termination queue. An empty list yields
// DefaultSignals.
func ParseSignals(names []string) ([]syscall.Signal, error) {
	if len(names) == 0 {
		return DefaultSignals(), nil
	}
	out := make([]syscall.Signal, 0, len(names))
	for _, name := range names {
		sig, err := ParseSignal(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}
