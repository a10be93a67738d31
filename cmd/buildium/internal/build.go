package internal

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/buildium/internal/integration/build"
)

var buildCommand string

var buildCmd = &cobra.Command{
	Use:   "build [target]",
	Short: "Build a target",
	Long: `Build runs the named target, or the active target of the first root.

An interrupt aborts the build. Each further interrupt sends the next signal
of the target's kill-signal list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildCommand, "command", "", "Build the target registered under this command name or keystroke")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 1 {
		if err := s.selectTarget(ctx, args[0]); err != nil {
			return err
		}
	}

	commandName := ""
	if buildCommand != "" {
		if commandName, err = s.resolveCommand(buildCommand); err != nil {
			return err
		}
	}

	finished := make(chan build.Outcome, 1)
	unsubscribe := s.builder.OnFinished(func(o build.Outcome) {
		select {
		case finished <- o:
		default:
		}
	})
	defer unsubscribe()

	stop := s.stopOnInterrupt()
	defer stop()

	// Failures are already shown by the console notifier.
	if err := s.builder.Build(ctx, build.SourceTrigger, commandName); err != nil {
		return errFailed
	}
	if err := s.builder.Wait(ctx); err != nil {
		return err
	}

	select {
	case o := <-finished:
		if !o.Success {
			return errFailed
		}
	default:
	}
	return nil
}

// resolveCommand maps a keystroke or a command name to a registered command.
func (s *session) resolveCommand(name string) (string, error) {
	if cmd, ok := s.registry.Keymap(name); ok {
		return cmd, nil
	}
	if slices.Contains(s.registry.Commands(), name) {
		return name, nil
	}
	return "", fmt.Errorf("unknown command %q", name)
}

// stopOnInterrupt escalates the running build's kill signals on every
// SIGINT or SIGTERM received. The returned function stops listening.
func (s *session) stopOnInterrupt() func() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-signals:
				if sig, sent := s.builder.Stop(); sent {
					s.logger.Info("sent signal to build", "signal", sig.String())
				} else {
					s.logger.Info("no signal left to send")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}
