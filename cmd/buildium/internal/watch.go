package internal

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/buildium/internal/config"
	"github.com/dshills/buildium/internal/integration"
	"github.com/dshills/buildium/internal/integration/build"
	"github.com/dshills/buildium/internal/project/watcher"
)

var watchIgnore []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build the active target whenever a file changes",
	Long: `Watch treats every change under the project roots as a save and builds
the active target. Changes made while a build runs are ignored.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchIgnore, "ignore", nil, "Additional base-name patterns to ignore, e.g. 'dist' or '*.o'")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(ctx, func(st *config.Settings) { st.BuildOnSave = true })
	if err != nil {
		return err
	}
	defer s.Close()

	settings := s.store.Get()
	ignore := append(append([]string(nil), watcher.DefaultIgnore...), watchIgnore...)
	w, err := watcher.New(settings.ForcePolling, watcher.WithLogger(s.logger), watcher.WithIgnore(ignore...))
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range s.roots {
		if err := w.AddRecursive(root); err != nil {
			return err
		}
	}

	saved := integration.NewDebouncer(settings.RefreshDebounce.Std(), func() {
		if err := s.builder.EditorSaved(ctx); err != nil {
			s.logger.Debug("build on change failed", "error", err)
		}
	})
	defer saved.Stop()

	s.logger.Info("watching for changes", "roots", s.roots)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if s.builder.State() != build.StateIdle {
				continue
			}
			s.logger.Debug("file changed", "path", ev.Path, "op", ev.Op.String())
			saved.Trigger()
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			s.logger.Warn("watch error", "error", err)
		}
	}
}
