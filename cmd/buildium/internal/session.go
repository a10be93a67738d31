package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/buildium/internal/config"
	"github.com/dshills/buildium/internal/host"
	"github.com/dshills/buildium/internal/integration/build"
	"github.com/dshills/buildium/internal/integration/git"
	"github.com/dshills/buildium/internal/integration/task"
	"github.com/dshills/buildium/internal/integration/task/sources"
)

// session wires the target manager and builder to a console host.
type session struct {
	logger   *slog.Logger
	store    *config.Store
	console  *host.Console
	registry *host.Registry
	manager  *task.Manager
	builder  *build.Builder
	roots    []string
}

// openSession loads settings, registers the target providers, and loads
// the targets of every root.
func openSession(ctx context.Context, adjust func(*config.Settings)) (*session, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	// Targets are picked explicitly on the command line.
	settings.SelectTriggers = false
	if adjust != nil {
		adjust(&settings)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: settings.SlogLevel()}))
	slog.SetDefault(logger)

	roots, err := resolveRoots(rootDirs)
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:   logger,
		store:    config.NewStore(settings),
		console:  host.NewConsole(os.Stdout, os.Stderr, host.WithConsoleLogger(logger)),
		registry: host.NewRegistry(),
		roots:    roots,
	}

	h := host.Host{
		Notifier:  s.console,
		Branches:  git.Resolver{},
		Opener:    s.console,
		Busy:      s.console,
		StatusBar: s.console,
		Linter:    s.console,
		Log:       s.console,
		Commands:  s.registry,
		Keymaps:   s.registry,
		Beeper:    s.console,
	}

	s.manager = task.NewManager(
		task.WithHost(h),
		task.WithSettings(s.store),
		task.WithManagerLogger(logger),
	)

	opts := sources.OptionsFrom(settings)
	opts.Logger = logger
	s.manager.RegisterProvider(sources.ConfigFileFactory(opts))
	s.manager.RegisterProvider(sources.MakefileFactory(opts))
	s.manager.RegisterProvider(sources.NPMFactory(opts))

	s.builder = build.New(s.manager,
		build.WithHost(h),
		build.WithSettings(s.store),
		build.WithLogger(logger),
	)

	if err := s.manager.SetRoots(ctx, roots); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.manager.Wait()
	return s, nil
}

// Close stops any running build and releases provider watchers.
func (s *session) Close() error {
	return s.builder.Close()
}

// selectTarget makes name the active target of the first root that has it.
func (s *session) selectTarget(ctx context.Context, name string) error {
	for _, root := range s.roots {
		targets, err := s.manager.Targets(ctx, root)
		if err != nil {
			continue
		}
		for _, t := range targets {
			if t.Name == name {
				return s.manager.SetActiveTarget(root, name)
			}
		}
	}
	return fmt.Errorf("%w: %s", task.ErrUnknownTarget, name)
}

func resolveRoots(dirs []string) ([]string, error) {
	if len(dirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dirs = []string{wd}
	}

	roots := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root %s is not a directory", abs)
		}
		roots = append(roots, abs)
	}
	return roots, nil
}
