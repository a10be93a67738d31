package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	logLevel   string
	rootDirs   []string
)

// errFailed marks a command whose failure was already reported.
var errFailed = errors.New("build failed")

var rootCmd = &cobra.Command{
	Use:           "buildium",
	Short:         "buildium runs project build targets",
	Long:          `buildium discovers build targets from .atom-build files, Makefiles and package.json scripts, runs them, and reports matched errors.`,
	Version:       version + " (" + commit + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to a TOML settings file")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringSliceVarP(&rootDirs, "root", "r", nil, "Project root; repeat for several roots (default: working directory)")
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
