package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PanelVisibility controls when the build log view is shown.
type PanelVisibility string

const (
	// PanelToggle shows the log on build and hides it after a successful one.
	PanelToggle PanelVisibility = "Toggle"
	// PanelKeepVisible shows the log on build and never hides it.
	PanelKeepVisible PanelVisibility = "Keep Visible"
	// PanelShowOnError shows the log only when a build fails.
	PanelShowOnError PanelVisibility = "Show on Error"
	// PanelHidden never shows the log.
	PanelHidden PanelVisibility = "Hidden"
)

// StatusBarPosition places the build status tile.
type StatusBarPosition string

const (
	StatusBarLeft     StatusBarPosition = "Left"
	StatusBarRight    StatusBarPosition = "Right"
	StatusBarDisabled StatusBarPosition = "Disable"
)

// MinAutoToggleInterval is the shortest accepted auto-hide delay.
const MinAutoToggleInterval = time.Second

// Duration is a time.Duration that reads as a Go duration string ("3s").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings is the complete set of plugin settings.
type Settings struct {
	// PanelVisibility controls the build log view.
	PanelVisibility PanelVisibility `toml:"panelVisibility"`
	// AutoToggleInterval is the delay before hiding the log after success.
	AutoToggleInterval Duration `toml:"autoToggleInterval"`
	// BuildOnSave triggers a build whenever an editor is saved.
	BuildOnSave bool `toml:"buildOnSave"`
	// SaveOnBuild saves modified editors before a build without asking.
	SaveOnBuild bool `toml:"saveOnBuild"`
	// MatchedErrorFailsBuild fails a zero-exit build with Error matches.
	MatchedErrorFailsBuild bool `toml:"matchedErrorFailsBuild"`
	// ScrollOnError jumps to the first match when a build fails.
	ScrollOnError bool `toml:"scrollOnError"`
	// StealFocus lets the log view take focus when it opens.
	StealFocus bool `toml:"stealFocus"`
	// SelectTriggers builds as soon as a target is selected.
	SelectTriggers bool `toml:"selectTriggers"`
	// RefreshOnShowTargetList refreshes targets before listing them.
	RefreshOnShowTargetList bool `toml:"refreshOnShowTargetList"`
	// NotificationOnRefresh reports parsed targets after a refresh.
	NotificationOnRefresh bool `toml:"notificationOnRefresh"`
	// BeepWhenDone beeps after every build.
	BeepWhenDone bool `toml:"beepWhenDone"`
	// StatusBar places the status tile.
	StatusBar StatusBarPosition `toml:"statusBar"`
	// TerminalScrollback is the number of log lines kept by the log view.
	TerminalScrollback int `toml:"terminalScrollback"`
	// ConfigName is the base name of build declaration files (.<name>.<ext>).
	ConfigName string `toml:"configName"`
	// RefreshDebounce coalesces watcher events per provider.
	RefreshDebounce Duration `toml:"refreshDebounce"`
	// MatchTimeout bounds a single pattern evaluation.
	MatchTimeout Duration `toml:"matchTimeout"`
	// ForcePolling uses mtime polling instead of event-based watching.
	ForcePolling bool `toml:"forcePolling"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"logLevel"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		PanelVisibility:        PanelToggle,
		AutoToggleInterval:     Duration(3 * time.Second),
		MatchedErrorFailsBuild: true,
		StealFocus:             true,
		SelectTriggers:         true,
		StatusBar:              StatusBarLeft,
		TerminalScrollback:     1000,
		ConfigName:             "atom-build",
		RefreshDebounce:        Duration(300 * time.Millisecond),
		MatchTimeout:           Duration(2 * time.Second),
		LogLevel:               "info",
	}
}

// Validate checks every setting and returns all failures joined.
func (s Settings) Validate() error {
	var errs []error

	switch s.PanelVisibility {
	case PanelToggle, PanelKeepVisible, PanelShowOnError, PanelHidden:
	default:
		errs = append(errs, &ValidationError{Key: "panelVisibility", Message: "unknown visibility", Value: s.PanelVisibility})
	}

	if s.AutoToggleInterval.Std() < MinAutoToggleInterval {
		errs = append(errs, &ValidationError{Key: "autoToggleInterval", Message: "must be at least 1s", Value: s.AutoToggleInterval.Std()})
	}

	switch s.StatusBar {
	case StatusBarLeft, StatusBarRight, StatusBarDisabled:
	default:
		errs = append(errs, &ValidationError{Key: "statusBar", Message: "unknown position", Value: s.StatusBar})
	}

	if s.TerminalScrollback < 0 {
		errs = append(errs, &ValidationError{Key: "terminalScrollback", Message: "must not be negative", Value: s.TerminalScrollback})
	}

	if s.ConfigName == "" || strings.ContainsAny(s.ConfigName, `/\`) {
		errs = append(errs, &ValidationError{Key: "configName", Message: "must be a plain file name", Value: s.ConfigName})
	}

	if s.RefreshDebounce.Std() < 0 {
		errs = append(errs, &ValidationError{Key: "refreshDebounce", Message: "must not be negative", Value: s.RefreshDebounce.Std()})
	}

	if s.MatchTimeout.Std() <= 0 {
		errs = append(errs, &ValidationError{Key: "matchTimeout", Message: "must be positive", Value: s.MatchTimeout.Std()})
	}

	if _, err := ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, &ValidationError{Key: "logLevel", Message: err.Error(), Value: s.LogLevel})
	}

	return errors.Join(errs...)
}

// SlogLevel returns LogLevel as a slog.Level, falling back to info.
func (s Settings) SlogLevel() slog.Level {
	lvl, err := ParseLevel(s.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel parses a log level name.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
