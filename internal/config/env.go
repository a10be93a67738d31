package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "BUILDIUM_"

type envSetter func(s *Settings, value string) error

// envSetters is keyed by the lower-cased settings key without separators,
// so BUILDIUM_BUILD_ON_SAVE and BUILDIUM_BUILDONSAVE both reach buildOnSave.
var envSetters = map[string]envSetter{
	"panelvisibility": func(s *Settings, v string) error {
		s.PanelVisibility = PanelVisibility(v)
		return nil
	},
	"autotoggleinterval":      durationSetter(func(s *Settings) *Duration { return &s.AutoToggleInterval }),
	"buildonsave":             boolSetter(func(s *Settings) *bool { return &s.BuildOnSave }),
	"saveonbuild":             boolSetter(func(s *Settings) *bool { return &s.SaveOnBuild }),
	"matchederrorfailsbuild":  boolSetter(func(s *Settings) *bool { return &s.MatchedErrorFailsBuild }),
	"scrollonerror":           boolSetter(func(s *Settings) *bool { return &s.ScrollOnError }),
	"stealfocus":              boolSetter(func(s *Settings) *bool { return &s.StealFocus }),
	"selecttriggers":          boolSetter(func(s *Settings) *bool { return &s.SelectTriggers }),
	"refreshonshowtargetlist": boolSetter(func(s *Settings) *bool { return &s.RefreshOnShowTargetList }),
	"notificationonrefresh":   boolSetter(func(s *Settings) *bool { return &s.NotificationOnRefresh }),
	"beepwhendone":            boolSetter(func(s *Settings) *bool { return &s.BeepWhenDone }),
	"statusbar": func(s *Settings, v string) error {
		s.StatusBar = StatusBarPosition(v)
		return nil
	},
	"terminalscrollback": func(s *Settings, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		s.TerminalScrollback = n
		return nil
	},
	"configname": func(s *Settings, v string) error {
		s.ConfigName = v
		return nil
	},
	"refreshdebounce": durationSetter(func(s *Settings) *Duration { return &s.RefreshDebounce }),
	"matchtimeout":    durationSetter(func(s *Settings) *Duration { return &s.MatchTimeout }),
	"forcepolling":    boolSetter(func(s *Settings) *bool { return &s.ForcePolling }),
	"loglevel": func(s *Settings, v string) error {
		s.LogLevel = v
		return nil
	},
}

func boolSetter(field func(*Settings) *bool) envSetter {
	return func(s *Settings, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(s) = b
		return nil
	}
}

// durationSetter accepts a duration string or a bare number of milliseconds.
func durationSetter(field func(*Settings) *Duration) envSetter {
	return func(s *Settings, v string) error {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			*field(s) = Duration(time.Duration(ms) * time.Millisecond)
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(s) = Duration(d)
		return nil
	}
}

// ApplyEnv overrides s from environment entries in KEY=VALUE form.
// Entries without EnvPrefix are ignored; unknown or malformed ones are errors.
func ApplyEnv(s *Settings, environ []string) error {
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}

		name := envToKey(strings.TrimPrefix(key, EnvPrefix))
		setter, ok := envSetters[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
		}
		if err := setter(s, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("environment %s: %w", key, err)
		}
	}
	return nil
}

// envToKey converts an environment suffix to a settings lookup key.
// BUILD_ON_SAVE -> buildonsave
func envToKey(suffix string) string {
	return strings.ToLower(strings.ReplaceAll(suffix, "_", ""))
}
