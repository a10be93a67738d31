// Package config holds the plugin-level settings of buildium.
//
// Settings are an explicit struct passed to each component at construction.
// They come from three places, later ones overriding earlier ones:
//
//	┌─────────────────────────────┐
//	│  3. BUILDIUM_* environment  │  ← Highest priority
//	├─────────────────────────────┤
//	│  2. TOML settings file      │  ← --config FILE
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// A Store owns the current Settings for the lifetime of a builder and
// notifies subscribers when they change.
//
// # Sub-packages
//
//   - loader: build declaration file loading (JSON5, CSON, TOML, YAML)
package config
