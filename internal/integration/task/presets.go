package task

import "sort"

// preset holds the pattern for each kind; Warning falls back to Error.
type preset struct {
	Error   string
	Warning string
}

// presets are referenced from errorMatch/warningMatch as "$name".
// Every pattern runs with multiline anchors over the whole output.
var presets = map[string]preset{
	// GCC/Clang: file:line:column: error: message
	"$gcc": {
		Error:   `(?m)^(?<file>[^:\r\n]+):(?<line>\d+):(?:(?<col>\d+):)?\s*(?:fatal\s+)?error:\s*(?<message>[^\r\n]*)`,
		Warning: `(?m)^(?<file>[^:\r\n]+):(?<line>\d+):(?:(?<col>\d+):)?\s*warning:\s*(?<message>[^\r\n]*)`,
	},
	// Go compiler and vet: file.go:line:column: message
	"$go": {
		Error: `(?m)^\s*(?<file>[^:\s][^:\r\n]*\.go):(?<line>\d+)(?::(?<col>\d+))?:\s*(?<message>[^\r\n]*)`,
	},
	// TypeScript: file(line,col): error TS1234: message
	"$tsc": {
		Error:   `(?m)^(?<file>[^(\r\n]+)\((?<line>\d+),(?<col>\d+)\):\s*error\s+\w+:\s*(?<message>[^\r\n]*)`,
		Warning: `(?m)^(?<file>[^(\r\n]+)\((?<line>\d+),(?<col>\d+)\):\s*warning\s+\w+:\s*(?<message>[^\r\n]*)`,
	},
	// ESLint compact: file: line 1, col 2, Error - message
	"$eslint-compact": {
		Error:   `(?m)^(?<file>[^:\r\n]+):\s*line\s+(?<line>\d+),\s*col\s+(?<col>\d+),\s*Error\s*-\s*(?<message>[^\r\n]*)`,
		Warning: `(?m)^(?<file>[^:\r\n]+):\s*line\s+(?<line>\d+),\s*col\s+(?<col>\d+),\s*Warning\s*-\s*(?<message>[^\r\n]*)`,
	},
	// pylint: file:line:col: E0001: message (E/F errors, W/C/R warnings)
	"$pylint": {
		Error:   `(?m)^(?<file>[^:\r\n]+):(?<line>\d+):(?<col>\d+):\s*[EF]\d+:\s*(?<message>[^\r\n]*)`,
		Warning: `(?m)^(?<file>[^:\r\n]+):(?<line>\d+):(?<col>\d+):\s*[WCR]\d+:\s*(?<message>[^\r\n]*)`,
	},
	// rustc/cargo: error[E0001]: message
	//   --> file:line:col
	"$rustc": {
		Error:   `(?m)^error(?:\[\w+\])?:\s*(?<message>[^\r\n]*)\r?\n\s*-->\s*(?<file>[^:\r\n]+):(?<line>\d+):(?<col>\d+)`,
		Warning: `(?m)^warning(?:\[\w+\])?:\s*(?<message>[^\r\n]*)\r?\n\s*-->\s*(?<file>[^:\r\n]+):(?<line>\d+):(?<col>\d+)`,
	},
	// Anything of the form file:line: message
	"$generic": {
		Error: `(?m)^(?<file>[^:\s][^:\r\n]*):(?<line>\d+):\s*(?<message>[^\r\n]*)`,
	},
}

// LookupPreset returns the pattern of preset name for kind.
func LookupPreset(name, kind string) (string, bool) {
	p, ok := presets[name]
	if !ok {
		return "", false
	}
	if kind == MatchKindWarning && p.Warning != "" {
		return p.Warning, true
	}
	return p.Error, true
}

// PresetNames lists the available presets, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
