package task

import (
	"strings"

	"github.com/dshills/buildium/internal/host"
)

// Placeholder texts for matches without a message.
const (
	DefaultLintText  = "Error from build"
	DefaultTraceText = "Trace in build"
)

// Severity maps a match kind to a linter severity. Unknown kinds map to
// the empty string (no severity marker).
func Severity(kind string) string {
	switch strings.ToLower(kind) {
	case "err", "error":
		return "error"
	case "warn", "warning":
		return "warning"
	default:
		return ""
	}
}

// LintMessages converts matches to linter messages. Relative files are
// resolved against cwd.
func LintMessages(cwd string, matches []Match) []host.LintMessage {
	msgs := make([]host.LintMessage, 0, len(matches))
	for _, m := range matches {
		kind := m.Kind
		if kind == "" {
			kind = MatchKindError
		}
		text, html := lintText(m, DefaultLintText)
		msg := host.LintMessage{
			Type:     kind,
			Text:     text,
			HTML:     html,
			FilePath: lintFile(cwd, m.File),
			Range:    lintRange(m),
			Severity: Severity(kind),
		}
		for _, tr := range m.Trace {
			trType := tr.Kind
			if trType == "" {
				trType = "Trace"
			}
			trText, trHTML := lintText(tr, DefaultTraceText)
			sev := Severity(trType)
			if sev == "" {
				sev = "info"
			}
			msg.Trace = append(msg.Trace, host.LintTrace{
				Type:     trType,
				Text:     trText,
				HTML:     trHTML,
				FilePath: lintFile(cwd, tr.File),
				Range:    lintRange(tr),
				Severity: sev,
			})
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// lintText prefers the plain message; HTML is used only without one.
func lintText(m Match, fallback string) (text, html string) {
	switch {
	case m.Message != "":
		return m.Message, ""
	case m.HTMLMessage != "":
		return "", m.HTMLMessage
	default:
		return fallback, ""
	}
}

func lintFile(cwd, file string) string {
	if file == "" {
		return ""
	}
	return resolveFile(cwd, file)
}

func lintRange(m Match) *host.Range {
	line := orOne(m.Line)
	col := orOne(m.Col)
	endLine := m.LineEnd
	if endLine <= 0 {
		endLine = line
	}
	endCol := m.ColEnd
	if endCol <= 0 {
		endCol = col
	}
	return &host.Range{
		{Line: line - 1, Column: col - 1},
		{Line: endLine - 1, Column: endCol - 1},
	}
}

func orOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
