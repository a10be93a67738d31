package loader

import (
	"fmt"
	"strings"
)

// parseCSON converts CSON into YAML and decodes it with the YAML loader.
//
// The supported subset covers what build files use: indentation-nested
// objects, single or double quoted strings with JavaScript escapes, flow
// arrays and objects whose items may be separated by newlines instead of
// commas, and # comments. Triple-quoted block strings are rejected.
func parseCSON(path string, data []byte) (map[string]any, error) {
	normalized, err := csonToYAML(string(data))
	if err != nil {
		return nil, &ParseError{
			Path:    path,
			Format:  FormatCSON,
			Line:    err.line,
			Message: err.msg,
			Err:     err,
		}
	}
	return decodeYAML(path, FormatCSON, []byte(normalized))
}

type csonError struct {
	line int
	msg  string
}

func (e *csonError) Error() string {
	return fmt.Sprintf("line %d: %s", e.line, e.msg)
}

// yamlEscapes are the characters YAML accepts after a backslash in a
// double-quoted scalar.
const yamlEscapes = "0abtnvfre \"/\\N_LPxuU"

func csonToYAML(src string) (string, *csonError) {
	var out strings.Builder
	out.Grow(len(src) + len(src)/8)

	line := 1
	depth := 0
	runes := []rune(src)

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' || c == '"':
			if i+2 < len(runes) && runes[i+1] == c && runes[i+2] == c {
				return "", &csonError{line: line, msg: "block strings are not supported"}
			}
			end, err := writeQuoted(&out, runes, i, line)
			if err != nil {
				return "", err
			}
			i = end

		case c == '#':
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}

		case c == '[' || c == '{':
			depth++
			out.WriteRune(c)

		case c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
			out.WriteRune(c)

		case c == ':':
			out.WriteRune(c)
			if i+1 < len(runes) && runes[i+1] != ' ' && runes[i+1] != '\n' && runes[i+1] != '\t' && runes[i+1] != '\r' {
				out.WriteByte(' ')
			}

		case c == '\n':
			if depth > 0 && needsComma(out.String(), runes[i+1:]) {
				out.WriteByte(',')
			}
			out.WriteRune(c)
			line++

		default:
			out.WriteRune(c)
		}
	}

	return out.String(), nil
}

// writeQuoted writes the string literal starting at runes[start] as a YAML
// double-quoted scalar and returns the index of the closing quote.
func writeQuoted(out *strings.Builder, runes []rune, start, line int) (int, *csonError) {
	quote := runes[start]
	out.WriteByte('"')
	for i := start + 1; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == quote:
			out.WriteByte('"')
			return i, nil
		case c == '\n':
			return 0, &csonError{line: line, msg: "unterminated string"}
		case c == '\\' && i+1 < len(runes):
			next := runes[i+1]
			i++
			switch {
			case next == '\'':
				out.WriteRune('\'')
			case strings.ContainsRune(yamlEscapes, next):
				out.WriteRune('\\')
				out.WriteRune(next)
			default:
				out.WriteRune(next)
			}
		case c == '"':
			out.WriteString(`\"`)
		default:
			out.WriteRune(c)
		}
	}
	return 0, &csonError{line: line, msg: "unterminated string"}
}

// needsComma reports whether a newline inside a flow collection separates
// two items that lack an explicit comma.
func needsComma(written string, rest []rune) bool {
	prev := strings.TrimRight(written, " \t\r")
	if prev == "" {
		return false
	}
	switch prev[len(prev)-1] {
	case '[', '{', ',', ':', '\n':
		return false
	}

	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case '#':
			for i < len(rest) && rest[i] != '\n' {
				i++
			}
			continue
		case ']', '}', ',':
			return false
		default:
			return true
		}
	}
	return false
}
