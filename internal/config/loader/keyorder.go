package loader

import (
	"fmt"
	"slices"

	"github.com/pelletier/go-toml/v2/unstable"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// KeyOrder returns the keys of the mapping reached by following path from
// the document root, in the order the document declares them. Settings
// trees are Go maps and lose that order. A missing mapping yields nil.
func KeyOrder(format Format, data []byte, path ...string) ([]string, error) {
	switch format {
	case FormatYAML:
		return yamlKeyOrder(data, path)
	case FormatCSON:
		normalized, err := csonToYAML(string(data))
		if err != nil {
			return nil, err
		}
		return yamlKeyOrder([]byte(normalized), path)
	case FormatTOML:
		return tomlKeyOrder(data, path)
	case FormatJSON5:
		return json5KeyOrder(data, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func yamlKeyOrder(data []byte, path []string) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	n := &doc
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil, nil
		}
		n = n.Content[0]
	}
	for _, key := range path {
		if n = yamlValue(n, key); n == nil {
			return nil, nil
		}
	}
	n = yamlDeref(n)
	if n.Kind != yaml.MappingNode {
		return nil, nil
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys, nil
}

func yamlValue(n *yaml.Node, key string) *yaml.Node {
	n = yamlDeref(n)
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func yamlDeref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// tomlKeyOrder walks the expressions of the document. A key below path may
// appear in a table header, a dotted key or an inline table.
func tomlKeyOrder(data []byte, path []string) ([]string, error) {
	var keys []string
	record := func(full []string) {
		if len(full) > len(path) && slices.Equal(full[:len(path)], path) && !slices.Contains(keys, full[len(path)]) {
			keys = append(keys, full[len(path)])
		}
	}
	var visit func(full []string, value *unstable.Node)
	visit = func(full []string, value *unstable.Node) {
		record(full)
		if value == nil || value.Kind != unstable.InlineTable {
			return
		}
		it := value.Children()
		for it.Next() {
			kv := it.Node()
			if kv.Kind == unstable.KeyValue {
				visit(append(slices.Clone(full), tomlKey(kv)...), kv.Value())
			}
		}
	}

	var table []string
	p := unstable.Parser{}
	p.Reset(data)
	for p.NextExpression() {
		e := p.Expression()
		switch e.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = tomlKey(e)
			record(table)
		case unstable.KeyValue:
			visit(append(slices.Clone(table), tomlKey(e)...), e.Value())
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}

func tomlKey(n *unstable.Node) []string {
	var parts []string
	it := n.Key()
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

// json5KeyOrder scans the document without building values. The json5
// package decodes objects into maps only, so declaration order has to be
// read from the text.
func json5KeyOrder(data []byte, path []string) ([]string, error) {
	s := &json5Scanner{src: data}
	s.space()
	if s.done() {
		return nil, nil
	}
	var keys []string
	if err := s.value(path, true, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

type json5Scanner struct {
	src []byte
	pos int
}

func (s *json5Scanner) done() bool { return s.pos >= len(s.src) }

func (s *json5Scanner) peek() byte {
	if s.done() {
		return 0
	}
	return s.src[s.pos]
}

func (s *json5Scanner) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", s.pos, fmt.Sprintf(format, args...))
}

// space skips whitespace and comments.
func (s *json5Scanner) space() {
	for !s.done() {
		switch c := s.src[s.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			s.pos++
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/':
			for !s.done() && s.src[s.pos] != '\n' {
				s.pos++
			}
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			s.pos += 2
			for !s.done() && !(s.src[s.pos] == '*' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/') {
				s.pos++
			}
			s.pos += 2
		default:
			return
		}
	}
}

// value consumes one value. When active, rest is the path still to follow
// and the keys of the object it ends at are appended to keys.
func (s *json5Scanner) value(rest []string, active bool, keys *[]string) error {
	switch c := s.peek(); c {
	case '{':
		return s.object(rest, active, keys)
	case '[':
		return s.array()
	case '"', '\'':
		_, err := s.str()
		return err
	case 0:
		return s.errorf("unexpected end of input")
	default:
		for !s.done() && !isJSON5Delim(s.src[s.pos]) {
			s.pos++
		}
		return nil
	}
}

func (s *json5Scanner) object(rest []string, active bool, keys *[]string) error {
	s.pos++
	for {
		s.space()
		if s.peek() == '}' {
			s.pos++
			return nil
		}
		key, err := s.key()
		if err != nil {
			return err
		}
		s.space()
		if s.peek() != ':' {
			return s.errorf("expected ':' after key %q", key)
		}
		s.pos++
		s.space()

		if active && len(rest) == 0 && !slices.Contains(*keys, key) {
			*keys = append(*keys, key)
		}
		follow := active && len(rest) > 0 && rest[0] == key
		var next []string
		if follow {
			next = rest[1:]
		}
		if err := s.value(next, follow, keys); err != nil {
			return err
		}

		s.space()
		switch s.peek() {
		case ',':
			s.pos++
		case '}':
		default:
			return s.errorf("expected ',' or '}'")
		}
	}
}

func (s *json5Scanner) array() error {
	s.pos++
	for {
		s.space()
		if s.peek() == ']' {
			s.pos++
			return nil
		}
		if err := s.value(nil, false, nil); err != nil {
			return err
		}
		s.space()
		switch s.peek() {
		case ',':
			s.pos++
		case ']':
		default:
			return s.errorf("expected ',' or ']'")
		}
	}
}

func (s *json5Scanner) key() (string, error) {
	if c := s.peek(); c == '"' || c == '\'' {
		return s.str()
	}
	start := s.pos
	for !s.done() && !isJSON5Delim(s.src[s.pos]) && s.src[s.pos] != ':' {
		s.pos++
	}
	if start == s.pos {
		return "", s.errorf("expected a key")
	}
	return string(s.src[start:s.pos]), nil
}

// str consumes a quoted string and decodes it with the json5 package.
func (s *json5Scanner) str() (string, error) {
	quote := s.src[s.pos]
	start := s.pos
	s.pos++
	for !s.done() && s.src[s.pos] != quote {
		if s.src[s.pos] == '\\' {
			s.pos++
		}
		s.pos++
	}
	if s.done() {
		return "", s.errorf("unterminated string")
	}
	s.pos++

	var out string
	if err := json5.Unmarshal(s.src[start:s.pos], &out); err != nil {
		return "", err
	}
	return out, nil
}

func isJSON5Delim(c byte) bool {
	switch c {
	case ',', ']', '}', ' ', '\t', '\n', '\r', '/':
		return true
	}
	return false
}
