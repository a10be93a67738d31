package loader

import (
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

func parseYAML(path string, data []byte) (map[string]any, error) {
	return decodeYAML(path, FormatYAML, data)
}

func decodeYAML(path string, format Format, data []byte) (map[string]any, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		perr := &ParseError{
			Path:    path,
			Format:  format,
			Message: err.Error(),
			Err:     err,
		}
		if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
			perr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, perr
	}
	return tree, nil
}
