package loader

import (
	"bytes"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

func parseJSON5(path string, data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	var tree map[string]any
	if err := json5.Unmarshal(data, &tree); err != nil {
		return nil, &ParseError{
			Path:    path,
			Format:  FormatJSON5,
			Message: err.Error(),
			Err:     err,
		}
	}
	return tree, nil
}
