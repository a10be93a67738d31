package loader

import (
	"errors"

	"github.com/pelletier/go-toml/v2"
)

func parseTOML(path string, data []byte) (map[string]any, error) {
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		perr := &ParseError{
			Path:    path,
			Format:  FormatTOML,
			Message: err.Error(),
			Err:     err,
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			perr.Line, perr.Column = decodeErr.Position()
		}
		return nil, perr
	}
	return tree, nil
}
