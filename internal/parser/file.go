package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseFile decodes a JSON or YAML file, chosen by extension. Anything
// that is not .yaml or .yml is read as JSON.
func ParseFile(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAMLObject(file)
	default:
		return ParseJSONObject(file)
	}
}
