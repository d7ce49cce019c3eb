package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseYAMLObject decodes a YAML mapping. The result is normalised through
// JSON so integers become float64 and nested mappings are map[string]any,
// matching what ParseJSONObject yields.
func ParseYAMLObject(reader io.Reader) (map[string]any, error) {
	var data map[string]any
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML object: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("failed to parse YAML object: document is empty")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML object: %w", err)
	}
	var normalised map[string]any
	if err := json.Unmarshal(raw, &normalised); err != nil {
		return nil, fmt.Errorf("failed to parse YAML object: %w", err)
	}
	return normalised, nil
}
