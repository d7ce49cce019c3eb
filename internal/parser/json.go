// Package parser decodes user-supplied configuration documents into plain
// maps.
package parser

import (
	"encoding/json"
	"fmt"
	"io"
)

// ParseJSONObject decodes a single JSON object. Numbers stay float64, the
// same as every other JSON value stored on a run.
func ParseJSONObject(reader io.Reader) (map[string]any, error) {
	var data map[string]any
	decoder := json.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON object: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("failed to parse JSON object: document is null")
	}

	return data, nil
}
