package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONObject(t *testing.T) {
	got, err := ParseJSONObject(strings.NewReader(`{"lr": 0.01, "epochs": 10, "opt": {"name": "adam"}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"lr":     0.01,
		"epochs": float64(10),
		"opt":    map[string]any{"name": "adam"},
	}, got)
}

func TestParseJSONObjectRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"array", `[1, 2]`},
		{"scalar", `"text"`},
		{"null", `null`},
		{"broken", `{"a":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSONObject(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}

func TestParseYAMLObjectMatchesJSON(t *testing.T) {
	yamlDoc := "lr: 0.01\nepochs: 10\nopt:\n  name: adam\n  betas: [0.9, 0.999]\n"
	jsonDoc := `{"lr": 0.01, "epochs": 10, "opt": {"name": "adam", "betas": [0.9, 0.999]}}`

	fromYAML, err := ParseYAMLObject(strings.NewReader(yamlDoc))
	require.NoError(t, err)
	fromJSON, err := ParseJSONObject(strings.NewReader(jsonDoc))
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromYAML)
}

func TestParseYAMLObjectEmpty(t *testing.T) {
	_, err := ParseYAMLObject(strings.NewReader(""))
	require.Error(t, err)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		file    string
		content string
	}{
		{"config.json", `{"batch_size": 32}`},
		{"config.yaml", "batch_size: 32\n"},
		{"config.YML", "batch_size: 32\n"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			got, err := ParseFile(path)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"batch_size": float64(32)}, got)
		})
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
