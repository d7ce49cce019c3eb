package lifecycle

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/imishinist/mlvc-cli/internal/models"
	"github.com/imishinist/mlvc-cli/internal/parser"
)

// Input type tags accepted by the ingestion operations.
const (
	InputJSON      = "json"
	InputJSONFile  = "json_file"
	InputCSVFile   = "csv_file"
	InputDataFrame = "dataframe"
)

// extension returns the on-disk extension for an input type.
func extension(inputType string) (string, error) {
	switch inputType {
	case InputJSON, InputJSONFile:
		return ".json", nil
	case InputCSVFile, InputDataFrame:
		return ".csv", nil
	default:
		return "", fmt.Errorf("%w: %q (valid: json, json_file, csv_file, dataframe)", models.ErrInputType, inputType)
	}
}

// writeInput stores input under runDir as <relBase><ext> and returns the
// descriptor to record on the run.
//
//	json       any value, written as indented JSON
//	json_file  path to a file, copied
//	csv_file   path to a file, copied
//	dataframe  [][]string rows, written as CSV
func writeInput(runDir, relBase string, input any, inputType string) (models.FileRef, error) {
	ext, err := extension(inputType)
	if err != nil {
		return models.FileRef{}, err
	}
	rel := relBase + ext
	dst := filepath.Join(runDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return models.FileRef{}, fmt.Errorf("failed to create %s: %w", filepath.Dir(rel), err)
	}

	switch inputType {
	case InputJSON:
		err = writeJSON(dst, input)
	case InputJSONFile, InputCSVFile:
		path, ok := input.(string)
		if !ok {
			return models.FileRef{}, fmt.Errorf("%w: %s expects a file path, got %T", models.ErrInputType, inputType, input)
		}
		err = copyFile(path, dst)
	case InputDataFrame:
		rows, ok := input.([][]string)
		if !ok {
			return models.FileRef{}, fmt.Errorf("%w: dataframe expects [][]string rows, got %T", models.ErrInputType, input)
		}
		err = writeCSV(dst, rows)
	}
	if err != nil {
		return models.FileRef{}, err
	}
	return models.FileRef{Type: inputType, FileName: filepath.ToSlash(rel)}, nil
}

// configInput decodes an add-config input into a mapping.
func configInput(input any, inputType string) (map[string]any, error) {
	switch inputType {
	case InputJSON:
		if m, ok := input.(map[string]any); ok {
			return m, nil
		}
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("%w: config is not JSON-encodable: %v", models.ErrInputType, err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil || m == nil {
			return nil, fmt.Errorf("%w: config must be a JSON object, got %T", models.ErrInputType, input)
		}
		return m, nil
	case InputJSONFile:
		path, ok := input.(string)
		if !ok {
			return nil, fmt.Errorf("%w: json_file expects a file path, got %T", models.ErrInputType, input)
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()
		return parser.ParseJSONObject(file)
	default:
		return nil, fmt.Errorf("%w: %q is not valid for config (valid: json, json_file)", models.ErrInputType, inputType)
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
