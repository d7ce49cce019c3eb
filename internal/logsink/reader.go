package logsink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/imishinist/mlvc-cli/internal/models"
)

const maxLineSize = 16 * 1024 * 1024

type line struct {
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ReadPayloads reads a sink file back in write order and returns every
// line whose payload is a JSON object. A missing file reads as empty.
func ReadPayloads(path string) ([]models.MetricRecord, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open sink %s: %w", path, err)
	}
	defer file.Close()

	var records []models.MetricRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("malformed line %d in %s: %w", lineNo, path, err)
		}

		payload := bytes.TrimSpace(l.Payload)
		if len(payload) == 0 || payload[0] != '{' {
			continue
		}
		var values map[string]any
		if err := json.Unmarshal(payload, &values); err != nil {
			return nil, fmt.Errorf("malformed payload on line %d in %s: %w", lineNo, path, err)
		}

		ts, _ := time.Parse(time.RFC3339Nano, l.Timestamp)
		records = append(records, models.MetricRecord{Timestamp: ts, Values: values})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sink %s: %w", path, err)
	}

	return records, nil
}
