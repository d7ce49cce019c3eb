package timeutils

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/imishinist/mlvc-cli/internal/models"
)

// stepKeys are payload keys that carry an explicit step in auto mode.
var stepKeys = []string{"step", "epoch"}

func resolutionDuration(resolution string) (time.Duration, error) {
	switch resolution {
	case "1s":
		return time.Second, nil
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported resolution: %s", resolution)
	}
}

// AlignTimestamp aligns timestamp to the specified resolution and alignment
func AlignTimestamp(t time.Time, resolution string, alignment string) (time.Time, error) {
	duration, err := resolutionDuration(resolution)
	if err != nil {
		return t, err
	}

	aligned := t.Truncate(duration)

	switch alignment {
	case "floor":
		return aligned, nil
	case "ceil":
		if t.After(aligned) {
			return aligned.Add(duration), nil
		}
		return aligned, nil
	case "round":
		half := duration / 2
		if t.Sub(aligned) >= half {
			return aligned.Add(duration), nil
		}
		return aligned, nil
	default:
		return t, fmt.Errorf("unsupported alignment: %s", alignment)
	}
}

// ProcessMetrics turns metric-log records into MLflow metric points. Every
// numeric value of a record becomes one point; non-numeric values are
// dropped. All points of a record share its aligned timestamp and step.
//
// Step modes:
//   - sequence: the record's position in the log
//   - timestamp: whole resolution units since base (the first record when nil)
//   - auto: a numeric "step" or "epoch" value in the record, else sequence
func ProcessMetrics(records []models.MetricRecord, config models.TimeConfig, baseTime *time.Time) ([]models.Metric, error) {
	unit, err := resolutionDuration(config.Resolution)
	if err != nil {
		return nil, err
	}

	var base time.Time
	if baseTime != nil {
		base = *baseTime
	} else if len(records) > 0 {
		base = records[0].Timestamp
	}
	base, err = AlignTimestamp(base, config.Resolution, config.Alignment)
	if err != nil {
		return nil, err
	}

	var result []models.Metric
	for i, record := range records {
		timestamp, err := AlignTimestamp(record.Timestamp, config.Resolution, config.Alignment)
		if err != nil {
			return nil, err
		}

		var step int64
		switch config.StepMode {
		case "timestamp":
			step = int64(timestamp.Sub(base) / unit)
		case "sequence":
			step = int64(i)
		case "auto":
			step = int64(i)
			if explicit, ok := explicitStep(record.Values); ok {
				step = explicit
			}
		default:
			return nil, fmt.Errorf("unsupported step mode: %s", config.StepMode)
		}

		keys := make([]string, 0, len(record.Values))
		for key := range record.Values {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			value, ok := NumericValue(record.Values[key])
			if !ok {
				continue
			}
			result = append(result, models.Metric{
				Key:       key,
				Value:     value,
				Timestamp: timestamp,
				Step:      step,
			})
		}
	}

	return result, nil
}

// NumericValue reports v as a float64 when it is a number or a string
// holding one.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func explicitStep(values map[string]any) (int64, bool) {
	for _, key := range stepKeys {
		if v, ok := NumericValue(values[key]); ok {
			return int64(v), true
		}
	}
	return 0, false
}
