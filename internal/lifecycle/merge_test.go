package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imishinist/mlvc-cli/internal/models"
)

func metricLog(lines ...map[string]any) []models.MetricRecord {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := make([]models.MetricRecord, len(lines))
	for i, line := range lines {
		records[i] = models.MetricRecord{Timestamp: start.Add(time.Duration(i) * time.Second), Values: line}
	}
	return records
}

func TestFoldLatestLastLineWins(t *testing.T) {
	got := FoldLatest(metricLog(
		map[string]any{"epoch": "1", "loss": "0.9"},
		map[string]any{"epoch": "2", "loss": "0.5"},
	))
	assert.Equal(t, map[string]any{"epoch": "2", "loss": "0.5"}, got)
}

func TestFoldLatestKeepsKeysFromEarlierLines(t *testing.T) {
	got := FoldLatest(metricLog(
		map[string]any{"loss": "0.9", "lr": 0.1},
		map[string]any{"loss": "0.5"},
		map[string]any{"accuracy": 0.7},
	))
	assert.Equal(t, map[string]any{"loss": "0.5", "lr": 0.1, "accuracy": 0.7}, got)
}

func TestFoldLatestEmpty(t *testing.T) {
	assert.Empty(t, FoldLatest(nil))
}

func TestMergeMissingExistingWins(t *testing.T) {
	existing := map[string]any{"loss": "0.3"}
	derived := map[string]any{"loss": "0.5", "epoch": "2"}

	got := MergeMissing(existing, derived)
	assert.Equal(t, map[string]any{"loss": "0.3", "epoch": "2"}, got)
	assert.Equal(t, map[string]any{"loss": "0.3"}, existing, "inputs are not modified")
}

func TestMergeMissingIdempotent(t *testing.T) {
	tests := []struct {
		name     string
		existing map[string]any
		derived  map[string]any
	}{
		{"empty results", map[string]any{}, map[string]any{"a": 1.0, "b": "x"}},
		{"overlapping", map[string]any{"a": 2.0}, map[string]any{"a": 1.0, "b": "x"}},
		{"nil results", nil, map[string]any{"a": 1.0}},
		{"empty log", map[string]any{"a": 1.0}, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := MergeMissing(tt.existing, tt.derived)
			twice := MergeMissing(once, tt.derived)
			assert.Equal(t, once, twice)
		})
	}
}

func TestMergeShallowFold(t *testing.T) {
	config := map[string]any{}
	config = MergeShallow(config, map[string]any{"a": "aa"})
	config = MergeShallow(config, map[string]any{"b": "bb", "c": map[string]any{"d": "dd"}})
	assert.Equal(t, map[string]any{"a": "aa", "b": "bb", "c": map[string]any{"d": "dd"}}, config)
}

func TestMergeShallowReplacesNestedWholesale(t *testing.T) {
	base := map[string]any{"opt": map[string]any{"name": "sgd", "momentum": 0.9}, "lr": 0.1}
	got := MergeShallow(base, map[string]any{"opt": map[string]any{"name": "adam"}})
	assert.Equal(t, map[string]any{"opt": map[string]any{"name": "adam"}, "lr": 0.1}, got)
}

func TestNewRunIDUnique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := NewRunID()
		if err != nil {
			t.Fatal(err)
		}
		if len(id) != 32 {
			t.Fatalf("run id %q has length %d, want 32", id, len(id))
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate run id %q after %d ids", id, i)
		}
		seen[id] = struct{}{}
	}
}
