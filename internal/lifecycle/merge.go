package lifecycle

import "github.com/imishinist/mlvc-cli/internal/models"

// FoldLatest folds metric-log records into one mapping. Records are applied
// in log order, so a key logged more than once keeps its last value.
func FoldLatest(records []models.MetricRecord) map[string]any {
	folded := make(map[string]any)
	for _, record := range records {
		for key, value := range record.Values {
			folded[key] = value
		}
	}
	return folded
}

// MergeMissing returns existing plus every key of derived that existing
// does not already have. Values already in existing are never replaced,
// so applying it again with the same derived mapping changes nothing.
func MergeMissing(existing, derived map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(derived))
	for key, value := range existing {
		merged[key] = value
	}
	for key, value := range derived {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return merged
}

// MergeShallow returns base with every top-level key of update written
// over it. Nested values are replaced whole, never merged.
func MergeShallow(base, update map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(update))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range update {
		merged[key] = value
	}
	return merged
}
