package mlflow

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/imishinist/mlvc-cli/internal/models"
	timeutils "github.com/imishinist/mlvc-cli/internal/time"
)

// Tags attached to every exported run so it can be traced back.
const (
	TagRunID     = "mlvc.run_id"
	TagProjectID = "mlvc.project_id"
	TagModelID   = "mlvc.model_id"
	TagLabels    = "mlvc.tags"
)

// ExportRun copies a finalized run to MLflow: config as parameters, the
// metric log as metric history, numeric results as final metrics and the
// archive, when given, as an artifact. A failure after the MLflow run
// exists marks it FAILED.
func (c *Client) ExportRun(ctx context.Context, run *models.Run, history []models.MetricRecord, archivePath string, logger zerolog.Logger) (info *RunInfo, err error) {
	if run.Status == models.RunStatusDraft {
		return nil, fmt.Errorf("%w: run %s must be committed before export", models.ErrState, run.RunID)
	}

	params, err := ConfigParams(run.Config)
	if err != nil {
		return nil, err
	}
	points, err := timeutils.ProcessMetrics(history, c.config.TimeConfig(), &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to process metric history: %w", err)
	}

	info, err = c.CreateRun(ctx, run.Name, run.Description, run.CreatedAt, exportTags(run))
	if err != nil {
		return nil, err
	}
	logger.Info().Str("run_id", run.RunID).Str("mlflow_run_id", info.RunID).Msg("created MLflow run")

	defer func() {
		if err == nil {
			return
		}
		if endErr := c.EndRun(context.WithoutCancel(ctx), info.RunID, true, time.Now()); endErr != nil {
			logger.Warn().Err(endErr).Str("mlflow_run_id", info.RunID).Msg("failed to mark MLflow run failed")
		}
	}()

	if err = c.LogParams(ctx, info.RunID, params); err != nil {
		return info, err
	}
	if err = c.LogMetrics(ctx, info.RunID, points); err != nil {
		return info, err
	}

	endTime := run.CreatedAt.Add(time.Duration(run.TrainingTime * float64(time.Second)))
	if err = c.LogMetrics(ctx, info.RunID, resultMetrics(run.Results, endTime)); err != nil {
		return info, err
	}

	if archivePath != "" {
		if _, statErr := os.Stat(archivePath); statErr != nil {
			err = fmt.Errorf("archive %s: %w", archivePath, statErr)
			return info, err
		}
		if err = c.UploadArtifact(ctx, info.RunID, archivePath, ""); err != nil {
			return info, err
		}
	}

	if err = c.EndRun(ctx, info.RunID, false, endTime); err != nil {
		return info, err
	}
	logger.Info().
		Str("mlflow_run_id", info.RunID).
		Int("params", len(params)).
		Int("metric_points", len(points)).
		Msg("exported run to MLflow")
	return info, nil
}

func exportTags(run *models.Run) map[string]string {
	tags := map[string]string{
		TagRunID:     run.RunID,
		TagProjectID: run.ProjectID,
		TagModelID:   run.ModelID,
	}
	if len(run.Tags) > 0 {
		tags[TagLabels] = strings.Join(run.Tags, ",")
	}
	return tags
}

// resultMetrics keeps the numeric results, in key order, as single points.
func resultMetrics(results map[string]any, at time.Time) []models.Metric {
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	metrics := make([]models.Metric, 0, len(keys))
	for _, key := range keys {
		value, ok := timeutils.NumericValue(results[key])
		if !ok {
			continue
		}
		metrics = append(metrics, models.Metric{Key: key, Value: value, Timestamp: at})
	}
	return metrics
}
