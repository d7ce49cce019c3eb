package mlflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/databricks/databricks-sdk-go/service/ml"
)

const (
	tagRunName     = "mlflow.runName"
	tagDescription = "mlflow.note.content"
)

// RunInfo identifies a run on the MLflow server.
type RunInfo struct {
	RunID        string
	ExperimentID string
	RunName      string
	ArtifactURI  string
	StartTime    time.Time
}

// CreateRun starts an MLflow run in the configured experiment.
func (c *Client) CreateRun(ctx context.Context, runName, description string, startTime time.Time, tags map[string]string) (*RunInfo, error) {
	experimentID := c.config.ExperimentID
	if experimentID == "" {
		return nil, fmt.Errorf("experiment ID must be provided")
	}

	if runName == "" {
		runName = "run-" + startTime.Format("2006-01-02-15-04-05")
	}

	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	runTags := make([]ml.RunTag, 0, len(tags)+2)
	for _, key := range keys {
		runTags = append(runTags, ml.RunTag{Key: key, Value: tags[key]})
	}
	runTags = append(runTags, ml.RunTag{Key: tagRunName, Value: runName})
	if description != "" {
		runTags = append(runTags, ml.RunTag{Key: tagDescription, Value: description})
	}

	resp, err := c.client.Experiments.CreateRun(ctx, ml.CreateRun{
		ExperimentId: experimentID,
		RunName:      runName,
		StartTime:    startTime.UnixMilli(),
		Tags:         runTags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	info := &RunInfo{
		ExperimentID: experimentID,
		RunName:      runName,
		StartTime:    startTime,
	}
	if resp.Run != nil && resp.Run.Info != nil {
		info.RunID = resp.Run.Info.RunId
		info.ArtifactURI = resp.Run.Info.ArtifactUri
	}
	if info.RunID == "" {
		return nil, fmt.Errorf("failed to create run: server returned no run id")
	}
	return info, nil
}

// EndRun marks the run FINISHED or FAILED at endTime.
func (c *Client) EndRun(ctx context.Context, runID string, failed bool, endTime time.Time) error {
	status := ml.UpdateRunStatusFinished
	if failed {
		status = ml.UpdateRunStatusFailed
	}

	_, err := c.client.Experiments.UpdateRun(ctx, ml.UpdateRun{
		RunId:   runID,
		Status:  status,
		EndTime: endTime.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}
