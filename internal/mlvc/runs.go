package mlvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/databricks/databricks-sdk-go/httpclient"

	"github.com/imishinist/mlvc-cli/internal/models"
)

type createRunResponse struct {
	Data struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// CreateRemoteRun registers a run shell with the service and returns the
// identifier the service assigned to it.
func (c *Client) CreateRemoteRun(ctx context.Context, projectID, modelID string, summary models.RunSummary) (string, error) {
	var response createRunResponse
	err := c.api.Do(ctx, http.MethodPost, runsPath(projectID, modelID),
		httpclient.WithRequestData(summary),
		httpclient.WithResponseUnmarshal(&response),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create remote run: %w", err)
	}

	id, err := decodeID(response.Data.ID)
	if err != nil {
		return "", fmt.Errorf("failed to create remote run: %w", err)
	}
	return id, nil
}

// PushRunMetadata replaces the remote copy of the run record.
func (c *Client) PushRunMetadata(ctx context.Context, projectID, modelID, remoteRunID string, run *models.Run) error {
	err := c.api.Do(ctx, http.MethodPut, runPath(projectID, modelID, remoteRunID),
		httpclient.WithRequestData(run),
	)
	if err != nil {
		return fmt.Errorf("failed to push run metadata: %w", err)
	}
	return nil
}

// decodeID accepts the remote identifier as either a JSON string or a
// number.
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("response has no data.id")
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("invalid data.id: %w", err)
		}
		if id == "" {
			return "", fmt.Errorf("response has empty data.id")
		}
		return id, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid data.id: %s", raw)
	}
	return n.String(), nil
}
