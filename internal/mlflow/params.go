package mlflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/databricks/databricks-sdk-go/service/ml"

	"github.com/imishinist/mlvc-cli/internal/models"
)

// maxParamValueLength is the MLflow server limit on a parameter value.
const maxParamValueLength = 6000

func (c *Client) LogParam(ctx context.Context, runID string, key string, value string) error {
	err := c.client.Experiments.LogParam(ctx, ml.LogParam{
		RunId: runID,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to log parameter %s: %w", key, err)
	}

	return nil
}

func (c *Client) LogParams(ctx context.Context, runID string, params []models.Parameter) error {
	for _, param := range params {
		if err := c.LogParam(ctx, runID, param.Key, param.Value); err != nil {
			return err
		}
	}

	return nil
}

// ConfigParams converts a run config to MLflow parameters in key order.
// Strings are sent as-is; every other value is JSON-encoded.
func ConfigParams(config map[string]any) ([]models.Parameter, error) {
	keys := make([]string, 0, len(config))
	for key := range config {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	params := make([]models.Parameter, 0, len(keys))
	for _, key := range keys {
		value, err := paramValue(config[key])
		if err != nil {
			return nil, fmt.Errorf("config %q: %w", key, err)
		}
		params = append(params, models.Parameter{Key: key, Value: value})
	}
	return params, nil
}

func paramValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		s = string(raw)
	}
	if len(s) > maxParamValueLength {
		s = s[:maxParamValueLength]
	}
	return s, nil
}
