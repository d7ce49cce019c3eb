// Package mlflow exports finished runs to an MLflow tracking server,
// including Databricks-hosted MLflow.
package mlflow

import (
	"fmt"
	"net/http"

	"github.com/databricks/databricks-sdk-go"

	"github.com/imishinist/mlvc-cli/internal/config"
)

type Client struct {
	client     *databricks.WorkspaceClient
	config     *config.MLflowConfig
	httpClient *http.Client
}

func NewClient(cfg *config.MLflowConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid MLflow config: %w", err)
	}

	var databricksConfig *databricks.Config

	if cfg.IsDatabricks() {
		databricksConfig = &databricks.Config{}

		if cfg.TrackingURI == "databricks" {
			if cfg.DatabricksHost != "" {
				databricksConfig.Host = cfg.DatabricksHost
			}
		} else if profile := cfg.DatabricksProfile(); profile != "" {
			databricksConfig.Profile = profile
		} else {
			databricksConfig.Host = cfg.TrackingURI
		}

		// An explicit token overrides the profile.
		if cfg.DatabricksToken != "" {
			databricksConfig.Token = cfg.DatabricksToken
		}

		if databricksConfig.Host == "" && databricksConfig.Profile == "" {
			return nil, fmt.Errorf("Databricks host or profile is required when using Databricks MLflow. Set MLVC_DATABRICKS_HOST, use a full Databricks URL as tracking URI, or specify a profile with databricks://{profile}")
		}
	} else {
		databricksConfig = &databricks.Config{
			Host: cfg.TrackingURI,
			// Plain MLflow servers ignore the token, but the SDK needs an auth method.
			Token: "unused-token-for-plain-mlflow",
		}
	}

	client, err := databricks.NewWorkspaceClient(databricksConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create MLflow client: %w", err)
	}

	return &Client{
		client:     client,
		config:     cfg,
		httpClient: &http.Client{},
	}, nil
}
