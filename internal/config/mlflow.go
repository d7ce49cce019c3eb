package config

import (
	"fmt"
	"strings"

	"github.com/imishinist/mlvc-cli/internal/models"
)

// Databricks domain suffixes for URL detection
var databricksDomains = []string{
	".cloud.databricks.com",
	".azuredatabricks.net",
	".gcp.databricks.com",
}

var (
	validTimeResolutions = map[string]bool{
		"1s": true, "1m": true, "5m": true, "1h": true,
	}
	validTimeAlignments = map[string]bool{
		"floor": true, "ceil": true, "round": true,
	}
	validStepModes = map[string]bool{
		"auto": true, "timestamp": true, "sequence": true,
	}
)

// MLflowConfig configures the optional export of finished runs to an
// MLflow tracking server.
type MLflowConfig struct {
	TrackingURI     string
	ExperimentID    string
	TimeResolution  string
	TimeAlignment   string
	StepMode        string
	DatabricksHost  string
	DatabricksToken string
}

func (c *MLflowConfig) Validate() error {
	if c.TrackingURI == "" {
		return fmt.Errorf("%w: MLflow tracking URI is required", models.ErrConfiguration)
	}

	if c.ExperimentID == "" {
		return fmt.Errorf("%w: MLflow experiment ID must be specified via --experiment-id flag or MLVC_MLFLOW_EXPERIMENT_ID", models.ErrConfiguration)
	}

	if !validTimeResolutions[c.TimeResolution] {
		return fmt.Errorf("%w: invalid time resolution: %s (valid: 1s, 1m, 5m, 1h)", models.ErrConfiguration, c.TimeResolution)
	}

	if !validTimeAlignments[c.TimeAlignment] {
		return fmt.Errorf("%w: invalid time alignment: %s (valid: floor, ceil, round)", models.ErrConfiguration, c.TimeAlignment)
	}

	if !validStepModes[c.StepMode] {
		return fmt.Errorf("%w: invalid step mode: %s (valid: auto, timestamp, sequence)", models.ErrConfiguration, c.StepMode)
	}

	return nil
}

func (c *MLflowConfig) TimeConfig() models.TimeConfig {
	return models.TimeConfig{
		Resolution: c.TimeResolution,
		Alignment:  c.TimeAlignment,
		StepMode:   c.StepMode,
	}
}

// IsDatabricks checks if the tracking URI points to Databricks
func (c *MLflowConfig) IsDatabricks() bool {
	if c.TrackingURI == "databricks" {
		return true
	}

	if strings.HasPrefix(c.TrackingURI, "databricks://") {
		return true
	}

	if strings.HasPrefix(c.TrackingURI, "https://") {
		return isDatabricksHost(extractHostFromURL(c.TrackingURI))
	}

	return false
}

// DatabricksProfile extracts the profile name from a databricks://{profile} URI
func (c *MLflowConfig) DatabricksProfile() string {
	if !strings.HasPrefix(c.TrackingURI, "databricks://") {
		return ""
	}

	profile := strings.TrimPrefix(c.TrackingURI, "databricks://")
	if idx := strings.Index(profile, "/"); idx != -1 {
		profile = profile[:idx]
	}
	return profile
}

func extractHostFromURL(url string) string {
	host := strings.TrimPrefix(url, "https://")
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func isDatabricksHost(host string) bool {
	for _, domain := range databricksDomains {
		if strings.HasSuffix(host, domain) {
			return true
		}
	}
	return false
}
