package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imishinist/mlvc-cli/internal/models"
)

const (
	credentialsFileName = "credentials.json"
	databaseFileName    = "mlvc.db"
	runsDirName         = "runs"
)

// Valid configuration values
var (
	validLogLevels = map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
)

type Config struct {
	Home           string
	APIURL         string
	ProjectID      string
	ModelID        string
	APIKey         string
	APISecret      string
	SampleInterval time.Duration
	HTTPTimeout    time.Duration
	CaptureStdout  bool
	LogLevel       string

	MLflow      MLflowConfig
	ObjectStore ObjectStoreConfig
}

func New() *Config {
	return &Config{
		Home:           expandHome(viper.GetString("home")),
		APIURL:         viper.GetString("api_url"),
		ProjectID:      viper.GetString("project_id"),
		ModelID:        viper.GetString("model_id"),
		APIKey:         viper.GetString("api_key"),
		APISecret:      viper.GetString("api_secret"),
		SampleInterval: viper.GetDuration("sample_interval"),
		HTTPTimeout:    viper.GetDuration("http_timeout"),
		CaptureStdout:  viper.GetBool("capture_stdout"),
		LogLevel:       viper.GetString("log_level"),
		MLflow: MLflowConfig{
			TrackingURI:     viper.GetString("mlflow.tracking_uri"),
			ExperimentID:    viper.GetString("mlflow.experiment_id"),
			TimeResolution:  viper.GetString("mlflow.time_resolution"),
			TimeAlignment:   viper.GetString("mlflow.time_alignment"),
			StepMode:        viper.GetString("mlflow.step_mode"),
			DatabricksHost:  viper.GetString("databricks_host"),
			DatabricksToken: viper.GetString("databricks_token"),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  viper.GetString("object_store.endpoint"),
			AccessKey: viper.GetString("object_store.access_key"),
			SecretKey: viper.GetString("object_store.secret_key"),
			Region:    viper.GetString("object_store.region"),
			Bucket:    viper.GetString("object_store.bucket"),
			UseSSL:    viper.GetBool("object_store.use_ssl"),
		},
	}
}

func (c *Config) Validate() error {
	if c.Home == "" {
		return fmt.Errorf("%w: home directory is required", models.ErrConfiguration)
	}

	if c.SampleInterval <= 0 {
		return fmt.Errorf("%w: invalid sample interval: %s (must be positive)", models.ErrConfiguration, c.SampleInterval)
	}

	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		return fmt.Errorf("%w: invalid log level: %s (valid: trace, debug, info, warn, error)", models.ErrConfiguration, c.LogLevel)
	}

	return nil
}

// ValidateRemote checks the settings needed to talk to the tracking
// service. Credentials must already be loaded.
func (c *Config) ValidateRemote() error {
	if c.APIURL == "" {
		return fmt.Errorf("%w: API URL is required", models.ErrConfiguration)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid API URL: %s", models.ErrConfiguration, c.APIURL)
	}
	if c.APIKey == "" || c.APISecret == "" {
		return fmt.Errorf("%w: MLVC not configured: API key and secret are required (set them in %s or MLVC_API_KEY/MLVC_API_SECRET)",
			models.ErrConfiguration, c.CredentialsPath())
	}
	return nil
}

// ValidateProject checks that the project and model identifiers are set.
func (c *Config) ValidateProject() error {
	if c.ProjectID == "" || c.ModelID == "" {
		return fmt.Errorf("%w: project not initialised: project ID and model ID must be specified via --project-id/--model-id or MLVC_PROJECT_ID/MLVC_MODEL_ID",
			models.ErrConfiguration)
	}
	return nil
}

// LoadCredentials reads the API key pair from the credentials file in the
// home directory. Values already set (from flags or environment) win.
// A missing file is not an error; ValidateRemote reports missing keys.
func (c *Config) LoadCredentials() error {
	path := c.CredentialsPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}

	if c.APIKey == "" {
		c.APIKey = v.GetString("key")
	}
	if c.APISecret == "" {
		c.APISecret = v.GetString("secret")
	}
	return nil
}

func (c *Config) CredentialsPath() string {
	return filepath.Join(c.Home, credentialsFileName)
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.Home, databaseFileName)
}

func (c *Config) RunsDir() string {
	return filepath.Join(c.Home, runsDirName)
}

// expandHome resolves a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
