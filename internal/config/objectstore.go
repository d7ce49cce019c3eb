package config

import (
	"fmt"
	"strings"

	"github.com/imishinist/mlvc-cli/internal/models"
)

// ObjectStoreConfig configures the optional S3-compatible bucket that
// receives a copy of every uploaded run archive.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an archive mirror was configured.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c ObjectStoreConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("%w: object store endpoint is required", models.ErrConfiguration)
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("%w: object store endpoint must not include scheme: %q", models.ErrConfiguration, c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("%w: object store access key and secret key are required", models.ErrConfiguration)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("%w: object store bucket is required", models.ErrConfiguration)
	}
	return nil
}
