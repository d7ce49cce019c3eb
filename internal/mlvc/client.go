// Package mlvc is the client for the remote MLVC tracking service.
package mlvc

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/databricks/databricks-sdk-go/httpclient"

	"github.com/imishinist/mlvc-cli/internal/config"
)

const (
	headerAPIKey    = "x-api-key"
	headerAPISecret = "x-api-secret"
)

type Client struct {
	api        *httpclient.ApiClient
	httpClient *http.Client
	baseURL    *url.URL
	apiKey     string
	apiSecret  string
}

// NewClient builds a client from a configuration whose credentials have
// already been loaded.
func NewClient(cfg *config.Config) (*Client, error) {
	if err := cfg.ValidateRemote(); err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse API URL: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
	}
	c.api = httpclient.NewApiClient(httpclient.ClientConfig{
		HTTPTimeout:  cfg.HTTPTimeout,
		RetryTimeout: cfg.HTTPTimeout,
		Visitors: []httpclient.RequestVisitor{
			c.setHost,
			c.setAuthHeaders,
		},
	})
	return c, nil
}

// setHost points a path-only request at the configured service, keeping
// any path prefix of the API URL.
func (c *Client) setHost(r *http.Request) error {
	if r.URL.Host != "" {
		return nil
	}
	r.URL.Scheme = c.baseURL.Scheme
	r.URL.Host = c.baseURL.Host
	if r.URL.RawPath != "" {
		r.URL.RawPath = c.baseURL.EscapedPath() + r.URL.RawPath
	}
	r.URL.Path = c.baseURL.Path + r.URL.Path
	return nil
}

func (c *Client) setAuthHeaders(r *http.Request) error {
	r.Header.Set(headerAPIKey, c.apiKey)
	r.Header.Set(headerAPISecret, c.apiSecret)
	return nil
}

func runsPath(projectID, modelID string) string {
	return fmt.Sprintf("/v1.0/project/%s/model/%s/run/", url.PathEscape(projectID), url.PathEscape(modelID))
}

func runPath(projectID, modelID, remoteRunID string) string {
	return runsPath(projectID, modelID) + url.PathEscape(remoteRunID)
}
