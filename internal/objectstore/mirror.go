// Package objectstore copies run archives into an S3-compatible bucket.
package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/imishinist/mlvc-cli/internal/config"
)

const archiveContentType = "application/gzip"

// Mirror stores archives in a single bucket.
type Mirror struct {
	client *minio.Client
	bucket string
}

// NewMirror connects to the configured endpoint and creates the bucket if
// it does not exist yet.
func NewMirror(ctx context.Context, cfg config.ObjectStoreConfig) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure archive bucket %s: %w", cfg.Bucket, err)
	}
	return &Mirror{client: client, bucket: cfg.Bucket}, nil
}

func (m *Mirror) Bucket() string {
	return m.bucket
}

// MirrorArchive uploads the file at archivePath under key.
func (m *Mirror) MirrorArchive(ctx context.Context, key, archivePath string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, key, archivePath, minio.PutObjectOptions{
		ContentType: archiveContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to mirror %s to %s/%s: %w", archivePath, m.bucket, key, err)
	}
	return nil
}

// ArchiveKey is the object key of a run archive: <project>/<model>/<run>.tar.gz.
func ArchiveKey(projectID, modelID, runID string) string {
	return path.Join(projectID, modelID, runID+".tar.gz")
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
