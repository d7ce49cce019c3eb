package mlvc

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// UploadRunArchive streams the archive to the service as the multipart
// form field "file".
func (c *Client) UploadRunArchive(ctx context.Context, projectID, modelID, remoteRunID, archivePath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	body, contentType := multipartBody(file, filepath.Base(archivePath))
	defer body.Close()

	req, err := c.createUploadRequest(ctx, runPath(projectID, modelID, remoteRunID)+"/upload", body, contentType)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload run archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("run archive upload failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// multipartBody encodes src on a pipe so the archive is never held in
// memory.
func multipartBody(src io.Reader, fileName string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", fileName)
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, writer.FormDataContentType()
}

func (c *Client) createUploadRequest(ctx context.Context, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.setAuthHeaders(req); err != nil {
		return nil, err
	}
	return req, nil
}
