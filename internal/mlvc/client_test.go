package mlvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/mlvc-cli/internal/config"
	"github.com/imishinist/mlvc-cli/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.Config{
		APIURL:      server.URL + "/api",
		APIKey:      "key-1",
		APISecret:   "secret-1",
		HTTPTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func assertAuth(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
	assert.Equal(t, "secret-1", r.Header.Get("x-api-secret"))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(&config.Config{APIURL: "http://localhost:8082"})
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = NewClient(&config.Config{APIURL: "localhost", APIKey: "k", APISecret: "s"})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestCreateRemoteRun(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1.0/project/proj-1/model/model-1/run/", r.URL.Path)
		assertAuth(t, r)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"name": "baseline", "description": "first try"}, body)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":"remote-42"}}`)
	})

	id, err := client.CreateRemoteRun(context.Background(), "proj-1", "model-1",
		models.RunSummary{Name: "baseline", Description: "first try"})
	require.NoError(t, err)
	assert.Equal(t, "remote-42", id)
}

func TestCreateRemoteRunNumericID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{"id":1024}}`)
	})

	id, err := client.CreateRemoteRun(context.Background(), "p", "m", models.RunSummary{Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, "1024", id)
}

func TestCreateRemoteRunMissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":{}}`)
	})

	_, err := client.CreateRemoteRun(context.Background(), "p", "m", models.RunSummary{Name: "n"})
	require.ErrorContains(t, err, "data.id")
}

func TestCreateRemoteRunRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"bad credentials"}`)
	})

	_, err := client.CreateRemoteRun(context.Background(), "p", "m", models.RunSummary{Name: "n"})
	require.Error(t, err)
}

func TestPushRunMetadata(t *testing.T) {
	var got models.Run
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1.0/project/p/model/m/run/remote-42", r.URL.Path)
		assertAuth(t, r)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	})

	run := &models.Run{
		RunID:   "abc",
		Name:    "baseline",
		Status:  models.RunStatusSubmitted,
		Results: map[string]any{"accuracy": 0.9},
	}
	require.NoError(t, client.PushRunMetadata(context.Background(), "p", "m", "remote-42", run))
	assert.Equal(t, "abc", got.RunID)
	assert.Equal(t, models.RunStatusSubmitted, got.Status)
	assert.Equal(t, 0.9, got.Results["accuracy"])
}

func TestUploadRunArchive(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "abc.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("archive-bytes"), 0o644))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1.0/project/p/model/m/run/remote-42/upload", r.URL.Path)
		assertAuth(t, r)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "abc.tar.gz", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "archive-bytes", string(data))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.UploadRunArchive(context.Background(), "p", "m", "remote-42", archive))
}

func TestUploadRunArchiveRejected(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "abc.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o644))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		io.WriteString(w, "too big")
	})

	err := client.UploadRunArchive(context.Background(), "p", "m", "remote-42", archive)
	require.ErrorContains(t, err, "413")
}

func TestUploadRunArchiveMissingFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	err := client.UploadRunArchive(context.Background(), "p", "m", "r", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestUploadRunArchiveTimeout(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "abc.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("archive-bytes"), 0o644))

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client, err := NewClient(&config.Config{
		APIURL:      server.URL,
		APIKey:      "key-1",
		APISecret:   "secret-1",
		HTTPTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	err = client.UploadRunArchive(context.Background(), "p", "m", "remote-42", archive)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
