package lifecycle

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/mlvc-cli/internal/config"
	"github.com/imishinist/mlvc-cli/internal/mlvc"
	"github.com/imishinist/mlvc-cli/internal/models"
)

// trackingServer is an in-memory stand-in for the remote tracking service.
type trackingServer struct {
	mu        sync.Mutex
	created   int
	pushed    map[string]models.Run
	archives  map[string][]string
	failFiles int
}

func newTrackingServer(t *testing.T) (*trackingServer, *mlvc.Client) {
	t.Helper()
	ts := &trackingServer{pushed: map[string]models.Run{}, archives: map[string][]string{}}
	server := httptest.NewServer(ts)
	t.Cleanup(server.Close)

	client, err := mlvc.NewClient(&config.Config{
		APIURL:      server.URL,
		APIKey:      "key",
		APISecret:   "secret",
		HTTPTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return ts, client
}

func (ts *trackingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if r.Header.Get("x-api-key") != "key" || r.Header.Get("x-api-secret") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	const prefix = "/v1.0/project/proj/model/model/run/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	switch {
	case r.Method == http.MethodPost && rest == "":
		ts.created++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "remote-" + string(rune('0'+ts.created))}})
	case r.Method == http.MethodPut && strings.HasSuffix(rest, "/upload"):
		if ts.failFiles > 0 {
			ts.failFiles--
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		ts.archives[strings.TrimSuffix(rest, "/upload")] = archiveEntries(file)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		var run models.Run
		if err := json.NewDecoder(r.Body).Decode(&run); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ts.pushed[rest] = run
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func archiveEntries(r io.Reader) []string {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil
	}
	defer gz.Close()
	var names []string
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err != nil {
			return names
		}
		names = append(names, header.Name)
	}
}

type fakeMirror struct {
	keys []string
}

func (f *fakeMirror) MirrorArchive(ctx context.Context, key, archivePath string) error {
	if _, err := os.Stat(archivePath); err != nil {
		return err
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestUploadRequiresSubmitted(t *testing.T) {
	_, client := newTrackingServer(t)
	e := newEnv(t, WithRemote(client))
	run := e.create(t)
	ctx := context.Background()

	_, err := e.manager.Upload(ctx, run.RunID)
	assert.True(t, errors.Is(err, models.ErrState))

	stored, err := e.manager.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDraft, stored.Status)
}

func TestUploadWithoutRemote(t *testing.T) {
	e := newEnv(t)
	e.create(t)
	ctx := context.Background()
	run, err := e.manager.Commit(ctx, "")
	require.NoError(t, err)

	_, err = e.manager.Upload(ctx, run.RunID)
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestEndToEnd(t *testing.T) {
	server, client := newTrackingServer(t)
	mirror := &fakeMirror{}
	e := newEnv(t, WithRemote(client), WithArchiveMirror(mirror))
	ctx := context.Background()

	run, err := e.manager.CreateRun(ctx, "baseline", "end to end")
	require.NoError(t, err)

	require.NoError(t, e.manager.AddAnnotation(ctx, "", map[string]any{"labels": []any{"cat", "dog"}}, InputJSON))
	require.NoError(t, e.manager.AddConfig(ctx, "", map[string]any{"lr": 0.01}, InputJSON))
	require.NoError(t, e.manager.LogMetric(ctx, "", map[string]any{"epoch": "1", "loss": "0.9"}))
	require.NoError(t, e.manager.LogMetric(ctx, "", map[string]any{"epoch": "2", "loss": "0.5"}))
	require.NoError(t, e.manager.AddResult(ctx, "", map[string]any{"accuracy": "0.95"}))

	_, err = e.manager.Commit(ctx, "")
	require.NoError(t, err)

	uploaded, err := e.manager.Upload(ctx, run.RunID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusUploaded, uploaded.Status)
	assert.Equal(t, "remote-1", uploaded.RemoteRunID)
	assert.Greater(t, uploaded.TrainingTime, 0.0)
	assert.Equal(t, map[string]any{"accuracy": "0.95", "epoch": "2", "loss": "0.5"}, uploaded.Results)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, 1, server.created)
	pushed := server.pushed["remote-1"]
	assert.Equal(t, run.RunID, pushed.RunID)
	assert.Equal(t, models.RunStatusSubmitted, pushed.Status)
	assert.Equal(t, "remote-1", pushed.RemoteRunID)

	entries := server.archives["remote-1"]
	assert.Contains(t, entries, run.RunID+"/config.json")
	assert.Contains(t, entries, run.RunID+"/ann/annotation.json")
	assert.Contains(t, entries, run.RunID+"/logs/metric.log")

	assert.Equal(t, []string{"proj/model/" + run.RunID + ".tar.gz"}, mirror.keys)
	assert.FileExists(t, filepath.Join(e.home, run.RunID+".tar.gz"))

	_, err = e.manager.Upload(ctx, run.RunID)
	assert.True(t, errors.Is(err, models.ErrState), "uploaded runs cannot be uploaded again")
	_, err = e.manager.Commit(ctx, run.RunID)
	assert.True(t, errors.Is(err, models.ErrState), "uploaded runs cannot be committed again")
}

func TestUploadRetryReusesRemoteRun(t *testing.T) {
	server, client := newTrackingServer(t)
	server.failFiles = 1
	e := newEnv(t, WithRemote(client))
	run := e.create(t)
	ctx := context.Background()

	_, err := e.manager.Commit(ctx, "")
	require.NoError(t, err)

	_, err = e.manager.Upload(ctx, run.RunID)
	require.Error(t, err)

	stored, err := e.manager.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSubmitted, stored.Status)
	assert.Equal(t, "remote-1", stored.RemoteRunID)

	uploaded, err := e.manager.Upload(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusUploaded, uploaded.Status)
	assert.Equal(t, "remote-1", uploaded.RemoteRunID)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Equal(t, 1, server.created)
}
