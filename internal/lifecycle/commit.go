package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/imishinist/mlvc-cli/internal/archive"
	"github.com/imishinist/mlvc-cli/internal/logsink"
	"github.com/imishinist/mlvc-cli/internal/models"
	"github.com/imishinist/mlvc-cli/internal/objectstore"
)

// Commit finalises a run. For the active run it first stops the sampler
// and closes the sinks. It then folds the metric log (last value per key
// wins) into results without replacing keys already present, records the
// training time and marks the run submitted.
//
// Committing a submitted run again rescans the log and keeps its status
// and training time; committing an uploaded run is an error.
func (m *Manager) Commit(ctx context.Context, runID string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolve(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == models.RunStatusUploaded {
		return nil, fmt.Errorf("%w: run %s is already uploaded", models.ErrState, run.RunID)
	}

	if m.isActive(run.RunID) {
		if err := m.deactivate(); err != nil {
			return nil, err
		}
	}

	records, err := logsink.ReadPayloads(filepath.Join(run.RunDir, run.Logs.Metric))
	if err != nil {
		return nil, fmt.Errorf("failed to read metric log: %w", err)
	}
	results := MergeMissing(run.Results, FoldLatest(records))

	trainingTime := run.TrainingTime
	if run.Status == models.RunStatusDraft {
		trainingTime = m.opts.now().Sub(run.CreatedAt).Seconds()
	}

	fields := map[string]any{
		models.FieldStatus:       models.RunStatusSubmitted,
		models.FieldTrainingTime: trainingTime,
		models.FieldResults:      results,
	}
	if err := m.store.Update(ctx, run.RunID, fields); err != nil {
		return nil, err
	}

	m.opts.logger.Info().
		Str("run_id", run.RunID).
		Int("metric_records", len(records)).
		Float64("training_time", trainingTime).
		Msg("run committed")
	return m.store.Get(ctx, run.RunID)
}

// Upload sends a submitted run to the tracking service and marks it
// uploaded. A remote run created by an earlier failed attempt is reused.
// On failure the run stays submitted and Upload can be retried.
func (m *Manager) Upload(ctx context.Context, runID string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolve(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusSubmitted {
		return nil, fmt.Errorf("%w: run %s is %s; only submitted runs can be uploaded", models.ErrState, run.RunID, run.Status)
	}
	if m.opts.remote == nil {
		return nil, fmt.Errorf("%w: no tracking service configured", models.ErrConfiguration)
	}
	logger := m.opts.logger.With().Str("run_id", run.RunID).Logger()

	if run.RemoteRunID == "" {
		remoteID, err := m.opts.remote.CreateRemoteRun(ctx, run.ProjectID, run.ModelID, run.Summary())
		if err != nil {
			return nil, err
		}
		if err := m.store.Update(ctx, run.RunID, map[string]any{models.FieldRemoteRunID: remoteID}); err != nil {
			return nil, err
		}
		run.RemoteRunID = remoteID
		logger.Info().Str("remote_run_id", remoteID).Msg("remote run created")
	} else {
		logger.Info().Str("remote_run_id", run.RemoteRunID).Msg("reusing remote run")
	}

	archivePath := m.ArchivePath(run.RunID)
	if err := archive.Build(run.RunDir, archivePath); err != nil {
		return nil, fmt.Errorf("failed to package run: %w", err)
	}

	if err := m.opts.remote.PushRunMetadata(ctx, run.ProjectID, run.ModelID, run.RemoteRunID, run); err != nil {
		return nil, err
	}
	if err := m.opts.remote.UploadRunArchive(ctx, run.ProjectID, run.ModelID, run.RemoteRunID, archivePath); err != nil {
		return nil, err
	}

	if m.opts.mirror != nil {
		key := objectstore.ArchiveKey(run.ProjectID, run.ModelID, run.RunID)
		if err := m.opts.mirror.MirrorArchive(ctx, key, archivePath); err != nil {
			return nil, err
		}
		logger.Info().Str("key", key).Msg("archive mirrored")
	}

	if err := m.store.Update(ctx, run.RunID, map[string]any{models.FieldStatus: models.RunStatusUploaded}); err != nil {
		return nil, err
	}
	logger.Info().Str("archive", archivePath).Msg("run uploaded")
	return m.store.Get(ctx, run.RunID)
}
