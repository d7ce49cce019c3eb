// Package lifecycle owns the state of tracked runs: it creates them, takes
// incremental updates while they are drafts, and drives them through
// commit and upload.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/imishinist/mlvc-cli/internal/logsink"
	"github.com/imishinist/mlvc-cli/internal/models"
	"github.com/imishinist/mlvc-cli/internal/telemetry"
)

const (
	runsDirName  = "runs"
	gitDirName   = "git"
	diffFileName = "diff.txt"
)

// Store persists run documents. Update merges top-level fields.
type Store interface {
	Insert(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, runID string) (*models.Run, error)
	Update(ctx context.Context, runID string, fields map[string]any) error
	GetAll(ctx context.Context) ([]*models.Run, error)
	RemoveAll(ctx context.Context) error
}

// RemoteClient is the tracking service.
type RemoteClient interface {
	CreateRemoteRun(ctx context.Context, projectID, modelID string, summary models.RunSummary) (string, error)
	PushRunMetadata(ctx context.Context, projectID, modelID, remoteRunID string, run *models.Run) error
	UploadRunArchive(ctx context.Context, projectID, modelID, remoteRunID, archivePath string) error
}

// SourceControl snapshots the working tree a run was launched from.
type SourceControl interface {
	RepoDetails(ctx context.Context) (models.GitInfo, error)
	WriteDiff(ctx context.Context, path string) error
}

// ArchiveMirror keeps an extra copy of uploaded archives.
type ArchiveMirror interface {
	MirrorArchive(ctx context.Context, key, archivePath string) error
}

// activeRun is the run created by this manager whose sinks and sampler are
// still open.
type activeRun struct {
	id      string
	sinks   *logsink.Multiplexer
	sampler *telemetry.Sampler
}

// Manager is safe for concurrent use; operations are serialised.
type Manager struct {
	store Store
	opts  options

	mu     sync.Mutex
	active *activeRun
}

func New(store Store, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.collector == nil {
		o.collector = telemetry.NewHostCollector(o.gpus)
	}
	return &Manager{store: store, opts: o}
}

// SetProject sets the project and model for runs created afterwards.
func (m *Manager) SetProject(projectID, modelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.projectID = projectID
	m.opts.modelID = modelID
}

// ActiveRunID returns the run whose sinks this manager holds open, or "".
func (m *Manager) ActiveRunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.id
}

// Stdout returns the active run's stdout tee, or os.Stdout when no run is
// active.
func (m *Manager) Stdout() io.Writer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return os.Stdout
	}
	return m.active.sinks.Stdout()
}

// CreateRun creates a draft run, opens its sinks and starts telemetry
// sampling. Only one run can be active per manager.
func (m *Manager) CreateRun(ctx context.Context, name, description string, tags ...string) (run *models.Run, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.projectID == "" || m.opts.modelID == "" {
		return nil, fmt.Errorf("%w: project not initialised: project ID and model ID are required", models.ErrConfiguration)
	}
	if m.opts.home == "" {
		return nil, fmt.Errorf("%w: home directory is required", models.ErrConfiguration)
	}
	if m.active != nil {
		return nil, fmt.Errorf("%w: run %s is still active", models.ErrState, m.active.id)
	}

	runID, err := NewRunID()
	if err != nil {
		return nil, err
	}

	runsDir, err := filepath.Abs(filepath.Join(m.opts.home, runsDirName))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve runs directory: %w", err)
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	runDir := filepath.Join(runsDir, runID)
	if err := os.Mkdir(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	var (
		sinks   *logsink.Multiplexer
		sampler *telemetry.Sampler
	)
	defer func() {
		if err == nil {
			return
		}
		if sampler != nil {
			sampler.Stop()
		}
		if sinks != nil {
			if tdErr := sinks.Teardown(); tdErr != nil {
				m.opts.logger.Warn().Err(tdErr).Str("run_id", runID).Msg("failed to tear down sinks")
			}
		}
		os.RemoveAll(runDir)
	}()

	code := models.Code{Files: []string{}}
	code.Git = m.snapshotSourceControl(ctx, runID, runDir)

	sysInfo, infoErr := m.opts.collector.StaticInfo(ctx)
	if infoErr != nil {
		m.opts.logger.Warn().Err(infoErr).Str("run_id", runID).Msg("host description incomplete")
	}

	sinkOpts := []logsink.Option{logsink.WithTerminal(m.opts.terminal)}
	if m.opts.captureStdout {
		sinkOpts = append(sinkOpts, logsink.CaptureStdout())
	}
	sinks, logs, err := logsink.Init(runDir, sinkOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open run logs: %w", err)
	}

	sampler = telemetry.NewSampler(sinks.Telemetry(), m.opts.collector, m.opts.sampleInterval,
		m.opts.logger.With().Str("run_id", runID).Logger())
	sampler.Start()

	run = &models.Run{
		RunID:       runID,
		ProjectID:   m.opts.projectID,
		ModelID:     m.opts.modelID,
		Name:        name,
		Description: description,
		Tags:        tags,
		RunDir:      runDir,
		Status:      models.RunStatusDraft,
		CreatedAt:   m.opts.now().UTC(),
		Code:        code,
		Config:      map[string]any{},
		Data:        []models.FileRef{},
		Results:     map[string]any{},
		Logs:        logs,
		SystemInfo:  &sysInfo,
	}
	if err = m.store.Insert(ctx, run); err != nil {
		return nil, err
	}

	m.active = &activeRun{id: runID, sinks: sinks, sampler: sampler}
	m.opts.logger.Info().Str("run_id", runID).Str("run_dir", runDir).Msg("run created")
	return run, nil
}

// snapshotSourceControl records repository details and writes the working
// tree diff. Failures are logged and leave the run without git metadata.
func (m *Manager) snapshotSourceControl(ctx context.Context, runID, runDir string) *models.GitInfo {
	if m.opts.sourceControl == nil {
		return nil
	}
	logger := m.opts.logger.With().Str("run_id", runID).Logger()

	details, err := m.opts.sourceControl.RepoDetails(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping source control snapshot")
		return nil
	}

	gitDir := filepath.Join(runDir, gitDirName)
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		logger.Warn().Err(err).Msg("failed to create git directory")
		return &details
	}
	if err := m.opts.sourceControl.WriteDiff(ctx, filepath.Join(gitDir, diffFileName)); err != nil {
		logger.Warn().Err(err).Msg("failed to write working tree diff")
		return &details
	}
	details.DiffFile = filepath.ToSlash(filepath.Join(gitDirName, diffFileName))
	return &details
}

// GetRun returns a run by id; "" selects the active run.
func (m *Manager) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolve(ctx, runID)
}

// ListRuns returns every stored run in creation order.
func (m *Manager) ListRuns(ctx context.Context) ([]*models.Run, error) {
	return m.store.GetAll(ctx)
}

// RemoveAllRuns deletes every stored run together with the run directories
// and archives kept under the home directory.
func (m *Manager) RemoveAllRuns(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return fmt.Errorf("%w: run %s is still active", models.ErrState, m.active.id)
	}

	runs, err := m.store.GetAll(ctx)
	if err != nil {
		return err
	}
	if err := m.store.RemoveAll(ctx); err != nil {
		return err
	}

	if m.opts.home == "" {
		return nil
	}
	var errs []error
	for _, run := range runs {
		if err := os.RemoveAll(filepath.Join(m.opts.home, runsDirName, run.RunID)); err != nil {
			errs = append(errs, err)
		}
		if err := os.Remove(m.ArchivePath(run.RunID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the active run's sampler and closes its sinks without
// committing it. The run stays a draft.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deactivate()
}

func (m *Manager) deactivate() error {
	if m.active == nil {
		return nil
	}
	active := m.active
	m.active = nil

	active.sampler.Stop()
	if err := active.sinks.Teardown(); err != nil {
		return fmt.Errorf("failed to close logs of run %s: %w", active.id, err)
	}
	m.opts.logger.Debug().Str("run_id", active.id).Int("telemetry_samples", active.sampler.Samples()).Msg("run deactivated")
	return nil
}

// resolve loads the target run; "" selects the active run.
func (m *Manager) resolve(ctx context.Context, runID string) (*models.Run, error) {
	if runID == "" {
		if m.active == nil {
			return nil, fmt.Errorf("%w: no active run; pass a run id", models.ErrConfiguration)
		}
		runID = m.active.id
	}
	return m.store.Get(ctx, runID)
}

// resolveDraft loads the target run and requires it to still accept
// mutations.
func (m *Manager) resolveDraft(ctx context.Context, runID string) (*models.Run, error) {
	run, err := m.resolve(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusDraft {
		return nil, fmt.Errorf("%w: run %s is %s; only draft runs can be modified", models.ErrState, run.RunID, run.Status)
	}
	return run, nil
}

func (m *Manager) isActive(runID string) bool {
	return m.active != nil && m.active.id == runID
}

// ArchivePath is where Upload packages a run.
func (m *Manager) ArchivePath(runID string) string {
	return filepath.Join(m.opts.home, runID+".tar.gz")
}
