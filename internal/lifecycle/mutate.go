package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/imishinist/mlvc-cli/internal/logsink"
	"github.com/imishinist/mlvc-cli/internal/models"
)

const (
	annotationBase = "ann/annotation"
	dataDirName    = "data"
	codeDirName    = "code"
	configSnapshot = "config.json"
)

// AddAnnotation stores the run's annotation artifact, replacing any
// earlier one.
func (m *Manager) AddAnnotation(ctx context.Context, runID string, input any, inputType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolveDraft(ctx, runID)
	if err != nil {
		return err
	}
	ref, err := writeInput(run.RunDir, annotationBase, input, inputType)
	if err != nil {
		return err
	}
	return m.store.Update(ctx, run.RunID, map[string]any{models.FieldAnnotation: ref})
}

// AddData appends a dataset artifact as data/data_<n>.
func (m *Manager) AddData(ctx context.Context, runID string, input any, inputType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolveDraft(ctx, runID)
	if err != nil {
		return err
	}
	base := fmt.Sprintf("%s/data_%d", dataDirName, len(run.Data)+1)
	ref, err := writeInput(run.RunDir, base, input, inputType)
	if err != nil {
		return err
	}
	return m.store.Update(ctx, run.RunID, map[string]any{models.FieldData: append(run.Data, ref)})
}

// AddCodeFile copies a source file into code/ and lists it on the run.
// Adding a file with the same base name again overwrites the copy.
func (m *Manager) AddCodeFile(ctx context.Context, runID string, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolveDraft(ctx, runID)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read code file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: code file %s is a directory", models.ErrInputType, path)
	}

	base := filepath.Base(path)
	codeDir := filepath.Join(run.RunDir, codeDirName)
	if err := os.MkdirAll(codeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create code directory: %w", err)
	}
	if err := copyFile(path, filepath.Join(codeDir, base)); err != nil {
		return err
	}

	code := run.Code
	if code.Files == nil {
		code.Files = []string{}
	}
	if !slices.Contains(code.Files, base) {
		code.Files = append(code.Files, base)
	}
	return m.store.Update(ctx, run.RunID, map[string]any{models.FieldCode: code})
}

// AddConfig merges the input into the run config, top-level keys only,
// and rewrites the config.json snapshot.
func (m *Manager) AddConfig(ctx context.Context, runID string, input any, inputType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolveDraft(ctx, runID)
	if err != nil {
		return err
	}
	update, err := configInput(input, inputType)
	if err != nil {
		return err
	}

	merged := MergeShallow(run.Config, update)
	if err := writeJSON(filepath.Join(run.RunDir, configSnapshot), merged); err != nil {
		return err
	}
	return m.store.Update(ctx, run.RunID, map[string]any{models.FieldConfig: merged})
}

// AddResult merges results into the run's results, top-level keys only.
func (m *Manager) AddResult(ctx context.Context, runID string, results map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolveDraft(ctx, runID)
	if err != nil {
		return err
	}
	return m.store.Update(ctx, run.RunID, map[string]any{
		models.FieldResults: MergeShallow(run.Results, results),
	})
}

// Log appends a free-text line to the run log.
func (m *Manager) Log(ctx context.Context, runID string, message string) error {
	return m.writeSink(ctx, runID, logsink.SinkRun, func(s *logsink.Sink) error { return s.Debug(message) })
}

// LogMetric appends one metric record to the metric log. Commit folds
// these records into the run's results.
func (m *Manager) LogMetric(ctx context.Context, runID string, metrics map[string]any) error {
	if metrics == nil {
		metrics = map[string]any{}
	}
	return m.writeSink(ctx, runID, logsink.SinkMetric, func(s *logsink.Sink) error { return s.Info(metrics) })
}

// writeSink writes through the open sink of the active run, or appends to
// the sink file of any other draft run.
func (m *Manager) writeSink(ctx context.Context, runID, sinkName string, write func(*logsink.Sink) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.resolveDraft(ctx, runID)
	if err != nil {
		return err
	}

	if m.isActive(run.RunID) {
		if sinkName == logsink.SinkMetric {
			return write(m.active.sinks.Metric())
		}
		return write(m.active.sinks.Run())
	}

	file := run.Logs.Run
	if sinkName == logsink.SinkMetric {
		file = run.Logs.Metric
	}
	sink, err := logsink.OpenSink(filepath.Join(run.RunDir, file), sinkName)
	if err != nil {
		return err
	}
	if err := write(sink); err != nil {
		sink.Close()
		return err
	}
	return sink.Close()
}
