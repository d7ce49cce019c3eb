// Package logsink manages the per-run log files: three structured JSON-line
// sinks (run, metric, telemetry) and a raw capture of standard output.
package logsink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/imishinist/mlvc-cli/internal/models"
)

const (
	SinkRun       = "run"
	SinkMetric    = "metric"
	SinkTelemetry = "telemetry"
	SinkStdout    = "stdout"
)

const logsDirName = "logs"

// Files returns the sink file names relative to a run directory.
func Files() models.Logs {
	return models.Logs{
		Run:       filepath.Join(logsDirName, SinkRun+".log"),
		Metric:    filepath.Join(logsDirName, SinkMetric+".log"),
		Telemetry: filepath.Join(logsDirName, SinkTelemetry+".log"),
		Stdout:    filepath.Join(logsDirName, SinkStdout+".log"),
	}
}

type options struct {
	terminal      io.Writer
	captureStdout bool
}

type Option func(o *options)

// CaptureStdout redirects the process-wide os.Stdout into the stdout sink
// until Teardown. Without it only writes to Multiplexer.Stdout are captured.
func CaptureStdout() Option {
	return func(o *options) {
		o.captureStdout = true
	}
}

// WithTerminal sets where the stdout tee echoes output. Defaults to the
// os.Stdout in effect when Init is called.
func WithTerminal(w io.Writer) Option {
	return func(o *options) {
		o.terminal = w
	}
}

// Multiplexer owns the open sinks of one run.
type Multiplexer struct {
	mu        sync.Mutex
	closed    bool
	run       *Sink
	metric    *Sink
	telemetry *Sink

	stdoutFile *os.File
	stdout     io.Writer
	restore    func() error
}

// Init opens all sinks under runDir and returns them together with the
// file names to record on the run. On error nothing is left open and
// os.Stdout is unchanged.
func Init(runDir string, opts ...Option) (*Multiplexer, models.Logs, error) {
	o := options{terminal: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	files := Files()
	if err := os.MkdirAll(filepath.Join(runDir, logsDirName), 0o755); err != nil {
		return nil, models.Logs{}, fmt.Errorf("failed to create logs directory: %w", err)
	}

	m := &Multiplexer{}
	var err error
	defer func() {
		if err != nil {
			m.Teardown()
		}
	}()

	if m.run, err = OpenSink(filepath.Join(runDir, files.Run), SinkRun); err != nil {
		return nil, models.Logs{}, err
	}
	if m.metric, err = OpenSink(filepath.Join(runDir, files.Metric), SinkMetric); err != nil {
		return nil, models.Logs{}, err
	}
	if m.telemetry, err = OpenSink(filepath.Join(runDir, files.Telemetry), SinkTelemetry); err != nil {
		return nil, models.Logs{}, err
	}

	m.stdoutFile, err = os.OpenFile(filepath.Join(runDir, files.Stdout), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		err = fmt.Errorf("failed to open stdout sink: %w", err)
		return nil, models.Logs{}, err
	}
	m.stdout = &lockedWriter{w: io.MultiWriter(o.terminal, m.stdoutFile)}

	if o.captureStdout {
		if m.restore, err = redirectStdout(m.stdout); err != nil {
			return nil, models.Logs{}, err
		}
	}

	return m, files, nil
}

func (m *Multiplexer) Run() *Sink {
	return m.run
}

func (m *Multiplexer) Metric() *Sink {
	return m.metric
}

func (m *Multiplexer) Telemetry() *Sink {
	return m.telemetry
}

// Stdout returns a writer that echoes to the terminal and appends to the
// stdout sink.
func (m *Multiplexer) Stdout() io.Writer {
	return m.stdout
}

// Teardown restores os.Stdout, then flushes and closes every sink. Calls
// after the first are no-ops.
func (m *Multiplexer) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.restore != nil {
		errs = append(errs, m.restore())
	}
	for _, sink := range []*Sink{m.run, m.metric, m.telemetry} {
		if sink != nil {
			errs = append(errs, sink.Close())
		}
	}
	if m.stdoutFile != nil {
		if err := m.stdoutFile.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush stdout sink: %w", err))
		}
		if err := m.stdoutFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stdout sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

// redirectStdout swaps os.Stdout for a pipe whose contents are copied to
// tee. The returned func restores os.Stdout and waits for the copy to drain.
func redirectStdout(tee io.Writer) (func() error, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	original := os.Stdout
	os.Stdout = w

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.Copy(tee, r)
	}()

	return func() error {
		os.Stdout = original
		err := w.Close()
		<-done
		r.Close()
		if err != nil {
			return fmt.Errorf("failed to close stdout pipe: %w", err)
		}
		return nil
	}, nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
