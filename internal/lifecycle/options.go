package lifecycle

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/imishinist/mlvc-cli/internal/telemetry"
)

type options struct {
	home           string
	projectID      string
	modelID        string
	remote         RemoteClient
	sourceControl  SourceControl
	collector      telemetry.Collector
	gpus           telemetry.GPUReader
	mirror         ArchiveMirror
	sampleInterval time.Duration
	captureStdout  bool
	terminal       io.Writer
	now            func() time.Time
	logger         zerolog.Logger
}

func defaultOptions() options {
	return options{
		sampleInterval: telemetry.DefaultInterval,
		terminal:       os.Stdout,
		now:            time.Now,
		logger:         zerolog.Nop(),
	}
}

type Option func(o *options)

// WithHome sets the directory that holds run directories and archives.
func WithHome(dir string) Option {
	return func(o *options) {
		o.home = dir
	}
}

// WithProject sets the project and model every new run belongs to.
func WithProject(projectID, modelID string) Option {
	return func(o *options) {
		o.projectID = projectID
		o.modelID = modelID
	}
}

// WithRemote sets the tracking service client used by Upload.
func WithRemote(remote RemoteClient) Option {
	return func(o *options) {
		o.remote = remote
	}
}

// WithSourceControl enables the source-control snapshot at run creation.
// Without it runs carry no git metadata.
func WithSourceControl(sc SourceControl) Option {
	return func(o *options) {
		o.sourceControl = sc
	}
}

// WithCollector replaces the host telemetry collector.
func WithCollector(c telemetry.Collector) Option {
	return func(o *options) {
		o.collector = c
	}
}

// WithGPUReader sets the GPU reader of the default host collector. It is
// ignored when WithCollector is given.
func WithGPUReader(r telemetry.GPUReader) Option {
	return func(o *options) {
		o.gpus = r
	}
}

// WithArchiveMirror stores a copy of every uploaded archive.
func WithArchiveMirror(m ArchiveMirror) Option {
	return func(o *options) {
		o.mirror = m
	}
}

func WithSampleInterval(d time.Duration) Option {
	return func(o *options) {
		o.sampleInterval = d
	}
}

// WithCaptureStdout redirects the process-wide os.Stdout into the active
// run's stdout sink, not just writes made through Manager.Stdout.
func WithCaptureStdout(enabled bool) Option {
	return func(o *options) {
		o.captureStdout = enabled
	}
}

// WithTerminal sets where the stdout tee echoes output.
func WithTerminal(w io.Writer) Option {
	return func(o *options) {
		o.terminal = w
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
