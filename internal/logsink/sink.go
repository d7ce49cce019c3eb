package logsink

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/imishinist/mlvc-cli/internal/models"
)

// Sink is an append-only JSON-lines log bound to one file. Every line has
// the shape {"level", "name", "timestamp", "payload"}.
type Sink struct {
	name   string
	file   *os.File
	out    *errorWriter
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// errorWriter remembers the last write error, which zerolog's Send drops.
type errorWriter struct {
	w   io.Writer
	err error
}

func (e *errorWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// OpenSink opens path in append mode, creating it if needed.
func OpenSink(path, name string) (*Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", name, err)
	}

	out := &errorWriter{w: file}
	return &Sink{
		name:   name,
		file:   file,
		out:    out,
		logger: zerolog.New(out),
		now:    time.Now,
	}, nil
}

func (s *Sink) Name() string {
	return s.name
}

func (s *Sink) Path() string {
	return s.file.Name()
}

// Info writes payload at info level.
func (s *Sink) Info(payload any) error {
	return s.write(zerolog.InfoLevel, payload)
}

// Debug writes payload at debug level.
func (s *Sink) Debug(payload any) error {
	return s.write(zerolog.DebugLevel, payload)
}

// write encodes payload before anything reaches the file, so a value JSON
// cannot represent fails with ErrInputType instead of leaving a broken line.
func (s *Sink) write(level zerolog.Level, payload any) error {
	raw, err := json.Marshal(finiteValues(payload))
	if err != nil {
		return fmt.Errorf("%w: %s payload: %v", models.ErrInputType, s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.err = nil
	s.logger.WithLevel(level).
		Str("name", s.name).
		Str("timestamp", s.now().UTC().Format(time.RFC3339Nano)).
		RawJSON("payload", raw).
		Send()
	if s.out.err != nil {
		return fmt.Errorf("failed to write %s sink: %w", s.name, s.out.err)
	}
	return nil
}

// finiteValues replaces NaN and infinities inside maps and slices with the
// strings "NaN", "+Inf" and "-Inf", which strconv.ParseFloat reads back.
func finiteValues(v any) any {
	switch v := v.(type) {
	case float64:
		return finiteFloat(v)
	case float32:
		return finiteFloat(float64(v))
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = finiteValues(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = finiteValues(item)
		}
		return out
	default:
		return v
	}
}

func finiteFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return f
}

// Close flushes the file to disk and closes it.
func (s *Sink) Close() error {
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to flush %s sink: %w", s.name, err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s sink: %w", s.name, err)
	}
	return nil
}
