// Package telemetry samples host metrics in the background while a run is
// active and describes the host once at run creation.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const DefaultInterval = time.Second

// Writer receives each snapshot. logsink.Sink satisfies it.
type Writer interface {
	Debug(payload any) error
}

// Sampler polls a Collector on a fixed interval and writes every snapshot
// to a Writer from a single goroutine.
type Sampler struct {
	writer    Writer
	collector Collector
	interval  time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	samples atomic.Int64
}

func NewSampler(writer Writer, collector Collector, interval time.Duration, logger zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{
		writer:    writer,
		collector: collector,
		interval:  interval,
		logger:    logger,
	}
}

// Start launches the sampling goroutine and returns immediately. A sampler
// runs at most once; later calls do nothing.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop signals the goroutine and blocks until it has exited. No snapshot
// is written after Stop returns. Safe to call more than once, or before
// Start.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	if cancel == nil {
		s.cancel = func() {}
		s.done = closedChannel()
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Samples reports how many snapshots have been written.
func (s *Sampler) Samples() int {
	return int(s.samples.Load())
}

func (s *Sampler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	stats, err := s.collector.Collect(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("telemetry sample incomplete")
	}
	if stats == nil {
		return
	}

	if err := s.writer.Debug(stats); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write telemetry sample")
		return
	}
	s.samples.Add(1)
}

func closedChannel() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
