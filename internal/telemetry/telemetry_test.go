package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imishinist/mlvc-cli/internal/logsink"
	"github.com/imishinist/mlvc-cli/internal/models"
)

type fakeCollector struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCollector) Collect(ctx context.Context) (*models.SystemStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.SystemStats{CPU: models.CPUStats{Percentage: 12.5, Memory: 40}}, nil
}

func (f *fakeCollector) StaticInfo(ctx context.Context) (models.SystemInfo, error) {
	return models.SystemInfo{}, nil
}

type countingWriter struct {
	mu       sync.Mutex
	payloads []any
}

func (w *countingWriter) Debug(payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payloads = append(w.payloads, payload)
	return nil
}

func (w *countingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.payloads)
}

func TestSamplerStopIsSynchronous(t *testing.T) {
	writer := &countingWriter{}
	s := NewSampler(writer, &fakeCollector{}, 5*time.Millisecond, zerolog.Nop())

	s.Start()
	require.Eventually(t, func() bool { return writer.count() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	before := writer.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, writer.count())
	assert.Equal(t, before, s.Samples())
}

func TestSamplerStopWritesNothingToSinkAfterReturn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.log")
	sink, err := logsink.OpenSink(path, logsink.SinkTelemetry)
	require.NoError(t, err)

	s := NewSampler(sink, &fakeCollector{}, 5*time.Millisecond, zerolog.Nop())
	s.Start()
	require.Eventually(t, func() bool { return s.Samples() >= 2 }, time.Second, time.Millisecond)
	s.Stop()
	require.NoError(t, sink.Close())

	records, err := logsink.ReadPayloads(path)
	require.NoError(t, err)
	count := len(records)
	assert.Equal(t, s.Samples(), count)

	time.Sleep(30 * time.Millisecond)
	records, err = logsink.ReadPayloads(path)
	require.NoError(t, err)
	assert.Len(t, records, count)

	cpu, ok := records[0].Values["cpu"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 12.5, cpu["percentage"])
}

func TestSamplerStartAndStopIdempotent(t *testing.T) {
	writer := &countingWriter{}
	s := NewSampler(writer, &fakeCollector{}, time.Hour, zerolog.Nop())

	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return writer.count() == 1 }, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, writer.count())
}

func TestSamplerStopBeforeStart(t *testing.T) {
	s := NewSampler(&countingWriter{}, &fakeCollector{}, time.Millisecond, zerolog.Nop())
	s.Stop()
	s.Start()
	s.Stop()
	assert.Equal(t, 0, s.Samples())
}

func TestSamplerSurvivesCollectorErrors(t *testing.T) {
	collector := &fakeCollector{err: errors.New("transient read failure")}
	writer := &countingWriter{}
	s := NewSampler(writer, collector, 2*time.Millisecond, zerolog.Nop())

	s.Start()
	require.Eventually(t, func() bool {
		collector.mu.Lock()
		defer collector.mu.Unlock()
		return collector.calls >= 3
	}, time.Second, time.Millisecond)
	s.Stop()

	assert.Equal(t, 0, writer.count())
}

func TestSamplerDefaultInterval(t *testing.T) {
	s := NewSampler(&countingWriter{}, &fakeCollector{}, 0, zerolog.Nop())
	assert.Equal(t, DefaultInterval, s.interval)
}

func TestParseGPUStats(t *testing.T) {
	out := []byte("NVIDIA A100-SXM4-40GB, GPU-1111, 87, 40960, 30000, 10960, 535.104.05, 1322021000001, 61\n" +
		"Tesla T4, GPU-2222, [N/A], 15360, 0, 15360, 535.104.05, [N/A], 35\n")

	stats, err := parseGPUStats(out)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "NVIDIA A100-SXM4-40GB", stats[0].Name)
	assert.Equal(t, "GPU-1111", stats[0].UUID)
	assert.InDelta(t, 0.87, stats[0].Load, 1e-9)
	assert.Equal(t, 40960.0, stats[0].MemoryTotal)
	assert.Equal(t, 30000.0, stats[0].MemoryUsed)
	assert.Equal(t, 61.0, stats[0].Temperature)

	assert.Equal(t, 0.0, stats[1].Load)
	assert.Equal(t, "[N/A]", stats[1].Serial)
}

func TestParseGPUStatsWrongColumns(t *testing.T) {
	_, err := parseGPUStats([]byte("only, three, columns\n"))
	require.Error(t, err)
}

func TestNvidiaSMIMissingBinary(t *testing.T) {
	n := &NvidiaSMI{
		binary:   "nvidia-smi",
		lookPath: func(string) (string, error) { return "", errors.New("not found") },
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			t.Fatal("nvidia-smi must not run when it is not installed")
			return nil, nil
		},
	}

	stats, err := n.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestNvidiaSMIRead(t *testing.T) {
	var gotArgs []string
	n := &NvidiaSMI{
		binary:   "nvidia-smi",
		lookPath: func(string) (string, error) { return "/usr/bin/nvidia-smi", nil },
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = args
			return []byte("Tesla T4, GPU-2222, 10, 15360, 100, 15260, 535.1, 42, 35\n"), nil
		},
	}

	stats, err := n.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Contains(t, gotArgs, "--format=csv,noheader,nounits")
	assert.Equal(t, "42", stats[0].Serial)
}

type staticGPUs []models.GPUStats

func (s staticGPUs) Read(ctx context.Context) ([]models.GPUStats, error) {
	return s, nil
}

func TestHostCollectorLive(t *testing.T) {
	c := NewHostCollector(staticGPUs{{Name: "Tesla T4", UUID: "GPU-2222", MemoryTotal: 15360}})

	stats, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.GreaterOrEqual(t, stats.CPU.Percentage, 0.0)
	assert.LessOrEqual(t, stats.CPU.Percentage, 100.0)
	assert.Greater(t, stats.CPU.Memory, 0.0)
	require.Len(t, stats.GPU, 1)

	info, err := c.StaticInfo(context.Background())
	if err != nil {
		// Containers sometimes hide CPU topology; the rest must still be filled.
		t.Logf("static info incomplete: %v", err)
	}
	assert.NotEmpty(t, info.OS.System)
	assert.Greater(t, info.RAM.Installed, 0.0)
	require.Len(t, info.GPUs, 1)
	assert.Equal(t, "GPU-2222", info.GPUs[0].UUID)
}

func TestFrequencyRange(t *testing.T) {
	freq := frequencyRange([]cpu.InfoStat{{Mhz: 2400}, {Mhz: 3600}, {Mhz: 1200}})
	assert.Equal(t, 1200.0, freq.Min)
	assert.Equal(t, 3600.0, freq.Max)
}
