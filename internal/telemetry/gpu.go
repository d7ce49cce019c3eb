package telemetry

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/imishinist/mlvc-cli/internal/models"
)

// GPUReader reports the current state of every detected accelerator.
// Implementations return nil (not an error) when no GPUs are present.
type GPUReader interface {
	Read(ctx context.Context) ([]models.GPUStats, error)
}

// gpuQueryFields is the column order requested from nvidia-smi.
var gpuQueryFields = []string{
	"name",
	"uuid",
	"utilization.gpu",
	"memory.total",
	"memory.used",
	"memory.free",
	"driver_version",
	"serial",
	"temperature.gpu",
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// NvidiaSMI reads NVIDIA GPU statistics through the nvidia-smi CLI.
type NvidiaSMI struct {
	binary   string
	run      commandRunner
	lookPath func(string) (string, error)
}

func NewNvidiaSMI() *NvidiaSMI {
	return &NvidiaSMI{
		binary:   "nvidia-smi",
		run:      runCommand,
		lookPath: exec.LookPath,
	}
}

func (n *NvidiaSMI) Read(ctx context.Context) ([]models.GPUStats, error) {
	if _, err := n.lookPath(n.binary); err != nil {
		return nil, nil
	}

	out, err := n.run(ctx, n.binary,
		"--query-gpu="+strings.Join(gpuQueryFields, ","),
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		return nil, err
	}
	return parseGPUStats(out)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w (stderr: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func parseGPUStats(out []byte) ([]models.GPUStats, error) {
	reader := csv.NewReader(bytes.NewReader(out))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = len(gpuQueryFields)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse nvidia-smi output: %w", err)
	}

	stats := make([]models.GPUStats, 0, len(records))
	for _, record := range records {
		stats = append(stats, models.GPUStats{
			Name:        record[0],
			UUID:        record[1],
			Load:        parseGPUFloat(record[2]) / 100,
			MemoryTotal: parseGPUFloat(record[3]),
			MemoryUsed:  parseGPUFloat(record[4]),
			MemoryFree:  parseGPUFloat(record[5]),
			Driver:      record[6],
			Serial:      record[7],
			Temperature: parseGPUFloat(record[8]),
		})
	}
	return stats, nil
}

// parseGPUFloat treats unsupported readings such as "[N/A]" as zero.
func parseGPUFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
