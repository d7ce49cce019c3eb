package models

import "time"

// MetricRecord is one line of a run's metric log: the payload passed to a
// single log-metric call together with the time it was written.
type MetricRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"payload"`
}

// Metric is a single numeric data point as sent to an MLflow server.
type Metric struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Step      int64     `json:"step"`
}

type Parameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type TimeConfig struct {
	Resolution string // 1s, 1m, 5m, 1h
	Alignment  string // floor, ceil, round
	StepMode   string // auto, timestamp, sequence
}
