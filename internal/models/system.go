package models

// SystemInfo is the one-time host description stored on the run.
type SystemInfo struct {
	OS   OSInfo    `json:"os"`
	CPU  CPUInfo   `json:"cpu"`
	RAM  RAMInfo   `json:"ram"`
	GPUs []GPUInfo `json:"gpus"`
}

type OSInfo struct {
	System   string `json:"system"`
	Machine  string `json:"machine"`
	Platform string `json:"platform"`
	Version  string `json:"version"`
	Kernel   string `json:"kernel"`
	Hostname string `json:"hostname"`
}

type CPUInfo struct {
	Model string   `json:"model,omitempty"`
	Cores CPUCores `json:"cores"`
	Freq  CPUFreq  `json:"freq"`
}

type CPUCores struct {
	Physical int `json:"physical"`
	Logical  int `json:"logical"`
}

// CPUFreq is in MHz.
type CPUFreq struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RAMInfo.Installed is in gigabytes (10^9 bytes).
type RAMInfo struct {
	Installed float64 `json:"installed"`
}

type GPUInfo struct {
	Name        string  `json:"name"`
	UUID        string  `json:"uuid"`
	MemoryTotal float64 `json:"memory_total"`
	Driver      string  `json:"driver"`
	Serial      string  `json:"serial"`
}

// SystemStats is one telemetry sample.
type SystemStats struct {
	CPU CPUStats   `json:"cpu"`
	GPU []GPUStats `json:"gpu"`
}

type CPUStats struct {
	Percentage float64 `json:"percentage"`
	Memory     float64 `json:"memory"`
}

// GPUStats memory values are in MiB, temperature in Celsius, load in [0,1].
type GPUStats struct {
	Name        string  `json:"name"`
	UUID        string  `json:"uuid"`
	Load        float64 `json:"load"`
	MemoryTotal float64 `json:"memory_total"`
	MemoryUsed  float64 `json:"memory_used"`
	MemoryFree  float64 `json:"memory_free"`
	Driver      string  `json:"driver"`
	Serial      string  `json:"serial"`
	Temperature float64 `json:"temperature"`
}
