package models

import "time"

type RunStatus string

const (
	RunStatusDraft     RunStatus = "draft"
	RunStatusSubmitted RunStatus = "submitted"
	RunStatusUploaded  RunStatus = "uploaded"
)

// Run is the document stored for every tracked run. Field names are the
// keys used for partial updates in the document store.
type Run struct {
	RunID        string         `json:"run_id"`
	ProjectID    string         `json:"project_id"`
	ModelID      string         `json:"model_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Tags         []string       `json:"tags,omitempty"`
	RunDir       string         `json:"run_dir"`
	Status       RunStatus      `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	TrainingTime float64        `json:"training_time,omitempty"`
	Code         Code           `json:"code"`
	Config       map[string]any `json:"config"`
	Annotation   *FileRef       `json:"ann"`
	Data         []FileRef      `json:"data"`
	Results      map[string]any `json:"results"`
	Logs         Logs           `json:"logs"`
	SystemInfo   *SystemInfo    `json:"system_info,omitempty"`
	RemoteRunID  string         `json:"remote_run_id"`
}

// Document store field keys.
const (
	FieldStatus       = "status"
	FieldTrainingTime = "training_time"
	FieldCode         = "code"
	FieldConfig       = "config"
	FieldAnnotation   = "ann"
	FieldData         = "data"
	FieldResults      = "results"
	FieldRemoteRunID  = "remote_run_id"
)

type Code struct {
	Git   *GitInfo `json:"git,omitempty"`
	Files []string `json:"files"`
}

type GitInfo struct {
	RemoteURL    string `json:"remote_url"`
	ActiveBranch string `json:"active_branch"`
	CommitID     string `json:"commit_id"`
	DiffFile     string `json:"diff_file,omitempty"`
}

// FileRef describes an artifact copied into the run directory.
type FileRef struct {
	Type     string `json:"type"`
	FileName string `json:"file_name"`
}

// Logs holds the file names of the run's log sinks, relative to the
// run directory.
type Logs struct {
	Run       string `json:"run"`
	Metric    string `json:"metric"`
	Telemetry string `json:"telemetry"`
	Stdout    string `json:"stdout"`
}

// RunSummary is the subset of a run sent when the remote run shell is
// created.
type RunSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r *Run) Summary() RunSummary {
	return RunSummary{Name: r.Name, Description: r.Description}
}
