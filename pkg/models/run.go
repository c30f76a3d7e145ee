package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunRecord is the durable outcome of one executed job. Records are appended
// to the history log and never rewritten.
type RunRecord struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	JobType        JobType        `json:"job_type"`
	RunName        string         `json:"run_name"`
	Theme          string         `json:"theme"`
	Status         RunStatus      `json:"status"`
	PromptJSON     map[string]any `json:"prompt_json"`
	NormalizedText string         `json:"normalized_text"`
	ArtifactsDir   string         `json:"artifacts_dir"`
	ImagePaths     []string       `json:"image_paths"`
	Error          string         `json:"error,omitempty"`
}

func NewRunRecord(jobType JobType, runName string) RunRecord {
	return RunRecord{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		JobType:    jobType,
		RunName:    runName,
		PromptJSON: map[string]any{},
		ImagePaths: []string{},
	}
}

// RunResult is the transient outcome of one Execution Bridge invocation. The
// caller translates it into a RunRecord.
type RunResult struct {
	RunDir     string
	LogLines   []string
	ImagePaths []string
	Success    bool
	Error      string
}
