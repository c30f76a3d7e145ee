package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobRunWorkflowText JobType = "RunWorkflowText"
	JobGenerateThenRun JobType = "GenerateThenRun"
)

// PromptLabConfig holds everything a GenerateThenRun job needs to request a
// prompt specification from the text-generation service.
type PromptLabConfig struct {
	Model      string         `json:"model"       validate:"required"`
	PresetName string         `json:"preset_name"`
	Preset     map[string]any `json:"preset"`
	Theme      string         `json:"theme"       validate:"required"`
	Creativity float64        `json:"creativity"  validate:"gte=0,lte=1"`
	TimeoutS   int            `json:"timeout_s"   validate:"gte=1"`
}

// Job is a queued unit of work. The payload is a tagged variant: exactly one
// of NormalizedText or PromptLab is populated, selected by Type. Construct
// jobs through NewRunWorkflowTextJob / NewGenerateThenRunJob so the invariant
// holds by construction.
type Job struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"job_type"`
	CreatedAt time.Time `json:"created_at"`
	RunName   string    `json:"run_name"`

	NormalizedText string           `json:"normalized_text,omitempty"`
	PromptLab      *PromptLabConfig `json:"promptlab,omitempty"`
}

var ErrInvalidJobPayload = errors.New("job payload does not match job type")

func NewRunWorkflowTextJob(runName, normalizedText string) Job {
	return Job{
		ID:             uuid.New().String(),
		Type:           JobRunWorkflowText,
		CreatedAt:      time.Now().UTC(),
		RunName:        runName,
		NormalizedText: normalizedText,
	}
}

func NewGenerateThenRunJob(runName string, config PromptLabConfig) Job {
	return Job{
		ID:        uuid.New().String(),
		Type:      JobGenerateThenRun,
		CreatedAt: time.Now().UTC(),
		RunName:   runName,
		PromptLab: &config,
	}
}

// Validate enforces the one-payload-per-type invariant. The queue store calls
// this on round-trips so a hand-edited queue file cannot smuggle in a job
// carrying both payloads or neither.
func (j Job) Validate() error {
	switch j.Type {
	case JobRunWorkflowText:
		if j.PromptLab != nil {
			return ErrInvalidJobPayload
		}
	case JobGenerateThenRun:
		if j.PromptLab == nil || j.NormalizedText != "" {
			return ErrInvalidJobPayload
		}
	default:
		return ErrInvalidJobPayload
	}

	return nil
}
