package web

import "github.com/imagechoom/imagechoom/pkg/models"

// EnqueueWorkflowRequest submits a workflow run. Either the name of a
// discovered workflow or raw workflow text must be provided.
type EnqueueWorkflowRequest struct {
	Name    string `json:"name"`
	Text    string `json:"text"`
	RunName string `json:"run_name"`
}

// EnqueuePromptLabRequest submits a generate-then-run job.
type EnqueuePromptLabRequest struct {
	Model      string  `json:"model"       validate:"required"`
	PresetName string  `json:"preset_name"`
	Theme      string  `json:"theme"       validate:"required"`
	Creativity float64 `json:"creativity"  validate:"gte=0,lte=1"`
	TimeoutS   int     `json:"timeout_s"   validate:"gte=1"`
	RunName    string  `json:"run_name"`
}

// WorkflowResponse describes one discovered workflow, including the
// runner-ready form a legacy file would normalize to.
type WorkflowResponse struct {
	Name           string              `json:"name"`
	Path           string              `json:"path"`
	Type           models.WorkflowType `json:"type"`
	NormalizedText string              `json:"normalized_text"`
	Warnings       []string            `json:"warnings"`
}
