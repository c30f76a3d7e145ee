// Package models defines the core data types shared across the engine.
package models

type WorkflowType string

const (
	WorkflowTypeV1     WorkflowType = "v1"
	WorkflowTypeLegacy WorkflowType = "legacy"
)

// WorkflowMetadata describes one discovered workflow file. It is rebuilt on
// every directory scan and never persisted.
type WorkflowMetadata struct {
	Name string       `json:"name"`
	Path string       `json:"path"`
	Type WorkflowType `json:"type"`
}

// NormalizedWorkflow is the runner-ready form of a workflow plus any warnings
// about legacy information that could not be preserved.
type NormalizedWorkflow struct {
	NormalizedText string   `json:"normalized_text"`
	Warnings       []string `json:"warnings"`
}
