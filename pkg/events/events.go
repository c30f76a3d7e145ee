// Package events defines the notifications the dispatcher publishes while
// draining the queue, so observers can show live progress.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/imagechoom/imagechoom/pkg/models"
)

type EventType string

const Topic = "imagechoom.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	JobStartedEvent       EventType = "job.started"
	JobFinishedEvent      EventType = "job.finished"
	JobFailedEvent        EventType = "job.failed"
	RunLogLineEvent       EventType = "run.log"
	DispatcherStatusEvent EventType = "dispatcher.status"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	JobID     string         `json:"job_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type JobStarted struct {
	BaseEvent

	JobType    models.JobType `json:"job_type"`
	RunName    string         `json:"run_name"`
	QueueDepth int            `json:"queue_depth"`
}

func (e JobStarted) GetType() EventType {
	return JobStartedEvent
}

type JobFinished struct {
	BaseEvent

	RunName      string `json:"run_name"`
	RecordID     string `json:"record_id"`
	ArtifactsDir string `json:"artifacts_dir"`
	ImageCount   int    `json:"image_count"`
	DurationMs   int64  `json:"duration_ms"`
}

func (e JobFinished) GetType() EventType {
	return JobFinishedEvent
}

type JobFailed struct {
	BaseEvent

	RunName    string `json:"run_name"`
	RecordID   string `json:"record_id"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e JobFailed) GetType() EventType {
	return JobFailedEvent
}

// RunLogLine carries one captured runner output line, published as it arrives
// so observers see progress before the job completes.
type RunLogLine struct {
	BaseEvent

	RunName string `json:"run_name"`
	Line    string `json:"line"`
}

func (e RunLogLine) GetType() EventType {
	return RunLogLineEvent
}

type DispatcherStatus struct {
	BaseEvent

	State      string `json:"state"`
	Detail     string `json:"detail"`
	QueueDepth int    `json:"queue_depth"`
}

func (e DispatcherStatus) GetType() EventType {
	return DispatcherStatusEvent
}

func NewBaseEvent(eventType EventType, jobID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		JobID:     jobID,
	}
}
