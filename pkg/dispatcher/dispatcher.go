// Package dispatcher drains the job queue in the background. It starts
// paused; once switched to continuous it keeps pulling jobs until the queue
// is empty, then idles on a poll tick.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/imagechoom/imagechoom/pkg/eventbus"
	"github.com/imagechoom/imagechoom/pkg/events"
	"github.com/imagechoom/imagechoom/pkg/executor"
	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/models"
	"github.com/imagechoom/imagechoom/pkg/otelhelper"
	"github.com/imagechoom/imagechoom/pkg/promptlab"
	"github.com/imagechoom/imagechoom/pkg/queue"
)

type State string

const (
	StatePaused     State = "paused"
	StateContinuous State = "continuous"
)

const defaultPollInterval = 500 * time.Millisecond

// Executor runs a normalized workflow and reports the outcome.
type Executor interface {
	Execute(ctx context.Context, text, runName string, opts executor.Options, onLog func(line string)) models.RunResult
}

// Generator produces a validated prompt for a prompt-lab job.
type Generator interface {
	Generate(ctx context.Context, config models.PromptLabConfig) (*promptlab.Result, error)
}

type Dispatcher struct {
	store     queue.Store
	executor  Executor
	generator Generator
	bus       eventbus.EventBus
	logger    *slog.Logger
	tracer    trace.Tracer

	pollInterval time.Duration

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewDispatcher(store queue.Store, exec Executor, generator Generator, bus eventbus.EventBus) *Dispatcher {
	return &Dispatcher{
		store:        store,
		executor:     exec,
		generator:    generator,
		bus:          bus,
		logger:       log.WithModule("dispatcher"),
		tracer:       otel.Tracer("imagechoom/dispatcher"),
		pollInterval: defaultPollInterval,
		state:        StatePaused,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the background loop. The dispatcher stays paused until
// EnableContinuous is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()

		d.logger.InfoContext(ctx, "Dispatcher started", "state", d.State())

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				if d.State() != StateContinuous {
					continue
				}

				d.drain(ctx)
			}
		}
	}()
}

// drain processes jobs until the queue is empty or the dispatcher leaves
// continuous mode.
func (d *Dispatcher) drain(ctx context.Context) {
	for d.State() == StateContinuous {
		processed, err := d.RunOnce(ctx)
		if err != nil {
			d.logger.ErrorContext(ctx, "Dispatch iteration failed", "error", err)

			return
		}

		if !processed {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}
	}
}

// Stop halts the background loop and waits for an in-flight job to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

func (d *Dispatcher) EnableContinuous(ctx context.Context) {
	d.setState(ctx, StateContinuous, "continuous dispatch enabled")
}

// RequestPause stops pulling new jobs. An in-flight job always runs to
// completion.
func (d *Dispatcher) RequestPause(ctx context.Context) {
	d.setState(ctx, StatePaused, "pause requested")
}

func (d *Dispatcher) setState(ctx context.Context, state State, detail string) {
	d.mu.Lock()
	changed := d.state != state
	d.state = state
	d.mu.Unlock()

	if !changed {
		return
	}

	d.logger.InfoContext(ctx, "Dispatcher state changed", "state", state)
	d.publishStatus(ctx, string(state), detail)
}

// RunOnce pops and fully processes a single job. It reports false when the
// queue was empty. Regardless of outcome, a processed job appends exactly one
// run record to history.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	job, err := d.store.PopNext(ctx)
	if err != nil {
		return false, fmt.Errorf("popping next job: %w", err)
	}

	if job == nil {
		d.publishStatus(ctx, string(d.State()), "idle")

		return false, nil
	}

	d.processJob(ctx, *job)

	return true, nil
}

func (d *Dispatcher) processJob(ctx context.Context, job models.Job) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.process_job",
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.JobTypeKey, string(job.Type)),
		attribute.String(otelhelper.RunNameKey, job.RunName),
	)
	defer span.End()

	started := time.Now()
	depth := d.queueDepth(ctx)

	d.logger.InfoContext(ctx, "Processing job", "job_id", job.ID, "job_type", job.Type, "run_name", job.RunName)
	d.publishStatus(ctx, string(d.State()), fmt.Sprintf("running %s (%d queued)", job.RunName, depth))
	d.publishEvent(ctx, job.ID, events.JobStarted{
		BaseEvent:  events.NewBaseEvent(events.JobStartedEvent, job.ID),
		JobType:    job.Type,
		RunName:    job.RunName,
		QueueDepth: depth,
	})

	record := d.runJob(ctx, job)

	if err := d.store.AppendRun(ctx, record); err != nil {
		d.logger.ErrorContext(ctx, "Failed to append run record", "job_id", job.ID, "error", err)
	}

	duration := time.Since(started).Milliseconds()

	if record.Status == models.RunStatusSuccess {
		d.publishEvent(ctx, job.ID, events.JobFinished{
			BaseEvent:    events.NewBaseEvent(events.JobFinishedEvent, job.ID),
			RunName:      job.RunName,
			RecordID:     record.ID,
			ArtifactsDir: record.ArtifactsDir,
			ImageCount:   len(record.ImagePaths),
			DurationMs:   duration,
		})

		return
	}

	otelhelper.SetError(span, errors.New(record.Error))
	d.publishEvent(ctx, job.ID, events.JobFailed{
		BaseEvent:  events.NewBaseEvent(events.JobFailedEvent, job.ID),
		RunName:    job.RunName,
		RecordID:   record.ID,
		Error:      record.Error,
		DurationMs: duration,
	})
}

// runJob executes the job body and always returns a complete run record. A
// panic in job handling becomes a failed record instead of killing the loop.
func (d *Dispatcher) runJob(ctx context.Context, job models.Job) (record models.RunRecord) {
	record = models.NewRunRecord(job.Type, job.RunName)

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Job panicked", "job_id", job.ID, "panic", r)

			record.Status = models.RunStatusFailed
			record.Error = fmt.Sprintf("job panicked: %v", r)
		}
	}()

	text := job.NormalizedText

	if job.Type == models.JobGenerateThenRun {
		record.Theme = job.PromptLab.Theme

		result, err := d.generator.Generate(ctx, *job.PromptLab)
		if err != nil {
			record.Status = models.RunStatusFailed
			record.Error = err.Error()

			return record
		}

		var promptJSON map[string]any
		if err := json.Unmarshal([]byte(result.Raw), &promptJSON); err == nil {
			record.PromptJSON = promptJSON
		}

		text = promptlab.ToToolcall(result.Spec)
	}

	record.NormalizedText = text

	onLog := func(line string) {
		d.publishEvent(ctx, job.ID, events.RunLogLine{
			BaseEvent: events.NewBaseEvent(events.RunLogLineEvent, job.ID),
			RunName:   job.RunName,
			Line:      line,
		})
	}

	result := d.executor.Execute(ctx, text, job.RunName, executor.Options{}, onLog)

	record.ArtifactsDir = result.RunDir
	record.ImagePaths = result.ImagePaths

	if result.Success {
		record.Status = models.RunStatusSuccess
	} else {
		record.Status = models.RunStatusFailed
		record.Error = result.Error
	}

	return record
}

func (d *Dispatcher) queueDepth(ctx context.Context) int {
	pending, err := d.store.ListPending(ctx)
	if err != nil {
		return 0
	}

	return len(pending)
}

func (d *Dispatcher) publishStatus(ctx context.Context, state, detail string) {
	d.publishEvent(ctx, "dispatcher", events.DispatcherStatus{
		BaseEvent:  events.NewBaseEvent(events.DispatcherStatusEvent, ""),
		State:      state,
		Detail:     detail,
		QueueDepth: d.queueDepth(ctx),
	})
}

func (d *Dispatcher) publishEvent(ctx context.Context, key string, event eventbus.Event) {
	if d.bus == nil {
		return
	}

	if err := d.bus.Publish(ctx, key, event); err != nil {
		d.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
