package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imagechoom/imagechoom/pkg/executor"
	"github.com/imagechoom/imagechoom/pkg/log"
	"github.com/imagechoom/imagechoom/pkg/models"
	"github.com/imagechoom/imagechoom/pkg/promptlab"
	"github.com/imagechoom/imagechoom/pkg/queue"
)

type fakeExecutor struct {
	result models.RunResult
	texts  []string
	names  []string
}

func (f *fakeExecutor) Execute(_ context.Context, text, runName string, _ executor.Options, onLog func(string)) models.RunResult {
	f.texts = append(f.texts, text)
	f.names = append(f.names, runName)

	if onLog != nil {
		for _, line := range f.result.LogLines {
			onLog(line)
		}
	}

	return f.result
}

type fakeGenerator struct {
	result *promptlab.Result
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, _ models.PromptLabConfig) (*promptlab.Result, error) {
	f.calls++

	return f.result, f.err
}

func newTestStore(t *testing.T) queue.Store {
	t.Helper()

	store, err := queue.NewFileStore(t.TempDir(), log.WithModule("test"))
	require.NoError(t, err)

	return store
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	d := NewDispatcher(newTestStore(t), &fakeExecutor{}, &fakeGenerator{}, nil)

	processed, err := d.RunOnce(context.Background())

	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRunOnce_SuccessfulTextJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	exec := &fakeExecutor{result: models.RunResult{
		RunDir:     "/outputs/run-x",
		LogLines:   []string{"run_dir=/outputs/run-x"},
		ImagePaths: []string{"/outputs/run-x/000.png"},
		Success:    true,
	}}

	_, err := store.Enqueue(ctx, models.NewRunWorkflowTextJob("sunset", "toolcall tool name=a1111_txt2img id=images"))
	require.NoError(t, err)

	d := NewDispatcher(store, exec, &fakeGenerator{}, nil)

	processed, err := d.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "processed job must leave the queue")

	records, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.Equal(t, models.JobRunWorkflowText, record.JobType)
	assert.Equal(t, "sunset", record.RunName)
	assert.Equal(t, "/outputs/run-x", record.ArtifactsDir)
	assert.Equal(t, []string{"/outputs/run-x/000.png"}, record.ImagePaths)
	assert.Empty(t, record.Error)
}

func TestRunOnce_FailedJobStillAppendsExactlyOneRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	exec := &fakeExecutor{result: models.RunResult{
		RunDir:   "/outputs/run-y",
		LogLines: []string{"run_dir=/outputs/run-y", "ERROR: backend exploded"},
		Error:    "backend exploded",
	}}

	_, err := store.Enqueue(ctx, models.NewRunWorkflowTextJob("doomed", "text"))
	require.NoError(t, err)

	d := NewDispatcher(store, exec, &fakeGenerator{}, nil)

	processed, err := d.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed jobs are not redelivered")

	records, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RunStatusFailed, records[0].Status)
	assert.Equal(t, "backend exploded", records[0].Error)
}

func TestRunOnce_GenerateThenRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	raw := `{"positive": "misty forest", "sd_params": {"seed": 9}}`
	generator := &fakeGenerator{result: &promptlab.Result{
		Spec: models.PromptSpec{Positive: "misty forest", SDParams: models.SDParams{Seed: 9}},
		Raw:  raw,
	}}

	exec := &fakeExecutor{result: models.RunResult{RunDir: "/outputs/run-z", Success: true}}

	config := models.PromptLabConfig{
		Model:      "llama3.1:8b",
		Theme:      "misty forest",
		Creativity: 0.5,
		TimeoutS:   30,
	}
	_, err := store.Enqueue(ctx, models.NewGenerateThenRunJob("forest", config))
	require.NoError(t, err)

	d := NewDispatcher(store, exec, generator, nil)

	processed, err := d.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, 1, generator.calls)
	require.Len(t, exec.texts, 1)
	assert.Contains(t, exec.texts[0], `prompt="misty forest"`)
	assert.Contains(t, exec.texts[0], "seed=9")

	records, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.Equal(t, "misty forest", record.Theme)
	assert.Equal(t, "misty forest", record.PromptJSON["positive"])
	assert.Equal(t, exec.texts[0], record.NormalizedText)
}

func TestRunOnce_GenerationFailureSkipsExecution(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	generator := &fakeGenerator{err: errors.New("ollama unreachable")}
	exec := &fakeExecutor{result: models.RunResult{Success: true}}

	config := models.PromptLabConfig{Model: "m", Theme: "t", TimeoutS: 5}
	_, err := store.Enqueue(ctx, models.NewGenerateThenRunJob("fail", config))
	require.NoError(t, err)

	d := NewDispatcher(store, exec, generator, nil)

	processed, err := d.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	assert.Empty(t, exec.texts, "execution must not run after generation failure")

	records, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RunStatusFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "ollama unreachable")
}

type panickyExecutor struct{}

func (panickyExecutor) Execute(context.Context, string, string, executor.Options, func(string)) models.RunResult {
	panic("boom")
}

func TestRunOnce_PanicBecomesFailedRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Enqueue(ctx, models.NewRunWorkflowTextJob("panicky", "text"))
	require.NoError(t, err)

	d := NewDispatcher(store, panickyExecutor{}, &fakeGenerator{}, nil)

	processed, err := d.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	records, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RunStatusFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "boom")
}

func TestStateTransitions(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(newTestStore(t), &fakeExecutor{}, &fakeGenerator{}, nil)

	assert.Equal(t, StatePaused, d.State())

	d.EnableContinuous(ctx)
	assert.Equal(t, StateContinuous, d.State())

	d.RequestPause(ctx)
	assert.Equal(t, StatePaused, d.State())
}

func TestStartDrainsQueueInContinuousMode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newTestStore(t)
	exec := &fakeExecutor{result: models.RunResult{Success: true}}

	for range 3 {
		_, err := store.Enqueue(ctx, models.NewRunWorkflowTextJob("bulk", "text"))
		require.NoError(t, err)
	}

	d := NewDispatcher(store, exec, &fakeGenerator{}, nil)
	d.pollInterval = 10 * time.Millisecond

	d.Start(ctx)
	defer d.Stop()

	d.EnableContinuous(ctx)

	require.Eventually(t, func() bool {
		pending, err := store.ListPending(ctx)

		return err == nil && len(pending) == 0
	}, 3*time.Second, 20*time.Millisecond, "queue should drain once continuous")

	records, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
