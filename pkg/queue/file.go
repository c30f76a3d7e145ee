package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/imagechoom/imagechoom/pkg/models"
)

const (
	queueFileName = "queue.json"
	runsFileName  = "runs.jsonl"
)

// FileStore persists the pending queue as an ordered JSON list and the run
// history as one JSON object per line, appended only. One mutex is the single
// critical section for every mutating operation.
type FileStore struct {
	root      string
	queuePath string
	runsPath  string
	logger    *slog.Logger

	mu sync.Mutex
}

func NewFileStore(root string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, NewStoreError("NewFileStore", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}

	store := &FileStore{
		root:      root,
		queuePath: filepath.Join(root, queueFileName),
		runsPath:  filepath.Join(root, runsFileName),
		logger:    logger.With("module", "queue", "backend", "file"),
	}

	if _, err := os.Stat(store.queuePath); os.IsNotExist(err) {
		if err := os.WriteFile(store.queuePath, []byte("[]"), 0o600); err != nil {
			return nil, NewStoreError("NewFileStore", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		}
	}

	return store, nil
}

func (s *FileStore) Enqueue(ctx context.Context, job models.Job) (models.Job, error) {
	if err := job.Validate(); err != nil {
		return models.Job{}, NewStoreError("Enqueue", fmt.Errorf("%w: %w", ErrInvalidJob, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.readQueue(ctx)
	pending = append(pending, job)

	if err := s.writeQueue(pending); err != nil {
		return models.Job{}, NewStoreError("Enqueue", err)
	}

	return job, nil
}

func (s *FileStore) PopNext(ctx context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.readQueue(ctx)
	if len(pending) == 0 {
		return nil, nil
	}

	job := pending[0]
	if err := s.writeQueue(pending[1:]); err != nil {
		return nil, NewStoreError("PopNext", err)
	}

	return &job, nil
}

func (s *FileStore) RemoveAt(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.readQueue(ctx)
	if index < 0 || index >= len(pending) {
		return nil
	}

	pending = append(pending[:index], pending[index+1:]...)
	if err := s.writeQueue(pending); err != nil {
		return NewStoreError("RemoveAt", err)
	}

	return nil
}

func (s *FileStore) ListPending(ctx context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readQueue(ctx), nil
}

func (s *FileStore) AppendRun(ctx context.Context, record models.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return NewStoreError("AppendRun", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle, err := os.OpenFile(s.runsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return NewStoreError("AppendRun", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	defer handle.Close()

	if _, err := handle.Write(append(payload, '\n')); err != nil {
		return NewStoreError("AppendRun", err)
	}

	return nil
}

func (s *FileStore) ListRuns(ctx context.Context) ([]models.RunRecord, error) {
	s.mu.Lock()
	body, err := os.ReadFile(s.runsPath)
	s.mu.Unlock()

	if err != nil {
		if os.IsNotExist(err) {
			return []models.RunRecord{}, nil
		}

		return nil, NewStoreError("ListRuns", err)
	}

	lines := strings.Split(string(body), "\n")
	records := make([]models.RunRecord, 0, len(lines))

	// Most recent first: the file is append-ordered, so walk it backwards.
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		var record models.RunRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable run history line", "line", i+1, "error", err)

			continue
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *FileStore) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return NewStoreError("HealthCheck", ErrStoreUnavailable)
	}

	return nil
}

func (s *FileStore) Close(_ context.Context) error {
	return nil
}

// readQueue loads the pending list. An unreadable or non-list queue file is
// treated as empty; jobs violating the payload invariant are dropped with a
// warning rather than poisoning every subsequent operation.
func (s *FileStore) readQueue(ctx context.Context) []models.Job {
	body, err := os.ReadFile(s.queuePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WarnContext(ctx, "Queue file unreadable, treating as empty", "error", err)
		}

		return []models.Job{}
	}

	var pending []models.Job
	if err := json.Unmarshal(body, &pending); err != nil || pending == nil {
		if err != nil {
			s.logger.WarnContext(ctx, "Queue file malformed, treating as empty", "error", err)
		}

		return []models.Job{}
	}

	valid := pending[:0]

	for _, job := range pending {
		if err := job.Validate(); err != nil {
			s.logger.WarnContext(ctx, "Dropping job with invalid payload", "job_id", job.ID, "error", err)

			continue
		}

		valid = append(valid, job)
	}

	return valid
}

func (s *FileStore) writeQueue(pending []models.Job) error {
	data, err := json.MarshalIndent(pending, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.queuePath, data, 0o600)
}
