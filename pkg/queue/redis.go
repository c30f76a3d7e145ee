package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/imagechoom/imagechoom/pkg/models"
)

const (
	pendingKey = "imagechoom:queue"
	runsKey    = "imagechoom:runs"

	// tombstone marks a list entry for LRem during RemoveAt. It can never
	// collide with a job payload, which is always a JSON object.
	tombstone = "__imagechoom_removed__"
)

// RedisStore keeps the pending queue and run history in redis lists. List
// operations are atomic on the server, which gives the same single-consumer
// safety the file store gets from its mutex.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, logger *slog.Logger, storeURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(storeURL)
	if err != nil {
		return nil, NewStoreError("NewRedisStore", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, NewStoreError("NewRedisStore", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}

	logger.InfoContext(ctx, "Connected to redis queue store", "addr", opts.Addr, "db", opts.DB)

	return &RedisStore{
		client: client,
		logger: logger.With("module", "queue", "backend", "redis"),
	}, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, job models.Job) (models.Job, error) {
	if err := job.Validate(); err != nil {
		return models.Job{}, NewStoreError("Enqueue", fmt.Errorf("%w: %w", ErrInvalidJob, err))
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return models.Job{}, NewStoreError("Enqueue", err)
	}

	if err := s.client.RPush(ctx, pendingKey, payload).Err(); err != nil {
		return models.Job{}, NewStoreError("Enqueue", err)
	}

	return job, nil
}

func (s *RedisStore) PopNext(ctx context.Context) (*models.Job, error) {
	for {
		raw, err := s.client.LPop(ctx, pendingKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}

			return nil, NewStoreError("PopNext", err)
		}

		if raw == tombstone {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable queue entry", "error", err)

			continue
		}

		return &job, nil
	}
}

// RemoveAt replaces the entry at index with a tombstone and removes it, so
// concurrent pops never see a shifted index mid-removal.
func (s *RedisStore) RemoveAt(ctx context.Context, index int) error {
	if index < 0 {
		return nil
	}

	err := s.client.LSet(ctx, pendingKey, int64(index), tombstone).Err()
	if err != nil {
		// Out of range is a no-op by contract.
		return nil
	}

	if err := s.client.LRem(ctx, pendingKey, 1, tombstone).Err(); err != nil {
		return NewStoreError("RemoveAt", err)
	}

	return nil
}

func (s *RedisStore) ListPending(ctx context.Context) ([]models.Job, error) {
	raws, err := s.client.LRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return nil, NewStoreError("ListPending", err)
	}

	pending := make([]models.Job, 0, len(raws))

	for _, raw := range raws {
		if raw == tombstone {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable queue entry", "error", err)

			continue
		}

		pending = append(pending, job)
	}

	return pending, nil
}

func (s *RedisStore) AppendRun(ctx context.Context, record models.RunRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return NewStoreError("AppendRun", err)
	}

	if err := s.client.RPush(ctx, runsKey, payload).Err(); err != nil {
		return NewStoreError("AppendRun", err)
	}

	return nil
}

func (s *RedisStore) ListRuns(ctx context.Context) ([]models.RunRecord, error) {
	raws, err := s.client.LRange(ctx, runsKey, 0, -1).Result()
	if err != nil {
		return nil, NewStoreError("ListRuns", err)
	}

	records := make([]models.RunRecord, 0, len(raws))

	// Stored in append order; walk backwards for most-recent-first.
	for i := len(raws) - 1; i >= 0; i-- {
		var record models.RunRecord
		if err := json.Unmarshal([]byte(raws[i]), &record); err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable run history entry", "error", err)

			continue
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return NewStoreError("HealthCheck", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}

	return nil
}

func (s *RedisStore) Close(_ context.Context) error {
	return s.client.Close()
}
