// Package queue provides the durable job queue and the append-only run
// history store.
package queue

import (
	"context"
	"log/slog"
	"strings"

	"github.com/imagechoom/imagechoom/pkg/models"
)

// Store owns the persisted pending queue and run history. All mutating queue
// operations are mutually exclusive so concurrent producers and the single
// dispatcher consumer never interleave a read-modify-write.
//
// PopNext is the hand-off point: a popped job is gone from the store, and the
// store learns nothing further about it until a RunRecord is appended. A crash
// between pop and append loses the job (at-most-once, no redelivery).
type Store interface {
	// Enqueue appends job to the end of the pending queue. FIFO, no priority.
	Enqueue(ctx context.Context, job models.Job) (models.Job, error)

	// PopNext removes and returns the front of the pending queue, or nil when
	// the queue is empty. An empty queue is not an error.
	PopNext(ctx context.Context) (*models.Job, error)

	// RemoveAt deletes the pending entry at index. Out-of-range indexes are a
	// no-op.
	RemoveAt(ctx context.Context, index int) error

	// ListPending returns a non-destructive snapshot of the pending queue in
	// submission order.
	ListPending(ctx context.Context) ([]models.Job, error)

	// AppendRun appends one record to the run history. Records are never
	// rewritten or deleted.
	AppendRun(ctx context.Context, record models.RunRecord) error

	// ListRuns returns the run history, most recent first. Unreadable records
	// are skipped, not surfaced.
	ListRuns(ctx context.Context) ([]models.RunRecord, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// NewStore selects a backend from the store URL scheme: redis:// connects to
// a redis store, anything else (including a bare path or file://) is the
// file-backed store.
func NewStore(ctx context.Context, logger *slog.Logger, storeURL string) (Store, error) {
	if strings.HasPrefix(storeURL, "redis://") || strings.HasPrefix(storeURL, "rediss://") {
		return NewRedisStore(ctx, logger, storeURL)
	}

	return NewFileStore(strings.TrimPrefix(storeURL, "file://"), logger)
}
