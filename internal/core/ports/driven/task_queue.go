package driven

import (
	"context"
	"time"

	"github.com/localregistry/proxy/internal/core/domain"
)

// TaskQueue is the minimal queue abstraction backing the Reconciliation
// Worker (§4.15): no TeamID, no priority, no scheduled-task persistence
// — scheduling here is a plain ticker in internal/worker, not a
// persisted schedule table.
type TaskQueue interface {
	// Enqueue adds a task for later processing.
	Enqueue(ctx context.Context, task domain.Task) error

	// DequeueWithTimeout waits up to timeout for a task to become
	// available. Returns nil, nil on timeout with no task.
	DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.Task, error)

	// Ack marks a dequeued task as successfully processed.
	Ack(ctx context.Context, taskID string) error

	// Nack marks a dequeued task as failed; implementations may choose
	// whether to requeue it.
	Nack(ctx context.Context, taskID string, cause error) error
}
