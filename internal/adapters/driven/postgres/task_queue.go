package postgres

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"time"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskQueue = (*TaskQueue)(nil)

// TaskQueue implements driven.TaskQueue using PostgreSQL, for
// deployments with no Redis configured: one task kind, no TeamID, no
// priority, and polling instead of a blocking primitive, since
// reconcile_cache tasks are produced at most once per tick by a single
// in-process worker (§4.15).
type TaskQueue struct {
	db *DB
}

func NewTaskQueue(db *DB) *TaskQueue {
	return &TaskQueue{db: db}
}

func generateTaskID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func (q *TaskQueue) Enqueue(ctx context.Context, task domain.Task) error {
	if task.ID == "" {
		task.ID = generateTaskID()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reconcile_tasks (id, kind, enqueued_at, attempts, claimed)
		VALUES ($1, $2, $3, $4, FALSE)
	`, task.ID, string(task.Kind), task.EnqueuedAt, task.Attempts)
	return err
}

func (q *TaskQueue) DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.Task, error) {
	deadline := time.Now().Add(timeout)
	for {
		task, err := q.tryClaimOne(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (q *TaskQueue) tryClaimOne(ctx context.Context) (*domain.Task, error) {
	var task domain.Task
	var kind string
	err := q.db.QueryRowContext(ctx, `
		UPDATE reconcile_tasks SET claimed = TRUE, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM reconcile_tasks WHERE claimed = FALSE ORDER BY enqueued_at ASC LIMIT 1
		)
		RETURNING id, kind, enqueued_at, attempts
	`).Scan(&task.ID, &kind, &task.EnqueuedAt, &task.Attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	task.Kind = domain.TaskKind(kind)
	return &task, nil
}

func (q *TaskQueue) Ack(ctx context.Context, taskID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM reconcile_tasks WHERE id = $1`, taskID)
	return err
}

func (q *TaskQueue) Nack(ctx context.Context, taskID string, cause error) error {
	_, err := q.db.ExecContext(ctx, `UPDATE reconcile_tasks SET claimed = FALSE WHERE id = $1`, taskID)
	return err
}
