package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localregistry/proxy/internal/core/domain"
	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TaskQueue = (*TaskQueue)(nil)

const (
	taskListKey    = "reconcile:tasks"
	taskDataPrefix = "reconcile:task:"
)

// TaskQueue implements driven.TaskQueue using a Redis list. Streams
// with consumer groups would support many concurrent workers claiming
// from many tenants; the Reconciliation Worker is a single in-process
// consumer with one task kind, so a plain BLPOP-backed list is enough
// (§4.15).
type TaskQueue struct {
	client *redis.Client
}

func NewTaskQueue(client *redis.Client) *TaskQueue {
	return &TaskQueue{client: client}
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
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redis: marshal task: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, taskDataPrefix+task.ID, data, 24*time.Hour)
	pipe.RPush(ctx, taskListKey, task.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: enqueue task: %w", err)
	}
	return nil
}

func (q *TaskQueue) DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*domain.Task, error) {
	result, err := q.client.BLPop(ctx, timeout, taskListKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: dequeue task: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}
	taskID := result[1]

	data, err := q.client.Get(ctx, taskDataPrefix+taskID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get task data: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("redis: unmarshal task: %w", err)
	}
	task.Attempts++
	updated, _ := json.Marshal(task)
	q.client.Set(ctx, taskDataPrefix+taskID, updated, 24*time.Hour)

	return &task, nil
}

func (q *TaskQueue) Ack(ctx context.Context, taskID string) error {
	if err := q.client.Del(ctx, taskDataPrefix+taskID).Err(); err != nil {
		return fmt.Errorf("redis: ack task: %w", err)
	}
	return nil
}

func (q *TaskQueue) Nack(ctx context.Context, taskID string, cause error) error {
	if err := q.client.RPush(ctx, taskListKey, taskID).Err(); err != nil {
		return fmt.Errorf("redis: nack task: %w", err)
	}
	return nil
}
