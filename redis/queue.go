package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/yanchengsi/spider"
)

// Default list names, matching the coordinator/worker deployment.
const (
	DefaultTaskKey   = "crawler_tasks"
	DefaultResultKey = "crawler_results"
)

var _ spider.TaskQueue = (*TaskQueue)(nil)

// TaskQueue distributes tasks and collects results over two Redis lists.
// Producers LPUSH and consumers BRPOP, so each list is FIFO.
type TaskQueue struct {
	rdb       *redis.Client
	taskKey   string
	resultKey string
}

// NewTaskQueue creates a TaskQueue on an opened Client. Empty keys fall
// back to DefaultTaskKey and DefaultResultKey.
func NewTaskQueue(c *Client, taskKey, resultKey string) *TaskQueue {
	if taskKey == "" {
		taskKey = DefaultTaskKey
	}
	if resultKey == "" {
		resultKey = DefaultResultKey
	}
	return &TaskQueue{rdb: c.rdb, taskKey: taskKey, resultKey: resultKey}
}

// PushTask enqueues a task.
func (q *TaskQueue) PushTask(ctx context.Context, task spider.Task) error {
	if task.URL == "" {
		return spider.Errorf(spider.EINVALID, "task URL required")
	}
	return q.push(ctx, q.taskKey, task)
}

// PopTask dequeues a task, blocking up to wait. The bool is false when
// nothing arrived in time.
func (q *TaskQueue) PopTask(ctx context.Context, wait time.Duration) (spider.Task, bool, error) {
	var task spider.Task
	ok, err := q.pop(ctx, q.taskKey, wait, &task)
	return task, ok, err
}

// PushResult enqueues a task result.
func (q *TaskQueue) PushResult(ctx context.Context, result spider.TaskResult) error {
	if !result.Status.Valid() {
		return spider.Errorf(spider.EINVALID, "invalid task status %q", result.Status)
	}
	return q.push(ctx, q.resultKey, result)
}

// PopResult dequeues a task result, blocking up to wait.
func (q *TaskQueue) PopResult(ctx context.Context, wait time.Duration) (spider.TaskResult, bool, error) {
	var result spider.TaskResult
	ok, err := q.pop(ctx, q.resultKey, wait, &result)
	return result, ok, err
}

func (q *TaskQueue) push(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", key, err)
	}
	if err := q.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", key, err)
	}
	return nil
}

// pop reads one message into v. A non-positive wait does not block.
func (q *TaskQueue) pop(ctx context.Context, key string, wait time.Duration, v any) (bool, error) {
	var payload string
	if wait <= 0 {
		res, err := q.rdb.RPop(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("pop from %s: %w", key, err)
		}
		payload = res
	} else {
		res, err := q.rdb.BRPop(ctx, wait, key).Result()
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("pop from %s: %w", key, err)
		}
		// BRPOP replies with [key, value].
		payload = res[1]
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, spider.Errorf(spider.EINVALID, "decode %s message: %v", key, err)
	}
	return true, nil
}
