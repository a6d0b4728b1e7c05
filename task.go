package spider

import (
	"context"
	"time"
)

// TaskStatus is the outcome a worker reports for a dispatched task.
type TaskStatus string

// Task statuses.
const (
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	return s == TaskSuccess || s == TaskFailed
}

// Task is a queue message asking a worker to crawl a URL.
type Task struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// TaskResult is a queue message reporting a task's outcome.
type TaskResult struct {
	URL    string     `json:"url"`
	Status TaskStatus `json:"status"`
}

// TaskQueue carries tasks from a coordinator to workers and results back,
// letting workers run as separate processes that share no memory.
type TaskQueue interface {
	PushTask(ctx context.Context, task Task) error

	// PopTask waits up to wait for a task. A non-positive wait does not block.
	// The bool result is false if no task arrived.
	PopTask(ctx context.Context, wait time.Duration) (Task, bool, error)

	PushResult(ctx context.Context, result TaskResult) error

	// PopResult waits up to wait for a result. A non-positive wait does not block.
	PopResult(ctx context.Context, wait time.Duration) (TaskResult, bool, error)
}
