package mock

import (
	"context"
	"time"

	"github.com/yanchengsi/spider"
)

var _ spider.TaskQueue = (*TaskQueue)(nil)

// TaskQueue is a mock implementation of spider.TaskQueue.
type TaskQueue struct {
	PushTaskFn   func(ctx context.Context, task spider.Task) error
	PopTaskFn    func(ctx context.Context, wait time.Duration) (spider.Task, bool, error)
	PushResultFn func(ctx context.Context, result spider.TaskResult) error
	PopResultFn  func(ctx context.Context, wait time.Duration) (spider.TaskResult, bool, error)
}

func (q *TaskQueue) PushTask(ctx context.Context, task spider.Task) error {
	return q.PushTaskFn(ctx, task)
}

func (q *TaskQueue) PopTask(ctx context.Context, wait time.Duration) (spider.Task, bool, error) {
	return q.PopTaskFn(ctx, wait)
}

func (q *TaskQueue) PushResult(ctx context.Context, result spider.TaskResult) error {
	return q.PushResultFn(ctx, result)
}

func (q *TaskQueue) PopResult(ctx context.Context, wait time.Duration) (spider.TaskResult, bool, error) {
	return q.PopResultFn(ctx, wait)
}
