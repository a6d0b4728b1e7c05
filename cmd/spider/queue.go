package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yanchengsi/spider"
	"github.com/yanchengsi/spider/crawl"
	"golang.org/x/sync/errgroup"
)

// Run executes the dispatch command.
func (c *DispatchCmd) Run(deps *Dependencies) error {
	if len(c.Seeds) > 0 {
		added, err := deps.Frontier.AddSeed(deps.Ctx, c.Seeds)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
			return err
		}
		fmt.Fprintf(deps.Stdout, "Added %d of %d URLs\n", added, len(c.Seeds))
	}

	d := &Dispatcher{
		Frontier:    deps.Frontier,
		Queue:       deps.Queue,
		Logger:      deps.Logger,
		MaxInflight: deps.Config.Queue.MaxInflight,
		Wait:        deps.Config.Queue.Wait.Duration,
		Batch:       !c.Server && deps.Config.Crawl.Mode == ModeBatch,
	}
	res, err := d.Run(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Dispatched %d tasks: %d succeeded, %d failed\n",
		res.Dispatched, res.Succeeded, res.Failed)
	return nil
}

// Run executes the work command.
func (c *WorkCmd) Run(deps *Dependencies) error {
	workers := c.Workers
	if workers <= 0 {
		workers = deps.Config.Crawl.Workers
	}

	crawler := deps.Crawler
	crawler.Frontier = &reportingFrontier{Frontier: deps.Frontier, queue: deps.Queue}
	crawler.Progress = progressPrinter(deps)
	startProxyPool(deps)

	w := &Worker{
		Crawler:  crawler,
		Queue:    deps.Queue,
		Logger:   deps.Logger,
		Wait:     deps.Config.Queue.Wait.Duration,
		ExitIdle: c.ExitIdle,
	}
	n, err := w.RunWorkers(deps.Ctx, workers)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", spider.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Handled %d tasks\n", n)
	return nil
}

// DispatchResult counts what a Dispatcher did.
type DispatchResult struct {
	Dispatched int
	Succeeded  int
	Failed     int
}

// Dispatcher moves tasks from a frontier onto a task queue and applies the
// results workers send back.
type Dispatcher struct {
	Frontier spider.Frontier
	Queue    spider.TaskQueue
	Logger   *slog.Logger

	// MaxInflight caps tasks pushed but not yet answered.
	MaxInflight int
	// Wait is how long a single PopResult call blocks.
	Wait time.Duration
	// Batch stops the dispatcher once nothing is pending or in progress.
	Batch bool
}

// Run dispatches until the frontier drains (Batch) or ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	logger := d.logger()
	maxInflight := d.MaxInflight
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}

	inflight := 0
	for ctx.Err() == nil {
		for inflight < maxInflight {
			task, ok, err := d.Frontier.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return res, nil
				}
				logger.Error("next task", "err", err)
				break
			}
			if !ok {
				break
			}
			if err := d.Queue.PushTask(ctx, spider.Task{URL: task.URL, Depth: task.Depth}); err != nil {
				logger.Error("push task", "url", task.URL, "err", err)
				if err := d.Frontier.MarkFailed(context.WithoutCancel(ctx), task.URL); err != nil {
					logger.Error("mark failed", "url", task.URL, "err", err)
				}
				continue
			}
			inflight++
			res.Dispatched++
		}

		if d.Batch && inflight == 0 && d.drained(ctx, logger) {
			return res, nil
		}

		result, ok, err := d.Queue.PopResult(ctx, queueWait(d.Wait))
		if err != nil {
			if ctx.Err() != nil {
				return res, nil
			}
			logger.Error("pop result", "err", err)
			continue
		}
		if !ok {
			continue
		}
		if inflight > 0 {
			inflight--
		}
		d.apply(ctx, logger, result, &res)
	}
	return res, nil
}

func (d *Dispatcher) apply(ctx context.Context, logger *slog.Logger, result spider.TaskResult, res *DispatchResult) {
	ctx = context.WithoutCancel(ctx)

	var err error
	switch result.Status {
	case spider.TaskSuccess:
		err = d.Frontier.MarkVisited(ctx, result.URL)
		res.Succeeded++
	case spider.TaskFailed:
		err = d.Frontier.MarkFailed(ctx, result.URL)
		res.Failed++
	default:
		logger.Warn("unknown task status", "url", result.URL, "status", result.Status)
		return
	}
	if err != nil {
		logger.Error("apply result", "url", result.URL, "status", result.Status, "err", err)
	}
}

func (d *Dispatcher) drained(ctx context.Context, logger *slog.Logger) bool {
	stats, err := d.Frontier.Stats(ctx)
	if err != nil {
		logger.Error("frontier stats", "err", err)
		return false
	}
	return stats.Pending == 0 && stats.InProgress == 0
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// Worker crawls tasks popped from a task queue. Its Crawler's frontier
// should report marks back through the queue.
type Worker struct {
	Crawler *crawl.Crawler
	Queue   spider.TaskQueue
	Logger  *slog.Logger

	// Wait is how long a single PopTask call blocks.
	Wait time.Duration
	// ExitIdle stops the worker after one empty wait period.
	ExitIdle bool
}

// Run handles tasks until ctx is canceled, or until the queue stays empty
// when ExitIdle is set. It returns the number of tasks handled.
func (w *Worker) Run(ctx context.Context) (int, error) {
	var n atomic.Int64
	err := w.run(ctx, &n)
	return int(n.Load()), err
}

// RunWorkers runs n worker loops concurrently.
func (w *Worker) RunWorkers(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		n = 1
	}

	var handled atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			return w.run(gctx, &handled)
		})
	}
	err := g.Wait()
	return int(handled.Load()), err
}

func (w *Worker) run(ctx context.Context, handled *atomic.Int64) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for ctx.Err() == nil {
		task, ok, err := w.Queue.PopTask(ctx, queueWait(w.Wait))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("pop task", "err", err)
			continue
		}
		if !ok {
			if w.ExitIdle {
				return nil
			}
			continue
		}

		outcome := w.Crawler.Handle(context.WithoutCancel(ctx), spider.CrawlTask{URL: task.URL, Depth: task.Depth})
		logger.Debug("task handled", "url", task.URL, "outcome", outcome.String())
		handled.Add(1)
	}
	return nil
}

// queueWait keeps pop loops from spinning when no wait is configured.
func queueWait(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}

// reportingFrontier sends marks to the coordinator as task results and
// passes every other call through to the shared frontier.
type reportingFrontier struct {
	spider.Frontier
	queue spider.TaskQueue
}

func (f *reportingFrontier) MarkVisited(ctx context.Context, url string) error {
	return f.queue.PushResult(ctx, spider.TaskResult{URL: url, Status: spider.TaskSuccess})
}

func (f *reportingFrontier) MarkFailed(ctx context.Context, url string) error {
	return f.queue.PushResult(ctx, spider.TaskResult{URL: url, Status: spider.TaskFailed})
}
