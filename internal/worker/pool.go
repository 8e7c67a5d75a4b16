// Package worker runs independent jobs (simplification tiers, level exports) on a bounded
// number of goroutines.
package worker

import (
	"context"
	"sync"
	"time"
)

// Task is a single unit of work. Key identifies it in results and logs.
type Task struct {
	Run func(ctx context.Context) error
	Key string
}

// Result represents the outcome of a task.
type Result struct {
	Err     error
	Task    Task
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// ResultFunc is called with each finished task, before the ProgressFunc.
type ResultFunc func(Result)

// Config configures the worker pool.
type Config struct {
	OnProgress ProgressFunc
	OnResult   ResultFunc
	Workers    int
}

// Pool manages parallel task execution.
type Pool struct {
	onProgress ProgressFunc
	onResult   ResultFunc
	workers    int
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		onProgress: cfg.OnProgress,
		onResult:   cfg.OnResult,
	}
}

// Workers returns the number of goroutines the pool runs.
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes all tasks and returns one result per task that was started or skipped.
// Tasks are processed in parallel by the configured number of workers.
// The function blocks until all tasks complete or the context is cancelled.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		var completed, failed int
		for result := range resultCh {
			results = append(results, result)

			completed++
			if result.Err != nil {
				failed++
			}

			if p.onResult != nil {
				p.onResult(result)
			}
			if p.onProgress != nil {
				p.onProgress(completed, len(tasks), failed)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

// FirstError returns the first failed result's error, if any.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		if err := ctx.Err(); err != nil {
			results <- Result{
				Task: task,
				Err:  err,
			}
			continue
		}

		start := time.Now()
		err := task.Run(ctx)

		results <- Result{
			Task:    task,
			Err:     err,
			Elapsed: time.Since(start),
		}
	}
}
