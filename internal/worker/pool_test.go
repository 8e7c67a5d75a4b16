package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func sleepTask(key string, delay time.Duration, calls *atomic.Int32, fail bool) Task {
	return Task{
		Key: key,
		Run: func(ctx context.Context) error {
			calls.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if fail {
				return errors.New("simulated failure")
			}
			return nil
		},
	}
}

func TestPool_BasicExecution(t *testing.T) {
	var calls atomic.Int32
	pool := New(Config{Workers: 2})

	tasks := []Task{
		sleepTask("coarse", 10*time.Millisecond, &calls, false),
		sleepTask("medium", 10*time.Millisecond, &calls, false),
		sleepTask("fine", 10*time.Millisecond, &calls, false),
	}

	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for %s: %v", r.Task.Key, r.Err)
		}
	}
	if calls.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d calls, got %d", len(tasks), calls.Load())
	}
	if err := FirstError(results); err != nil {
		t.Errorf("FirstError() = %v, want nil", err)
	}
}

func TestPool_Parallelism(t *testing.T) {
	var calls atomic.Int32
	pool := New(Config{Workers: 4})

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = sleepTask(fmt.Sprintf("level-%d", i), 50*time.Millisecond, &calls, false)
	}

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// With 4 workers and 8 tasks at 50ms each, should take ~100ms (2 batches)
	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}
	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	var calls atomic.Int32
	pool := New(Config{Workers: 2})

	tasks := []Task{
		sleepTask("1", 10*time.Millisecond, &calls, false),
		sleepTask("2", 10*time.Millisecond, &calls, true),
		sleepTask("3", 10*time.Millisecond, &calls, false),
	}

	results := pool.Run(context.Background(), tasks)
	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	var failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.Key != "2" {
				t.Errorf("Unexpected failure for %s", r.Task.Key)
			}
		}
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
	if FirstError(results) == nil {
		t.Error("Expected FirstError to report the failure")
	}
}

func TestPool_Cancellation(t *testing.T) {
	var calls atomic.Int32
	pool := New(Config{Workers: 2})

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = sleepTask(fmt.Sprintf("%d", i), 100*time.Millisecond, &calls, false)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}

	var cancelled int
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("Expected at least one cancelled result")
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	var calls atomic.Int32
	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers: 2,
		OnProgress: func(completed, total, failed int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	tasks := []Task{
		sleepTask("a", 10*time.Millisecond, &calls, false),
		sleepTask("b", 10*time.Millisecond, &calls, false),
		sleepTask("c", 10*time.Millisecond, &calls, false),
	}

	pool.Run(context.Background(), tasks)

	if progressCalls.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d progress callbacks, got %d", len(tasks), progressCalls.Load())
	}
	if lastCompleted != len(tasks) || lastTotal != len(tasks) {
		t.Errorf("Expected final progress %d/%d, got %d/%d", len(tasks), len(tasks), lastCompleted, lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	pool := New(Config{Workers: 2})

	if results := pool.Run(context.Background(), nil); len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}
	if New(Config{}).Workers() != 1 {
		t.Error("Expected a default of one worker")
	}
}
