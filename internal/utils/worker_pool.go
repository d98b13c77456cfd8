package utils

import (
	"context"
	"sync"
)

// Job represents a task to be executed by a worker.
type Job struct {
	Task func(ctx context.Context)
}

// WorkerPool runs jobs on a fixed number of goroutines. Jobs share the
// context the pool was created with.
type WorkerPool struct {
	ctx       context.Context
	workers   int
	jobQueue  chan Job
	waitGroup sync.WaitGroup
	closeOnce sync.Once
}

// NewWorkerPool creates a new WorkerPool with the specified number of workers.
func NewWorkerPool(ctx context.Context, workers int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &WorkerPool{
		ctx:      ctx,
		workers:  workers,
		jobQueue: make(chan Job, workers),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			continue
		}
		job.Task(wp.ctx)
	}
}

// Submit queues task. It returns false without queueing once the pool's
// context is done.
func (wp *WorkerPool) Submit(task func(ctx context.Context)) bool {
	if wp.ctx.Err() != nil {
		return false
	}
	select {
	case <-wp.ctx.Done():
		return false
	case wp.jobQueue <- Job{Task: task}:
		return true
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (wp *WorkerPool) Shutdown() {
	wp.closeOnce.Do(func() { close(wp.jobQueue) })
	wp.waitGroup.Wait()
}

// Map applies fn to every item on a pool of the given size and returns the
// results in input order.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) R) []R {
	results := make([]R, len(items))
	pool := NewWorkerPool(ctx, workers)
	for i, item := range items {
		i, item := i, item
		if !pool.Submit(func(ctx context.Context) { results[i] = fn(ctx, item) }) {
			break
		}
	}
	pool.Shutdown()
	return results
}
