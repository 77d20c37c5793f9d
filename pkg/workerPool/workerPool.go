// Package workerpool runs independent jobs on a fixed set of goroutines. Jobs are grouped
// in rooms; a room collects the results of its own jobs in submission order.
package workerpool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

var ErrQueueFull = errors.New("worker pool queue is full")

type WorkerPool struct {
	config    Config
	taskQueue chan func()
	closeOnce sync.Once
	workers   sync.WaitGroup
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU()
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 1024
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan func(), config.GlobalBuffer),
	}
	wp.workers.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.workers.Done()
	for run := range wp.taskQueue {
		run()
	}
}

// Close stops the workers after the queued jobs ran. No job may be submitted afterwards.
func (wp *WorkerPool) Close() {
	wp.closeOnce.Do(func() {
		close(wp.taskQueue)
	})
	wp.workers.Wait()
}

type Room[T any] struct {
	wp      *WorkerPool
	wg      sync.WaitGroup
	mu      sync.Mutex
	results []T
	errs    []error
}

func CreateRoom[T any](wp *WorkerPool) *Room[T] {
	return &Room[T]{wp: wp}
}

func (ro *Room[T]) slot() int {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	var zero T
	ro.results = append(ro.results, zero)
	ro.errs = append(ro.errs, nil)
	return len(ro.results) - 1
}

func (ro *Room[T]) task(i int, job func() (T, error)) func() {
	return func() {
		defer ro.wg.Done()
		v, err := job()
		ro.mu.Lock()
		ro.results[i], ro.errs[i] = v, err
		ro.mu.Unlock()
	}
}

// NewTaskWaitForFreeSlot queues job, blocking while the pool queue is full.
func (ro *Room[T]) NewTaskWaitForFreeSlot(job func() (T, error)) {
	i := ro.slot()
	ro.wg.Add(1)
	ro.wp.taskQueue <- ro.task(i, job)
}

// NewTask queues job or fails with ErrQueueFull.
func (ro *Room[T]) NewTask(job func() (T, error)) error {
	ro.wg.Add(1)
	ro.mu.Lock()
	var zero T
	i := len(ro.results)
	select {
	case ro.wp.taskQueue <- ro.task(i, job):
		ro.results = append(ro.results, zero)
		ro.errs = append(ro.errs, nil)
		ro.mu.Unlock()
		return nil
	default:
		ro.mu.Unlock()
		ro.wg.Done()
		return ErrQueueFull
	}
}

// Collect waits for every job of the room. Results keep the submission order; the error
// is the one of the earliest failed job.
func (ro *Room[T]) Collect() ([]T, error) {
	ro.wg.Wait()
	ro.mu.Lock()
	defer ro.mu.Unlock()
	for i, err := range ro.errs {
		if err != nil {
			return ro.results, fmt.Errorf("job %d: %w", i, err)
		}
	}
	return ro.results, nil
}
