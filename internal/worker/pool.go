// Package worker provides the fixed-size background pool running remote
// mirror tasks (checkpoint uploads, remote deletes) off the training
// thread. Tasks run to completion or failure; there is no cancellation
// primitive beyond stopping the pool, which drains queued tasks first.
package worker

import (
	"fmt"
	"sync"
	"time"

	"sizif/pkg/logger"
)

// Task is one background job. Run blocks for the duration of the remote
// operation including retry backoff sleeps; OnError, when set, receives
// the failure at the task boundary so it never crosses goroutines
// unhandled.
type Task struct {
	Name    string
	Run     func() error
	OnError func(error)
}

// Pool manages a fixed set of background workers
type Pool struct {
	numWorkers int
	tasks      chan Task
	wg         sync.WaitGroup
	logger     logger.Logger

	// mu orders Submit against Stop so a task is never sent to a
	// closed queue
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewPool creates a worker pool of the given size
func NewPool(numWorkers int, log logger.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, numWorkers*2),
		logger:     log,
	}
}

// Start launches all workers
func (p *Pool) Start() {
	p.logger.InfoWithFields("starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop shuts the pool down, draining tasks already queued. Safe to call
// more than once; Submit after Stop fails cleanly.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping worker pool")
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

// Submit queues a task for background execution, blocking when the
// queue is full until a worker frees a slot
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("worker pool is shutting down")
	}
	p.tasks <- task
	p.logger.DebugWithFields("task submitted", map[string]interface{}{"task": task.Name})
	return nil
}

// QueueSize returns the number of tasks waiting in the queue
func (p *Pool) QueueSize() int {
	return len(p.tasks)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugWithFields("worker started", map[string]interface{}{"worker_id": id})

	for task := range p.tasks {
		start := time.Now()
		err := task.Run()
		if err != nil {
			p.logger.ErrorWithFields("background task failed", map[string]interface{}{
				"worker_id": id,
				"task":      task.Name,
				"error":     err.Error(),
				"duration":  time.Since(start),
			})
			if task.OnError != nil {
				task.OnError(err)
			}
			continue
		}
		p.logger.DebugWithFields("background task done", map[string]interface{}{
			"worker_id": id,
			"task":      task.Name,
			"duration":  time.Since(start),
		})
	}

	p.logger.DebugWithFields("worker stopping, queue closed", map[string]interface{}{"worker_id": id})
}
