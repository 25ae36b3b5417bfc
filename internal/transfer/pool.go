// Package transfer orchestrates single-shot and multipart uploads and
// server-side copies over a shared bounded worker pool.
package transfer

import (
	"fmt"
	"log/slog"
	"sync"
)

// Pool is a bounded worker pool shared across concurrent transfers. Submit
// blocks once the queue is full, which naturally backpressures callers that
// produce parts faster than the store accepts them.
type Pool struct {
	name  string
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewPool starts workers goroutines consuming from a queue of
// workers*queuePerWorker tasks. The name is used for diagnostics only.
func NewPool(name string, workers, queuePerWorker int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queuePerWorker < 1 {
		queuePerWorker = 1
	}
	p := &Pool{
		name:  name,
		tasks: make(chan func(), workers*queuePerWorker),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		worker := fmt.Sprintf("%s-%03d", name, i)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
			slog.Debug("pool worker exiting", slog.String("worker", worker))
		}()
	}
	return p
}

// Submit enqueues a task, blocking while the queue is full. Submitting to a
// closed pool panics; the filesystem closes the pool only after all
// operations have drained.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Close stops accepting tasks and waits for queued work to finish. Safe to
// call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}
