package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/taskhub/chat-server/internal/monitoring"
)

// Task is a unit of deferred work executed by the pool.
type Task func()

// WorkerPool runs deferred fan-out work (coalesced count updates, admin
// notifications) on a bounded set of goroutines so reader goroutines never
// block on registry-wide iteration.
type WorkerPool struct {
	workerCount  int
	taskQueue    chan Task
	wg           sync.WaitGroup
	droppedTasks int64
	logger       zerolog.Logger

	// Guards taskQueue against a Submit racing the close in Stop. Timer
	// callbacks (coalesced count updates) can fire after shutdown began.
	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(workerCount, queueSize int, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, queueSize),
		logger:      logger,
	}
}

// Start launches the workers. Must be called before Submit.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	defer monitoring.RecoverPanic(p.logger, "worker", map[string]any{"worker_id": id})

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit queues a task. When the queue is full, or the pool has already
// stopped, the task runs synchronously in the caller: backpressure instead of
// silent loss, and safe against timers firing during shutdown.
func (p *WorkerPool) Submit(task Task) {
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		task()
		return
	}

	select {
	case p.taskQueue <- task:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		atomic.AddInt64(&p.droppedTasks, 1)
		task()
	}
}

// Stop closes the queue and waits for in-flight tasks to finish. Later
// Submits degrade to synchronous execution.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
}
