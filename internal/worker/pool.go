package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/queue"
)

// Pool manages the lifecycle of every worker goroutine. All workers share
// the same priority queue and the same Processor — the queue's
// double-select pattern handles priority ordering internally, and the
// processor's pipeline is the only place channel-specific behavior lives.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates size identical workers over q, all driven by proc.
func NewPool(size int, q *queue.PriorityQueue, proc *Processor, log *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(i, q, proc, log)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines. The provided ctx is forwarded
// to every worker; cancelling it triggers a graceful shutdown of the
// entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}
