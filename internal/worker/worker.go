package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/queue"
)

// Worker is a single goroutine that continuously pulls items from the
// priority queue and runs them through the processor's admission
// pipeline. All workers share one Processor and one queue — the queue's
// double-select pattern handles priority ordering internally, so workers
// themselves are interchangeable.
type Worker struct {
	id   int
	q    *queue.PriorityQueue
	proc *Processor
	log  *zap.Logger
}

func NewWorker(id int, q *queue.PriorityQueue, proc *Processor, log *zap.Logger) *Worker {
	return &Worker{id: id, q: q, proc: proc, log: log.With(zap.Int("worker_id", id))}
}

// Run blocks until ctx is cancelled, processing one queue item per
// iteration.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	for {
		item, ok := w.q.Dequeue(ctx)
		if !ok {
			w.log.Info("worker stopping")
			return
		}
		w.proc.processItem(ctx, item)
	}
}
