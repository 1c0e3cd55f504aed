package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/batch"
)

// BatchCheckWorker is a thin managed-goroutine wrapper around the
// batching engine's expiry sweep; main starts it in its own goroutine and
// stops it through the same worker context as the other side workers.
type BatchCheckWorker struct {
	engine   *batch.Engine
	interval time.Duration
	limit    int
	logger   *zap.Logger
}

func NewBatchCheckWorker(engine *batch.Engine, interval time.Duration, limit int, logger *zap.Logger) *BatchCheckWorker {
	if limit <= 0 {
		limit = 100
	}
	return &BatchCheckWorker{engine: engine, interval: interval, limit: limit, logger: logger}
}

// Run delegates to the engine's own tick loop; kept as a separate type so
// the orchestrator manages it the same way as every other background
// worker (uniform start/log/shutdown).
func (bw *BatchCheckWorker) Run(ctx context.Context) {
	bw.logger.Info("batch check worker started", zap.Duration("interval", bw.interval))
	bw.engine.Run(ctx, bw.interval, bw.limit)
}
