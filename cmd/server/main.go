package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/api"
	"github.com/notifyhub/notification-engine/internal/auth"
	"github.com/notifyhub/notification-engine/internal/batch"
	"github.com/notifyhub/notification-engine/internal/channel"
	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/db"
	"github.com/notifyhub/notification-engine/internal/dedup"
	"github.com/notifyhub/notification-engine/internal/devicecache"
	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/metrics"
	"github.com/notifyhub/notification-engine/internal/queue"
	"github.com/notifyhub/notification-engine/internal/ratelimit"
	"github.com/notifyhub/notification-engine/internal/repository"
	"github.com/notifyhub/notification-engine/internal/service"
	"github.com/notifyhub/notification-engine/internal/socket"
	"github.com/notifyhub/notification-engine/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.Database.URL, cfg.Database.Migrations); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- redis (device cache) ----
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q := queue.New()

	notificationRepo := repository.NewPgNotificationRepository(pool)
	prefsRepo := repository.NewPgPreferencesRepository(pool)
	deviceRepo := repository.NewPgDeviceRepository(pool)
	devices := devicecache.New(redisClient, deviceRepo, cfg.Redis.DeviceTTL, logger)

	rules := domain.NewRuleTable(nil) // seeded with domain.DefaultRuleTable()
	dedupSet := dedup.New(cfg.Dedup.Shards)
	limiter := ratelimit.New(cfg.RateLimit.Shards)

	socketRegistry := socket.NewRegistry(cfg.Socket, auth.BearerUserIDValidator, logger, func(kind string) {
		m.SocketFramesSent.WithLabelValues(kind).Inc()
	})

	adapters := map[domain.Channel]channel.Adapter{
		domain.ChannelInApp: channel.NewSocketAdapter(socketRegistry),
		domain.ChannelPush:  channel.NewPushAdapter(cfg.Push, devices, devices),
		domain.ChannelEmail: channel.NewEmailAdapter(cfg.Email, prefsRepo),
	}

	// ---- processor, batch engine, and worker pool ----
	onSent, onFailed := m.WorkerHooks()
	hooks := worker.MetricHooks{
		OnSent:   onSent,
		OnFailed: onFailed,
		OnRateLimited: func(t domain.NotificationType) {
			m.RateLimited.WithLabelValues(string(t)).Inc()
		},
		OnDeduplicated: func(t domain.NotificationType) {
			m.Deduplicated.WithLabelValues(string(t)).Inc()
		},
		OnBatched: func(t domain.NotificationType) {
			m.BatchesFlushed.WithLabelValues("size_or_window").Inc()
		},
	}

	proc := worker.NewProcessor(worker.Deps{
		Queue:        q,
		Repo:         notificationRepo,
		Prefs:        prefsRepo,
		Rules:        rules,
		Dedup:        dedupSet,
		Limiter:      limiter,
		Adapters:     adapters,
		RateDefaults: cfg.RateLimit,
		DedupDefault: cfg.Dedup.DefaultTTL,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		Backoff:      cfg.Worker.RetryBackoff,
		Hooks:        hooks,
		Log:          logger,
	})

	batchEngine := batch.NewEngine(notificationRepo, proc, logger)
	proc.SetBatchEngine(batchEngine)

	svc := service.NewNotificationService(notificationRepo, prefsRepo, devices, proc, logger)

	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	pool2 := worker.NewPool(cfg.Worker.PoolSize, q, proc, logger)
	pool2.Start(workerCtx)

	retryW := worker.NewRetryWorker(notificationRepo, q, cfg.Worker.SchedulerInterval, 100, logger)
	go retryW.Run(workerCtx)

	schedulerW := worker.NewSchedulerWorker(notificationRepo, q, cfg.Worker.SchedulerInterval, 100, logger)
	go schedulerW.Run(workerCtx)

	batchCheckW := worker.NewBatchCheckWorker(batchEngine, cfg.Worker.BatchCheckInterval, cfg.Batch.DefaultMaxSize, logger)
	go batchCheckW.Run(workerCtx)

	go reportQueueDepth(workerCtx, q, m)
	go sweepIdleConnections(workerCtx, socketRegistry, cfg.Socket.IdleTimeout)
	go sweepDedupSet(workerCtx, dedupSet, cfg.Dedup.SweepEvery)

	// ---- HTTP server ----
	router := api.NewRouter(svc, q, socketRegistry, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests and new socket connections.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	socketRegistry.CloseAll("server_shutdown")

	// 2. Signal all workers to stop processing new queue items.
	cancelWorkers()

	// 3. Wait for in-flight workers to finish their current message.
	pool2.Wait()

	logger.Info("server stopped cleanly")
}

// reportQueueDepth mirrors the priority queue's live depths into the
// Prometheus gauges every tick, since PriorityQueue.Depths is a pull API.
func reportQueueDepth(ctx context.Context, q *queue.PriorityQueue, m *metrics.Metrics) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			urgent, high, normal, low := q.Depths()
			m.QueueDepthUrgent.Set(float64(urgent))
			m.QueueDepthHigh.Set(float64(high))
			m.QueueDepthNormal.Set(float64(normal))
			m.QueueDepthLow.Set(float64(low))
		}
	}
}

func sweepIdleConnections(ctx context.Context, registry *socket.Registry, idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.SweepIdle(time.Now().UTC(), idleTimeout)
		}
	}
}

func sweepDedupSet(ctx context.Context, d *dedup.Set, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(time.Now().UTC())
		}
	}
}
