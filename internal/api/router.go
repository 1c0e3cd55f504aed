package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/api/handler"
	apimw "github.com/notifyhub/notification-engine/internal/api/middleware"
	"github.com/notifyhub/notification-engine/internal/queue"
	"github.com/notifyhub/notification-engine/internal/service"
	"github.com/notifyhub/notification-engine/internal/socket"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.NotificationService,
	q *queue.PriorityQueue,
	registry *socket.Registry,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(svc, logger)
	bh := handler.NewBatchHandler(svc, logger)
	ph := handler.NewPreferencesHandler(svc, logger)
	dh := handler.NewDeviceHandler(svc, logger)
	mh := handler.NewMetricsHandler(q)
	hh := handler.NewHealthHandler()
	sh := handler.NewSocketHandler(registry, logger)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ws", sh.Upgrade)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Notifications — note: /batch and /send must be registered
		// before /{id} so chi does not treat those literals as an ID.
		r.Post("/notifications/batch", bh.CreateBatch)
		r.Post("/notifications/send", nh.SendImmediate)
		r.Post("/notifications", nh.Create)
		r.Get("/notifications", nh.List)
		r.Get("/notifications/{id}", nh.GetByID)
		r.Delete("/notifications/{id}", nh.Cancel)

		// Preferences and devices
		r.Get("/users/{userID}/preferences", ph.Get)
		r.Put("/users/{userID}/preferences", ph.Update)
		r.Get("/users/{userID}/devices", dh.List)
		r.Delete("/users/{userID}/devices/{deviceID}", dh.Deactivate)
		r.Post("/devices", dh.Register)

		// Explicit out-of-band digest flush (spec's third flush trigger)
		r.Post("/users/{userID}/batches/flush", bh.FlushUser)

		// JSON metrics snapshot
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
