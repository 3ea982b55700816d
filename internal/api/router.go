package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/api/handler"
	apimw "github.com/ricirt/plinko-sync/internal/api/middleware"
	"github.com/ricirt/plinko-sync/internal/queue"
	"github.com/ricirt/plinko-sync/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. online is optional and feeds the health endpoint.
func NewRouter(
	svc *service.PeriodService,
	q *queue.Queue,
	syncer handler.Syncer,
	online func() bool,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	ph := handler.NewPeriodHandler(svc, logger)
	qh := handler.NewQueueHandler(q, syncer, logger)
	mh := handler.NewMetricsHandler(q)
	hh := handler.NewHealthHandler(online)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue", qh.Peek)
		r.Post("/queue", qh.Enqueue)
		r.Put("/queue", qh.Replace)
		r.Post("/sync", qh.Sync)

		r.Get("/periods", ph.List)
		r.Post("/periods", ph.Create)
		r.Patch("/periods/{id}", ph.Update)
		r.Delete("/periods/{id}", ph.Delete)
		r.Post("/periods/{id}/select", ph.Select)

		r.Post("/drops", ph.Drop)

		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
