package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pazars/grabeklis/internal/delivery/http/handler"
	"github.com/pazars/grabeklis/internal/delivery/http/middleware"
	"github.com/pazars/grabeklis/pkg/metrics"
)

func New(h *handler.Handler, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))
	r.Get("/api/health", h.HandleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", h.HandleGetSummary)
		r.Get("/stats", h.HandleGetArchiveStats)
		r.Get("/status", h.HandleGetArticleStatus)
		r.Post("/crawl", h.HandleTriggerCrawl)
		r.Get("/crawl", h.HandleGetCrawlState)
	})

	return r
}
