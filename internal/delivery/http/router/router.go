package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/delivery/http/handler"
	"github.com/user/storewatch/internal/delivery/http/middleware"
	"github.com/user/storewatch/pkg/metrics"
)

const readTimeout = 30 * time.Second

// New builds the control API. Check passes run on the request goroutine
// and are not subject to the read timeout.
func New(h *handler.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(readTimeout))

			r.Get("/health", h.HandleHealthCheck)

			r.Get("/stores", h.HandleListStores)
			r.Post("/stores", h.HandleLoadStores)
			r.Delete("/stores", h.HandleDeleteByStatus)
			r.Delete("/stores/all", h.HandleClearAll)

			r.Get("/store", h.HandleGetStore)
			r.Delete("/store", h.HandleRemoveStore)
			r.Get("/store/history", h.HandleStoreHistory)

			r.Get("/stats", h.HandleStats)
			r.Get("/timeline", h.HandleTimeline)
			r.Get("/changes", h.HandleChanges)
			r.Get("/dead", h.HandleDeadStores)

			r.Get("/scheduler", h.HandleSchedulerStatus)
			r.Post("/scheduler/start", h.HandleSchedulerStart)
			r.Post("/scheduler/stop", h.HandleSchedulerStop)
			r.Put("/scheduler/interval", h.HandleSchedulerInterval)

			r.Get("/proxy", h.HandleProxyInfo)
			r.Put("/proxy", h.HandleSetProxy)
			r.Get("/regions", h.HandleRegions)

			r.Post("/notifications/test", h.HandleTestNotification)
			r.Post("/notifications/changes", h.HandleSendChanges)
		})

		r.Post("/checks", h.HandleCheckAll)
		r.Post("/checks/dead", h.HandleRecheckDead)
	})

	return r
}
