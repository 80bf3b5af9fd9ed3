package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/sentinel/internal/middleware"
)

// QueueStats reports analysis backlog for the health endpoint.
type QueueStats interface {
	QueueDepth() int
}

type RouterConfig struct {
	Clips *ClipHandler
	Queue QueueStats
	Log   *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if cfg.Queue != nil {
			body["analysis_queue_depth"] = cfg.Queue.QueueDepth()
		}
		respondJSON(w, http.StatusOK, body)
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Clips != nil {
		cfg.Clips.Register(r)
	}
	return r
}
