// Package ops serves the out-of-band operational surface: liveness and
// readiness probes, the consumer statistics snapshot and Prometheus
// metrics. It never participates in record processing.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/activityhub/event-processor/config"
	"github.com/activityhub/event-processor/internal/adapter/mongodb"
	"github.com/activityhub/event-processor/internal/handler/kafka"
)

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(
	cfg *config.Config,
	gateway *mongodb.Gateway,
	consumer *kafka.Consumer,
	metrics *kafka.Metrics,
	promReg *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		if err := gateway.Ping(ctx); err != nil {
			http.Error(w, "mongodb unreachable", http.StatusServiceUnavailable)
			return
		}
		if consumer.State() != kafka.StateRunning {
			http.Error(w, "consumer not running", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			kafka.Snapshot
			State string `json:"state"`
		}{
			Snapshot: metrics.Snapshot(),
			State:    consumer.State().String(),
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Ops.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Serve starts listening in the background. Ops failures are logged, not
// fatal: losing probes must not take the pipeline down.
func (s *Server) Serve() {
	s.logger.Info("ops_server_listening", "addr", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops_server_failed", "error", err.Error())
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }
