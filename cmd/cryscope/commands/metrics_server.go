package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harunnryd/cryscope/pkg/metrics"
)

// metricsServer exposes the session series on /metrics with its own
// registry so repeated runs in one process do not collide.
type metricsServer struct {
	server   *http.Server
	observer *metrics.PrometheusObserver
	logger   *slog.Logger
}

func newMetricsServer(addr string, logger *slog.Logger) *metricsServer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &metricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		observer: metrics.NewPrometheusObserver(reg),
		logger:   logger,
	}
}

func (m *metricsServer) Start() {
	go func() {
		m.logger.Info("metrics_listening", "addr", m.server.Addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics_server_failed", "error", err)
		}
	}()
}

func (m *metricsServer) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
