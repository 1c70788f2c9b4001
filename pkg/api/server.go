package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/pktclass/pkg/classifier"
)

// Config configures the API server.
type Config struct {
	Addr   string
	Engine *classifier.Engine
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	engine     *classifier.Engine
	startTime  time.Time
}

// NewServer creates a new API server over an engine.
func NewServer(cfg Config) *Server {
	s := &Server{
		engine:    cfg.Engine,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	// Health + metrics
	mux.HandleFunc("GET /health", s.healthHandler)

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(cfg.Engine.Collector())
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// REST API v1
	mux.HandleFunc("GET /api/v1/status", s.statusHandler)
	mux.HandleFunc("GET /api/v1/rules", s.listRulesHandler)
	mux.HandleFunc("POST /api/v1/rules", s.addRuleHandler)
	mux.HandleFunc("GET /api/v1/rules/{id}", s.getRuleHandler)
	mux.HandleFunc("PUT /api/v1/rules/{id}", s.modifyRuleHandler)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", s.deleteRuleHandler)
	mux.HandleFunc("POST /api/v1/classify", s.classifyHandler)
	mux.HandleFunc("POST /api/v1/classify/batch", s.classifyBatchHandler)
	mux.HandleFunc("GET /api/v1/statistics", s.statisticsHandler)
	mux.HandleFunc("GET /api/v1/statistics/{id}", s.ruleStatisticsHandler)
	mux.HandleFunc("POST /api/v1/statistics/reset", s.resetStatisticsHandler)
	mux.HandleFunc("POST /api/v1/statistics/{id}/reset", s.resetRuleStatisticsHandler)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
