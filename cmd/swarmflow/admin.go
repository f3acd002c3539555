// =============================================================================
// Admin HTTP endpoint
// =============================================================================
// Health, Prometheus metrics and the current best candidate, served next to
// a running coordinator.
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/types"
)

// adminServer serves /healthz, /metrics and /best for one coordinator.
type adminServer struct {
	cfg       config.AdminConfig
	logger    *zap.Logger
	collector *metrics.Collector
	best      func() (types.Candidate, bool)

	server   *http.Server
	listener net.Listener
}

func newAdminServer(cfg config.AdminConfig, best func() (types.Candidate, bool), collector *metrics.Collector, logger *zap.Logger) *adminServer {
	a := &adminServer{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "admin")),
		collector: collector,
		best:      best,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/best", a.handleBest)
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Handler:      a.instrument(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return a
}

// Start binds the listener and serves in the background.
func (a *adminServer) Start() error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return types.NewError(types.ErrTransport, "listen on "+a.cfg.Addr).WithCause(err)
	}
	a.listener = ln

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server stopped", zap.Error(err))
		}
	}()

	a.logger.Info("admin endpoint ready", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address.
func (a *adminServer) Addr() string {
	if a.listener == nil {
		return a.cfg.Addr
	}
	return a.listener.Addr().String()
}

// Close drains in-flight requests within the configured shutdown timeout.
func (a *adminServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return a.server.Shutdown(ctx)
}

func (a *adminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

func (a *adminServer) handleBest(w http.ResponseWriter, r *http.Request) {
	best, ok := a.best()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no best candidate yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, best)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the response status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency when a collector is attached.
func (a *adminServer) instrument(next http.Handler) http.Handler {
	if a.collector == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		a.collector.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
