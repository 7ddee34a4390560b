package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// AliveText is the fixed liveness response body
const AliveText = "Bot is alive!"

// HealthServer answers the hosting platform's liveness probe.
type HealthServer struct {
	srv     *http.Server
	metrics *Metrics
}

// NewHealthServer binds GET / (liveness) and GET /stats (metrics) on port.
func NewHealthServer(port int, metrics *Metrics) *HealthServer {
	h := &HealthServer{metrics: metrics}
	h.srv = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// Handler returns the HTTP routes
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(AliveText))
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.metrics.Snapshot())
	})
	return mux
}

// Start serves in the background until Shutdown.
func (h *HealthServer) Start() {
	go func() {
		slog.Info("Liveness server started", slog.String("addr", h.srv.Addr))
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Liveness server failed", slog.Any("error", err))
		}
	}()
}

// Shutdown stops the server gracefully
func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
