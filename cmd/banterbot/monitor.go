package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/metrics"
	"github.com/deusflow/banterbot/internal/ratelimit"
)

func startMonitoringServer(ctx context.Context, port string, limiter *ratelimit.OracleLimiter) {
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(limiter))
	mux.Handle("/metrics", metrics.Global.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting monitoring server", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("monitoring server error", "error", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	code := http.StatusOK
	if !metrics.Global.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_topic": stats["last_topic"],
		"last_error": stats["last_error"],
	})
}

func statsHandler(limiter *ratelimit.OracleLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := metrics.Global.GetStats()
		if limiter != nil {
			stats["oracle_budget"] = limiter.GetStats()
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
