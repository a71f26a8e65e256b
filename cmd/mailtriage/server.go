package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailtriage/pkg/dispatch"
	"mailtriage/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

// statusSource is the part of the dispatcher the status endpoint reads.
type statusSource interface {
	Status() dispatch.Status
}

// newMonitorHandler serves /metrics, /status and /healthz.
func newMonitorHandler(src statusSource, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(src.Status()); err != nil {
			logx.NewLogger("monitor").Warn("Failed to encode status: %v", err)
		}
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// serveMonitor listens on addr until ctx is done. It returns once the listener is bound so
// bind errors surface immediately; the returned channel yields the serve error.
func serveMonitor(ctx context.Context, addr string, handler http.Handler) (<-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger := logx.NewLogger("monitor")
	logger.Info("Serving /metrics and /status on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
		close(errCh)
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Monitor shutdown: %v", err)
		}
	}()
	return errCh, nil
}
