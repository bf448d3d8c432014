package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grocerysync/pkg/logger"
)

var (
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocerysync_backend_requests_total",
			Help: "Total number of backend requests.",
		},
		[]string{"method", "class", "status"},
	)
	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grocerysync_backend_request_duration_seconds",
			Help:    "Histogram of backend request durations.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "class", "status"},
	)
	rowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grocerysync_rows_total",
			Help: "Rows processed by a job, by outcome.",
		},
		[]string{"job", "outcome"},
	)
	chunkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grocerysync_chunk_duration_seconds",
			Help:    "Time taken to settle one chunk of rows.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(backendRequestsTotal)
	prometheus.MustRegister(backendRequestDuration)
	prometheus.MustRegister(rowsTotal)
	prometheus.MustRegister(chunkDuration)
}

// RecordRequest records one backend call. statusCode 0 means the request never got a response.
func RecordRequest(method, class string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	backendRequestsTotal.WithLabelValues(method, class, status).Inc()
	backendRequestDuration.WithLabelValues(method, class, status).Observe(duration.Seconds())
}

func RecordRow(job, outcome string) {
	rowsTotal.WithLabelValues(job, outcome).Inc()
}

func RecordChunk(job string, duration time.Duration) {
	chunkDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string, log logger.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
}
