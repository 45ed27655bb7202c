package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/storefrontlab/review-engine/internal/platform/logger"
	"go.uber.org/zap"
)

// Manager holds the engine's Prometheus metrics.
type Manager struct {
	Registry          *prometheus.Registry
	ReviewsSubmitted  prometheus.Counter
	ReviewsDeleted    prometheus.Counter
	VotesCast         prometheus.Counter
	ModerationActions *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram
	HTTPLatency       *prometheus.HistogramVec
}

// NewManager initializes and registers the engine's metrics on a dedicated
// registry.
func NewManager(serviceName string) *Manager {
	registry := prometheus.NewRegistry()

	// Metric names cannot contain hyphens.
	serviceName = strings.ReplaceAll(serviceName, "-", "_")

	reviewsSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "reviews_submitted_total",
		Help:      "Total number of reviews submitted.",
	})
	reviewsDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "reviews_deleted_total",
		Help:      "Total number of reviews deleted.",
	})
	votesCast := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "votes_cast_total",
		Help:      "Total number of helpfulness votes cast, including toggles.",
	})
	moderationActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serviceName,
		Name:      "moderation_actions_total",
		Help:      "Total number of moderation transitions by resulting status.",
	}, []string{"new_status"})
	recomputeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "aggregate_recompute_duration_seconds",
		Help:      "Duration of product aggregate recomputations.",
		Buckets:   prometheus.DefBuckets,
	})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: serviceName,
		Name:      "http_request_latency_seconds",
		Help:      "Latency of HTTP requests by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	registry.MustRegister(
		reviewsSubmitted,
		reviewsDeleted,
		votesCast,
		moderationActions,
		recomputeDuration,
		httpLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return &Manager{
		Registry:          registry,
		ReviewsSubmitted:  reviewsSubmitted,
		ReviewsDeleted:    reviewsDeleted,
		VotesCast:         votesCast,
		ModerationActions: moderationActions,
		RecomputeDuration: recomputeDuration,
		HTTPLatency:       httpLatency,
	}
}

// StartMetricsServer starts an HTTP server exposing the registry on /metrics.
func StartMetricsServer(port string, appLogger *logger.Logger, registry *prometheus.Registry) error {
	if port == "" {
		appLogger.Info("Prometheus metrics server port not configured, server will not start.")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	appLogger.Info("Prometheus metrics server starting", zap.String("port", port), zap.String("path", "/metrics"))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	return server.ListenAndServe()
}
