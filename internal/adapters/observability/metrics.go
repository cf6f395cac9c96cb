package observability

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "revpilot", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "revpilot", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "revpilot", Name: "external_requests_total", Help: "Outbound collaborator requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "revpilot", Name: "external_request_duration_seconds",
			Help:    "Outbound collaborator request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "revpilot", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	ImportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "revpilot", Name: "import_rows_total", Help: "Import row outcomes."},
		[]string{"outcome"}, // outcome: accepted|duplicate|rejected
	)
	PipelineStages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "revpilot", Name: "pipeline_stage_runs_total", Help: "Pipeline stage runs."},
		[]string{"stage", "result"}, // stage: otb|features|forecast|pricing, result: ok|error
	)
	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "revpilot", Name: "pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	CollabMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "revpilot", Name: "collaborator_misses_total", Help: "Dates left without a forecast/recommendation."},
		[]string{"service"},
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency,
		ExternalRequests, ExternalLatency,
		CacheEvents, ImportRows,
		PipelineStages, PipelineDuration, CollabMisses,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveImportRow(outcome string) { // outcome: accepted|duplicate|rejected
	ImportRows.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PipelineStages.WithLabelValues(stage, result).Inc()
	PipelineDuration.WithLabelValues(stage).Observe(dur.Seconds())
}

func ObserveCollabMiss(service string) {
	CollabMisses.WithLabelValues(service).Inc()
}
