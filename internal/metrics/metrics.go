package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "betterforward"

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Inbound
	updatesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_received_total",
			Help:      "Upstream updates by classification result.",
		},
		[]string{"kind"},
	)

	// Jobs
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Relay jobs accepted by the worker pool.",
		},
		[]string{"direction"},
	)
	jobsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Relay jobs refused because the pool was shutting down.",
		},
	)
	jobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Terminal job outcomes by direction and status.",
		},
		[]string{"direction", "status"},
	)
	jobAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_attempts",
			Help:      "Delivery attempts per finished job.",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10},
		},
	)
	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from enqueue to terminal outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	deliveryRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retries_total",
			Help:      "Retried delivery attempts by error code.",
		},
		[]string{"code"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in per-conversation queues.",
		},
	)
	activeKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversation_queues",
			Help:      "Conversation keys that currently own a queue.",
		},
	)

	// Transport
	transportCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_calls_total",
			Help:      "Bot API calls by method and result.",
		},
		[]string{"method", "result"},
	)
	topicsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_created_total",
			Help:      "Forum topics opened for new or recreated conversations.",
		},
	)

	// Storage
	conversations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations",
			Help:      "Stored conversations by state.",
		},
		[]string{"state"},
	)
	messageLinks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "message_links",
			Help:      "Stored message links by direction.",
		},
		[]string{"direction"},
	)

	// Cache
	cacheRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_request_duration_seconds",
			Help:      "Redis cache request duration by operation.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"operation"},
	)
	cacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Redis cache errors by operation.",
		},
		[]string{"operation"},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result.",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			updatesReceived,

			jobsSubmitted,
			jobsRejected,
			jobOutcomes,
			jobAttempts,
			jobDuration,
			deliveryRetries,
			queueDepth,
			activeKeys,

			transportCalls,
			topicsCreated,

			conversations,
			messageLinks,

			cacheRequests,
			cacheErrors,
			cacheLookups,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Inbound ---
func IncUpdate(kind string) { updatesReceived.WithLabelValues(kind).Inc() }

// --- Jobs ---
func IncJobSubmitted(direction string) { jobsSubmitted.WithLabelValues(direction).Inc() }
func IncJobRejected()                  { jobsRejected.Inc() }
func IncRetry(code string)             { deliveryRetries.WithLabelValues(code).Inc() }
func AddQueueDepth(delta int)          { queueDepth.Add(float64(delta)) }
func AddActiveKeys(delta int)          { activeKeys.Add(float64(delta)) }

func ObserveOutcome(direction, status string, attempts int, d time.Duration) {
	jobOutcomes.WithLabelValues(direction, status).Inc()
	jobAttempts.Observe(float64(attempts))
	jobDuration.Observe(d.Seconds())
}

// --- Transport ---
func IncTransportCall(method, result string) { transportCalls.WithLabelValues(method, result).Inc() }
func IncTopicCreated()                       { topicsCreated.Inc() }

// --- Storage ---
func SetConversations(state string, n int64) { conversations.WithLabelValues(state).Set(float64(n)) }
func SetMessageLinks(direction string, n int64) {
	messageLinks.WithLabelValues(direction).Set(float64(n))
}

// --- Cache ---
func ObserveCacheRequest(op string, d time.Duration) {
	cacheRequests.WithLabelValues(op).Observe(d.Seconds())
}
func IncCacheError(op string) { cacheErrors.WithLabelValues(op).Inc() }
func IncCacheHit()            { cacheLookups.WithLabelValues("hit").Inc() }
func IncCacheMiss()           { cacheLookups.WithLabelValues("miss").Inc() }

func fmtInt(v int64) string { return strconv.FormatInt(v, 10) }
