package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once guards registration; registering a collector twice panics.
	once sync.Once

	// URLsSeen counts dispatched URLs by the branch that handled them:
	// host, generic, emits_only, rejected, filtered.
	URLsSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlbot_urls_total",
			Help: "URLs seen in chat messages by dispatch branch.",
		},
		[]string{"branch"},
	)

	// URLsObserved counts url.host.all emissions by URL scheme.
	URLsObserved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlbot_urls_observed_total",
			Help: "URLs seen by the catch-all observer.",
		},
		[]string{"scheme"},
	)

	// ShortenOutcomes counts finished shorten races by how they resolved.
	ShortenOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlbot_shorten_outcomes_total",
			Help: "Shorten races by resolution reason.",
		},
		[]string{"reason"},
	)

	// FetchDurationSeconds observes URL fetch latency by status class
	// (2xx, 3xx, 4xx, 5xx, error).
	FetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "urlbot_fetch_duration_seconds",
			Help:    "URL fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	// RepliesSent counts outbound chat replies by result (ok, error).
	RepliesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlbot_replies_total",
			Help: "Outbound chat replies.",
		},
		[]string{"result"},
	)

	// ShortlinksCreated counts codes handed out by the built-in shortener.
	ShortlinksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urlbot_shortlinks_created_total",
			Help: "Short links created by the built-in shortener.",
		},
	)

	// ShortlinkRedirects counts successful short link redirects.
	ShortlinkRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "urlbot_shortlink_redirects_total",
			Help: "Short link redirects served.",
		},
	)

	// ClickEvents counts redirect click events through the stats pipeline by
	// result (collected, dropped, saved, failed).
	ClickEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlbot_click_events_total",
			Help: "Short link click events by pipeline result.",
		},
		[]string{"result"},
	)

	// CacheOperations counts shortlink cache lookups by level (l1, l2) and
	// result (hit, hit_negative, miss).
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urlbot_shortlink_cache_operations_total",
			Help: "Shortlink cache lookups.",
		},
		[]string{"level", "result"},
	)

	// HTTPRequestsTotal counts requests served by the shortlink HTTP server.
	// route is the chi route pattern, never the raw path, to bound cardinality.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP requests served.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds observes request latency per route.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests is the number of requests being served.
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)
)

// Init registers all collectors with the default registry, once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			URLsSeen,
			URLsObserved,
			ShortenOutcomes,
			FetchDurationSeconds,
			RepliesSent,
			ShortlinksCreated,
			ShortlinkRedirects,
			ClickEvents,
			CacheOperations,
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
		)
	})
}

// StatusClass maps an HTTP status to the label used by FetchDurationSeconds.
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "error"
	}
}
