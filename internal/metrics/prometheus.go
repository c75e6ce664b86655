package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts dispatched diagram requests by language and outcome.
	// The outcome is "ok" or an error kind such as "render" or "timeout".
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagram_requests_total",
			Help: "Total number of diagram requests.",
		},
		[]string{"lang", "outcome"},
	)

	// EncodeDurationSeconds observes how long each backend took to produce a URL.
	EncodeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diagram_encode_duration_seconds",
			Help:    "Duration of diagram encoding in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9), // 1ms .. ~65s
		},
		[]string{"lang"},
	)

	// RemoteFetchDurationSeconds observes calls to a remote renderer.
	RemoteFetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diagram_remote_fetch_duration_seconds",
			Help:    "Duration of remote render requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BrowserSessionsActive is the number of headless browser contexts alive.
	BrowserSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diagram_browser_sessions_active",
			Help: "Number of headless browser sessions currently running.",
		},
	)

	// BrowserSessionsLimit is the configured browser session cap.
	BrowserSessionsLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diagram_browser_sessions_limit",
			Help: "Maximum number of concurrent headless browser sessions.",
		},
	)

	// ScriptCacheTotal counts compiled-script cache lookups by result
	// ("hit", "miss", "error").
	ScriptCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagram_cache_hits_total",
			Help: "Compiled script cache lookups by result.",
		},
		[]string{"result"},
	)
)
