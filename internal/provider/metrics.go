package provider

import "github.com/prometheus/client_golang/prometheus"

var (
	// providerReqs counts outbound provider calls by operation and outcome
	// ("200", "404", ..., or "error" when no response was received).
	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of requests sent to the messaging-session provider.",
		},
		[]string{"op", "status"},
	)

	// providerLat records provider round-trip time in seconds.
	providerLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Duration of messaging-session provider requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(providerReqs, providerLat)
}
